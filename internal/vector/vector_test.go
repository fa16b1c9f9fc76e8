package vector

import (
	"testing"

	"google.golang.org/genai"
)

func TestGeminiEmbedOptionsMatchSchemaWidth(t *testing.T) {
	opts := GeminiEmbedOptions()
	if opts.OutputDimensionality == nil {
		t.Fatal("OutputDimensionality is nil; gemini-embedding-001 would emit 3072-dim vectors")
	}
	if *opts.OutputDimensionality != Dimension {
		t.Errorf("OutputDimensionality = %d, want %d", *opts.OutputDimensionality, Dimension)
	}
	if Dimension != 768 {
		t.Errorf("Dimension = %d, want 768 to match the embeddings table", Dimension)
	}
}

func TestEmbedRequestCarriesOptions(t *testing.T) {
	opts := GeminiEmbedOptions()
	req := embedRequest("สวัสดี", opts)

	if len(req.Input) != 1 {
		t.Fatalf("len(Input) = %d, want 1", len(req.Input))
	}
	got, ok := req.Options.(*genai.EmbedContentConfig)
	if !ok {
		t.Fatalf("Options type = %T, want *genai.EmbedContentConfig", req.Options)
	}
	if got.OutputDimensionality == nil || *got.OutputDimensionality != Dimension {
		t.Errorf("Options lost the dimensionality bound: %+v", got)
	}

	// Native 768-dim models pass no options.
	if req := embedRequest("hello", nil); req.Options != nil {
		t.Errorf("Options = %v, want nil when no provider options are set", req.Options)
	}
}
