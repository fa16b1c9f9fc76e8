package chunker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jellycore/oracle/internal/log"
	"github.com/jellycore/oracle/internal/nlp"
	"github.com/jellycore/oracle/internal/textutil"
)

// fakeThai records calls and returns canned chunks or an error.
type fakeThai struct {
	chunks []string
	err    error
	calls  int
}

func (f *fakeThai) Chunk(_ context.Context, text string, _, _ int) (nlp.ChunkResult, error) {
	f.calls++
	if f.err != nil {
		return nlp.ChunkResult{}, f.err
	}
	if f.chunks == nil {
		return nlp.ChunkResult{Chunks: []string{text}, Count: 1}, nil
	}
	return nlp.ChunkResult{Chunks: f.chunks, Count: len(f.chunks)}, nil
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	c := New(DefaultConfig(), nil, log.NewNop())
	text := "  a short note about deployments  "

	got := c.Split(context.Background(), text)
	if len(got) != 1 {
		t.Fatalf("Split() returned %d chunks, want 1", len(got))
	}
	if got[0] != strings.TrimSpace(text) {
		t.Errorf("Split() = %q, want trimmed input", got[0])
	}
}

func TestSplitEmpty(t *testing.T) {
	c := New(DefaultConfig(), nil, log.NewNop())
	if got := c.Split(context.Background(), "   \n "); got != nil {
		t.Errorf("Split(blank) = %v, want nil", got)
	}
}

func TestSplitLongEnglishText(t *testing.T) {
	c := New(DefaultConfig(), nil, log.NewNop())

	sentence := "The deployment pipeline builds the container image and pushes it to the registry before rolling out. "
	text := strings.Repeat(sentence, 80)

	got := c.Split(context.Background(), text)
	if len(got) < 2 {
		t.Fatalf("Split() returned %d chunks, want several for %d tokens",
			len(got), textutil.EstimateTokens(text))
	}
	for i, chunk := range got {
		if tokens := textutil.EstimateTokens(chunk); tokens > c.cfg.MaxTokens+c.cfg.OverlapTokens {
			t.Errorf("chunk %d has %d tokens, exceeds budget %d", i, tokens, c.cfg.MaxTokens)
		}
	}
}

func TestSplitOverlapCarriedForward(t *testing.T) {
	c := New(Config{MaxTokens: 50, OverlapTokens: 20, MinChunkTokens: 5, PreserveCodeBlocks: true}, nil, log.NewNop())

	sentence := "Each sentence here is roughly a dozen tokens long in the estimate. "
	text := strings.Repeat(sentence, 20)

	got := c.Split(context.Background(), text)
	if len(got) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(got))
	}
	// The trailing sentence of chunk N must reappear at the head of chunk N+1.
	for i := 0; i < len(got)-1; i++ {
		lines := strings.Split(got[i], "\n")
		tail := lines[len(lines)-1]
		if !strings.Contains(got[i+1], tail) {
			t.Errorf("chunk %d does not carry overlap from chunk %d", i+1, i)
		}
	}
}

func TestSplitNeverBreaksCodeFence(t *testing.T) {
	c := New(DefaultConfig(), nil, log.NewNop())

	code := "```go\nfunc main() {\n\tfmt.Println(\"hello\")\n}\n```"
	filler := strings.Repeat("Some explanatory sentence that pads the document out. ", 60)
	text := filler + "\n\n" + code + "\n\n" + filler

	got := c.Split(context.Background(), text)
	if len(got) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(got))
	}

	var containing int
	for _, chunk := range got {
		if strings.Contains(chunk, code) {
			containing++
		}
		if strings.Count(chunk, "```")%2 != 0 {
			t.Errorf("chunk has unbalanced code fence:\n%s", chunk)
		}
	}
	if containing == 0 {
		t.Error("code block missing from all chunks")
	}
}

func TestSplitKeepsHeaderWithContent(t *testing.T) {
	c := New(Config{MaxTokens: 60, OverlapTokens: 10, MinChunkTokens: 5, PreserveCodeBlocks: true}, nil, log.NewNop())

	text := "## Setup\n" + strings.Repeat("Install the dependencies first. ", 20) +
		"\n## Usage\n" + strings.Repeat("Run the binary with the config flag. ", 20)

	got := c.Split(context.Background(), text)
	for _, chunk := range got {
		for _, line := range strings.Split(chunk, "\n") {
			if strings.HasPrefix(line, "## ") && strings.TrimSpace(chunk) == strings.TrimSpace(line) {
				t.Errorf("header %q stranded without content", line)
			}
		}
	}
}

func TestSplitThaiDelegatesToSidecar(t *testing.T) {
	thai := &fakeThai{chunks: []string{"ก้อนหนึ่ง", "ก้อนสอง"}}
	c := New(Config{MaxTokens: 30, OverlapTokens: 5, MinChunkTokens: 1, PreserveCodeBlocks: true}, thai, log.NewNop())

	text := strings.Repeat("ประโยคภาษาไทยยาวมากสำหรับการทดสอบระบบแบ่งก้อน ", 10)
	got := c.Split(context.Background(), text)

	if thai.calls == 0 {
		t.Fatal("sidecar chunker was not called for Thai text")
	}
	joined := strings.Join(got, "\n")
	if !strings.Contains(joined, "ก้อนหนึ่ง") {
		t.Errorf("sidecar chunks missing from output: %v", got)
	}
}

func TestSplitThaiFallbackOnSidecarError(t *testing.T) {
	thai := &fakeThai{err: errors.New("sidecar down")}
	c := New(Config{MaxTokens: 30, OverlapTokens: 5, MinChunkTokens: 1, PreserveCodeBlocks: true}, thai, log.NewNop())

	para := strings.Repeat("ทดสอบ ", 20)
	text := para + "\n\n" + para + "\n\n" + para

	got := c.Split(context.Background(), text)
	if len(got) == 0 {
		t.Fatal("fallback split produced no chunks")
	}
	if thai.calls == 0 {
		t.Error("sidecar was never attempted")
	}
}

func TestSplitMergesTinyTrailingChunk(t *testing.T) {
	c := New(Config{MaxTokens: 50, OverlapTokens: 0, MinChunkTokens: 20, PreserveCodeBlocks: true}, nil, log.NewNop())

	text := strings.Repeat("A fairly standard sentence for the chunker to pack together. ", 15) + "Tiny tail."
	got := c.Split(context.Background(), text)
	for i, chunk := range got {
		if tokens := textutil.EstimateTokens(chunk); tokens < c.cfg.MinChunkTokens {
			t.Errorf("chunk %d has %d tokens, below minimum %d: %q", i, tokens, c.cfg.MinChunkTokens, chunk)
		}
	}
}
