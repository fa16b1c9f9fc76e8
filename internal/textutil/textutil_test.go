package textutil

import "testing"

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "four latin chars", text: "abcd", want: 1},
		{name: "eight latin chars", text: "abcdefgh", want: 2},
		{name: "six thai runes", text: "สวัสดี", want: 3}, // 6 / 2.5 = 2.4 → 3
		{name: "single char rounds up", text: "a", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.text); got != tt.want {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimateTokensThaiDenserThanLatin(t *testing.T) {
	thai := "กกกกกกกกกก"  // 10 Thai runes
	latin := "aaaaaaaaaa" // 10 Latin runes
	if EstimateTokens(thai) <= EstimateTokens(latin) {
		t.Errorf("Thai text must cost more tokens per char: thai=%d latin=%d",
			EstimateTokens(thai), EstimateTokens(latin))
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Language
	}{
		{name: "pure english", text: "hello world how are you", want: LangEnglish},
		{name: "pure thai", text: "สวัสดีครับ ทุกคน", want: LangThai},
		{name: "mixed", text: "deploy แอป with docker compose please", want: LangMixed},
		{name: "empty is english", text: "", want: LangEnglish},
		{name: "whitespace only is english", text: "   \n\t", want: LangEnglish},
		{name: "trace thai stays mixed", text: "run the deployment script ครับ okay then", want: LangMixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectLanguage(tt.text); got != tt.want {
				t.Errorf("DetectLanguage(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
