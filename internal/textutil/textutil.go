// Package textutil provides token estimation and language detection for
// Thai/English text. Both are pure functions with no I/O; they feed chunk
// sizing, query classification, and result-quality heuristics.
package textutil

import (
	"math"
	"unicode"
)

// Language is the dominant script of a span of text.
type Language string

const (
	LangThai    Language = "thai"
	LangEnglish Language = "english"
	LangMixed   Language = "mixed"
)

// Token cost per character. Thai is a dense script without spaces, so a
// Thai character carries more information than a Latin one. These ratios
// drive chunk sizing and must not drift independently of each other.
const (
	thaiCharsPerToken  = 2.5
	otherCharsPerToken = 4.0
)

// Thai-ratio thresholds for DetectLanguage.
const (
	thaiDominantRatio = 0.40
	thaiTraceRatio    = 0.05
)

// isThai reports whether r falls in the Thai Unicode block.
func isThai(r rune) bool {
	return r >= 0x0E00 && r <= 0x0E7F
}

// EstimateTokens returns an approximate token count for text.
// Thai characters cost 1/2.5 token each, everything else 1/4.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	var thai, other int
	for _, r := range text {
		if isThai(r) {
			thai++
		} else {
			other++
		}
	}

	estimate := float64(thai)/thaiCharsPerToken + float64(other)/otherCharsPerToken
	return int(math.Ceil(estimate))
}

// DetectLanguage returns the dominant language of text based on the ratio
// of Thai characters among non-whitespace characters:
// >40% Thai, <5% English, otherwise mixed.
func DetectLanguage(text string) Language {
	var thai, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isThai(r) {
			thai++
		}
	}

	if total == 0 {
		return LangEnglish
	}

	ratio := float64(thai) / float64(total)
	switch {
	case ratio > thaiDominantRatio:
		return LangThai
	case ratio < thaiTraceRatio:
		return LangEnglish
	default:
		return LangMixed
	}
}
