// Package classifier maps a raw query string to a retrieval profile: a
// query-type tag, prior blend weights for the lexical and vector sources,
// and per-source candidate-fetch multipliers.
//
// Classification is pure and deterministic — it counts regex signal
// matches against two fixed signal sets and walks a priority-ordered
// decision table. The output is a prior, not a final decision: the
// quality corrector re-weights it against the scores each source
// actually returned.
package classifier

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// QueryType tags how a query should be retrieved.
type QueryType string

const (
	TypeExact    QueryType = "exact"
	TypeSemantic QueryType = "semantic"
	TypeMixed    QueryType = "mixed"
)

// Profile is the prior retrieval profile for a query.
type Profile struct {
	Type             QueryType `json:"type"`
	FTSWeight        float64   `json:"ftsWeight"`
	VectorWeight     float64   `json:"vectorWeight"`
	FTSCandidates    int       `json:"ftsCandidateMultiplier"`
	VectorCandidates int       `json:"vectorCandidateMultiplier"`
	Reason           string    `json:"reason"`
}

// Exact signals: code-ish tokens that a keyword index resolves better
// than an embedding does.
var exactSignals = []*regexp.Regexp{
	regexp.MustCompile("`[^`]+`"),                          // backticked span
	regexp.MustCompile(`\b[a-z]+[A-Z][A-Za-z]*\b`),         // camelCase
	regexp.MustCompile(`\b[A-Z][A-Z0-9_]{2,}\b`),           // ALL_CAPS >= 3 chars
	regexp.MustCompile(`\b(?:E[A-Z]{2,}|0x[0-9a-fA-F]+|[A-Z]+-\d+)\b`), // error codes
	regexp.MustCompile(`"[^"]+"`),                          // quoted phrase
	regexp.MustCompile(`\bv?\d+\.\d+(?:\.\d+)*\b`),         // dotted version
	regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*=[^\s]+`),  // KEY=value
	regexp.MustCompile(`\b[\w.-]+\.(?:go|py|js|ts|tsx|jsx|rs|java|c|cpp|h|rb|php|sh|md|txt|json|yaml|yml|toml|sql|html|css|env|lock|conf)\b`), // filename
	regexp.MustCompile(`\b(?:git|npm|pnpm|yarn|docker|kubectl|curl|grep|pip|cargo|make|brew|apt|ssh)\s+\w+`), // CLI verb + arg
}

// Semantic signals: interrogatives and request verbs, Thai and English.
var semanticSignals = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:what|why|how|when|where|which|who|whose)\b`),
	regexp.MustCompile(`(?i)\b(?:explain|describe|summarize|compare|recommend|suggest|help|show|tell|find|remember)\b`),
	regexp.MustCompile(`ทำไม|อะไร|ยังไง|อย่างไร|ที่ไหน|เมื่อไหร่|เมื่อไร|ใคร|แบบไหน`),
	regexp.MustCompile(`ช่วย|อธิบาย|แนะนำ|สรุป|เปรียบเทียบ|บอก|หา|ขอ`),
	regexp.MustCompile(`ไหม|มั้ย|หรือเปล่า|ใช่ไหม|คืออะไร`),
}

// countSignals sums occurrences across a signal set.
func countSignals(query string, signals []*regexp.Regexp) int {
	var n int
	for _, re := range signals {
		n += len(re.FindAllString(query, -1))
	}
	return n
}

// longQueryChars is the rune count past which a signal-free multi-word
// query is presumed semantic. Counting runes, not bytes, keeps the
// threshold meaningful for Thai text.
const longQueryChars = 30

// Classify produces the prior retrieval profile for query.
//
// The decision table is evaluated in priority order; the first matching
// row wins. Sub-millisecond, no external calls.
func Classify(query string) Profile {
	exact := countSignals(query, exactSignals)
	semantic := countSignals(query, semanticSignals)
	words := len(strings.Fields(query))

	switch {
	case exact > 0 && semantic > 0:
		return Profile{TypeMixed, 0.5, 0.5, 5, 5, "both exact and semantic signals"}
	case exact >= 2:
		return Profile{TypeExact, 0.85, 0.15, 6, 3, "multiple exact signals"}
	case exact == 1:
		return Profile{TypeExact, 0.75, 0.25, 6, 4, "one exact signal"}
	case semantic >= 2 || (semantic == 1 && words > 5):
		return Profile{TypeSemantic, 0.25, 0.75, 4, 6, "strong semantic signals"}
	case semantic == 1:
		return Profile{TypeSemantic, 0.3, 0.7, 4, 6, "one semantic signal"}
	case utf8.RuneCountInString(query) > longQueryChars && words > 1:
		return Profile{TypeSemantic, 0.35, 0.65, 4, 5, "long multi-word query"}
	default:
		return Profile{TypeMixed, 0.4, 0.6, 4, 4, "no signals, default mixed"}
	}
}
