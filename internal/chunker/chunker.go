// Package chunker splits documents into overlapping chunks sized by a
// token budget.
//
// Fenced code blocks are protected as atomic units via placeholder
// substitution and are never split, regardless of length. Markdown
// headers open a new section and stay attached to their content. Thai
// and mixed-language sections delegate sentence splitting to the NLP
// sidecar, with a deterministic paragraph-then-line local fallback;
// English sections split on sentence boundaries with no external call.
package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jellycore/oracle/internal/nlp"
	"github.com/jellycore/oracle/internal/textutil"
)

// Config controls chunk sizing.
type Config struct {
	MaxTokens          int
	OverlapTokens      int
	MinChunkTokens     int
	PreserveCodeBlocks bool
}

// DefaultConfig returns the standard chunking budget.
func DefaultConfig() Config {
	return Config{
		MaxTokens:          400,
		OverlapTokens:      80,
		MinChunkTokens:     50,
		PreserveCodeBlocks: true,
	}
}

// ThaiSplitter is the sidecar capability the chunker consumes.
// *nlp.Client satisfies it.
type ThaiSplitter interface {
	Chunk(ctx context.Context, text string, maxTokens, overlap int) (nlp.ChunkResult, error)
}

// Chunker splits text into token-budgeted chunks.
//
// Chunker is safe for concurrent use.
type Chunker struct {
	cfg    Config
	thai   ThaiSplitter
	logger *slog.Logger
}

// New creates a Chunker. thai may be nil, in which case Thai sections
// always use the local fallback split.
func New(cfg Config, thai ThaiSplitter, logger *slog.Logger) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{cfg: cfg, thai: thai, logger: logger}
}

// codeFence matches a fenced code block including its fences.
var codeFence = regexp.MustCompile("(?s)```.*?```")

// headerLine matches a markdown header at the start of a line.
var headerLine = regexp.MustCompile(`(?m)^#{1,6}[ \t]`)

// Placeholder delimiters use a private-use rune so they never collide
// with document text or sentence boundaries.
const placeholderMark = ""

// Split chunks text. A text that fits the budget is returned unchanged
// (trimmed) as a single chunk.
func (c *Chunker) Split(ctx context.Context, text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if textutil.EstimateTokens(text) <= c.cfg.MaxTokens {
		return []string{text}
	}

	masked, blocks := c.maskCodeBlocks(text)

	var units []string
	for _, section := range splitSections(masked) {
		units = append(units, c.sectionUnits(ctx, section)...)
	}

	chunks := c.group(units)

	for i := range chunks {
		chunks[i] = restoreCodeBlocks(chunks[i], blocks)
	}

	return c.mergeSmall(chunks)
}

// maskCodeBlocks replaces fenced code blocks with placeholders so no
// later split can land inside a fence.
func (c *Chunker) maskCodeBlocks(text string) (string, []string) {
	if !c.cfg.PreserveCodeBlocks {
		return text, nil
	}
	var blocks []string
	masked := codeFence.ReplaceAllStringFunc(text, func(block string) string {
		blocks = append(blocks, block)
		return fmt.Sprintf("%s%d%s", placeholderMark, len(blocks)-1, placeholderMark)
	})
	return masked, blocks
}

// restoreCodeBlocks reinjects the protected blocks into a chunk.
func restoreCodeBlocks(chunk string, blocks []string) string {
	for i, block := range blocks {
		chunk = strings.ReplaceAll(chunk,
			fmt.Sprintf("%s%d%s", placeholderMark, i, placeholderMark), block)
	}
	return chunk
}

// splitSections cuts text at markdown header lines, keeping each header
// with the content that follows it.
func splitSections(text string) []string {
	starts := headerLine.FindAllStringIndex(text, -1)
	if len(starts) == 0 {
		return []string{text}
	}

	var sections []string
	prev := 0
	for _, loc := range starts {
		if loc[0] > prev {
			if s := strings.TrimSpace(text[prev:loc[0]]); s != "" {
				sections = append(sections, s)
			}
			prev = loc[0]
		}
	}
	if s := strings.TrimSpace(text[prev:]); s != "" {
		sections = append(sections, s)
	}
	return sections
}

// sectionUnits reduces a section to sentence-or-smaller units. Sections
// within budget stay whole.
func (c *Chunker) sectionUnits(ctx context.Context, section string) []string {
	if textutil.EstimateTokens(section) <= c.cfg.MaxTokens {
		return []string{section}
	}

	switch textutil.DetectLanguage(section) {
	case textutil.LangEnglish:
		return splitEnglish(section)
	default:
		return c.splitThai(ctx, section)
	}
}

// splitThai delegates to the sidecar's sentence-aware chunker. Fallback
// on any sidecar failure: paragraphs, then single lines for paragraphs
// still over budget.
func (c *Chunker) splitThai(ctx context.Context, section string) []string {
	if c.thai != nil {
		res, err := c.thai.Chunk(ctx, section, c.cfg.MaxTokens, c.cfg.OverlapTokens)
		if err == nil && len(res.Chunks) > 0 {
			return res.Chunks
		}
		if err != nil {
			c.logger.Warn("thai chunking degraded to local split", "error", err)
		}
	}

	var units []string
	for _, para := range strings.Split(section, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if textutil.EstimateTokens(para) <= c.cfg.MaxTokens {
			units = append(units, para)
			continue
		}
		for _, line := range strings.Split(para, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				units = append(units, line)
			}
		}
	}
	return units
}

// sentenceBoundary ends a sentence unit: terminal punctuation followed
// by whitespace, or a newline run.
var sentenceBoundary = regexp.MustCompile(`[.!?]+[ \t]+|\n+`)

// splitEnglish splits a section into sentence units.
func splitEnglish(section string) []string {
	var units []string
	last := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(section, -1) {
		if u := strings.TrimSpace(section[last:loc[1]]); u != "" {
			units = append(units, u)
		}
		last = loc[1]
	}
	if u := strings.TrimSpace(section[last:]); u != "" {
		units = append(units, u)
	}
	return units
}

// group packs units into chunks up to MaxTokens, carrying up to
// OverlapTokens of trailing units from each chunk into the next.
func (c *Chunker) group(units []string) []string {
	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, "\n"))

		// Walk back from the tail to build the overlap for the next chunk.
		var overlap []string
		overlapTokens := 0
		for i := len(current) - 1; i >= 0 && c.cfg.OverlapTokens > 0; i-- {
			t := textutil.EstimateTokens(current[i])
			if overlapTokens+t > c.cfg.OverlapTokens {
				break
			}
			overlap = append([]string{current[i]}, overlap...)
			overlapTokens += t
		}
		current = overlap
		currentTokens = overlapTokens
	}

	for _, unit := range units {
		t := textutil.EstimateTokens(unit)
		if currentTokens+t > c.cfg.MaxTokens && len(current) > 0 {
			flush()
			// The overlap alone may already exceed the budget once the
			// next unit lands; drop it rather than loop.
			if currentTokens+t > c.cfg.MaxTokens {
				current = nil
				currentTokens = 0
			}
		}
		current = append(current, unit)
		currentTokens += t
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}

// mergeSmall folds any chunk under MinChunkTokens into its neighbor.
func (c *Chunker) mergeSmall(chunks []string) []string {
	if len(chunks) <= 1 {
		return chunks
	}

	var merged []string
	for _, chunk := range chunks {
		if len(merged) > 0 && textutil.EstimateTokens(chunk) < c.cfg.MinChunkTokens {
			merged[len(merged)-1] += "\n" + chunk
			continue
		}
		merged = append(merged, chunk)
	}

	// A small first chunk has no previous neighbor; fold it forward.
	if len(merged) > 1 && textutil.EstimateTokens(merged[0]) < c.cfg.MinChunkTokens {
		merged[1] = merged[0] + "\n" + merged[1]
		merged = merged[1:]
	}
	return merged
}
