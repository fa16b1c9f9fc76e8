// Package nlp is the HTTP client for the Thai NLP sidecar, a small
// service wrapping PyThaiNLP with tokenize/normalize/spellcheck/chunk
// endpoints.
//
// The sidecar is a degradable collaborator: every method carries a
// strict timeout and a documented local fallback, and callers apply
// the fallback rather than fail a request because the sidecar is down.
// Degraded paths emit a structured warning so the condition is
// observable.
package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Call timeouts. Chunking walks whole documents through the tokenizer,
// so it gets double the budget of the single-shot endpoints.
const (
	CallTimeout  = 2 * time.Second
	ChunkTimeout = 4 * time.Second
)

// DefaultEngine is the sidecar's default word-segmentation engine.
const DefaultEngine = "newmm"

// Client talks to the Thai NLP sidecar.
//
// Client is safe for concurrent use.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// New creates a sidecar client. baseURL is e.g. "http://localhost:8000".
func New(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
		logger:  logger,
	}
}

// TokenizeResult is the sidecar's word-segmentation response.
type TokenizeResult struct {
	Tokens    []string `json:"tokens"`
	Segmented string   `json:"segmented"`
	Engine    string   `json:"engine"`
}

// NormalizeResult is the sidecar's normalization response.
type NormalizeResult struct {
	Normalized string `json:"normalized"`
	Changed    bool   `json:"changed"`
}

// SpellcheckResult is the sidecar's spell-correction response.
type SpellcheckResult struct {
	Corrected string `json:"corrected"`
	Changed   bool   `json:"changed"`
}

// ChunkResult is the sidecar's sentence-aware chunking response.
type ChunkResult struct {
	Chunks []string `json:"chunks"`
	Count  int      `json:"count"`
}

// StopwordsResult is the sidecar's stop-word filtering response.
type StopwordsResult struct {
	Filtered []string `json:"filtered"`
	Removed  []string `json:"removed"`
}

// Tokenize segments text into words. Fallback: index the raw text.
func (c *Client) Tokenize(ctx context.Context, text, engine string) (TokenizeResult, error) {
	if engine == "" {
		engine = DefaultEngine
	}
	var out TokenizeResult
	err := c.post(ctx, CallTimeout, "/tokenize",
		map[string]any{"text": text, "engine": engine}, &out)
	return out, err
}

// Normalize cleans Thai text (zero-width chars, duplicate spaces,
// misplaced vowels). Fallback: passthrough.
func (c *Client) Normalize(ctx context.Context, text string) (NormalizeResult, error) {
	var out NormalizeResult
	err := c.post(ctx, CallTimeout, "/normalize", map[string]any{"text": text}, &out)
	return out, err
}

// Spellcheck corrects Thai spelling. Fallback: passthrough.
func (c *Client) Spellcheck(ctx context.Context, text string) (SpellcheckResult, error) {
	var out SpellcheckResult
	err := c.post(ctx, CallTimeout, "/spellcheck", map[string]any{"text": text}, &out)
	return out, err
}

// Chunk splits text into sentence-aware chunks of about maxTokens words
// with the given overlap. Fallback: single chunk containing the whole
// text (callers split locally instead).
func (c *Client) Chunk(ctx context.Context, text string, maxTokens, overlap int) (ChunkResult, error) {
	var out ChunkResult
	err := c.post(ctx, ChunkTimeout, "/chunk",
		map[string]any{"text": text, "max_tokens": maxTokens, "overlap": overlap}, &out)
	return out, err
}

// Stopwords filters Thai stop words from tokens. Fallback: keep all
// tokens.
func (c *Client) Stopwords(ctx context.Context, tokens []string) (StopwordsResult, error) {
	var out StopwordsResult
	err := c.post(ctx, CallTimeout, "/stopwords", map[string]any{"tokens": tokens}, &out)
	return out, err
}

// Healthy reports whether the sidecar answers its health check.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// post issues a JSON POST with the given timeout and decodes a 2xx
// response into out. Non-2xx statuses are errors so callers hit their
// fallback path.
func (c *Client) post(ctx context.Context, timeout time.Duration, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling sidecar %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("sidecar %s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
