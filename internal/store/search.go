package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jellycore/oracle/internal/classifier"
	"github.com/jellycore/oracle/internal/quality"
	"github.com/jellycore/oracle/internal/textutil"
	"github.com/jellycore/oracle/internal/vector"
)

// Search limits.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

// Mode optionally restricts which retrieval source serves a search.
type Mode string

const (
	ModeHybrid   Mode = "hybrid"
	ModeLexical  Mode = "lexical"
	ModeSemantic Mode = "semantic"
)

// SearchRequest parameterizes a hybrid search.
type SearchRequest struct {
	Query   string
	Limit   int
	Offset  int
	Kind    Kind
	Layers  []Layer
	Project string
	Mode    Mode

	// IncludePrivate exposes private documents; the default hides them.
	IncludePrivate bool
}

// Result is one ranked search hit with its per-source scores.
type Result struct {
	Document    *Document
	Score       float64
	FTSScore    float64
	VectorScore float64
}

// SearchResponse carries the ranked results plus the retrieval
// diagnostics: the classifier's prior and the corrected weights.
type SearchResponse struct {
	Results []Result
	Profile classifier.Profile
	Weights quality.Weights
}

// ftsCandidate is a lexical match before merging.
type ftsCandidate struct {
	id    string
	score float64
}

// Search runs the full retrieval pipeline: classify the query, fan out
// to the lexical index and the vector store concurrently, correct the
// prior weights against the quality of what each source returned, merge
// and dedupe, decay-adjust, rank, and truncate. Returned documents get
// their access counters bumped in the background.
func (d *Documents) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if req.Limit <= 0 {
		req.Limit = DefaultSearchLimit
	}
	if req.Limit > MaxSearchLimit {
		req.Limit = MaxSearchLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	// Thai queries are normalized and spell-corrected before
	// classification so zero-width characters, misplaced vowels, and
	// typos don't skew keyword detection or the lexical index lookup.
	if d.seg != nil && textutil.DetectLanguage(query) == textutil.LangThai {
		if norm, err := d.seg.Normalize(ctx, query); err == nil && norm.Normalized != "" {
			query = norm.Normalized
		}
		if sp, err := d.seg.Spellcheck(ctx, query); err == nil && sp.Changed && sp.Corrected != "" {
			query = sp.Corrected
		}
	}

	prior := classifier.Classify(query)

	// Fan out to both sources; the request blocks only on the slower
	// one. Source failure degrades to an empty candidate list.
	var (
		wg      sync.WaitGroup
		ftsHits []ftsCandidate
		vecHits []vector.Hit
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		hits, err := d.lexicalCandidates(ctx, query, req, req.Limit*prior.FTSCandidates)
		if err != nil {
			d.logger.Warn("lexical search degraded", "error", err)
			return
		}
		ftsHits = hits
	}()
	go func() {
		defer wg.Done()
		hits, err := d.vectors.Query(ctx, query, req.Limit*prior.VectorCandidates, d.vectorFilter(req))
		if err != nil {
			d.logger.Warn("vector search degraded", "error", err)
			return
		}
		vecHits = hits
	}()
	wg.Wait()

	ftsScores := make([]float64, len(ftsHits))
	for i, h := range ftsHits {
		ftsScores[i] = h.score
	}
	vecScores := make([]float64, len(vecHits))
	for i, h := range vecHits {
		vecScores[i] = h.Score
	}

	weights := quality.Correct(prior, normalize(ftsScores), vecScores, req.Limit)
	ftsW, vecW := applyMode(req.Mode, weights)

	blended := mergeCandidates(ftsHits, vecHits, ftsW, vecW)

	docs, err := d.loadVisible(ctx, candidateIDs(blended), req)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(blended))
	for _, c := range blended {
		doc, ok := docs[c.id]
		if !ok {
			// Filtered out, expired, or superseded since indexing.
			continue
		}
		results = append(results, Result{
			Document:    doc,
			Score:       decayAdjust(c.blend, doc.DecayScore),
			FTSScore:    c.fts,
			VectorScore: c.vec,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if req.Offset >= len(results) {
		results = results[:0]
	} else {
		results = results[req.Offset:]
	}
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Document.ID
	}
	d.recordAccess(ctx, ids)

	return &SearchResponse{Results: results, Profile: prior, Weights: weights}, nil
}

// lexicalCandidates fetches BM25-style ranked matches from the
// generated tsvector column, pre-filtered by the request's cheap
// predicates.
func (d *Documents) lexicalCandidates(ctx context.Context, query string, req SearchRequest, limit int) ([]ftsCandidate, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, ts_rank_cd(search_text, plainto_tsquery('simple', $1), 1) AS rank
		 FROM documents
		 WHERE search_text @@ plainto_tsquery('simple', $1)
		   AND superseded_by IS NULL
		   AND (expires_at IS NULL OR expires_at > now())
		   AND ($2 = '' OR kind = $2)
		   AND ($3 = '' OR COALESCE(memory_layer, 'semantic') = ANY(string_to_array($3, ',')))
		   AND (project = '' OR ($4 <> '' AND project = $4))
		   AND (NOT is_private OR $5)
		 ORDER BY rank DESC
		 LIMIT $6`,
		query, string(req.Kind), joinLayers(req.Layers), req.Project, req.IncludePrivate, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var hits []ftsCandidate
	for rows.Next() {
		var c ftsCandidate
		if scanErr := rows.Scan(&c.id, &c.score); scanErr != nil {
			return nil, fmt.Errorf("scanning lexical hit: %w", scanErr)
		}
		hits = append(hits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading lexical hits: %w", err)
	}
	return hits, nil
}

// vectorFilter builds the metadata filter for the vector query. Only
// single-valued predicates translate; multi-layer and project-universal
// visibility are enforced authoritatively by loadVisible.
func (d *Documents) vectorFilter(req SearchRequest) vector.Filter {
	f := vector.Filter{}
	if len(req.Layers) == 1 {
		f["layer"] = string(req.Layers[0])
	}
	if req.Kind != "" {
		f["kind"] = string(req.Kind)
	}
	if !req.IncludePrivate {
		f["private"] = "false"
	}
	if len(f) == 0 {
		return nil
	}
	return f
}

// loadVisible loads documents by ID with the full visibility rules
// applied: not superseded, not expired, kind/layer filters, privacy,
// and project scoping (no-project documents are universal; project
// documents require their project to be requested).
func (d *Documents) loadVisible(ctx context.Context, ids []string, req SearchRequest) (map[string]*Document, error) {
	if len(ids) == 0 {
		return map[string]*Document{}, nil
	}

	rows, err := d.pool.Query(ctx,
		`SELECT `+docCols+` FROM documents
		 WHERE id = ANY($1)
		   AND superseded_by IS NULL
		   AND (expires_at IS NULL OR expires_at > now())
		   AND ($2 = '' OR kind = $2)
		   AND ($3 = '' OR COALESCE(memory_layer, 'semantic') = ANY(string_to_array($3, ',')))
		   AND (project = '' OR ($4 <> '' AND project = $4))
		   AND (NOT is_private OR $5)`,
		ids, string(req.Kind), joinLayers(req.Layers), req.Project, req.IncludePrivate,
	)
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}
	return byID, nil
}

// candidate is a merged hit before document loading.
type candidate struct {
	id    string
	blend float64
	fts   float64
	vec   float64
}

// mergeCandidates normalizes each source's scores to 0-1, blends them
// with the posterior weights (0 for a source a document is absent
// from), and dedupes by ID.
func mergeCandidates(fts []ftsCandidate, vec []vector.Hit, ftsWeight, vecWeight float64) []candidate {
	ftsRaw := make([]float64, len(fts))
	for i, h := range fts {
		ftsRaw[i] = h.score
	}
	ftsNorm := normalize(ftsRaw)

	merged := make(map[string]*candidate)
	order := make([]string, 0, len(fts)+len(vec))

	for i, h := range fts {
		merged[h.id] = &candidate{id: h.id, fts: ftsNorm[i]}
		order = append(order, h.id)
	}
	for _, h := range vec {
		score := h.Score
		if score > 1 {
			score = 1
		}
		if c, ok := merged[h.ID]; ok {
			c.vec = score
		} else {
			merged[h.ID] = &candidate{id: h.ID, vec: score}
			order = append(order, h.ID)
		}
	}

	out := make([]candidate, 0, len(order))
	for _, id := range order {
		c := merged[id]
		c.blend = ftsWeight*c.fts + vecWeight*c.vec
		out = append(out, *c)
	}
	return out
}

// candidateIDs extracts the IDs from merged candidates.
func candidateIDs(cs []candidate) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.id
	}
	return ids
}

// normalize maps scores into 0-1 by dividing by the maximum. Lexical
// rank values are unbounded, so this puts them on the same scale as
// cosine similarity before blending.
func normalize(scores []float64) []float64 {
	var maxScore float64
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	if maxScore <= 0 {
		return scores
	}
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = s / maxScore
	}
	return out
}

// decayAdjust folds freshness into the blended score. A fully decayed
// document keeps half its relevance; a fresh one keeps all of it.
func decayAdjust(blend, decay float64) float64 {
	return blend * (0.5 + 0.5*decay)
}

// applyMode overrides the corrected weights when the caller forces a
// single source.
func applyMode(mode Mode, w quality.Weights) (fts, vec float64) {
	switch mode {
	case ModeLexical:
		return 1, 0
	case ModeSemantic:
		return 0, 1
	default:
		return w.FTS, w.Vector
	}
}

// joinLayers renders a layer filter as the comma list used in SQL.
func joinLayers(layers []Layer) string {
	if len(layers) == 0 {
		return ""
	}
	parts := make([]string, len(layers))
	for i, l := range layers {
		parts[i] = string(l)
	}
	return strings.Join(parts, ",")
}
