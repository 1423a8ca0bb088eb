package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ggrep/ggrep/internal/admission"
	"github.com/ggrep/ggrep/internal/embed"
	ggrepErrors "github.com/ggrep/ggrep/internal/errors"
	"github.com/ggrep/ggrep/internal/manifest"
	"github.com/ggrep/ggrep/internal/segment"
	"github.com/ggrep/ggrep/internal/tombstone"
)

// snippetPerResultCap and snippetGlobalCap implement spec §4.8 step 10's
// per-result and whole-response byte caps.
const (
	snippetPerResultCap = 2000
	snippetGlobalCap    = 32000
)

// Engine runs search() (spec §4.8, C9) against one store's current
// snapshot view.
type Engine struct {
	StoreDir string
	StoreID  string
	Segments segment.Store
	Embedder embed.Embedder

	Admitter *admission.Admitter
	Pinner   *admission.Pinner
	Limiter  *admission.EmbedLimiter

	ConfigFingerprint string
	IgnoreFingerprint string

	// Ranking overrides spec §4.8's bucket-weight and multiplier tables.
	// The zero value resolves to DefaultRankingConfig().
	Ranking RankingConfig
}

// resolveRanking returns e.Ranking if it carries a mode-weight table, or
// DefaultRankingConfig() otherwise, so a zero-value Engine still ranks
// per spec.
func (e *Engine) resolveRanking() RankingConfig {
	if e.Ranking.ModeWeights != nil {
		return e.Ranking
	}
	return DefaultRankingConfig()
}

// Search implements the pipeline of spec §4.8.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	var timings Timings
	resp := &Response{}

	admissionStart := time.Now()
	ticket, err := e.Admitter.Admit(ctx, req.StoreID)
	if err != nil {
		return nil, err
	}
	defer ticket.Release()
	timings.Admission = time.Since(admissionStart)

	embedStart := time.Now()
	queryVec, err := e.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	timings.Admission += time.Since(embedStart)

	snapStart := time.Now()
	m, err := manifest.OpenSnapshotView(ctx, e.StoreDir, e.StoreID, e.ConfigFingerprint, e.IgnoreFingerprint, e.Segments)
	if err != nil {
		return nil, err
	}
	unpin := e.Pinner.Pin(m.SnapshotID)
	defer unpin()
	timings.SnapshotRead = time.Since(snapStart)

	tombstoned, err := tombstone.LoadAll(m)
	if err != nil {
		return nil, fmt.Errorf("load tombstones: %w", err)
	}
	segmentFileIndex, err := tombstone.ReadSegmentFileIndex(manifest.SegmentFileIndexPath(e.StoreDir, m.SnapshotID))
	if err != nil {
		return nil, fmt.Errorf("read segment file index: %w", err)
	}

	retrieveStart := time.Now()
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	expanded := expandedLimit(req.Mode, limit)

	var candidates []Result
	rowByKey := map[string]segment.Row{}
	for _, segRef := range m.Segments {
		if err := ticket.AcquireSegment(); err != nil {
			return nil, err
		}
		hits, err := e.retrieveSegment(ctx, segRef.Table, req, queryVec, expanded)
		ticket.ReleaseSegment()
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			key := fmt.Sprintf("%s:%d:%s", h.Row.PathKey, h.Row.StartLine, h.Row.RowID)
			rowByKey[key] = h.Row
			candidates = append(candidates, toResult(h, segRef.Table, queryVec))
		}
	}
	timings.Retrieve = time.Since(retrieveStart)

	rankStart := time.Now()
	candidates = dedupeCandidates(candidates)

	if req.Rerank && len(queryVec.ColBERT) > 0 {
		rerank(candidates, rowByKey, queryVec)
	}

	ranking := e.resolveRanking()
	for i := range candidates {
		row := rowByKey[fmt.Sprintf("%s:%d:%s", candidates[i].PathKey, candidates[i].StartLine, candidates[i].RowID)]
		candidates[i].Score *= Multiplier(ranking, row.ChunkType, row.PathKey, candidates[i].Bucket)
	}

	sortResults(candidates)

	visible := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if !req.IncludeAnchors {
			row := rowByKey[fmt.Sprintf("%s:%d:%s", c.PathKey, c.StartLine, c.RowID)]
			if row.Kind == "anchor" {
				continue
			}
		}
		if !matchesScope(c.PathKey, req.Scope) {
			continue
		}
		if !tombstone.Visible(c.PathKey, c.SegmentTable, tombstoned, segmentFileIndex) {
			continue
		}
		visible = append(visible, c)
	}
	timings.Rank = time.Since(rankStart)

	formatStart := time.Now()
	final := applyQuotasAndLimits(ranking, visible, req.Mode, limit, req.PerFileLimit)

	var totalBytes int
	for i := range final {
		row := rowByKey[fmt.Sprintf("%s:%d:%s", final[i].PathKey, final[i].StartLine, final[i].RowID)]
		snippet := row.Text
		if len(snippet) > snippetPerResultCap {
			snippet = truncateUTF8(snippet, snippetPerResultCap)
			resp.LimitsHit = append(resp.LimitsHit, "snippet_per_result_cap")
		}
		if totalBytes+len(snippet) > snippetGlobalCap {
			snippet = truncateUTF8(snippet, max(0, snippetGlobalCap-totalBytes))
			resp.LimitsHit = append(resp.LimitsHit, "snippet_global_cap")
		}
		totalBytes += len(snippet)
		final[i].Snippet = snippet
	}
	timings.Format = time.Since(formatStart)

	resp.Results = final
	resp.Timings = timings
	return resp, nil
}

func (e *Engine) embedQuery(ctx context.Context, query string) (embed.HybridVector, error) {
	if e.Limiter != nil {
		permit, err := e.Limiter.Acquire(ctx)
		if err != nil {
			return embed.HybridVector{}, err
		}
		defer permit.Release()
	}
	vecs, err := e.Embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return embed.HybridVector{}, err
	}
	if len(vecs) == 0 {
		return embed.HybridVector{}, ggrepErrors.New(ggrepErrors.KindInternal, "embedder returned no vectors for query")
	}
	return vecs[0], nil
}

func (e *Engine) retrieveSegment(ctx context.Context, table string, req Request, queryVec embed.HybridVector, limit int) ([]segment.Hit, error) {
	vecHits, err := e.Segments.VectorSearch(ctx, table, queryVec.Dense, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search %s: %w", table, err)
	}
	lexHits, err := e.Segments.LexicalSearch(ctx, table, req.Query, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search %s: %w", table, err)
	}
	return append(vecHits, lexHits...), nil
}

func toResult(h segment.Hit, table string, queryVec embed.HybridVector) Result {
	score := h.Score
	if len(h.Row.Embedding) > 0 && len(queryVec.Dense) > 0 {
		score = CosineSimilarity(h.Row.Embedding, queryVec.Dense)
	}
	return Result{
		PathKey:      h.Row.PathKey,
		SegmentTable: table,
		RowID:        h.Row.RowID,
		StartLine:    h.Row.StartLine,
		EndLine:      h.Row.EndLine,
		ChunkType:    h.Row.ChunkType,
		Bucket:       ClassifyPath(h.Row.PathKey),
		Score:        score,
		NumLines:     h.Row.EndLine - h.Row.StartLine + 1,
	}
}

// dedupeCandidates merges candidates keyed by (path_key, start_line), since
// the same row can surface from both the vector and lexical retrievals
// (spec §4.8 step 4), keeping the highest-scoring copy.
func dedupeCandidates(results []Result) []Result {
	best := make(map[string]Result, len(results))
	order := make([]string, 0, len(results))
	for _, r := range results {
		key := r.PathKey + "\x00" + fmt.Sprint(r.StartLine)
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = r
			continue
		}
		if r.Score > existing.Score {
			best[key] = r
		}
	}
	out := make([]Result, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

func rerank(results []Result, rows map[string]segment.Row, queryVec embed.HybridVector) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	n := len(results)
	if n > rerankTopN {
		n = rerankTopN
	}
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("%s:%d:%s", results[i].PathKey, results[i].StartLine, results[i].RowID)
		row := rows[key]
		if len(row.ColBERT) == 0 {
			continue
		}
		results[i].Secondary = results[i].Score
		results[i].Score = LateInteractionScore(queryVec.ColBERT, queryVec.Scale, row.ColBERT, row.ColBERTScale)
	}
}

// expandedLimit implements spec §4.8 step 3: "balanced ~= 2x the caller
// limit, others ~= 10x".
func expandedLimit(mode Mode, limit int) int {
	if mode == ModeBalanced || mode == "" {
		return limit * 2
	}
	return limit * 10
}

// applyQuotasAndLimits implements spec §4.8 step 9: bucket quotas with
// leftover padding, then the per-file cap.
func applyQuotasAndLimits(ranking RankingConfig, results []Result, mode Mode, limit, perFileLimit int) []Result {
	quotas := BucketQuotas(ranking, mode, limit)
	perFile := map[string]int{}

	byBucket := map[Bucket][]Result{}
	for _, r := range results {
		byBucket[r.Bucket] = append(byBucket[r.Bucket], r)
	}

	var out []Result
	used := map[string]bool{}
	take := func(r Result) bool {
		key := fmt.Sprintf("%s:%d:%s", r.PathKey, r.StartLine, r.RowID)
		if used[key] {
			return false
		}
		if perFileLimit > 0 && perFile[r.PathKey] >= perFileLimit {
			return false
		}
		used[key] = true
		perFile[r.PathKey]++
		out = append(out, r)
		return true
	}

	for _, b := range []Bucket{BucketCode, BucketDocs, BucketGraph} {
		quota := quotas[b]
		taken := 0
		for _, r := range byBucket[b] {
			if taken >= quota {
				break
			}
			if take(r) {
				taken++
			}
		}
	}

	if len(out) < limit {
		for _, r := range results {
			if len(out) >= limit {
				break
			}
			take(r)
		}
	}

	sortResults(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func truncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	b := []byte(s)[:n]
	for len(b) > 0 && !isUTF8Boundary(b) {
		b = b[:len(b)-1]
	}
	return string(b)
}

func isUTF8Boundary(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	last := b[len(b)-1]
	return last&0xC0 != 0x80
}
