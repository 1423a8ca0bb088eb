package search

import (
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ggrep/ggrep/internal/chunk"
)

// structuralChunkTypes receive the ×1.25 multiplier of spec §4.8's ranking
// table.
var structuralChunkTypes = map[string]bool{
	string(chunk.ChunkTypeFunction):  true,
	string(chunk.ChunkTypeClass):     true,
	string(chunk.ChunkTypeInterface): true,
	string(chunk.ChunkTypeMethod):    true,
	string(chunk.ChunkTypeTypeAlias): true,
}

// testPathMarkers are the substrings that trigger the ×0.85 test-path
// penalty (spec §4.8: "*test*, *spec*, __tests__").
var testPathMarkers = []string{"test", "spec", "__tests__"}

// Multiplier implements spec §4.8's ranking table; cfg supplies the
// multiplier constants (DefaultRankingConfig() reproduces the spec's
// literal values).
func Multiplier(cfg RankingConfig, chunkType string, pathKey string, bucket Bucket) float64 {
	m := 1.0
	if structuralChunkTypes[chunkType] {
		m *= cfg.StructuralMultiplier
	}
	lower := strings.ToLower(pathKey)
	for _, marker := range testPathMarkers {
		if strings.Contains(lower, marker) {
			m *= cfg.TestPathMultiplier
			break
		}
	}
	switch bucket {
	case BucketDocs:
		m *= cfg.DocsMultiplier
	case BucketGraph:
		m *= cfg.GraphMultiplier
	}
	return m
}

// CosineSimilarity scores two equal-length dense vectors; callers are
// responsible for ensuring a and b share dimensionality.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// LateInteractionScore implements a ColBERT-style max-sim: for every query
// token vector, take its maximum dot product against any stored (quantized,
// rescaled) document token vector, then sum those maxima.
func LateInteractionScore(queryMatrix [][]int8, queryScale float32, docMatrix [][]int8, docScale float32) float64 {
	if len(queryMatrix) == 0 || len(docMatrix) == 0 {
		return 0
	}
	var total float64
	for _, qv := range queryMatrix {
		best := -1.0
		for _, dv := range docMatrix {
			sim := dotInt8(qv, queryScale, dv, docScale)
			if sim > best {
				best = sim
			}
		}
		if best > -1.0 {
			total += best
		}
	}
	return total
}

func dotInt8(a []int8, scaleA float32, b []int8, scaleB float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(scaleA) * float64(b[i]) * float64(scaleB)
	}
	return dot
}

// sortResults applies spec §4.8 step 7's fully deterministic comparator:
// (score desc, secondary desc, path asc, start_line asc, row_id asc,
// num_lines asc).
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Secondary != b.Secondary {
			return a.Secondary > b.Secondary
		}
		if a.PathKey != b.PathKey {
			return a.PathKey < b.PathKey
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		if a.RowID != b.RowID {
			return a.RowID < b.RowID
		}
		return a.NumLines < b.NumLines
	})
}

// matchesScope reports whether pathKey falls under any of the given
// path-prefix scopes; an empty scope list matches everything.
func matchesScope(pathKey string, scopes []string) bool {
	if len(scopes) == 0 {
		return true
	}
	for _, scope := range scopes {
		scope = strings.TrimSuffix(filepath.ToSlash(scope), "/")
		if pathKey == scope || strings.HasPrefix(pathKey, scope+"/") {
			return true
		}
	}
	return false
}
