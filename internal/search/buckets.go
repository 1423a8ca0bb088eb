package search

import (
	"path/filepath"
	"sort"
	"strings"
)

// Bucket classifies a candidate row by the file-extension class the
// retrieval pass queried it under (spec §4.8 step 4).
type Bucket string

const (
	BucketCode  Bucket = "code"
	BucketDocs  Bucket = "docs"
	BucketGraph Bucket = "graph"
)

// docsExtensions and graphExtensions are the classification sets of spec
// §4.8 step 4; everything else falls into BucketCode.
var docsExtensions = map[string]bool{
	".md": true, ".mdx": true, ".txt": true, ".json": true,
	".yaml": true, ".yml": true, ".toml": true, ".html": true, ".css": true,
}

var graphExtensions = map[string]bool{
	".mmd": true, ".mermaid": true,
}

// ClassifyPath returns the bucket a path_key belongs to by extension.
func ClassifyPath(pathKey string) Bucket {
	ext := strings.ToLower(filepath.Ext(pathKey))
	if graphExtensions[ext] {
		return BucketGraph
	}
	if docsExtensions[ext] {
		return BucketDocs
	}
	return BucketCode
}

// BucketQuotas apportions limit across (code, docs, graph) by largest
// remainder, with a floor of 1 per bucket once limit >= 3 (spec §4.8 step
// 9: "largest-remainder apportionment ... with a minimum of 1 per bucket
// when the limit >= 3"). cfg supplies the per-mode weights (spec §4.8
// "Mode bucket weights" table); DefaultRankingConfig() reproduces the
// spec's literal table.
func BucketQuotas(cfg RankingConfig, mode Mode, limit int) map[Bucket]int {
	w := cfg.weightsFor(mode)
	total := w.Code + w.Docs + w.Graph
	names := []Bucket{BucketCode, BucketDocs, BucketGraph}
	weights := []int{w.Code, w.Docs, w.Graph}

	type share struct {
		bucket    Bucket
		base      int
		remainder float64
	}
	shares := make([]share, len(names))
	assigned := 0
	for i, b := range names {
		exact := float64(limit) * float64(weights[i]) / float64(total)
		base := int(exact)
		shares[i] = share{bucket: b, base: base, remainder: exact - float64(base)}
		assigned += base
	}

	remaining := limit - assigned
	sort.SliceStable(shares, func(i, j int) bool { return shares[i].remainder > shares[j].remainder })
	out := make(map[Bucket]int, 3)
	for _, s := range shares {
		out[s.bucket] = s.base
	}
	for i := 0; i < remaining; i++ {
		out[shares[i%len(shares)].bucket]++
	}

	if limit >= 3 {
		for _, b := range names {
			if out[b] == 0 {
				out[b] = 1
			}
		}
	}
	return out
}
