// Package search implements the query engine (spec §4.8, C9): hybrid
// code/docs/graph retrieval, cosine + late-interaction rerank, structural
// ranking multipliers, bucket quota apportionment, and snippet capping.
package search

import "time"

// Mode selects the bucket weighting used to apportion a response's limit
// across the code/docs/graph buckets (spec §4.8 "Mode bucket weights").
type Mode string

const (
	ModeBalanced       Mode = "balanced"
	ModeDiscovery      Mode = "discovery"
	ModeImplementation Mode = "implementation"
	ModePlanning       Mode = "planning"
	ModeDebug          Mode = "debug"
)

// Request is one search call (spec §4.8: "search(store_id, query, limit,
// per_file_limit, scope?, rerank, include_anchors, mode)").
type Request struct {
	StoreID        string
	Query          string
	Limit          int
	PerFileLimit   int
	Scope          []string
	Rerank         bool
	IncludeAnchors bool
	Mode           Mode
}

// Result is one ranked, visible, snippet-capped hit.
type Result struct {
	PathKey      string
	SegmentTable string
	RowID        string
	StartLine    int
	EndLine      int
	ChunkType    string
	Bucket       Bucket
	Score        float64
	Secondary    float64
	NumLines     int
	Snippet      string
}

// Timings mirrors spec §4.8 step 11's recorded phases.
type Timings struct {
	Admission    time.Duration
	SnapshotRead time.Duration
	Retrieve     time.Duration
	Rank         time.Duration
	Format       time.Duration
}

// Response is the result of one search call.
type Response struct {
	Results   []Result
	Timings   Timings
	Warnings  []string
	LimitsHit []string
}

// rerankTopN bounds how many fused candidates the late-interaction pass
// rescoring touches (spec §4.8 step 6: "rerank the top <= 50 candidates").
const rerankTopN = 50
