// Package segment owns per-store columnar tables ("segments"): the
// append-only sqlite-backed row storage plus the lexical (bleve) and
// vector (hnsw) indexes built over it (spec §4.2, C3).
package segment

import "context"

// Row is one chunk row as stored in a segment table, matching spec §3's
// chunk record field-for-field plus the embedding columns.
type Row struct {
	RowID          string
	PathKey        string
	PathKeyCI      string
	Ordinal        int
	FileHash       string
	ChunkHash      string
	ChunkerVersion int
	Kind           string
	Text           string
	StartLine      int
	EndLine        int
	ChunkType      string
	ContextPrev    string
	ContextNext    string
	Embedding      []float32
	ColBERT        [][]int8
	ColBERTScale   float32
}

// Info is the result of segment_metadata: a canonical directory hash over
// every file under the segment, read in sorted order.
type Info struct {
	Rows      int64
	SizeBytes int64
	SHA256    string
}

// Hit is one candidate returned by a per-segment retrieval.
type Hit struct {
	Row   Row
	Score float64
}

// Store owns every segment table for one on-disk store (spec §4.2).
type Store interface {
	// InsertBatch creates table (if absent) and appends rows (used by ingest).
	InsertBatch(ctx context.Context, table string, rows []Row) error
	// AppendBatch appends a pre-built batch (used by compaction).
	AppendBatch(ctx context.Context, table string, rows []Row) error
	// ListTables returns every segment table name known to this store.
	ListTables(ctx context.Context) ([]string, error)
	// DropTable removes a segment table and its on-disk artifacts.
	DropTable(ctx context.Context, table string) error
	// Seal builds best-effort lexical/vector indexes for table; failure
	// is logged by the caller and never invalidates the segment.
	Seal(ctx context.Context, table string) error
	// Metadata computes segment_metadata(store_id, table).
	Metadata(ctx context.Context, table string) (Info, error)
	// LexicalSearch runs a full-text query against table's sealed index.
	LexicalSearch(ctx context.Context, table, query string, limit int) ([]Hit, error)
	// VectorSearch runs a k-NN query against table's sealed vector index.
	VectorSearch(ctx context.Context, table string, query []float32, limit int) ([]Hit, error)
	// Rows streams every row of table, in row_id order, for compaction
	// and tombstone-driven rewrite.
	Rows(ctx context.Context, table string) ([]Row, error)
	// Close releases all open table connections/handles.
	Close() error
}

// vectorIndexThreshold is the minimum row count before Seal builds a
// vector index (spec §4.2: "only if the segment exceeds a threshold").
const vectorIndexThreshold = 64
