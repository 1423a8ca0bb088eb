// Package manifest implements the snapshot manifest and ACTIVE pointer
// (spec §4.3, C4): atomic publish, verification, and the descending-age
// fallback scan used to recover from a corrupt ACTIVE pointer.
package manifest

import "time"

const SchemaVersion = 1
const ChunkRowSchemaVersion = 1

// GitInfo mirrors spec §3's manifest "git" field.
type GitInfo struct {
	HeadSHA           string `json:"head_sha"`
	Dirty             bool   `json:"dirty"`
	UntrackedIncluded bool   `json:"untracked_included"`
}

// SegmentRef is one entry of manifest.segments[].
type SegmentRef struct {
	Table     string `json:"table"`
	Rows      int64  `json:"rows"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
	Kind      string `json:"kind"`
}

// TombstoneRef is one entry of manifest.tombstones[].
type TombstoneRef struct {
	Path      string `json:"path"`
	Count     int64  `json:"count"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// Counts mirrors spec §3's manifest "counts" field.
type Counts struct {
	FilesIndexed    int64 `json:"files_indexed"`
	ChunksIndexed   int64 `json:"chunks_indexed"`
	TombstonesAdded int64 `json:"tombstones_added"`
}

// IngestError is one entry of manifest.errors[]: a per-path ingest
// failure retained as a warning rather than aborting the whole sync.
type IngestError struct {
	Path     string `json:"path"`
	Message  string `json:"message"`
	Degraded bool   `json:"degraded"`
}

// Manifest is the JSON shape of snapshots/<id>/manifest.json (spec §3).
type Manifest struct {
	SchemaVersion         int            `json:"schema_version"`
	ChunkRowSchemaVersion int            `json:"chunk_row_schema_version"`
	SnapshotID            string         `json:"snapshot_id"`
	ParentSnapshotID      string         `json:"parent_snapshot_id,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	CanonicalRoot         string         `json:"canonical_root"`
	StoreID               string         `json:"store_id"`
	ConfigFingerprint     string         `json:"config_fingerprint"`
	IgnoreFingerprint     string         `json:"ignore_fingerprint"`
	LeaseEpoch            int64          `json:"lease_epoch"`
	Git                   GitInfo        `json:"git"`
	Segments              []SegmentRef   `json:"segments"`
	Tombstones            []TombstoneRef `json:"tombstones"`
	Counts                Counts         `json:"counts"`
	Degraded              bool           `json:"degraded"`
	Errors                []IngestError  `json:"errors,omitempty"`
}
