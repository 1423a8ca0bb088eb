package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// FileState is what the sync engine remembers about one ingested path, so
// the next sync can skip unchanged files by comparing mtime first and
// file_hash second (spec §4.4 step 4).
type FileState struct {
	MTime    time.Time `json:"mtime"`
	FileHash string    `json:"file_hash"`
	Segment  string    `json:"segment"`
}

// Metadata is the per-store sync bookkeeping file (distinct from the
// snapshot-scoped segment_file_index: this tracks what the *writer* saw
// across syncs, not what a *snapshot* publishes).
type Metadata struct {
	ConfigFingerprint string               `json:"config_fingerprint"`
	Files             map[string]FileState `json:"files"`
	LastSyncAt        time.Time            `json:"last_sync_at"`
	LastSyncDuration  time.Duration        `json:"last_sync_duration_ns"`
	LastSyncDegraded  bool                 `json:"last_sync_degraded"`
	LastCompactionAt  time.Time            `json:"last_compaction_at,omitempty"`
}

func metadataPath(storeDir string) string { return filepath.Join(storeDir, "ingest_metadata.json") }

// LoadMetadata reads the per-store sync metadata, returning an empty
// Metadata if none exists yet (lazy creation, spec §3 "Lifecycle").
func LoadMetadata(storeDir string) (*Metadata, error) {
	data, err := os.ReadFile(metadataPath(storeDir))
	if err != nil {
		if os.IsNotExist(err) {
			return &Metadata{Files: make(map[string]FileState)}, nil
		}
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Files == nil {
		m.Files = make(map[string]FileState)
	}
	return &m, nil
}

// Save persists m to storeDir.
func (m *Metadata) Save(storeDir string) error {
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(metadataPath(storeDir), data, 0o644)
}
