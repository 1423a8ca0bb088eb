package config

import (
	"os"
	"path/filepath"
)

// BaseDir returns <home>/.ggrep unless overridden by GGREP_BASE_DIR, per
// spec §6 "<base> defaults to <home>/.ggrep (may be overridden by env)".
func BaseDir() string {
	if v := os.Getenv("GGREP_BASE_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".ggrep")
}

// StoreDataDir returns <base>/data/<store_id>, the root of one store's
// on-disk layout (spec §6).
func StoreDataDir(storeID string) string {
	return filepath.Join(BaseDir(), "data", storeID)
}

// SocketDir returns <base>/sockets, where per-store socket/pid/id
// artifacts live (spec §6).
func SocketDir() string {
	return filepath.Join(BaseDir(), "sockets")
}

// FallbackSocketDir is used when the computed socket path would exceed
// the platform's socket path length limit (spec §6).
func FallbackSocketDir() string {
	return filepath.Join(os.TempDir(), "ggrep-"+uidString())
}

// maxUnixSocketPath is the conservative cross-platform cap (Linux's
// sockaddr_un sun_path is 108 bytes; macOS's is 104).
const maxUnixSocketPath = 100

// SocketPath returns the socket path for storeID, falling back to
// FallbackSocketDir if the primary path would be too long.
func SocketPath(storeID string) string {
	p := filepath.Join(SocketDir(), storeID+".sock")
	if len(p) <= maxUnixSocketPath {
		return p
	}
	return filepath.Join(FallbackSocketDir(), storeID+".sock")
}

func uidString() string {
	return itoa(os.Getuid())
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// EngineConfig carries the core storage+concurrency engine's tunables:
// admission limits (C10), compaction triggers (C7), GC retention (C8),
// and IPC frame caps (C11). Config carries it as its Engine field, so it
// loads through the same user/project/env layering as the CLI/embedding
// settings.
type EngineConfig struct {
	// Admission & resource caps (spec §4.9).
	MaxConcurrentQueries         int `json:"max_concurrent_queries" yaml:"max_concurrent_queries"`
	MaxQueryQueue                int `json:"max_query_queue" yaml:"max_query_queue"`
	MaxConcurrentQueriesPerClient int `json:"max_concurrent_queries_per_client" yaml:"max_concurrent_queries_per_client"`
	MaxOpenSegmentsGlobal        int `json:"max_open_segments_global" yaml:"max_open_segments_global"`
	MaxOpenSegmentsPerQuery      int `json:"max_open_segments_per_query" yaml:"max_open_segments_per_query"`
	QueryTimeoutMs               int `json:"query_timeout_ms" yaml:"query_timeout_ms"`

	// Compaction triggers (spec §4.6).
	CompactionOverdueSegments   int `json:"compaction_overdue_segments" yaml:"compaction_overdue_segments"`
	CompactionOverdueTombstones int `json:"compaction_overdue_tombstones" yaml:"compaction_overdue_tombstones"`
	CompactionMaxRetries        int `json:"compaction_max_retries" yaml:"compaction_max_retries"`

	// Snapshot GC retention (spec §4.10).
	RetainSnapshotsMin        int   `json:"retain_snapshots_min" yaml:"retain_snapshots_min"`
	RetainSnapshotsMinAgeSecs int64 `json:"retain_snapshots_min_age_secs" yaml:"retain_snapshots_min_age_secs"`
	GCSafetyMarginMs          int   `json:"gc_safety_margin_ms" yaml:"gc_safety_margin_ms"`

	// IPC framing (spec §4.11/§6).
	MaxRequestBytes  uint32 `json:"max_request_bytes" yaml:"max_request_bytes"`
	MaxResponseBytes uint32 `json:"max_response_bytes" yaml:"max_response_bytes"`

	// Daemon lifecycle (spec §4.12).
	IdleTimeoutSecs   int `json:"idle_timeout_secs" yaml:"idle_timeout_secs"`
	SyncDebounceMs    int `json:"sync_debounce_ms" yaml:"sync_debounce_ms"`
	EmbedMaxRetries   int `json:"embed_max_retries" yaml:"embed_max_retries"`

	// Embed limiter (spec §3 "Embed limiter lock files", §4.11 "N-of-M").
	EmbedSlots  int `json:"embed_slots" yaml:"embed_slots"`
	EmbedSlotTTLSecs int `json:"embed_slot_ttl_secs" yaml:"embed_slot_ttl_secs"`
}

// DefaultEngineConfig returns the engine defaults named throughout spec.md.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxConcurrentQueries:          8,
		MaxQueryQueue:                 32,
		MaxConcurrentQueriesPerClient: 4,
		MaxOpenSegmentsGlobal:         64,
		MaxOpenSegmentsPerQuery:       16,
		QueryTimeoutMs:                10_000,

		CompactionOverdueSegments:   8,
		CompactionOverdueTombstones: 200,
		CompactionMaxRetries:        3,

		RetainSnapshotsMin:        3,
		RetainSnapshotsMinAgeSecs: 3600,
		GCSafetyMarginMs:          5_000,

		MaxRequestBytes:  16 << 20,
		MaxResponseBytes: 32 << 20,

		IdleTimeoutSecs: 1800,
		SyncDebounceMs:  250,
		EmbedMaxRetries: 2,

		EmbedSlots:       4,
		EmbedSlotTTLSecs: 30,
	}
}

// SafetyWindowMs implements spec §4.10's
// safety_window_ms = query_timeout_ms + gc_safety_margin_ms.
func (c EngineConfig) SafetyWindowMs() int64 {
	return int64(c.QueryTimeoutMs) + int64(c.GCSafetyMarginMs)
}
