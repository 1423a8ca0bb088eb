// Package protocol implements the wire protocol (spec §4.11, C11): a
// little-endian u32 length prefix wrapping a JSON message body, and the
// Hello handshake / Search / Health / Gc / Shutdown message variants.
package protocol

import ggrepErrors "github.com/ggrep/ggrep/internal/errors"

// SupportedVersions are the protocol versions this binary can speak,
// newest first. The handshake negotiates max(intersection(client,
// server)).
var SupportedVersions = []int{2}

// SchemaVersions announces the per-surface schema versions of spec §6
// ("Wire protocol v2").
var SchemaVersions = map[string]int{
	"query_success": 1,
	"query_error":   1,
	"status":        1,
	"health":        1,
}

// Envelope is the outer shape every frame body decodes into: exactly one
// of its variant fields is populated, selected by Type.
type Envelope struct {
	Type string `json:"type"`

	Hello    *Hello    `json:"hello,omitempty"`
	Search   *Search   `json:"search,omitempty"`
	Health   *Health   `json:"health,omitempty"`
	Gc       *Gc       `json:"gc,omitempty"`
	Shutdown *Shutdown `json:"shutdown,omitempty"`
	Error    *Error    `json:"error,omitempty"`
}

const (
	TypeHello    = "hello"
	TypeSearch   = "search"
	TypeHealth   = "health"
	TypeGc       = "gc"
	TypeShutdown = "shutdown"
	TypeError    = "error"
)

// Hello is sent by the client first and echoed (negotiated) by the server
// (spec §4.11 "Handshake").
type Hello struct {
	// Request fields.
	ProtocolVersions    []int    `json:"protocol_versions,omitempty"`
	StoreID             string   `json:"store_id"`
	ConfigFingerprint   string   `json:"config_fingerprint"`
	ClientID            string   `json:"client_id,omitempty"`
	ClientCapabilities  []string `json:"client_capabilities,omitempty"`

	// Response-only fields.
	ProtocolVersion        int            `json:"protocol_version,omitempty"`
	BinaryVersion          string         `json:"binary_version,omitempty"`
	SupportedSchemaVersions map[string]int `json:"supported_schema_versions,omitempty"`
}

// Search carries a search request or its response.
type Search struct {
	// Request fields.
	Query          string   `json:"query,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	PerFileLimit   int      `json:"per_file_limit,omitempty"`
	Scope          []string `json:"scope,omitempty"`
	Rerank         bool     `json:"rerank,omitempty"`
	IncludeAnchors bool     `json:"include_anchors,omitempty"`
	Mode           string   `json:"mode,omitempty"`

	// Response fields.
	Status    string         `json:"status,omitempty"` // "ok" | "indexing"
	Progress  float64        `json:"progress,omitempty"`
	Results   []SearchResult `json:"results,omitempty"`
	Timings   *SearchTimings `json:"timings,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	LimitsHit []string       `json:"limits_hit,omitempty"`
}

// SearchResult is one wire-serialized result row.
type SearchResult struct {
	PathKey      string  `json:"path_key"`
	SegmentTable string  `json:"segment_table"`
	RowID        string  `json:"row_id"`
	StartLine    int     `json:"start_line"`
	EndLine      int     `json:"end_line"`
	ChunkType    string  `json:"chunk_type"`
	Bucket       string  `json:"bucket"`
	Score        float64 `json:"score"`
	Snippet      string  `json:"snippet"`
}

// SearchTimings mirrors spec §4.8 step 11.
type SearchTimings struct {
	AdmissionMs    float64 `json:"admission_ms"`
	SnapshotReadMs float64 `json:"snapshot_read_ms"`
	RetrieveMs     float64 `json:"retrieve_ms"`
	RankMs         float64 `json:"rank_ms"`
	FormatMs       float64 `json:"format_ms"`
}

// Health carries a health-check request (empty) or response.
type Health struct {
	StoreID          string `json:"store_id,omitempty"`
	ActiveSnapshotID string `json:"active_snapshot_id,omitempty"`
	Degraded         bool   `json:"degraded,omitempty"`
	LeaseHeld        bool   `json:"lease_held,omitempty"`
	CasefoldWarnings int    `json:"casefold_warnings,omitempty"`
}

// Gc carries a gc request or response.
type Gc struct {
	DryRun  bool     `json:"dry_run,omitempty"`
	Force   bool     `json:"force,omitempty"`
	Kept    []string `json:"kept,omitempty"`
	Deleted []string `json:"deleted,omitempty"`
}

// Shutdown carries a shutdown request (no fields) or acknowledgement.
type Shutdown struct {
	Acknowledged bool `json:"acknowledged,omitempty"`
}

// Error is the wire representation of an internal/errors.Error.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// FromError converts a Go error into a wire Error, defaulting to kind
// "internal" for anything that isn't an *errors.Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	kind := ggrepErrors.KindOf(err)
	e := &Error{Code: string(kind), Message: err.Error()}
	var ge *ggrepErrors.Error
	if as(err, &ge) {
		e.Details = ge.Details
	}
	return e
}

func as(err error, target **ggrepErrors.Error) bool {
	for err != nil {
		if e, ok := err.(*ggrepErrors.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// NegotiateVersion implements spec §4.11: "The server's protocol choice is
// max(intersection(client_versions, server_versions)); empty intersection
// -> incompatible."
func NegotiateVersion(clientVersions, serverVersions []int) (int, bool) {
	serverSet := make(map[int]bool, len(serverVersions))
	for _, v := range serverVersions {
		serverSet[v] = true
	}
	best := -1
	for _, v := range clientVersions {
		if serverSet[v] && v > best {
			best = v
		}
	}
	return best, best >= 0
}
