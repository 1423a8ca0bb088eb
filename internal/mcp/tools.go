package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ggrep/ggrep/internal/protocol"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query          string   `json:"query" jsonschema:"the natural-language or code search query"`
	Limit          int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	PerFileLimit   int      `json:"per_file_limit,omitempty" jsonschema:"maximum results per file, default 3"`
	Scope          []string `json:"scope,omitempty" jsonschema:"restrict results to these path prefixes"`
	IncludeAnchors bool     `json:"include_anchors,omitempty" jsonschema:"include per-file anchor rows alongside ranked matches"`
	Mode           string   `json:"mode,omitempty" jsonschema:"bucket weighting: balanced, discovery, implementation, planning, or debug"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Degraded bool                `json:"degraded,omitempty" jsonschema:"true if results are against a stale snapshot while a sync is in progress"`
	Warnings []string            `json:"warnings,omitempty"`
}

// SearchResultOutput is one ranked match.
type SearchResultOutput struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	ChunkType string  `json:"chunk_type,omitempty"`
	Bucket    string  `json:"bucket"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, &MCPError{Code: ErrCodeInvalidParams, Message: "query is required"}
	}

	c, conn, err := s.dial(ctx)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	defer conn.Close()

	if err := c.WriteEnvelope(&protocol.Envelope{
		Type: protocol.TypeSearch,
		Search: &protocol.Search{
			Query:          input.Query,
			Limit:          input.Limit,
			PerFileLimit:   input.PerFileLimit,
			Scope:          input.Scope,
			Rerank:         true,
			IncludeAnchors: input.IncludeAnchors,
			Mode:           input.Mode,
		},
	}); err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	resp, err := c.ReadEnvelope()
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	if resp.Type == protocol.TypeError {
		return nil, SearchOutput{}, &MCPError{Code: resp.Error.Code, Message: resp.Error.Message}
	}

	out := SearchOutput{
		Results:  make([]SearchResultOutput, 0, len(resp.Search.Results)),
		Degraded: resp.Search.Status == "indexing",
		Warnings: resp.Search.Warnings,
	}
	for _, r := range resp.Search.Results {
		out.Results = append(out.Results, SearchResultOutput{
			Path:      r.PathKey,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			ChunkType: r.ChunkType,
			Bucket:    r.Bucket,
			Score:     r.Score,
			Snippet:   r.Snippet,
		})
	}
	return nil, out, nil
}

// HealthInput is the (empty) input schema for index_status.
type HealthInput struct{}

// HealthOutput is the output schema for index_status.
type HealthOutput struct {
	ActiveSnapshotID string `json:"active_snapshot_id"`
	Degraded         bool   `json:"degraded"`
	LeaseHeld        bool   `json:"lease_held"`
}

func (s *Server) healthHandler(ctx context.Context, _ *mcp.CallToolRequest, _ HealthInput) (
	*mcp.CallToolResult,
	HealthOutput,
	error,
) {
	c, conn, err := s.dial(ctx)
	if err != nil {
		return nil, HealthOutput{}, MapError(err)
	}
	defer conn.Close()

	if err := c.WriteEnvelope(&protocol.Envelope{Type: protocol.TypeHealth, Health: &protocol.Health{}}); err != nil {
		return nil, HealthOutput{}, MapError(err)
	}
	resp, err := c.ReadEnvelope()
	if err != nil {
		return nil, HealthOutput{}, MapError(err)
	}
	if resp.Type == protocol.TypeError {
		return nil, HealthOutput{}, &MCPError{Code: resp.Error.Code, Message: resp.Error.Message}
	}

	return nil, HealthOutput{
		ActiveSnapshotID: resp.Health.ActiveSnapshotID,
		Degraded:         resp.Health.Degraded,
		LeaseHeld:        resp.Health.LeaseHeld,
	}, nil
}
