package daemon

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	ggrepErrors "github.com/ggrep/ggrep/internal/errors"
	"github.com/ggrep/ggrep/internal/gc"
	"github.com/ggrep/ggrep/internal/lease"
	"github.com/ggrep/ggrep/internal/manifest"
	"github.com/ggrep/ggrep/internal/protocol"
	"github.com/ggrep/ggrep/internal/search"
)

// handleConn implements the handshake-then-dispatch loop of spec §4.11:
// every connection's first exchange is a Hello handshake, followed by any
// number of Search/Health/Gc/Shutdown requests, grounded on the teacher's
// server.go's decode-dispatch-encode connection loop (generalized to the
// length-prefixed binary framing internal/protocol implements instead of
// one bare json.Decoder call per connection).
func (d *Daemon) handleConn(ctx context.Context, nc net.Conn, shutdown context.CancelFunc) {
	defer nc.Close()
	conn := protocol.NewConn(nc, d.cfg.Engine.MaxRequestBytes)

	clientID, ok := d.handshake(conn)
	if !ok {
		return
	}

	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if err != io.EOF {
				d.logger.Debug("frame read error", slog.String("error", err.Error()))
			}
			return
		}
		d.touch()

		deadline := time.Duration(d.cfg.Engine.QueryTimeoutMs) * time.Millisecond
		reqCtx, cancel := context.WithTimeout(ctx, deadline)

		resp := d.dispatch(reqCtx, clientID, env)
		cancel()

		if err := conn.WriteEnvelope(resp); err != nil {
			d.logger.Debug("frame write error", slog.String("error", err.Error()))
			return
		}
		if env.Type == protocol.TypeShutdown {
			shutdown()
			return
		}
	}
}

// handshake performs the Hello exchange before any other message is
// accepted (spec §4.11: "first exchange, always").
func (d *Daemon) handshake(conn *protocol.Conn) (clientID string, ok bool) {
	env, err := conn.ReadEnvelope()
	if err != nil || env.Type != protocol.TypeHello || env.Hello == nil {
		_ = conn.WriteEnvelope(errEnvelope(ggrepErrors.New(ggrepErrors.KindInvalidRequest, "expected hello")))
		return "", false
	}
	h := env.Hello

	if h.StoreID != d.cfg.StoreID || h.ConfigFingerprint != d.cfg.ConfigFingerprint {
		_ = conn.WriteEnvelope(errEnvelope(ggrepErrors.New(ggrepErrors.KindInvalidRequest, "store_id/config_fingerprint mismatch")))
		return "", false
	}

	version, matched := protocol.NegotiateVersion(h.ProtocolVersions, protocol.SupportedVersions)
	if !matched {
		_ = conn.WriteEnvelope(errEnvelope(ggrepErrors.New(ggrepErrors.KindIncompatible, "no common protocol version")))
		return "", false
	}

	resp := &protocol.Envelope{
		Type: protocol.TypeHello,
		Hello: &protocol.Hello{
			ProtocolVersion:         version,
			ProtocolVersions:        protocol.SupportedVersions,
			BinaryVersion:           Version,
			SupportedSchemaVersions: protocol.SchemaVersions,
			StoreID:                 d.cfg.StoreID,
			ConfigFingerprint:       d.cfg.ConfigFingerprint,
		},
	}
	if err := conn.WriteEnvelope(resp); err != nil {
		return "", false
	}
	return h.ClientID, true
}

func (d *Daemon) dispatch(ctx context.Context, clientID string, env *protocol.Envelope) *protocol.Envelope {
	switch env.Type {
	case protocol.TypeSearch:
		return d.handleSearch(ctx, clientID, env.Search)
	case protocol.TypeHealth:
		return d.handleHealth(ctx)
	case protocol.TypeGc:
		return d.handleGC(ctx, env.Gc)
	case protocol.TypeShutdown:
		return &protocol.Envelope{Type: protocol.TypeShutdown, Shutdown: &protocol.Shutdown{Acknowledged: true}}
	default:
		return errEnvelope(ggrepErrors.New(ggrepErrors.KindInvalidRequest, "unknown message type"))
	}
}

func (d *Daemon) handleSearch(ctx context.Context, clientID string, req *protocol.Search) *protocol.Envelope {
	if req == nil || req.Query == "" {
		return errEnvelope(ggrepErrors.New(ggrepErrors.KindInvalidRequest, "search requires a query"))
	}
	if d.Search == nil {
		return errEnvelope(ggrepErrors.New(ggrepErrors.KindInternal, "search engine not configured"))
	}

	// Admission is enforced by the search engine itself (its own Admitter
	// tracks per-client concurrency keyed by store_id); the daemon's
	// Admitter is reserved for callers that bypass the engine, so it is
	// not consulted a second time here.
	start := time.Now()
	resp, err := d.Search.Search(ctx, search.Request{
		StoreID:        d.cfg.StoreID,
		Query:          req.Query,
		Limit:          req.Limit,
		PerFileLimit:   req.PerFileLimit,
		Scope:          req.Scope,
		Rerank:         req.Rerank,
		IncludeAnchors: req.IncludeAnchors,
		Mode:           search.Mode(req.Mode),
	})
	if d.reg != nil {
		outcome := "ok"
		if err != nil {
			outcome = string(ggrepErrors.KindOf(err))
		}
		d.reg.RecordQuery(outcome, time.Since(start))
	}
	if err != nil {
		return errEnvelope(err)
	}

	status := "ok"
	progress := 0.0
	d.mu.Lock()
	if d.syncing {
		status = "indexing"
		progress = d.syncProgress
	}
	d.mu.Unlock()

	results := make([]protocol.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, protocol.SearchResult{
			PathKey:      r.PathKey,
			SegmentTable: r.SegmentTable,
			RowID:        r.RowID,
			StartLine:    r.StartLine,
			EndLine:      r.EndLine,
			ChunkType:    r.ChunkType,
			Bucket:       string(r.Bucket),
			Score:        r.Score,
			Snippet:      r.Snippet,
		})
	}

	return &protocol.Envelope{
		Type: protocol.TypeSearch,
		Search: &protocol.Search{
			Status:    status,
			Progress:  progress,
			Results:   results,
			Warnings:  resp.Warnings,
			LimitsHit: resp.LimitsHit,
			Timings: &protocol.SearchTimings{
				AdmissionMs:    ms(resp.Timings.Admission),
				SnapshotReadMs: ms(resp.Timings.SnapshotRead),
				RetrieveMs:     ms(resp.Timings.Retrieve),
				RankMs:         ms(resp.Timings.Rank),
				FormatMs:       ms(resp.Timings.Format),
			},
		},
	}
}

func (d *Daemon) handleHealth(ctx context.Context) *protocol.Envelope {
	h := &protocol.Health{StoreID: d.cfg.StoreID}

	if d.Segments != nil {
		if m, err := manifest.OpenSnapshotView(ctx, d.cfg.StoreDir, d.cfg.StoreID, d.cfg.ConfigFingerprint, d.cfg.IgnoreFingerprint, d.Segments); err == nil {
			h.ActiveSnapshotID = m.SnapshotID
			h.Degraded = m.Degraded
		}
	}
	h.LeaseHeld = lease.IsHeld(d.cfg.StoreDir)
	return &protocol.Envelope{Type: protocol.TypeHealth, Health: h}
}

func (d *Daemon) handleGC(ctx context.Context, req *protocol.Gc) *protocol.Envelope {
	if req == nil {
		req = &protocol.Gc{}
	}
	if d.Collector == nil {
		return errEnvelope(ggrepErrors.New(ggrepErrors.KindInternal, "gc collector not configured"))
	}
	policy := gc.Policy{
		RetainMin:    d.cfg.Engine.RetainSnapshotsMin,
		RetainMinAge: time.Duration(d.cfg.Engine.RetainSnapshotsMinAgeSecs) * time.Second,
		SafetyWindow: time.Duration(d.cfg.Engine.SafetyWindowMs()) * time.Millisecond,
	}
	if req.Force {
		policy.RetainMinAge = 0
	}
	report, err := d.Collector.Run(ctx, policy, d.Pinner.Snapshot(), req.DryRun)
	if err != nil {
		return errEnvelope(err)
	}
	if d.reg != nil {
		d.reg.RecordGCReclaim(len(report.DeletedSegments), len(report.DeletedTombstones))
	}
	return &protocol.Envelope{
		Type: protocol.TypeGc,
		Gc:   &protocol.Gc{DryRun: report.DryRun, Force: req.Force, Kept: report.Kept, Deleted: report.Deleted},
	}
}

func errEnvelope(err error) *protocol.Envelope {
	return &protocol.Envelope{Type: protocol.TypeError, Error: protocol.FromError(err)}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
