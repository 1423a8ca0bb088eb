package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/ggrep/ggrep/internal/admission"
	"github.com/ggrep/ggrep/internal/compaction"
	ggrepErrors "github.com/ggrep/ggrep/internal/errors"
	"github.com/ggrep/ggrep/internal/gc"
	"github.com/ggrep/ggrep/internal/ingest"
	"github.com/ggrep/ggrep/internal/manifest"
	"github.com/ggrep/ggrep/internal/metrics"
	"github.com/ggrep/ggrep/internal/protocol"
	"github.com/ggrep/ggrep/internal/search"
	"github.com/ggrep/ggrep/internal/segment"
	"github.com/ggrep/ggrep/internal/store"
	"github.com/ggrep/ggrep/pkg/version"
)

// GitInspector is the capability the daemon uses to populate a fresh
// manifest's "git" field (spec §3); internal/vcs.Inspect satisfies it.
type GitInspector func(root string) (manifest.GitInfo, error)

// Daemon is the long-running per-store process (C12). Every dependency is
// injected (Design Notes §9): the daemon constructs no embedder, chunker,
// or file system of its own.
type Daemon struct {
	cfg    Config
	logger *slog.Logger
	reg    *metrics.Registry

	Search     *search.Engine
	Syncer     *ingest.Syncer
	Compactor  *compaction.Compactor
	Collector  *gc.Collector
	Segments   segment.Store
	Meta       *store.Metadata
	Admitter   *admission.Admitter
	Pinner     *admission.Pinner
	InspectGit GitInspector

	listener net.Listener
	pidFile  *pidFile
	started  time.Time

	mu            sync.Mutex
	syncing       bool
	syncProgress  float64
	lastRequestAt time.Time
	shuttingDown  bool
	wg            sync.WaitGroup
}

// New constructs a Daemon for one store. Callers (cmd/ggrep) are
// responsible for wiring Search/Syncer/Compactor/Collector with the
// concrete embedder/chunker/file-system backends spec §6 names as
// external collaborators.
func New(cfg Config, logger *slog.Logger, reg *metrics.Registry) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		reg:      reg,
		Admitter: admission.NewAdmitter(admission.Limits{
			MaxConcurrentQueries:          cfg.Engine.MaxConcurrentQueries,
			MaxQueryQueue:                 cfg.Engine.MaxQueryQueue,
			MaxConcurrentQueriesPerClient: cfg.Engine.MaxConcurrentQueriesPerClient,
			MaxOpenSegmentsGlobal:         cfg.Engine.MaxOpenSegmentsGlobal,
			MaxOpenSegmentsPerQuery:       cfg.Engine.MaxOpenSegmentsPerQuery,
		}),
		Pinner: admission.NewPinner(),
	}
}

// Start binds the socket and blocks serving connections, the background
// sync loop, and the idle-timeout loop until ctx is cancelled or a client
// sends Shutdown (spec §4.12 lifecycle).
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.claimSocket(); err != nil {
		return err
	}
	d.pidFile = newPIDFile(d.cfg.PIDPath)
	if err := d.pidFile.Write(); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	if err := writeIDFile(d.cfg.IDPath, d.cfg.StoreID); err != nil {
		return fmt.Errorf("write id file: %w", err)
	}
	d.started = time.Now()
	d.touch()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer func() {
		_ = d.listener.Close()
		_ = os.Remove(d.cfg.SocketPath)
		_ = d.pidFile.Remove()
		_ = os.Remove(d.cfg.IDPath)
	}()

	d.logger.Info("daemon starting",
		slog.String("store_id", d.cfg.StoreID),
		slog.String("socket", d.cfg.SocketPath))

	if d.Syncer != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.watchLoop(ctx, func() { d.runSync(ctx, false) })
		}()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.idleLoop(ctx, cancel)
	}()

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		d.shuttingDown = true
		d.mu.Unlock()
		_ = d.listener.Close()
	}()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			d.mu.Lock()
			down := d.shuttingDown
			d.mu.Unlock()
			if down {
				break
			}
			d.logger.Error("accept error", slog.String("error", err.Error()))
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handleConn(ctx, conn, cancel)
		}()
	}

	d.wg.Wait()
	return nil
}

// claimSocket binds the unix socket, failing with "already running" if a
// live daemon currently holds it (spec §4.12: "bind socket (if the socket
// exists and accepts, fail)").
func (d *Daemon) claimSocket() error {
	if conn, err := net.DialTimeout("unix", d.cfg.SocketPath, 200*time.Millisecond); err == nil {
		conn.Close()
		return ggrepErrors.New(ggrepErrors.KindInvalidRequest, "daemon already running for this store")
	}
	_ = os.Remove(d.cfg.SocketPath)
	if err := os.MkdirAll(parentDir(d.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	l, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", d.cfg.SocketPath, err)
	}
	d.listener = l
	return nil
}

func parentDir(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return "."
}

func (d *Daemon) touch() {
	d.mu.Lock()
	d.lastRequestAt = time.Now()
	d.mu.Unlock()
}

// idleLoop implements spec §4.12's "if no request has arrived in
// idle_timeout_secs and no sync is active, publish a graceful shutdown
// signal".
func (d *Daemon) idleLoop(ctx context.Context, shutdown context.CancelFunc) {
	idle := time.Duration(d.cfg.Engine.IdleTimeoutSecs) * time.Second
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			quiet := time.Since(d.lastRequestAt) >= idle && !d.syncing
			d.mu.Unlock()
			if quiet {
				d.logger.Info("idle timeout reached, shutting down")
				shutdown()
				return
			}
		}
	}
}

// runSync invokes the ingest pipeline once, recording the outcome in the
// metadata store (spec §4.4 step 10).
func (d *Daemon) runSync(ctx context.Context, allowDegraded bool) {
	d.mu.Lock()
	if d.syncing {
		d.mu.Unlock()
		return
	}
	d.syncing = true
	d.syncProgress = 0
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.syncing = false
		d.syncProgress = 100
		d.mu.Unlock()
	}()

	start := time.Now()
	var gitInfo manifest.GitInfo
	if d.InspectGit != nil {
		gitInfo, _ = d.InspectGit(d.cfg.CanonicalRoot)
	}

	result, err := d.Syncer.Sync(ctx, ingest.Options{AllowDegraded: allowDegraded, Git: gitInfo})
	finished := time.Now()
	if d.reg != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		d.reg.RecordPublish(outcome)
	}
	if d.Meta != nil {
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		_ = d.Meta.RecordRun(ctx, store.RunRecord{
			Kind:       store.RunSync,
			StartedAt:  start,
			FinishedAt: finished,
			DurationMs: finished.Sub(start).Milliseconds(),
			Succeeded:  err == nil,
			Detail:     detail,
		})
	}
	if err != nil {
		d.logger.Error("sync failed", slog.String("error", err.Error()))
		return
	}
	d.logger.Info("sync complete",
		slog.String("snapshot_id", result.Manifest.SnapshotID),
		slog.Duration("duration", result.Duration),
		slog.Bool("degraded", result.Manifest.Degraded))

	if d.Compactor != nil {
		d.maybeCompact(ctx, &result.Manifest)
	}
}

func (d *Daemon) maybeCompact(ctx context.Context, m *manifest.Manifest) {
	thr := compaction.Thresholds{
		OverdueSegments:   d.cfg.Engine.CompactionOverdueSegments,
		OverdueTombstones: int64(d.cfg.Engine.CompactionOverdueTombstones),
	}
	if !thr.Overdue(m) {
		return
	}
	start := time.Now()
	result, err := d.Compactor.Run(ctx, thr, false)
	if err != nil {
		d.logger.Warn("background compaction failed", slog.String("error", err.Error()))
		return
	}
	if result.Skipped {
		return
	}
	if d.Meta != nil {
		_ = d.Meta.RecordRun(ctx, store.RunRecord{
			Kind:       store.RunCompaction,
			StartedAt:  start,
			FinishedAt: time.Now(),
			DurationMs: result.Duration.Milliseconds(),
			Succeeded:  true,
		})
	}
	d.logger.Info("background compaction complete", slog.String("snapshot_id", result.Manifest.SnapshotID))
}

// Version is reported in the handshake response.
var Version = version.Version
