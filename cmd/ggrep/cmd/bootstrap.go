// Package cmd wires the storage+concurrency engine's components
// (internal/segment, internal/ingest, internal/compaction, internal/gc,
// internal/search, internal/daemon) into the ggrep CLI, the way the
// teacher's cmd/amanmcp/cmd package wires its own internal packages
// behind cobra subcommands (root.go's NewRootCmd/AddCommand shape).
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ggrep/ggrep/internal/admission"
	"github.com/ggrep/ggrep/internal/chunk"
	ggrepConfig "github.com/ggrep/ggrep/internal/config"
	"github.com/ggrep/ggrep/internal/daemon"
	"github.com/ggrep/ggrep/internal/embed"
	"github.com/ggrep/ggrep/internal/fswalk"
	"github.com/ggrep/ggrep/internal/ingest"
	"github.com/ggrep/ggrep/internal/lease"
	"github.com/ggrep/ggrep/internal/search"
	"github.com/ggrep/ggrep/internal/segment"
	"github.com/ggrep/ggrep/internal/store"
	"github.com/ggrep/ggrep/internal/storeinit"
)

// storeApp bundles every component one store needs, the dependency graph
// Design Notes §9 requires callers to assemble by injection rather than
// global singletons. It is built once per CLI invocation by bootstrap.
type storeApp struct {
	CanonicalRoot     string
	StoreID           string
	ConfigFingerprint string
	IgnoreFingerprint string
	StoreDir          string

	Segments segment.Store
	Meta     *store.Metadata
	Embedder embed.Embedder
	Chunker  chunk.Chunker
	FS       fswalk.FileSystem
	Limiter  *admission.EmbedLimiter

	Syncer    *ingest.Syncer
	DaemonCfg daemon.Config
	Ranking   search.RankingConfig
}

// rankingFromConfig converts the project config's mode-name-keyed ranking
// table into internal/search's Mode-keyed one. internal/config cannot
// import internal/search directly (it would invert the dependency), so
// the conversion lives at the wiring boundary instead.
func rankingFromConfig(cfg ggrepConfig.RankingConfig) search.RankingConfig {
	modeWeights := make(map[search.Mode]search.BucketWeights, len(cfg.ModeWeights))
	for mode, w := range cfg.ModeWeights {
		modeWeights[search.Mode(mode)] = search.BucketWeights{Code: w.Code, Docs: w.Docs, Graph: w.Graph}
	}
	return search.RankingConfig{
		ModeWeights:          modeWeights,
		StructuralMultiplier: cfg.StructuralMultiplier,
		TestPathMultiplier:   cfg.TestPathMultiplier,
		DocsMultiplier:       cfg.DocsMultiplier,
		GraphMultiplier:      cfg.GraphMultiplier,
	}
}

// bootstrap resolves root to its canonical form, computes the store id and
// fingerprints (spec §3) via internal/storeinit, and constructs every
// injected component the sync/search/compaction/GC pipelines need.
// leaseTTL of 0 uses lease.DefaultTTL.
func bootstrap(root string, leaseTTL time.Duration) (*storeApp, error) {
	info, err := storeinit.Resolve(root)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(info.StoreDir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	segments, err := segment.NewSQLiteStore(info.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("open segment store: %w", err)
	}

	meta, err := store.Open(info.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	walker, err := fswalk.NewWalker(fswalk.DefaultMaxFileBytes)
	if err != nil {
		return nil, fmt.Errorf("construct file walker: %w", err)
	}

	engineCfg := info.Config.Engine
	limiter := admission.NewEmbedLimiter(
		filepath.Join(ggrepConfig.BaseDir(), "embed-slots"),
		engineCfg.EmbedSlots,
		time.Duration(engineCfg.EmbedSlotTTLSecs)*time.Second,
	)

	ttl := leaseTTL
	if ttl <= 0 {
		ttl = lease.DefaultTTL
	}

	syncer := &ingest.Syncer{
		StoreDir:      info.StoreDir,
		StoreID:       info.StoreID,
		CanonicalRoot: info.CanonicalRoot,
		ConfigFP:      info.ConfigFingerprint,
		IgnoreFP:      info.IgnoreFingerprint,
		FS:            walker,
		Chunker:       info.Chunker,
		Embedder:      info.Embedder,
		Segments:      segments,
		Limiter:       limiter,
		LeaseTTL:      ttl,
	}

	daemonCfg := daemon.NewConfig(info.StoreID, info.CanonicalRoot, info.ConfigFingerprint, info.IgnoreFingerprint, engineCfg)

	return &storeApp{
		CanonicalRoot:     info.CanonicalRoot,
		StoreID:           info.StoreID,
		ConfigFingerprint: info.ConfigFingerprint,
		IgnoreFingerprint: info.IgnoreFingerprint,
		StoreDir:          info.StoreDir,
		Segments:          segments,
		Meta:              meta,
		Embedder:          info.Embedder,
		Chunker:           info.Chunker,
		FS:                walker,
		Limiter:           limiter,
		Syncer:            syncer,
		DaemonCfg:         daemonCfg,
		Ranking:           rankingFromConfig(info.Config.Ranking),
	}, nil
}
