// Package storeinit computes a store's identity (spec §3: canonical root,
// store id, config/ignore fingerprints) the same way for every entrypoint
// that needs to address a store without owning it — the CLI and the MCP
// bridge both resolve a project root to a store id before talking to its
// daemon. Grounded on the teacher's cmd/root.go inline init sequence
// (detect root, load config, construct embedder, derive data dir),
// factored out here because two separate binaries (cmd/ggrep,
// cmd/ggrep-mcp) need the identical fingerprint computation and a
// Hello handshake rejects any mismatch (spec §4.11).
package storeinit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ggrep/ggrep/internal/chunk"
	"github.com/ggrep/ggrep/internal/config"
	"github.com/ggrep/ggrep/internal/embed"
	"github.com/ggrep/ggrep/internal/fswalk"
	"github.com/ggrep/ggrep/internal/identity"
)

// Info is a store's resolved identity plus the components whose
// configuration fed into its fingerprint.
type Info struct {
	CanonicalRoot     string
	StoreID           string
	ConfigFingerprint string
	IgnoreFingerprint string
	StoreDir          string

	Config   *config.Config
	Embedder embed.Embedder
	Chunker  chunk.Chunker
}

// embedBackend resolves the configured backend, honoring GGREP_OFFLINE
// (spec §6: "disables any network fetch") by forcing the dependency-free
// static embedder.
func embedBackend(cfg *config.Config) embed.Backend {
	if os.Getenv("GGREP_OFFLINE") != "" {
		return embed.BackendStatic
	}
	switch cfg.Embeddings.Provider {
	case "ollama":
		return embed.BackendOllama
	default:
		return embed.BackendStatic
	}
}

func ignoreFingerprintEntries(canonicalRoot string) ([]identity.IgnoreFileEntry, error) {
	var entries []identity.IgnoreFileEntry
	for _, name := range []string{".gitignore", ".ggrepignore"} {
		b, err := os.ReadFile(filepath.Join(canonicalRoot, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		entries = append(entries, identity.IgnoreFileEntry{PathKey: name, Bytes: b})
	}
	return entries, nil
}

// Resolve derives root's canonical path, config, embedder, chunker, store
// id, and both fingerprints (spec §3). It does not construct the store's
// segment/metadata storage or any daemon-facing component.
func Resolve(root string) (*Info, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	canonicalRoot, err := fswalk.CanonicalRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize root: %w", err)
	}

	projCfg, err := config.Load(canonicalRoot)
	if err != nil {
		projCfg = config.NewConfig()
	}

	backend := embedBackend(projCfg)
	embedder, err := embed.New(backend, embed.OllamaConfig{
		Host:  projCfg.Embeddings.OllamaHost,
		Model: projCfg.Embeddings.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("construct embedder: %w", err)
	}

	chunker := chunk.NewDefaultChunker()

	configFP, err := identity.ConfigFingerprint(identity.ConfigFingerprintInput{
		EmbedModelID:         embedder.ModelID(),
		EmbedModelRevision:   embedder.ModelRevision(),
		EmbedDimensions:      embedder.Dimensions(),
		ChunkerVersion:       fmt.Sprintf("%d", chunk.ChunkerVersion),
		ChunkerMaxTokens:     projCfg.Search.ChunkSize,
		ChunkerOverlapTokens: projCfg.Search.ChunkOverlap,
		IngestMaxFileBytes:   fswalk.DefaultMaxFileBytes,
		IngestMaxFiles:       projCfg.Performance.MaxFiles,
	})
	if err != nil {
		return nil, fmt.Errorf("compute config fingerprint: %w", err)
	}

	ignoreEntries, err := ignoreFingerprintEntries(canonicalRoot)
	if err != nil {
		return nil, fmt.Errorf("read ignore files: %w", err)
	}
	ignoreFP, err := identity.IgnoreFingerprint(ignoreEntries)
	if err != nil {
		return nil, fmt.Errorf("compute ignore fingerprint: %w", err)
	}

	storeID := os.Getenv("GGREP_STORE")
	if storeID == "" {
		storeID = identity.StoreID(filepath.Base(canonicalRoot), canonicalRoot, configFP)
	}

	return &Info{
		CanonicalRoot:     canonicalRoot,
		StoreID:           storeID,
		ConfigFingerprint: configFP,
		IgnoreFingerprint: ignoreFP,
		StoreDir:          config.StoreDataDir(storeID),
		Config:            projCfg,
		Embedder:          embedder,
		Chunker:           chunker,
	}, nil
}
