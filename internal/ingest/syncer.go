// Package ingest implements the sync/ingest pipeline (spec §4.4, C5):
// scan, diff, chunk, embed, append to a new segment, and publish.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ggrep/ggrep/internal/admission"
	"github.com/ggrep/ggrep/internal/chunk"
	"github.com/ggrep/ggrep/internal/embed"
	ggrepErrors "github.com/ggrep/ggrep/internal/errors"
	"github.com/ggrep/ggrep/internal/fswalk"
	"github.com/ggrep/ggrep/internal/identity"
	"github.com/ggrep/ggrep/internal/lease"
	"github.com/ggrep/ggrep/internal/manifest"
	"github.com/ggrep/ggrep/internal/segment"
	"github.com/ggrep/ggrep/internal/tombstone"
)

// guards serializes concurrent Sync calls against the same store within
// this process (spec §4.4 step 1 "index guard"); the writer lease handles
// cross-process exclusion.
var (
	guardsMu sync.Mutex
	guards   = map[string]*sync.Mutex{}
)

func storeGuard(storeID string) *sync.Mutex {
	guardsMu.Lock()
	defer guardsMu.Unlock()
	g, ok := guards[storeID]
	if !ok {
		g = &sync.Mutex{}
		guards[storeID] = g
	}
	return g
}

// Syncer runs one store's ingest pipeline. All dependencies are injected
// capability interfaces (Design Notes §9): the syncer never constructs a
// concrete file system, chunker, or embedder itself.
type Syncer struct {
	StoreDir      string
	StoreID       string
	CanonicalRoot string
	ConfigFP      string
	IgnoreFP      string

	FS       fswalk.FileSystem
	Chunker  chunk.Chunker
	Embedder embed.Embedder
	Segments segment.Store
	Limiter  *admission.EmbedLimiter

	LeaseTTL time.Duration
}

// Options configures one Sync call.
type Options struct {
	ChangeSet     *ChangeSet
	AllowDegraded bool
	Git           manifest.GitInfo
}

// Result summarizes one completed sync for callers (CLI output, daemon
// status) beyond what the manifest itself carries.
type Result struct {
	Manifest manifest.Manifest
	Duration time.Duration
}

// Sync implements the full algorithm of spec §4.4.
func (s *Syncer) Sync(ctx context.Context, opts Options) (*Result, error) {
	guard := storeGuard(s.StoreID)
	guard.Lock()
	defer guard.Unlock()

	start := time.Now()

	l, err := lease.Acquire(ctx, s.StoreDir, s.LeaseTTL)
	if err != nil {
		return nil, err
	}
	defer l.Release()

	meta, err := LoadMetadata(s.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("load sync metadata: %w", err)
	}

	// Step 2: a changed config fingerprint invalidates everything.
	fullReindex := meta.ConfigFingerprint != "" && meta.ConfigFingerprint != s.ConfigFP
	if fullReindex {
		if err := s.wipeStore(ctx); err != nil {
			return nil, fmt.Errorf("wipe store for config change: %w", err)
		}
		meta = &Metadata{Files: make(map[string]FileState)}
	}

	changeSet := opts.ChangeSet
	if changeSet.IsZero() {
		changeSet, err = s.deriveChangeSet(ctx, meta, fullReindex)
		if err != nil {
			return nil, err
		}
	}

	parentID, err := manifest.ReadActive(s.StoreDir)
	if err != nil {
		parentID = "" // no prior snapshot: this is the store's first sync
	}

	snapshotID := uuid.NewString()
	snapshotDir := filepath.Join(s.StoreDir, "snapshots", snapshotID)
	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	segmentFileIndex := map[string]string{}
	if parentID != "" {
		if prevIndex, err := tombstone.ReadSegmentFileIndex(manifest.SegmentFileIndexPath(s.StoreDir, parentID)); err == nil {
			for k, v := range prevIndex {
				segmentFileIndex[k] = v
			}
		}
	}

	tombstonePaths := map[string]bool{}
	for _, p := range changeSet.Delete {
		tombstonePaths[p] = true
	}
	for old := range changeSet.Rename {
		tombstonePaths[old] = true
	}

	var tsRefs []manifest.TombstoneRef
	if len(tombstonePaths) > 0 {
		w, err := tombstone.NewWriter(filepath.Join(snapshotDir, fmt.Sprintf("tombstones-%s.jsonl", snapshotID)))
		if err != nil {
			return nil, err
		}
		keys := sortedKeys(tombstonePaths)
		for _, k := range keys {
			if err := w.Add(k); err != nil {
				return nil, err
			}
			delete(segmentFileIndex, k)
			delete(meta.Files, k)
		}
		ref, err := w.Close()
		if err != nil {
			return nil, err
		}
		tsRefs = append(tsRefs, ref)
	}
	// Carry forward tombstone files from the parent snapshot: they still
	// apply until a compaction prunes them (spec §4.6).
	if parentID != "" {
		if pm, err := manifest.ReadManifest(s.StoreDir, parentID); err == nil {
			tsRefs = append(tsRefs, pm.Tombstones...)
		}
	}

	toIngest := dedupeAppend(changeSet.Add, changeSet.Modify)
	for _, newPath := range changeSet.Rename {
		toIngest = append(toIngest, newPath)
	}

	var ingestErrors []manifest.IngestError
	degraded := false
	var rows []segment.Row
	var filesIndexed int64

	for _, pathKey := range dedupeStrings(toIngest) {
		absPath := filepath.Join(s.CanonicalRoot, filepath.FromSlash(pathKey))
		fileRows, fileState, err := s.ingestFile(ctx, pathKey, absPath)
		if err != nil {
			if opts.AllowDegraded {
				degraded = true
				ingestErrors = append(ingestErrors, manifest.IngestError{
					Path: pathKey, Message: err.Error(), Degraded: true,
				})
				continue
			}
			return nil, ggrepErrors.Wrap(ggrepErrors.KindInternal, "ingest "+pathKey, err)
		}
		rows = append(rows, fileRows...)
		meta.Files[pathKey] = fileState
		filesIndexed++
	}

	var segRefs []manifest.SegmentRef
	if len(rows) > 0 {
		table := fmt.Sprintf("seg_%s_0", snapshotID)
		if err := s.Segments.InsertBatch(ctx, table, rows); err != nil {
			return nil, fmt.Errorf("append segment %s: %w", table, err)
		}
		if err := s.Segments.Seal(ctx, table); err != nil {
			// Best-effort per spec §4.2: index creation failure never
			// invalidates the segment.
			_ = err
		}
		info, err := s.Segments.Metadata(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("segment metadata %s: %w", table, err)
		}
		segRefs = append(segRefs, manifest.SegmentRef{Table: table, Rows: info.Rows, SizeBytes: info.SizeBytes, SHA256: info.SHA256, Kind: "ingest"})

		seen := map[string]bool{}
		for _, r := range rows {
			if !seen[r.PathKey] {
				segmentFileIndex[r.PathKey] = table
				seen[r.PathKey] = true
			}
		}
	}

	// Carry forward every still-live prior segment reference.
	if parentID != "" {
		if pm, err := manifest.ReadManifest(s.StoreDir, parentID); err == nil {
			segRefs = append(segRefs, pm.Segments...)
		}
	}

	if err := tombstone.WriteSegmentFileIndex(manifest.SegmentFileIndexPath(s.StoreDir, snapshotID), segmentFileIndex); err != nil {
		return nil, fmt.Errorf("write segment file index: %w", err)
	}

	var chunksIndexed, totalTombstones int64
	for _, sr := range segRefs {
		chunksIndexed += sr.Rows
	}
	for _, tr := range tsRefs {
		totalTombstones += tr.Count
	}

	m := manifest.Manifest{
		SchemaVersion:         manifest.SchemaVersion,
		ChunkRowSchemaVersion: manifest.ChunkRowSchemaVersion,
		SnapshotID:            snapshotID,
		ParentSnapshotID:      parentID,
		CreatedAt:             time.Now().UTC(),
		CanonicalRoot:         s.CanonicalRoot,
		StoreID:               s.StoreID,
		ConfigFingerprint:     s.ConfigFP,
		IgnoreFingerprint:     s.IgnoreFP,
		LeaseEpoch:            l.Epoch(),
		Git:                   opts.Git,
		Segments:              segRefs,
		Tombstones:            tsRefs,
		Counts: manifest.Counts{
			FilesIndexed:    filesIndexed,
			ChunksIndexed:   chunksIndexed,
			TombstonesAdded: totalTombstones,
		},
		Degraded: degraded,
		Errors:   ingestErrors,
	}

	if err := manifest.Publish(ctx, s.StoreDir, l, m, s.Segments); err != nil {
		return nil, err
	}

	meta.ConfigFingerprint = s.ConfigFP
	meta.LastSyncAt = time.Now().UTC()
	meta.LastSyncDuration = time.Since(start)
	meta.LastSyncDegraded = degraded
	if err := meta.Save(s.StoreDir); err != nil {
		return nil, fmt.Errorf("save sync metadata: %w", err)
	}

	return &Result{Manifest: m, Duration: time.Since(start)}, nil
}

// ingestFile reads, chunks, and embeds one file, returning its rows plus
// the FileState to remember for the next diff.
func (s *Syncer) ingestFile(ctx context.Context, pathKey, absPath string) ([]segment.Row, FileState, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, FileState{}, fmt.Errorf("read %s: %w", pathKey, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, FileState{}, fmt.Errorf("stat %s: %w", pathKey, err)
	}

	fileHash := sha256Hex(data)
	records, err := s.Chunker.Chunk(ctx, pathKey, data)
	if err != nil {
		return nil, FileState{}, fmt.Errorf("chunk %s: %w", pathKey, err)
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}

	vectors, err := s.embedBatched(ctx, texts)
	if err != nil {
		return nil, FileState{}, fmt.Errorf("embed %s: %w", pathKey, err)
	}

	rows := make([]segment.Row, len(records))
	for i, r := range records {
		v := vectors[i]
		rows[i] = segment.Row{
			RowID:          uuid.NewString(),
			PathKey:        r.PathKey,
			PathKeyCI:      identity.PathKeyCI(r.PathKey),
			Ordinal:        r.Ordinal,
			FileHash:       fileHash,
			ChunkHash:      r.ChunkHash,
			ChunkerVersion: r.ChunkerVersion,
			Kind:           string(r.Kind),
			Text:           r.Text,
			StartLine:      r.StartLine,
			EndLine:        r.EndLine,
			ChunkType:      string(r.ChunkType),
			ContextPrev:    r.ContextPrev,
			ContextNext:    r.ContextNext,
			Embedding:      v.Dense,
			ColBERT:        v.ColBERT,
			ColBERTScale:   v.Scale,
		}
	}

	return rows, FileState{MTime: info.ModTime(), FileHash: fileHash}, nil
}

// embedBatched splits texts into MaxBatchSize-sized calls, each bounded by
// the host-wide embed limiter (spec §4.4 step 5).
func (s *Syncer) embedBatched(ctx context.Context, texts []string) ([]embed.HybridVector, error) {
	var out []embed.HybridVector
	for start := 0; start < len(texts); start += embed.MaxBatchSize {
		end := start + embed.MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		if s.Limiter != nil {
			permit, err := s.Limiter.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			vecs, embErr := s.Embedder.EmbedBatch(ctx, texts[start:end])
			_ = permit.Release()
			if embErr != nil {
				return nil, embErr
			}
			out = append(out, vecs...)
			continue
		}

		vecs, err := s.Embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// deriveChangeSet diffs discovered files against stored metadata when the
// caller didn't supply an explicit ChangeSet (spec §4.4 step "When no
// changeset is provided...").
func (s *Syncer) deriveChangeSet(ctx context.Context, meta *Metadata, fullReindex bool) (*ChangeSet, error) {
	files, errs := s.FS.IterFiles(ctx, s.CanonicalRoot)

	seen := map[string]bool{}
	cs := &ChangeSet{Rename: map[string]string{}}

	for f := range files {
		seen[f.PathKey] = true
		prev, existed := meta.Files[f.PathKey]
		switch {
		case fullReindex || !existed:
			cs.Add = append(cs.Add, f.PathKey)
		case !prev.MTime.Equal(f.ModTime):
			cs.Modify = append(cs.Modify, f.PathKey)
		}
	}
	if err := <-errs; err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}

	for pathKey := range meta.Files {
		if !seen[pathKey] {
			cs.Delete = append(cs.Delete, pathKey)
		}
	}

	sort.Strings(cs.Add)
	sort.Strings(cs.Modify)
	sort.Strings(cs.Delete)
	return cs, nil
}

// wipeStore drops every segment table and clears ingest metadata,
// implementing spec §4.4 step 2 ("delete the store's segments, clear
// metadata, and treat every file as an add").
func (s *Syncer) wipeStore(ctx context.Context) error {
	tables, err := s.Segments.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if err := s.Segments.DropTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func dedupeAppend(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
