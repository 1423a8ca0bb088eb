// Package compaction merges a store's segments, dropping tombstoned rows,
// and publishes a compacted snapshot with no outstanding tombstones (spec
// §4.6, C7).
package compaction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	ggrepErrors "github.com/ggrep/ggrep/internal/errors"
	"github.com/ggrep/ggrep/internal/lease"
	"github.com/ggrep/ggrep/internal/manifest"
	"github.com/ggrep/ggrep/internal/segment"
	"github.com/ggrep/ggrep/internal/testhooks"
	"github.com/ggrep/ggrep/internal/tombstone"
)

// Thresholds carries the trigger knobs of spec §4.6.
type Thresholds struct {
	OverdueSegments   int
	OverdueTombstones int64
}

// Overdue reports whether m's segment/tombstone counts cross t's triggers.
func (t Thresholds) Overdue(m *manifest.Manifest) bool {
	if len(m.Segments) >= t.OverdueSegments {
		return true
	}
	var tombstones int64
	for _, ts := range m.Tombstones {
		tombstones += ts.Count
	}
	return tombstones >= t.OverdueTombstones
}

// Compactor runs compaction for one store.
type Compactor struct {
	StoreDir string
	StoreID  string
	Segments segment.Store
	LeaseTTL time.Duration

	// MaxRetries bounds the ACTIVE-changed-under-us retry loop (spec §4.6
	// step 4: "discard the new segment and retry up to max_retries").
	MaxRetries int
}

// Result summarizes one completed compaction.
type Result struct {
	Manifest manifest.Manifest
	Duration time.Duration
	Skipped  bool // true when Overdue was false and force was not requested
}

// Run executes spec §4.6's procedure. If force is false and the store's
// ACTIVE manifest does not cross thr, Run returns a skipped Result without
// acquiring the lease.
func (c *Compactor) Run(ctx context.Context, thr Thresholds, force bool) (*Result, error) {
	start := time.Now()

	if !force {
		activeID, err := manifest.ReadActive(c.StoreDir)
		if err != nil {
			return nil, fmt.Errorf("read active snapshot: %w", err)
		}
		m, err := manifest.ReadManifest(c.StoreDir, activeID)
		if err != nil {
			return nil, fmt.Errorf("read active manifest: %w", err)
		}
		if !thr.Overdue(m) {
			return &Result{Skipped: true, Duration: time.Since(start)}, nil
		}
	}

	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	l, err := lease.Acquire(ctx, c.StoreDir, c.LeaseTTL)
	if err != nil {
		return nil, err
	}
	defer l.Release()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		m, retry, err := c.attempt(ctx, l)
		if err == nil {
			return &Result{Manifest: *m, Duration: time.Since(start)}, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}
	return nil, ggrepErrors.Wrap(ggrepErrors.KindBusy, "compaction exhausted retries", lastErr)
}

// attempt runs one pass of the compact-and-publish cycle. It returns
// retry=true when ACTIVE changed under us and the caller should try again.
func (c *Compactor) attempt(ctx context.Context, l *lease.Lease) (*manifest.Manifest, bool, error) {
	activeID, err := manifest.ReadActive(c.StoreDir)
	if err != nil {
		return nil, false, fmt.Errorf("read active snapshot: %w", err)
	}
	parent, err := manifest.ReadManifest(c.StoreDir, activeID)
	if err != nil {
		return nil, false, fmt.Errorf("read active manifest: %w", err)
	}

	tombstoned, err := tombstone.LoadAll(parent)
	if err != nil {
		return nil, false, fmt.Errorf("load tombstones: %w", err)
	}

	newSnapshotID := uuid.NewString()
	newTable := fmt.Sprintf("seg_%s_0", newSnapshotID)

	keptPaths := map[string]bool{}
	var survivorCount int64
	for _, seg := range parent.Segments {
		rows, err := c.Segments.Rows(ctx, seg.Table)
		if err != nil {
			return nil, false, fmt.Errorf("read segment %s: %w", seg.Table, err)
		}
		var survivors []segment.Row
		for _, r := range rows {
			if tombstoned[r.PathKey] {
				continue
			}
			survivors = append(survivors, r)
			keptPaths[r.PathKey] = true
		}
		if len(survivors) == 0 {
			continue
		}
		if err := c.Segments.AppendBatch(ctx, newTable, survivors); err != nil {
			return nil, false, fmt.Errorf("append survivors to %s: %w", newTable, err)
		}
		survivorCount += int64(len(survivors))
	}

	var segRefs []manifest.SegmentRef
	if survivorCount > 0 {
		if err := c.Segments.Seal(ctx, newTable); err != nil {
			_ = err // best-effort index build, as in ingest
		}
		info, err := c.Segments.Metadata(ctx, newTable)
		if err != nil {
			return nil, false, fmt.Errorf("metadata for %s: %w", newTable, err)
		}
		segRefs = append(segRefs, manifest.SegmentRef{Table: newTable, Rows: info.Rows, SizeBytes: info.SizeBytes, SHA256: info.SHA256, Kind: "compaction"})
	}

	segmentFileIndex := make(map[string]string, len(keptPaths))
	for p := range keptPaths {
		segmentFileIndex[p] = newTable
	}
	if err := tombstone.WriteSegmentFileIndex(manifest.SegmentFileIndexPath(c.StoreDir, newSnapshotID), segmentFileIndex); err != nil {
		return nil, false, fmt.Errorf("write segment file index: %w", err)
	}

	if err := testhooks.Fire(testhooks.CompactionBeforePublish); err != nil {
		return nil, false, err
	}

	// Re-check ACTIVE under the lease before publishing (spec §4.6 step 4).
	current, err := manifest.ReadActive(c.StoreDir)
	if err != nil {
		return nil, false, fmt.Errorf("re-read active snapshot: %w", err)
	}
	if current != activeID {
		return nil, true, ggrepErrors.New(ggrepErrors.KindBusy, "active snapshot changed during compaction")
	}

	m := manifest.Manifest{
		SchemaVersion:         manifest.SchemaVersion,
		ChunkRowSchemaVersion: manifest.ChunkRowSchemaVersion,
		SnapshotID:            newSnapshotID,
		ParentSnapshotID:      parent.SnapshotID,
		CreatedAt:             time.Now().UTC(),
		CanonicalRoot:         parent.CanonicalRoot,
		StoreID:               c.StoreID,
		ConfigFingerprint:     parent.ConfigFingerprint,
		IgnoreFingerprint:     parent.IgnoreFingerprint,
		LeaseEpoch:            l.Epoch(),
		Git:                   parent.Git,
		Segments:              segRefs,
		Tombstones:            nil,
		Counts: manifest.Counts{
			FilesIndexed:    int64(len(keptPaths)),
			ChunksIndexed:   survivorCount,
			TombstonesAdded: 0,
		},
	}

	if err := manifest.Publish(ctx, c.StoreDir, l, m, c.Segments); err != nil {
		if ggrepErrors.KindOf(err) == ggrepErrors.KindLeaseLost {
			return nil, false, err
		}
		return nil, true, err
	}

	// The parent's old segments and tombstone files are now unreferenced by
	// ACTIVE but may still be pinned by an in-flight reader; reclaiming them
	// is GC's job (§4.10), not compaction's.
	return &m, false, nil
}
