// Package gc implements snapshot garbage collection (spec §4.10, C8):
// retention-policy enumeration, dry-run reporting, and reclamation of
// unreferenced snapshot directories and segment tables.
package gc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/ggrep/ggrep/internal/lease"
	"github.com/ggrep/ggrep/internal/manifest"
	"github.com/ggrep/ggrep/internal/segment"
	"github.com/ggrep/ggrep/internal/testhooks"
)

// Policy carries the retention knobs of spec §4.10.
type Policy struct {
	RetainMin        int
	RetainMinAge     time.Duration
	SafetyWindow     time.Duration
}

// snapshotInfo is one on-disk snapshot plus its parsed manifest.
type snapshotInfo struct {
	id string
	m  *manifest.Manifest
}

// Collector runs GC for one store.
type Collector struct {
	StoreDir string
	Segments segment.Store
	LeaseTTL time.Duration
}

// Report is the outcome of one GC pass, populated in both dry-run and live
// modes so callers can print the same summary either way.
type Report struct {
	DryRun             bool
	Kept               []string
	Deleted            []string
	DeletedSegments    []string
	DeletedTombstones  []string
	Duration           time.Duration
}

func readersLockPath(storeDir string) string { return filepath.Join(storeDir, "locks", "readers.lock") }

// Run implements spec §4.10's procedure under the writer lease and an
// exclusive reader lock. pinned is the live snapshot pin set from
// internal/admission.Pinner.Snapshot().
func (c *Collector) Run(ctx context.Context, policy Policy, pinned map[string]bool, dryRun bool) (*Report, error) {
	start := time.Now()

	l, err := lease.Acquire(ctx, c.StoreDir, c.LeaseTTL)
	if err != nil {
		return nil, err
	}
	defer l.Release()

	readers := flock.New(readersLockPath(c.StoreDir))
	if err := readers.Lock(); err != nil {
		return nil, fmt.Errorf("acquire exclusive reader lock: %w", err)
	}
	defer readers.Unlock()

	ids, err := manifest.ListSnapshots(c.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	activeID, err := manifest.ReadActive(c.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("read active snapshot: %w", err)
	}

	var all []snapshotInfo
	for _, id := range ids {
		m, err := manifest.ReadManifest(c.StoreDir, id)
		if err != nil {
			continue // unreadable snapshot; neither keep nor delete it here
		}
		all = append(all, snapshotInfo{id: id, m: m})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].m.CreatedAt.After(all[j].m.CreatedAt) })

	keep := computeKeepSet(all, activeID, pinned, policy)

	keptSegments := map[string]bool{}
	keptTombstones := map[string]bool{}
	for _, s := range all {
		if !keep[s.id] {
			continue
		}
		for _, seg := range s.m.Segments {
			keptSegments[seg.Table] = true
		}
		for _, ts := range s.m.Tombstones {
			keptTombstones[ts.Path] = true
		}
	}

	report := &Report{DryRun: dryRun, Duration: 0}
	for id := range keep {
		report.Kept = append(report.Kept, id)
	}
	sort.Strings(report.Kept)

	for _, s := range all {
		if keep[s.id] {
			continue
		}
		report.Deleted = append(report.Deleted, s.id)
		for _, seg := range s.m.Segments {
			if !keptSegments[seg.Table] {
				report.DeletedSegments = append(report.DeletedSegments, seg.Table)
			}
		}
		for _, ts := range s.m.Tombstones {
			if !keptTombstones[ts.Path] {
				report.DeletedTombstones = append(report.DeletedTombstones, ts.Path)
			}
		}
	}
	sort.Strings(report.Deleted)
	report.DeletedSegments = dedupe(report.DeletedSegments)
	report.DeletedTombstones = dedupe(report.DeletedTombstones)

	if dryRun {
		report.Duration = time.Since(start)
		return report, nil
	}

	if err := testhooks.Fire(testhooks.GCBeforeDelete); err != nil {
		return nil, err
	}

	for _, table := range report.DeletedSegments {
		if err := c.Segments.DropTable(ctx, table); err != nil {
			return nil, fmt.Errorf("drop segment %s: %w", table, err)
		}
	}
	for _, id := range report.Deleted {
		if err := os.RemoveAll(filepath.Join(c.StoreDir, "snapshots", id)); err != nil {
			return nil, fmt.Errorf("remove snapshot dir %s: %w", id, err)
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}

// computeKeepSet implements spec §4.10 step 2: keep = {ACTIVE} ∪ pinned ∪
// youngest retain_min ∪ within retain_min_age ∪ within safety_window.
func computeKeepSet(all []snapshotInfo, activeID string, pinned map[string]bool, policy Policy) map[string]bool {
	keep := map[string]bool{activeID: true}
	for id := range pinned {
		keep[id] = true
	}

	now := time.Now()
	for i, s := range all {
		if i < policy.RetainMin {
			keep[s.id] = true
		}
		if policy.RetainMinAge > 0 && now.Sub(s.m.CreatedAt) <= policy.RetainMinAge {
			keep[s.id] = true
		}
		if policy.SafetyWindow > 0 && now.Sub(s.m.CreatedAt) <= policy.SafetyWindow {
			keep[s.id] = true
		}
	}
	return keep
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
