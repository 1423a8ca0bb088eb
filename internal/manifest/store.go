package manifest

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/natefinch/atomic"

	ggrepErrors "github.com/ggrep/ggrep/internal/errors"
	"github.com/ggrep/ggrep/internal/lease"
	"github.com/ggrep/ggrep/internal/segment"
	"github.com/ggrep/ggrep/internal/testhooks"
)

func snapshotsDir(storeDir string) string        { return filepath.Join(storeDir, "snapshots") }
func snapshotDir(storeDir, id string) string     { return filepath.Join(snapshotsDir(storeDir), id) }
func manifestPath(storeDir, id string) string    { return filepath.Join(snapshotDir(storeDir, id), "manifest.json") }
func activePointerPath(storeDir string) string   { return filepath.Join(storeDir, "ACTIVE_SNAPSHOT") }
func segmentFileIndexPath(storeDir, id string) string {
	return filepath.Join(snapshotDir(storeDir, id), "segment_file_index.jsonl")
}

// writeAtomic writes data to path using rename+fsync (spec §4.3), then
// fsyncs the parent directory so the rename itself is durable.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("atomic write %s: %w", path, err)
	}
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("open parent dir of %s: %w", path, err)
	}
	defer dir.Close()
	return dir.Sync()
}

// WriteManifest serializes m and atomically publishes it to
// snapshots/<id>/manifest.json.
func WriteManifest(storeDir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeAtomic(manifestPath(storeDir, m.SnapshotID), data); err != nil {
		return err
	}
	return testhooks.Fire(testhooks.PublishAfterManifest)
}

// ReadManifest loads snapshots/<id>/manifest.json.
func ReadManifest(storeDir, id string) (*Manifest, error) {
	data, err := os.ReadFile(manifestPath(storeDir, id))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", id, err)
	}
	return &m, nil
}

// ReadActive reads the ACTIVE_SNAPSHOT pointer, returning the snapshot id.
func ReadActive(storeDir string) (string, error) {
	data, err := os.ReadFile(activePointerPath(storeDir))
	if err != nil {
		return "", err
	}
	id := string(bytes.TrimSpace(data))
	if id == "" {
		return "", fmt.Errorf("ACTIVE_SNAPSHOT is empty")
	}
	return id, nil
}

// WriteActive atomically swaps the ACTIVE pointer to id.
func WriteActive(storeDir, id string) error {
	return writeAtomic(activePointerPath(storeDir), []byte(id+"\n"))
}

// ListSnapshots returns every snapshot id under storeDir, newest first.
func ListSnapshots(storeDir string) ([]string, error) {
	entries, err := os.ReadDir(snapshotsDir(storeDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type idAt struct {
		id string
		at int64
	}
	var all []idAt
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := ReadManifest(storeDir, e.Name())
		if err != nil {
			continue // unreadable manifest: skip, handled by OpenSnapshotView's fallback scan
		}
		all = append(all, idAt{id: e.Name(), at: m.CreatedAt.UnixNano()})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at > all[j].at })

	ids := make([]string, len(all))
	for i, e := range all {
		ids[i] = e.id
	}
	return ids, nil
}

// VerifyManifest checks m against on-disk artifacts per spec §4.3:
// schema versions, store id / fingerprints, counts, and every
// segment/tombstone's recorded (rows|count, size_bytes, sha256).
func VerifyManifest(ctx context.Context, storeDir string, m *Manifest, storeID, configFP, ignoreFP string, segments segment.Store) error {
	if m.SchemaVersion != SchemaVersion || m.ChunkRowSchemaVersion != ChunkRowSchemaVersion {
		return ggrepErrors.New(ggrepErrors.KindStoreCorrupt, "manifest schema version mismatch")
	}
	if m.StoreID != storeID {
		return ggrepErrors.New(ggrepErrors.KindStoreCorrupt, "manifest store_id mismatch")
	}
	if m.ConfigFingerprint != configFP || m.IgnoreFingerprint != ignoreFP {
		return ggrepErrors.New(ggrepErrors.KindStoreCorrupt, "manifest fingerprint mismatch")
	}

	var chunkRows, tombstoneCount int64
	for _, seg := range m.Segments {
		info, err := segments.Metadata(ctx, seg.Table)
		if err != nil {
			return ggrepErrors.Wrap(ggrepErrors.KindStoreCorrupt, "segment metadata unavailable: "+seg.Table, err)
		}
		if info.Rows != seg.Rows || info.SizeBytes != seg.SizeBytes || info.SHA256 != seg.SHA256 {
			return ggrepErrors.New(ggrepErrors.KindStoreCorrupt, "segment metadata mismatch: "+seg.Table)
		}
		chunkRows += seg.Rows
	}
	for _, ts := range m.Tombstones {
		count, size, sum, err := hashTombstoneFile(ts.Path)
		if err != nil {
			return ggrepErrors.Wrap(ggrepErrors.KindStoreCorrupt, "tombstone file unavailable: "+ts.Path, err)
		}
		if count != ts.Count || size != ts.SizeBytes || sum != ts.SHA256 {
			return ggrepErrors.New(ggrepErrors.KindStoreCorrupt, "tombstone metadata mismatch: "+ts.Path)
		}
		tombstoneCount += ts.Count
	}

	if m.Counts.ChunksIndexed != chunkRows || m.Counts.TombstonesAdded != tombstoneCount {
		return ggrepErrors.New(ggrepErrors.KindStoreCorrupt, "manifest counts do not match segment/tombstone totals")
	}
	return nil
}

// hashTombstoneFile computes (line count, size, sha256) of a tombstone
// JSONL file, matching the accounting recorded in manifest.tombstones[].
func hashTombstoneFile(path string) (count, size int64, sum string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		count++
		size += int64(len(line)) + 1
		h.Write(line)
		h.Write([]byte("\n"))
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, "", err
	}
	return count, size, hex.EncodeToString(h.Sum(nil)), nil
}

// OpenSnapshotView implements open_snapshot_view (spec §4.3): read
// ACTIVE, load its manifest, verify it; on failure, scan every snapshot
// newest-first and return the first that verifies. Fails with
// store_corrupt if none verifies.
func OpenSnapshotView(ctx context.Context, storeDir, storeID, configFP, ignoreFP string, segments segment.Store) (*Manifest, error) {
	if id, err := ReadActive(storeDir); err == nil {
		if m, merr := ReadManifest(storeDir, id); merr == nil {
			if VerifyManifest(ctx, storeDir, m, storeID, configFP, ignoreFP, segments) == nil {
				return m, nil
			}
		}
	}

	ids, err := ListSnapshots(storeDir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	for _, id := range ids {
		m, err := ReadManifest(storeDir, id)
		if err != nil {
			continue
		}
		if VerifyManifest(ctx, storeDir, m, storeID, configFP, ignoreFP, segments) == nil {
			return m, nil
		}
	}
	return nil, ggrepErrors.New(ggrepErrors.KindStoreCorrupt, "no snapshot verifies")
}

// Publish implements the publish order of spec §4.3, called under the
// writer lease: preflight the lease, verify the manifest, fsync the
// snapshot directory, write manifest.json, then swap ACTIVE.
func Publish(ctx context.Context, storeDir string, l *lease.Lease, m Manifest, segments segment.Store) error {
	if err := l.Verify(); err != nil {
		return err
	}
	if err := VerifyManifest(ctx, storeDir, &m, m.StoreID, m.ConfigFingerprint, m.IgnoreFingerprint, segments); err != nil {
		return err
	}

	dir, err := os.Open(snapshotDir(storeDir, m.SnapshotID))
	if err != nil {
		return fmt.Errorf("open snapshot dir: %w", err)
	}
	syncErr := dir.Sync()
	dir.Close()
	if syncErr != nil {
		return fmt.Errorf("fsync snapshot dir: %w", syncErr)
	}

	if err := WriteManifest(storeDir, m); err != nil {
		return err
	}

	if err := l.Verify(); err != nil {
		return err
	}
	if err := testhooks.Fire(testhooks.PublishBeforePointerSwap); err != nil {
		return err
	}
	return WriteActive(storeDir, m.SnapshotID)
}

// SegmentFileIndexPath is exported for internal/tombstone, which owns the
// jsonl format written under the snapshot directory (spec §4.5).
func SegmentFileIndexPath(storeDir, id string) string { return segmentFileIndexPath(storeDir, id) }
