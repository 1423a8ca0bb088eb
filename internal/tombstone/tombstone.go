// Package tombstone implements the tombstone files and segment-file-index
// that together make deletions and renames visible without rewriting old
// segments (spec §4.5, §3 "Tombstone file", "Segment-file-index").
package tombstone

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/natefinch/atomic"

	"github.com/ggrep/ggrep/internal/manifest"
)

// entry is one line of a tombstone jsonl file.
type entry struct {
	PathKey string `json:"path_key"`
}

// Writer accumulates path keys for one ingest transaction and flushes them
// to an append-only jsonl file under the new snapshot directory.
type Writer struct {
	path  string
	f     *os.File
	w     *bufio.Writer
	count int64
	size  int64
}

// NewWriter opens (creating) the tombstone file at path for appending.
// Per spec §3 tombstone files are append-only JSON-lines; for a brand new
// snapshot the file starts empty.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create tombstone dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tombstone file: %w", err)
	}
	return &Writer{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Add appends one tombstoned path key.
func (w *Writer) Add(pathKey string) error {
	data, err := json.Marshal(entry{PathKey: pathKey})
	if err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}
	w.count++
	w.size += int64(len(data)) + 1
	return nil
}

// Count reports how many entries have been written so far.
func (w *Writer) Count() int64 { return w.count }

// Close flushes, fsyncs, and closes the tombstone file, then returns a
// manifest.TombstoneRef describing it (rehashed from the flushed bytes, to
// match exactly what VerifyManifest will recompute).
func (w *Writer) Close() (manifest.TombstoneRef, error) {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return manifest.TombstoneRef{}, err
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return manifest.TombstoneRef{}, err
	}
	if err := w.f.Close(); err != nil {
		return manifest.TombstoneRef{}, err
	}

	count, size, sum, err := HashFile(w.path)
	if err != nil {
		return manifest.TombstoneRef{}, err
	}
	if count != w.count || size != w.size {
		return manifest.TombstoneRef{}, fmt.Errorf("tombstone writer accounting mismatch for %s", w.path)
	}
	return manifest.TombstoneRef{Path: w.path, Count: count, SizeBytes: size, SHA256: sum}, nil
}

// HashFile recomputes (count, size, sha256) of a tombstone jsonl file; it
// is the same algorithm VerifyManifest uses so a freshly-written file and
// its manifest.TombstoneRef always agree.
func HashFile(path string) (count, size int64, sum string, err error) {
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

// ReadPathKeys reads every tombstoned path_key out of one tombstone file.
func ReadPathKeys(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decode tombstone line: %w", err)
		}
		out = append(out, e.PathKey)
	}
	return out, scanner.Err()
}

// LoadAll returns the union of every path_key tombstoned by any of the
// manifest's referenced tombstone files (spec §4.6 step 1).
func LoadAll(m *manifest.Manifest) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, ts := range m.Tombstones {
		keys, err := ReadPathKeys(ts.Path)
		if err != nil {
			return nil, fmt.Errorf("read tombstone file %s: %w", ts.Path, err)
		}
		for _, k := range keys {
			out[k] = true
		}
	}
	return out, nil
}

// sfiEntry is one line of segment_file_index.jsonl.
type sfiEntry struct {
	PathKey string `json:"path_key"`
	Segment string `json:"segment_id"`
}

// WriteSegmentFileIndex writes the path_key -> segment_table mapping for
// one snapshot, using the same rename+fsync discipline as manifest writes
// (spec §4.5).
func WriteSegmentFileIndex(path string, index map[string]string) error {
	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	for _, k := range keys {
		line, err := json.Marshal(sfiEntry{PathKey: k, Segment: index[k]})
		if err != nil {
			return err
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("atomic write segment file index: %w", err)
	}
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}

// ReadSegmentFileIndex loads path_key -> segment_table from a
// segment_file_index.jsonl file.
func ReadSegmentFileIndex(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e sfiEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decode segment_file_index line: %w", err)
		}
		out[e.PathKey] = e.Segment
	}
	return out, scanner.Err()
}

// Visible implements spec §4.5's visibility rule:
//
//	visible(row) := !tombstoned(row.path_key)
//	             OR (segment_file_index[row.path_key] == row.segment_table)
func Visible(pathKey, segmentTable string, tombstoned map[string]bool, index map[string]string) bool {
	if !tombstoned[pathKey] {
		return true
	}
	return index[pathKey] == segmentTable
}
