package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ggrep/ggrep/internal/admission"
	"github.com/ggrep/ggrep/internal/embed"
	"github.com/ggrep/ggrep/internal/manifest"
	"github.com/ggrep/ggrep/internal/segment"
	"github.com/ggrep/ggrep/internal/tombstone"
)

type fakeSegments struct {
	tables map[string][]segment.Row
}

func newFakeSegments() *fakeSegments { return &fakeSegments{tables: map[string][]segment.Row{}} }

func (f *fakeSegments) InsertBatch(ctx context.Context, table string, rows []segment.Row) error {
	f.tables[table] = append(f.tables[table], rows...)
	return nil
}
func (f *fakeSegments) AppendBatch(ctx context.Context, table string, rows []segment.Row) error {
	return f.InsertBatch(ctx, table, rows)
}
func (f *fakeSegments) ListTables(ctx context.Context) ([]string, error) {
	var out []string
	for t := range f.tables {
		out = append(out, t)
	}
	return out, nil
}
func (f *fakeSegments) DropTable(ctx context.Context, table string) error {
	delete(f.tables, table)
	return nil
}
func (f *fakeSegments) Seal(ctx context.Context, table string) error { return nil }
func (f *fakeSegments) Metadata(ctx context.Context, table string) (segment.Info, error) {
	rows := f.tables[table]
	return segment.Info{Rows: int64(len(rows)), SizeBytes: int64(len(rows)) * 16, SHA256: "stub-" + table}, nil
}

// LexicalSearch does a naive substring match, returning every row whose
// text contains query.
func (f *fakeSegments) LexicalSearch(ctx context.Context, table, query string, limit int) ([]segment.Hit, error) {
	var hits []segment.Hit
	for _, r := range f.tables[table] {
		if containsSubstring(r.Text, query) {
			hits = append(hits, segment.Hit{Row: r, Score: 1.0})
		}
	}
	return hits, nil
}
func (f *fakeSegments) VectorSearch(ctx context.Context, table string, query []float32, limit int) ([]segment.Hit, error) {
	return nil, nil
}
func (f *fakeSegments) Rows(ctx context.Context, table string) ([]segment.Row, error) {
	return f.tables[table], nil
}
func (f *fakeSegments) Close() error { return nil }

func containsSubstring(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

type zeroEmbedder struct{ dims int }

func (z zeroEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]embed.HybridVector, error) {
	out := make([]embed.HybridVector, len(texts))
	for i := range texts {
		out[i] = embed.HybridVector{Dense: make([]float32, z.dims)}
	}
	return out, nil
}
func (z zeroEmbedder) Dimensions() int       { return z.dims }
func (z zeroEmbedder) ModelID() string       { return "zero" }
func (z zeroEmbedder) ModelRevision() string { return "v1" }

func newTestEngine(storeDir string, segs *fakeSegments) *Engine {
	return &Engine{
		StoreDir: storeDir,
		StoreID:  "store-1",
		Segments: segs,
		Embedder: zeroEmbedder{dims: 4},
		Admitter: admission.NewAdmitter(admission.Limits{
			MaxConcurrentQueries: 4, MaxQueryQueue: 4, MaxConcurrentQueriesPerClient: 4,
			MaxOpenSegmentsGlobal: 8, MaxOpenSegmentsPerQuery: 8,
		}),
		Pinner: admission.NewPinner(),
	}
}

func publishOneSegment(t *testing.T, storeDir string, segs *fakeSegments, table, snapshotID string, rows []segment.Row) {
	t.Helper()
	require.NoError(t, segs.InsertBatch(context.Background(), table, rows))
	info, err := segs.Metadata(context.Background(), table)
	require.NoError(t, err)

	m := manifest.Manifest{
		SchemaVersion:         manifest.SchemaVersion,
		ChunkRowSchemaVersion: manifest.ChunkRowSchemaVersion,
		SnapshotID:            snapshotID,
		StoreID:               "store-1",
		Segments:              []manifest.SegmentRef{{Table: table, Rows: info.Rows, SizeBytes: info.SizeBytes, SHA256: info.SHA256, Kind: "ingest"}},
		Counts:                manifest.Counts{ChunksIndexed: info.Rows},
	}
	require.NoError(t, manifest.WriteManifest(storeDir, m))
	require.NoError(t, manifest.WriteActive(storeDir, snapshotID))
	require.NoError(t, tombstone.WriteSegmentFileIndex(manifest.SegmentFileIndexPath(storeDir, snapshotID), map[string]string{
		"gone.rs": table,
	}))
}

func TestSearchDeletionIsNotVisible(t *testing.T) {
	storeDir := t.TempDir()
	segs := newFakeSegments()

	publishOneSegment(t, storeDir, segs, "seg_a_0", "snap-a", []segment.Row{
		{RowID: "r1", PathKey: "gone.rs", Text: "pub fn gone() {}", ChunkType: "function", StartLine: 1, EndLine: 1},
	})

	// A second publish tombstones gone.rs and carries no live reference in
	// the new snapshot's segment file index.
	tsPath := storeDir + "/snapshots/snap-b/tombstones-0.jsonl"
	w, err := tombstone.NewWriter(tsPath)
	require.NoError(t, err)
	require.NoError(t, w.Add("gone.rs"))
	tsRef, err := w.Close()
	require.NoError(t, err)

	m := manifest.Manifest{
		SchemaVersion:         manifest.SchemaVersion,
		ChunkRowSchemaVersion: manifest.ChunkRowSchemaVersion,
		SnapshotID:            "snap-b",
		ParentSnapshotID:      "snap-a",
		StoreID:               "store-1",
		Segments:              []manifest.SegmentRef{{Table: "seg_a_0", Rows: 1, SizeBytes: 16, SHA256: "stub-seg_a_0", Kind: "ingest"}},
		Tombstones:            []manifest.TombstoneRef{tsRef},
		Counts:                manifest.Counts{ChunksIndexed: 1, TombstonesAdded: tsRef.Count},
	}
	require.NoError(t, manifest.WriteManifest(storeDir, m))
	require.NoError(t, manifest.WriteActive(storeDir, "snap-b"))
	require.NoError(t, tombstone.WriteSegmentFileIndex(manifest.SegmentFileIndexPath(storeDir, "snap-b"), map[string]string{}))

	e := newTestEngine(storeDir, segs)
	resp, err := e.Search(context.Background(), Request{StoreID: "store-1", Query: "gone", Limit: 5, Mode: ModeBalanced})
	require.NoError(t, err)
	require.Empty(t, resp.Results)
}

func TestSearchReturnsVisibleHit(t *testing.T) {
	storeDir := t.TempDir()
	segs := newFakeSegments()
	publishOneSegment(t, storeDir, segs, "seg_a_0", "snap-a", []segment.Row{
		{RowID: "r1", PathKey: "keep.rs", Text: "pub fn keep() {}", ChunkType: "function", StartLine: 1, EndLine: 1},
	})

	e := newTestEngine(storeDir, segs)
	resp, err := e.Search(context.Background(), Request{StoreID: "store-1", Query: "keep", Limit: 5, Mode: ModeBalanced})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "keep.rs", resp.Results[0].PathKey)
}

func TestBucketQuotasSumToLimit(t *testing.T) {
	cfg := DefaultRankingConfig()
	for _, limit := range []int{1, 2, 3, 10, 11} {
		quotas := BucketQuotas(cfg, ModeBalanced, limit)
		sum := quotas[BucketCode] + quotas[BucketDocs] + quotas[BucketGraph]
		require.Equal(t, limit, sum, "limit=%d", limit)
	}
}
