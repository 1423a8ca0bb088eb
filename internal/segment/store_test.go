package segment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRows() []Row {
	return []Row{
		{RowID: "r1", PathKey: "a.go", PathKeyCI: "a.go", Ordinal: 1, Kind: "chunk",
			Text: "func Alpha() int { return 1 }", ChunkType: "function",
			Embedding: []float32{1, 0, 0}},
		{RowID: "r2", PathKey: "b.go", PathKeyCI: "b.go", Ordinal: 1, Kind: "chunk",
			Text: "func Beta() int { return 2 }", ChunkType: "function",
			Embedding: []float32{0, 1, 0}},
	}
}

func TestInsertAndListTables(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.InsertBatch(ctx, "seg_1_0", sampleRows()))

	tables, err := store.ListTables(ctx)
	require.NoError(t, err)
	assert.Contains(t, tables, "seg_1_0")

	rows, err := store.Rows(ctx, "seg_1_0")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestMetadataIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.InsertBatch(ctx, "seg_1_0", sampleRows()))

	info1, err := store.Metadata(ctx, "seg_1_0")
	require.NoError(t, err)
	info2, err := store.Metadata(ctx, "seg_1_0")
	require.NoError(t, err)
	assert.Equal(t, info1, info2)
	assert.EqualValues(t, 2, info1.Rows)
}

func TestSealEnablesLexicalSearch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.InsertBatch(ctx, "seg_1_0", sampleRows()))
	require.NoError(t, store.Seal(ctx, "seg_1_0"))

	hits, err := store.LexicalSearch(ctx, "seg_1_0", "Alpha", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "r1", hits[0].Row.RowID)
}

func TestDropTableRemovesArtifacts(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.InsertBatch(ctx, "seg_1_0", sampleRows()))
	require.NoError(t, store.DropTable(ctx, "seg_1_0"))

	tables, err := store.ListTables(ctx)
	require.NoError(t, err)
	assert.NotContains(t, tables, "seg_1_0")
}
