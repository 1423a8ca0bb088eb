package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetadataStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, err := Open(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	_, ok, err := m.GetState(ctx, "last_sync_snapshot_id")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.SetState(ctx, "last_sync_snapshot_id", "snap-1"))
	value, ok, err := m.GetState(ctx, "last_sync_snapshot_id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "snap-1", value)

	require.NoError(t, m.SetState(ctx, "last_sync_snapshot_id", "snap-2"))
	value, ok, err = m.GetState(ctx, "last_sync_snapshot_id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "snap-2", value)
}

func TestMetadataLastRunEmptyHistory(t *testing.T) {
	m, err := Open(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	rec, err := m.LastRun(context.Background(), RunSync)
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestMetadataRecordRunReturnsMostRecentPerKind(t *testing.T) {
	ctx := context.Background()
	m, err := Open(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	start := time.Now().Add(-time.Hour)
	require.NoError(t, m.RecordRun(ctx, RunRecord{
		Kind: RunSync, StartedAt: start, FinishedAt: start.Add(time.Second),
		DurationMs: 1000, Succeeded: true,
	}))
	require.NoError(t, m.RecordRun(ctx, RunRecord{
		Kind: RunCompaction, StartedAt: start, FinishedAt: start.Add(2 * time.Second),
		DurationMs: 2000, Succeeded: true,
	}))

	latest := start.Add(time.Minute)
	require.NoError(t, m.RecordRun(ctx, RunRecord{
		Kind: RunSync, StartedAt: latest, FinishedAt: latest.Add(500 * time.Millisecond),
		DurationMs: 500, Succeeded: false, Detail: "ingest error: boom",
	}))

	rec, err := m.LastRun(ctx, RunSync)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.False(t, rec.Succeeded)
	require.Equal(t, "ingest error: boom", rec.Detail)
	require.Equal(t, int64(500), rec.DurationMs)

	compaction, err := m.LastRun(ctx, RunCompaction)
	require.NoError(t, err)
	require.NotNil(t, compaction)
	require.Equal(t, int64(2000), compaction.DurationMs)

	gcRec, err := m.LastRun(ctx, RunGC)
	require.NoError(t, err)
	require.Nil(t, gcRec)
}
