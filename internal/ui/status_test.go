package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusInfo_Zero(t *testing.T) {
	info := StatusInfo{}

	assert.Empty(t, info.StoreID)
	assert.Equal(t, 0, info.TotalFiles)
	assert.Equal(t, 0, info.TotalChunks)
	assert.True(t, info.LastSynced.IsZero())
}

func TestStatusInfo_JSONSerialization(t *testing.T) {
	info := StatusInfo{
		StoreID:          "abc123",
		ActiveSnapshotID: "snap-9",
		TotalFiles:       100,
		TotalChunks:      500,
		LastSynced:       time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
		MetadataSize:     1024 * 1024,
		LexicalSize:      2 * 1024 * 1024,
		VectorSize:       10 * 1024 * 1024,
		TotalSize:        13 * 1024 * 1024,
		LeaseHeld:        true,
		DaemonStatus:     "running",
	}

	data, err := json.Marshal(info)
	require.NoError(t, err)

	var parsed map[string]any
	err = json.Unmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Equal(t, "abc123", parsed["store_id"])
	assert.Equal(t, float64(100), parsed["total_files"])
	assert.Equal(t, float64(500), parsed["total_chunks"])
	assert.Equal(t, "running", parsed["daemon_status"])
	assert.Equal(t, true, parsed["lease_held"])
}

func TestStatusRenderer_Render_Basic(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	info := StatusInfo{
		StoreID:          "my-store",
		ActiveSnapshotID: "snap-1",
		TotalFiles:       50,
		TotalChunks:      250,
		LastSynced:       time.Now(),
		MetadataSize:     512 * 1024,
		LexicalSize:      1024 * 1024,
		VectorSize:       5 * 1024 * 1024,
		TotalSize:        6*1024*1024 + 512*1024,
		LeaseHeld:        true,
		DaemonStatus:     "running",
	}

	err := r.Render(info)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "my-store")
	assert.Contains(t, output, "50")
	assert.Contains(t, output, "250")
	assert.Contains(t, output, "snap-1")
	assert.Contains(t, output, "held")
	assert.Contains(t, output, "running")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	info := StatusInfo{StoreID: "json-store", TotalFiles: 25, TotalChunks: 100}

	err := r.RenderJSON(info)
	require.NoError(t, err)

	var parsed StatusInfo
	err = json.Unmarshal(buf.Bytes(), &parsed)
	require.NoError(t, err)
	assert.Equal(t, "json-store", parsed.StoreID)
	assert.Equal(t, 25, parsed.TotalFiles)
}

func TestStatusRenderer_NoColor(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	info := StatusInfo{StoreID: "nocolor-store", DaemonStatus: "running"}

	err := r.Render(info)
	require.NoError(t, err)

	output := buf.String()
	assert.NotContains(t, output, "\x1b[")
	assert.NotContains(t, output, "\033[")
}

func TestStatusRenderer_DegradedAndCasefoldWarnings(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	info := StatusInfo{
		StoreID:          "degraded-store",
		Degraded:         true,
		CasefoldWarnings: 3,
	}

	err := r.Render(info)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "degraded")
	assert.Contains(t, output, "3 warnings")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{1024 * 1024 * 1024, "1.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatBytes(tt.bytes)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestStatusRenderer_StorageSizes(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	info := StatusInfo{
		StoreID:      "storage-store",
		MetadataSize: 512 * 1024,
		LexicalSize:  2 * 1024 * 1024,
		VectorSize:   10 * 1024 * 1024,
		TotalSize:    12*1024*1024 + 512*1024,
	}

	err := r.Render(info)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "KB")
	assert.Contains(t, output, "MB")
}
