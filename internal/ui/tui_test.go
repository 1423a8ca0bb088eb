package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTUIRenderer_ReturnsNilForNonTTY(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := NewConfig(buf)

	r, err := NewTUIRenderer(cfg)

	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestSyncModel_InitialView(t *testing.T) {
	model := newSyncModel("")

	view := model.View()

	assert.Contains(t, view, "idle")
}

func TestSyncModel_ProgressDisplay(t *testing.T) {
	model := newSyncModel("")
	model.phase = PhaseScanning
	model.current = 50
	model.total = 100

	view := model.View()

	assert.Contains(t, view, "50")
	assert.Contains(t, view, "100")
}

func TestSyncModel_FileDisplay(t *testing.T) {
	model := newSyncModel("")
	model.phase = PhaseScanning
	model.currentFile = "src/components/Button.tsx"

	view := model.View()

	assert.Contains(t, view, "Button.tsx")
}

func TestSyncModel_ErrorDisplay(t *testing.T) {
	model := newSyncModel("")
	model.errorCount = 1
	model.warnCount = 1

	view := model.View()

	assert.Contains(t, view, "1 errors")
	assert.Contains(t, view, "1 warnings")
}

func TestSyncModel_CompletionState(t *testing.T) {
	model := newSyncModel("")
	model.complete = true
	model.stats = StoreStats{Files: 100, Chunks: 500}

	view := model.View()

	assert.Contains(t, view, "Complete")
}

func TestTruncateFilePath_Short(t *testing.T) {
	path := "src/main.go"

	result := truncateFilePath(path, 50)

	assert.Equal(t, path, result)
}

func TestTruncateFilePath_Long(t *testing.T) {
	path := "src/components/very/deeply/nested/directory/file.go"

	result := truncateFilePath(path, 30)

	assert.LessOrEqual(t, len(result), 30)
	assert.Contains(t, result, "...")
	assert.Contains(t, result, "file.go")
}

func TestTruncateFilePath_Empty(t *testing.T) {
	result := truncateFilePath("", 50)

	assert.Equal(t, "", result)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m 30s"},
		{120 * time.Second, "2m"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.d))
		})
	}
}

func TestTUIRenderer_InterfaceCompliance(t *testing.T) {
	var _ Renderer = (*TUIRenderer)(nil)
}
