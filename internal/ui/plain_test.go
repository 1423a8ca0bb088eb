package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlainRenderer_UpdateProgress_OutputFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{
		Phase:       PhaseScanning,
		Current:     50,
		Total:       100,
		CurrentFile: "src/main.go",
	})

	output := buf.String()
	assert.Contains(t, output, "[SCAN]")
	assert.Contains(t, output, "50/100")
	assert.Contains(t, output, "src/main.go")
}

func TestPlainRenderer_UpdateProgress_NoANSICodes(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	phases := []Phase{PhaseScanning, PhaseChunking, PhaseEmbedding, PhaseIndexing, PhaseComplete}
	for _, phase := range phases {
		r.UpdateProgress(ProgressEvent{
			Phase:   phase,
			Current: 50,
			Total:   100,
			Message: "Processing...",
		})
	}

	output := buf.String()
	assert.NotContains(t, output, "\x1b[", "should not contain ANSI escape codes")
	assert.NotContains(t, output, "\033[", "should not contain ANSI escape codes")
}

func TestPlainRenderer_UpdateProgress_WithMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{
		Phase:   PhaseEmbedding,
		Current: 100,
		Total:   200,
		Message: "Generating embeddings...",
	})

	output := buf.String()
	assert.Contains(t, output, "[EMBED]")
	assert.Contains(t, output, "Generating embeddings...")
}

func TestPlainRenderer_UpdateProgress_ZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{Phase: PhaseIndexing, Message: "finalizing"})

	output := buf.String()
	assert.Contains(t, output, "[INDEX]")
	assert.Contains(t, output, "finalizing")
}

func TestPlainRenderer_AddError_FormatsWithFile(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.AddError(ErrorEvent{File: "broken.go", Err: errors.New("parse failure")})

	output := buf.String()
	assert.Contains(t, output, "ERROR: broken.go: parse failure")
}

func TestPlainRenderer_AddError_Warning(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.AddError(ErrorEvent{File: "dup.go", Err: errors.New("duplicate anchor"), IsWarn: true})

	output := buf.String()
	assert.Contains(t, output, "WARN: dup.go: duplicate anchor")
}

func TestPlainRenderer_Complete_PrintsSummary(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(StoreStats{
		Files:        10,
		Chunks:       200,
		Duration:     2 * time.Second,
		SnapshotID:   "snap-1",
		SegmentsKept: 3,
	})

	output := buf.String()
	assert.Contains(t, output, "10 files, 200 chunks")
	assert.Contains(t, output, "snap-1")
	assert.Contains(t, output, "3 segments kept")
}

func TestPlainRenderer_Complete_WithErrorsAndWarnings(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(StoreStats{Files: 1, Chunks: 1, Errors: 2, Warnings: 1})

	output := buf.String()
	assert.Contains(t, output, "2 errors, 1 warnings")
}

func TestPlainRenderer_StartAndStop_NoOp(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	assert.NoError(t, r.Start(nil))
	assert.NoError(t, r.Stop())
}
