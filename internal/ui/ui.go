// Package ui provides terminal UI components for the `ggrep status`
// command's live view of daemon state: sync/compaction/GC progress and
// per-store health.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Phase represents a stage of the daemon's background pipeline (spec
// §4.4 sync, §4.6 compaction, §4.10 GC).
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseScanning
	PhaseChunking
	PhaseEmbedding
	PhaseIndexing
	PhaseCompacting
	PhaseCollecting
	PhaseComplete
)

// String returns the human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseScanning:
		return "Scanning"
	case PhaseChunking:
		return "Chunking"
	case PhaseEmbedding:
		return "Embedding"
	case PhaseIndexing:
		return "Indexing"
	case PhaseCompacting:
		return "Compacting"
	case PhaseCollecting:
		return "Collecting"
	case PhaseComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short phase icon for plain text output.
func (p Phase) Icon() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseScanning:
		return "SCAN"
	case PhaseChunking:
		return "CHUNK"
	case PhaseEmbedding:
		return "EMBED"
	case PhaseIndexing:
		return "INDEX"
	case PhaseCompacting:
		return "COMPACT"
	case PhaseCollecting:
		return "GC"
	case PhaseComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a progress update pushed from the daemon's
// sync/compaction/GC loops (spec §4.12) to a CLI renderer.
type ProgressEvent struct {
	Phase       Phase
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent represents a warning or error surfaced during a pipeline run.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StoreStats carries the final counters for a completed sync/compaction/GC
// run (spec §3 manifest Counts, §4.10 gc.Report), rendered as a summary.
type StoreStats struct {
	Files        int
	Chunks       int
	Duration     time.Duration
	Errors       int
	Warnings     int
	SnapshotID   string
	SegmentsKept int
	Reclaimed    int64
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats StoreStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	StoreID    string // store id to display in header
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithStoreID sets the store id to display in the header.
func WithStoreID(id string) ConfigOption {
	return func(c *Config) { c.StoreID = id }
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer creates an appropriate renderer based on config and
// environment. It returns a TUI renderer for interactive terminals, and a
// plain text renderer for CI environments, pipes, or when Config.ForcePlain
// is set.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}
	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}
	if DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
