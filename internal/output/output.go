// Package output provides consistent CLI output formatting with colors and
// progress indicators, plus search-result rendering for the `search`
// command (spec §4.8).
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/ggrep/ggrep/internal/search"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{
		out:      out,
		useColor: false, // Default to no color for simplicity
	}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.Status(icon, msg)
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints a code block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Progress prints a progress bar with message.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}

	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)

	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", bar, pct, msg)

	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// ProgressDone completes a progress line with newline.
func (w *Writer) ProgressDone() {
	_, _ = fmt.Fprintln(w.out)
}

func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))

	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// SearchResults renders a search response as a numbered listing, one
// "N. path:start-end  [bucket] score=S" line per result followed by the
// indented snippet, then any warnings and limits hit. Results arrive already
// ranked by the engine (spec §4.8 step 9), so this prints in response order,
// without re-sorting or grouping by path.
func (w *Writer) SearchResults(resp *search.Response) {
	if resp == nil || len(resp.Results) == 0 {
		w.Status("", "no results")
		return
	}

	for i, r := range resp.Results {
		_, _ = fmt.Fprintf(w.out, "%d. %s:%d-%d  [%s] score=%.3f\n",
			i+1, r.PathKey, r.StartLine, r.EndLine, r.Bucket, r.Score)
		if r.Snippet != "" {
			for _, line := range strings.Split(r.Snippet, "\n") {
				_, _ = fmt.Fprintf(w.out, "      %s\n", line)
			}
		}
	}

	for _, warn := range resp.Warnings {
		w.Warning(warn)
	}
	for _, hit := range resp.LimitsHit {
		w.Statusf("", "limit reached: %s", hit)
	}
}

// SearchTimings prints the per-phase timings recorded for a search call,
// used by `--verbose` to explain where query latency went.
func (w *Writer) SearchTimings(t search.Timings) {
	_, _ = fmt.Fprintf(w.out, "  admission=%s snapshot=%s retrieve=%s rank=%s format=%s\n",
		t.Admission, t.SnapshotRead, t.Retrieve, t.Rank, t.Format)
}
