package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes a store's health for `ggrep status` (spec §4.11
// "health" response plus local storage accounting).
type StatusInfo struct {
	StoreID          string    `json:"store_id"`
	ActiveSnapshotID string    `json:"active_snapshot_id"`
	LastSynced       time.Time `json:"last_synced"`

	TotalFiles int `json:"total_files"`
	TotalChunks int `json:"total_chunks"`

	MetadataSize int64 `json:"metadata_size"`
	LexicalSize  int64 `json:"lexical_size"`
	VectorSize   int64 `json:"vector_size"`
	TotalSize    int64 `json:"total_size"`

	LeaseHeld        bool `json:"lease_held"`
	Degraded         bool `json:"degraded"`
	CasefoldWarnings int  `json:"casefold_warnings"`

	DaemonStatus string `json:"daemon_status"` // "running", "stopped", "n/a"
}

// StatusRenderer displays store status.
type StatusRenderer struct {
	out     io.Writer
	styles  Styles
	noColor bool
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:     out,
		styles:  GetStyles(noColor),
		noColor: noColor,
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Store Status: "+info.StoreID))

	_, _ = fmt.Fprintf(r.out, "  Files:        %d\n", info.TotalFiles)
	_, _ = fmt.Fprintf(r.out, "  Chunks:       %d\n", info.TotalChunks)
	if !info.LastSynced.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last synced:  %s\n", formatTime(info.LastSynced))
	}
	if info.ActiveSnapshotID != "" {
		_, _ = fmt.Fprintf(r.out, "  Snapshot:     %s\n", info.ActiveSnapshotID)
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Metadata: %s\n", FormatBytes(info.MetadataSize))
	_, _ = fmt.Fprintf(r.out, "    Lexical:  %s\n", FormatBytes(info.LexicalSize))
	_, _ = fmt.Fprintf(r.out, "    Vectors:  %s\n", FormatBytes(info.VectorSize))
	_, _ = fmt.Fprintf(r.out, "    Total:    %s\n", FormatBytes(info.TotalSize))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintf(r.out, "  Writer lease: %s\n", r.renderBool(info.LeaseHeld, "held", "free"))
	if info.Degraded {
		_, _ = fmt.Fprintf(r.out, "  Index:        %s\n", r.styles.Warning.Render("degraded"))
	}
	if info.CasefoldWarnings > 0 {
		_, _ = fmt.Fprintf(r.out, "  Casefold:     %s\n", r.styles.Warning.Render(fmt.Sprintf("%d warnings", info.CasefoldWarnings)))
	}

	if info.DaemonStatus != "" && info.DaemonStatus != "n/a" {
		_, _ = fmt.Fprintf(r.out, "  Daemon:       %s\n", r.renderStatus(info.DaemonStatus))
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderBool(v bool, yes, no string) string {
	if v {
		return r.styles.Success.Render(yes)
	}
	return r.styles.Dim.Render(no)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready", "running":
		return r.styles.Success.Render(status)
	case "offline", "stopped":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
