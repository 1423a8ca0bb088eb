package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ggrep/ggrep/internal/lease"
	"github.com/ggrep/ggrep/internal/manifest"
	"github.com/ggrep/ggrep/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the store's active snapshot and storage footprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit machine-readable JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, asJSON bool) error {
	app, err := bootstrap(rootFlag(cmd), 0)
	if err != nil {
		return err
	}
	defer app.Meta.Close()

	info := ui.StatusInfo{StoreID: app.StoreID}

	m, err := manifest.OpenSnapshotView(cmd.Context(), app.StoreDir, app.StoreID, app.ConfigFingerprint, app.IgnoreFingerprint, app.Segments)
	if err == nil {
		info.ActiveSnapshotID = m.SnapshotID
		info.LastSynced = m.CreatedAt
		info.TotalFiles = int(m.Counts.FilesIndexed)
		info.TotalChunks = int(m.Counts.ChunksIndexed)
		info.Degraded = m.Degraded
		for _, seg := range m.Segments {
			switch seg.Kind {
			case "vector":
				info.VectorSize += seg.SizeBytes
			default:
				info.LexicalSize += seg.SizeBytes
			}
		}
	}

	if fi, statErr := os.Stat(filepath.Join(app.StoreDir, "metadata.db")); statErr == nil {
		info.MetadataSize = fi.Size()
	}
	info.TotalSize = info.MetadataSize + info.LexicalSize + info.VectorSize

	info.LeaseHeld = lease.IsHeld(app.StoreDir)

	pid, running := readPIDFile(app.DaemonCfg.PIDPath)
	switch {
	case running && processAlive(pid):
		info.DaemonStatus = "running"
	default:
		info.DaemonStatus = "stopped"
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if asJSON {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}
