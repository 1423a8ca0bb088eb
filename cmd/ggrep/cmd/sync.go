package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ggrep/ggrep/internal/ingest"
	"github.com/ggrep/ggrep/internal/output"
	"github.com/ggrep/ggrep/internal/vcs"
)

func newSyncCmd() *cobra.Command {
	var allowDegraded bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Scan, chunk, embed, and publish a new snapshot",
		Long: `sync runs the ingest pipeline once (spec §4.4): it diffs the source
tree against the store's metadata, chunks and embeds changed files, and
publishes a new snapshot under the writer lease.

Run this before the daemon has ever synced, or to force an out-of-band
sync without waiting for the daemon's background loop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, allowDegraded)
		},
	}
	cmd.Flags().BoolVar(&allowDegraded, "allow-degraded", false, "publish even if some files fail to embed")
	return cmd
}

func runSync(cmd *cobra.Command, allowDegraded bool) error {
	out := output.New(cmd.OutOrStdout())
	app, err := bootstrap(rootFlag(cmd), 0)
	if err != nil {
		return err
	}
	defer app.Meta.Close()

	out.Status("", fmt.Sprintf("syncing %s (store %s)", app.CanonicalRoot, app.StoreID))

	gitInfo, _ := vcs.Inspect(app.CanonicalRoot)
	result, err := app.Syncer.Sync(cmd.Context(), ingest.Options{
		AllowDegraded: allowDegraded,
		Git:           gitInfo,
	})
	if err != nil {
		return err
	}

	out.Successf("snapshot %s published (%d files, %d chunks, %d tombstones)",
		result.Manifest.SnapshotID,
		result.Manifest.Counts.FilesIndexed,
		result.Manifest.Counts.ChunksIndexed,
		result.Manifest.Counts.TombstonesAdded)
	if result.Manifest.Degraded {
		out.Warning("snapshot is degraded: some files failed to embed (see errors[] in the manifest)")
	}
	return nil
}
