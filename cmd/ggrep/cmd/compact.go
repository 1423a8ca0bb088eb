package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ggrep/ggrep/internal/compaction"
	"github.com/ggrep/ggrep/internal/output"
)

func newCompactCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Fold tombstones and stale segments into a compacted snapshot",
		Long: `compact runs the compaction procedure (spec §4.6) once: if the
active snapshot's segment or tombstone counts cross the configured
thresholds, it merges every segment's non-tombstoned rows into one new segment
and publishes a new snapshot under the writer lease.

Use --force to compact regardless of the thresholds.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(cmd, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "compact even if thresholds are not crossed")
	return cmd
}

func runCompact(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	app, err := bootstrap(rootFlag(cmd), 30*time.Second)
	if err != nil {
		return err
	}
	defer app.Meta.Close()

	engineCfg := app.DaemonCfg.Engine
	compactor := &compaction.Compactor{
		StoreDir:   app.StoreDir,
		StoreID:    app.StoreID,
		Segments:   app.Segments,
		LeaseTTL:   30 * time.Second,
		MaxRetries: engineCfg.CompactionMaxRetries,
	}
	thr := compaction.Thresholds{
		OverdueSegments:   engineCfg.CompactionOverdueSegments,
		OverdueTombstones: int64(engineCfg.CompactionOverdueTombstones),
	}

	result, err := compactor.Run(cmd.Context(), thr, force)
	if err != nil {
		return err
	}
	if result.Skipped {
		out.Status("", "compaction skipped: thresholds not crossed (use --force to override)")
		return nil
	}
	out.Successf("compacted into snapshot %s in %s", result.Manifest.SnapshotID, result.Duration)
	return nil
}
