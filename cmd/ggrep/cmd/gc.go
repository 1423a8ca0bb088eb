package cmd

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggrep/ggrep/internal/gc"
	"github.com/ggrep/ggrep/internal/output"
	"github.com/ggrep/ggrep/internal/protocol"
)

func newGCCmd() *cobra.Command {
	var (
		dryRun bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete snapshots no longer reachable or pinned",
		Long: `gc reclaims snapshots older than the retention policy (spec §4.10):
it keeps the most recent retain_snapshots_min snapshots, anything younger
than retain_snapshots_min_age, anything pinned by a live reader, and
deletes the rest along with their now-unreferenced segment files.

If a daemon is running for this store, gc routes through it so the
daemon's live reader pins are honored; otherwise it runs directly
against the store with no pinned readers to consider.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGC(cmd, dryRun, force)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	cmd.Flags().BoolVar(&force, "force", false, "ignore retain_snapshots_min_age")
	return cmd
}

func runGC(cmd *cobra.Command, dryRun, force bool) error {
	out := output.New(cmd.OutOrStdout())
	app, err := bootstrap(rootFlag(cmd), 30*time.Second)
	if err != nil {
		return err
	}
	defer app.Meta.Close()

	pid, running := readPIDFile(app.DaemonCfg.PIDPath)
	if running && processAlive(pid) {
		if conn, err := dialDaemon(app.DaemonCfg.SocketPath); err == nil {
			defer conn.Close()
			return runGCViaDaemon(cmd, conn, app, out, dryRun, force)
		}
	}
	out.Status("", "no daemon running for this store; running gc directly with no pinned readers")

	engineCfg := app.DaemonCfg.Engine
	collector := &gc.Collector{
		StoreDir: app.StoreDir,
		Segments: app.Segments,
		LeaseTTL: 30 * time.Second,
	}
	policy := gc.Policy{
		RetainMin:    engineCfg.RetainSnapshotsMin,
		RetainMinAge: time.Duration(engineCfg.RetainSnapshotsMinAgeSecs) * time.Second,
		SafetyWindow: time.Duration(engineCfg.SafetyWindowMs()) * time.Millisecond,
	}
	if force {
		policy.RetainMinAge = 0
	}

	report, err := collector.Run(cmd.Context(), policy, nil, dryRun)
	if err != nil {
		return err
	}
	printGCReport(out, report.DryRun, report.Kept, report.Deleted)
	return nil
}

func runGCViaDaemon(cmd *cobra.Command, conn net.Conn, app *storeApp, out *output.Writer, dryRun, force bool) error {
	c := protocol.NewConn(conn, app.DaemonCfg.Engine.MaxRequestBytes)
	if err := c.WriteEnvelope(&protocol.Envelope{
		Type: protocol.TypeHello,
		Hello: &protocol.Hello{
			ProtocolVersions:  protocol.SupportedVersions,
			StoreID:           app.StoreID,
			ConfigFingerprint: app.ConfigFingerprint,
			ClientID:          "ggrep-cli",
		},
	}); err != nil {
		return err
	}
	helloResp, err := c.ReadEnvelope()
	if err != nil {
		return err
	}
	if helloResp.Type == protocol.TypeError {
		return fmt.Errorf("%s: %s", helloResp.Error.Code, helloResp.Error.Message)
	}

	if err := c.WriteEnvelope(&protocol.Envelope{
		Type: protocol.TypeGc,
		Gc:   &protocol.Gc{DryRun: dryRun, Force: force},
	}); err != nil {
		return err
	}
	resp, err := c.ReadEnvelope()
	if err != nil {
		return err
	}
	if resp.Type == protocol.TypeError {
		return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}

	printGCReport(out, dryRun, resp.Gc.Kept, resp.Gc.Deleted)
	return nil
}

func printGCReport(out *output.Writer, dryRun bool, kept, deleted []string) {
	verb := "deleted"
	if dryRun {
		verb = "would delete"
	}
	out.Statusf("", "kept %d snapshot(s)", len(kept))
	if len(deleted) == 0 {
		out.Status("", fmt.Sprintf("nothing to %s", map[bool]string{true: "delete (dry run)", false: "delete"}[dryRun]))
		return
	}
	out.Successf("%s %d snapshot(s)", verb, len(deleted))
	for _, id := range deleted {
		out.Statusf("", "  %s", id)
	}
}
