package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggrep/ggrep/internal/compaction"
	ggrepConfig "github.com/ggrep/ggrep/internal/config"
	"github.com/ggrep/ggrep/internal/daemon"
	"github.com/ggrep/ggrep/internal/gc"
	"github.com/ggrep/ggrep/internal/logging"
	"github.com/ggrep/ggrep/internal/metrics"
	"github.com/ggrep/ggrep/internal/output"
	"github.com/ggrep/ggrep/internal/protocol"
	"github.com/ggrep/ggrep/internal/search"
	"github.com/ggrep/ggrep/internal/vcs"
)

// newDaemonCmd mirrors the teacher's cmd/amanmcp/cmd/daemon.go command
// group (start/stop/status), generalized from one shared daemon to one
// daemon process per store (spec §4.12).
func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the per-store background daemon",
	}
	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())
	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon for this store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStart(cmd, foreground)
		},
	}
	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run in foreground instead of detaching")
	return cmd
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon for this store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStop(cmd)
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running and its active snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStatus(cmd)
		},
	}
}

func runDaemonStart(cmd *cobra.Command, foreground bool) error {
	out := output.New(cmd.OutOrStdout())
	app, err := bootstrap(rootFlag(cmd), 30*time.Second)
	if err != nil {
		return err
	}

	if !foreground {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		bg := exec.Command(execPath, "daemon", "start", "--foreground", "--root", app.CanonicalRoot)
		bg.Stdout = nil
		bg.Stderr = nil
		bg.Stdin = nil
		bg.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
		if err := bg.Start(); err != nil {
			return fmt.Errorf("start daemon: %w", err)
		}

		for i := 0; i < 50; i++ {
			time.Sleep(100 * time.Millisecond)
			if c, err := dialDaemon(app.DaemonCfg.SocketPath); err == nil {
				c.Close()
				out.Successf("daemon started (pid %d, socket %s)", bg.Process.Pid, app.DaemonCfg.SocketPath)
				return nil
			}
		}
		return fmt.Errorf("daemon did not become ready in time")
	}

	logCfg := logging.DefaultConfig(ggrepConfig.BaseDir())
	logCfg.WriteToStderr = true
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()

	reg := metrics.New()
	d := daemon.New(app.DaemonCfg, logger, reg)
	d.Syncer = app.Syncer
	d.Segments = app.Segments
	d.Meta = app.Meta
	d.InspectGit = vcs.Inspect
	d.Compactor = &compaction.Compactor{
		StoreDir:   app.StoreDir,
		StoreID:    app.StoreID,
		Segments:   app.Segments,
		LeaseTTL:   30 * time.Second,
		MaxRetries: app.DaemonCfg.Engine.CompactionMaxRetries,
	}
	d.Collector = &gc.Collector{
		StoreDir: app.StoreDir,
		Segments: app.Segments,
		LeaseTTL: 30 * time.Second,
	}
	d.Search = &search.Engine{
		StoreDir:          app.StoreDir,
		StoreID:           app.StoreID,
		Segments:          app.Segments,
		Embedder:          app.Embedder,
		Admitter:          d.Admitter,
		Pinner:            d.Pinner,
		Limiter:           app.Limiter,
		ConfigFingerprint: app.ConfigFingerprint,
		IgnoreFingerprint: app.IgnoreFingerprint,
		Ranking:           app.Ranking,
	}

	out.Status("", fmt.Sprintf("starting daemon for store %s on %s", app.StoreID, app.DaemonCfg.SocketPath))
	return d.Start(cmd.Context())
}

func runDaemonStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	app, err := bootstrap(rootFlag(cmd), 0)
	if err != nil {
		return err
	}

	pid, ok := readPIDFile(app.DaemonCfg.PIDPath)
	if !ok {
		out.Status("", "daemon is not running")
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon: %w", err)
	}
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !processAlive(pid) {
			out.Successf("daemon stopped (was pid %d)", pid)
			return nil
		}
	}
	_ = proc.Signal(syscall.SIGKILL)
	out.Success("daemon killed")
	return nil
}

func runDaemonStatus(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	app, err := bootstrap(rootFlag(cmd), 0)
	if err != nil {
		return err
	}

	pid, running := readPIDFile(app.DaemonCfg.PIDPath)
	if !running || !processAlive(pid) {
		out.Status("", "daemon is not running")
		return nil
	}

	conn, err := dialDaemon(app.DaemonCfg.SocketPath)
	if err != nil {
		out.Warningf("daemon pid file present (pid %d) but socket unreachable: %v", pid, err)
		return nil
	}
	defer conn.Close()

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

	if err := c.WriteEnvelope(&protocol.Envelope{Type: protocol.TypeHealth, Health: &protocol.Health{}}); err != nil {
		return err
	}
	resp, err := c.ReadEnvelope()
	if err != nil {
		return err
	}
	if resp.Type == protocol.TypeError {
		return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}

	out.Success(fmt.Sprintf("daemon running (pid %d)", pid))
	out.Statusf("", "active snapshot: %s", resp.Health.ActiveSnapshotID)
	out.Statusf("", "degraded: %t", resp.Health.Degraded)
	out.Statusf("", "lease held: %t", resp.Health.LeaseHeld)
	return nil
}
