// Command ggrep-mcp exposes a store's search/health operations as Model
// Context Protocol tools over stdio, for AI coding assistants that speak
// MCP directly instead of the daemon's native wire protocol. It proxies
// every call to the daemon already running for the store (spec §4.11);
// it holds no storage of its own. Grounded on the teacher's cmd/amanmcp
// binary embedding an MCP server (internal/mcp) behind a dedicated
// entrypoint, split into its own binary here since this store's daemon is
// per-repository rather than the teacher's single shared process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ggrepConfig "github.com/ggrep/ggrep/internal/config"
	"github.com/ggrep/ggrep/internal/daemon"
	"github.com/ggrep/ggrep/internal/logging"
	"github.com/ggrep/ggrep/internal/mcp"
	"github.com/ggrep/ggrep/internal/storeinit"
)

func main() {
	root := flag.String("root", ".", "repository root to serve")
	flag.Parse()

	if err := run(*root); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(root string) error {
	info, err := storeinit.Resolve(root)
	if err != nil {
		return fmt.Errorf("resolve store: %w", err)
	}

	logCfg := logging.DefaultConfig(ggrepConfig.BaseDir())
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()

	daemonCfg := daemon.NewConfig(info.StoreID, info.CanonicalRoot, info.ConfigFingerprint, info.IgnoreFingerprint, info.Config.Engine)
	srv := mcp.NewServer(info.StoreID, info.ConfigFingerprint, daemonCfg.SocketPath, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
