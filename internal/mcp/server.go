// Package mcp bridges AI coding assistants (Claude Code, Cursor) to a
// store's daemon over the Model Context Protocol, exposing the same
// search/health operations the CLI's search/status commands reach over
// the unix socket (spec §4.11). Grounded on the teacher's
// internal/mcp/server.go (mcp.NewServer/mcp.AddTool wiring), generalized
// from an in-process search.SearchEngine to a daemon client dialing the
// per-store socket, since this binary has no embedded engine of its own.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ggrep/ggrep/internal/protocol"
	"github.com/ggrep/ggrep/pkg/version"
)

// Server is the MCP server for ggrep.
type Server struct {
	mcp    *mcp.Server
	logger *slog.Logger

	storeID           string
	configFingerprint string
	socketPath        string
}

// NewServer constructs an MCP server that proxies search/health tool
// calls to the daemon already running for (storeID, socketPath). It does
// not dial until a tool is invoked, so the MCP process can start before
// the daemon does.
func NewServer(storeID, configFingerprint, socketPath string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:            logger,
		storeID:           storeID,
		configFingerprint: configFingerprint,
		socketPath:        socketPath,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "ggrep",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves the MCP protocol over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search this repository's semantic code index. Understands code meaning, not just keywords; prefer this over grep for finding implementations, usages, or related code by description.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report whether this repository's index is up and which snapshot is active. Check before searching if results seem stale.",
	}, s.healthHandler)

	s.logger.Debug("mcp tools registered", slog.Int("count", 2))
}

// dial connects to the daemon's unix socket and performs the mandatory
// Hello handshake (spec §4.11), returning a ready-to-use protocol.Conn.
func (s *Server) dial(ctx context.Context) (*protocol.Conn, net.Conn, error) {
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "unix", s.socketPath)
	if err != nil {
		return nil, nil, fmt.Errorf("daemon unreachable: %w", err)
	}

	c := protocol.NewConn(conn, 16<<20)
	if err := c.WriteEnvelope(&protocol.Envelope{
		Type: protocol.TypeHello,
		Hello: &protocol.Hello{
			ProtocolVersions:  protocol.SupportedVersions,
			StoreID:           s.storeID,
			ConfigFingerprint: s.configFingerprint,
			ClientID:          "ggrep-mcp",
		},
	}); err != nil {
		conn.Close()
		return nil, nil, err
	}
	resp, err := c.ReadEnvelope()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if resp.Type == protocol.TypeError {
		conn.Close()
		return nil, nil, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	return c, conn, nil
}
