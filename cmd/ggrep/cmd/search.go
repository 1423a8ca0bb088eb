package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	ggrepErrors "github.com/ggrep/ggrep/internal/errors"
	"github.com/ggrep/ggrep/internal/output"
	"github.com/ggrep/ggrep/internal/protocol"
	"github.com/ggrep/ggrep/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		limit          int
		perFileLimit   int
		scope          []string
		rerank         bool
		includeAnchors bool
		mode           string
		verbose        bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the running daemon's current snapshot",
		Long: `search sends a query to this store's daemon over its unix socket
(spec §4.11) and prints the ranked, snippet-capped results.

The daemon for this store must already be running; start one with
'ggrep daemon start'.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			for _, a := range args[1:] {
				query += " " + a
			}
			return runSearch(cmd, query, limit, perFileLimit, scope, rerank, includeAnchors, mode, verbose)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	cmd.Flags().IntVar(&perFileLimit, "per-file-limit", 3, "maximum results per file")
	cmd.Flags().StringSliceVar(&scope, "scope", nil, "restrict results to path prefixes")
	cmd.Flags().BoolVar(&rerank, "rerank", true, "rerank top candidates with late-interaction scoring")
	cmd.Flags().BoolVar(&includeAnchors, "include-anchors", false, "include per-file anchor rows in results")
	cmd.Flags().StringVar(&mode, "mode", "balanced", "bucket weighting: balanced|discovery|implementation|planning|debug")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print per-phase timings")
	return cmd
}

func runSearch(cmd *cobra.Command, query string, limit, perFileLimit int, scope []string, rerank, includeAnchors bool, mode string, verbose bool) error {
	out := output.New(cmd.OutOrStdout())
	app, err := bootstrap(rootFlag(cmd), 0)
	if err != nil {
		return err
	}

	pid, running := readPIDFile(app.DaemonCfg.PIDPath)
	if !running || !processAlive(pid) {
		return ggrepErrors.New(ggrepErrors.KindInvalidRequest,
			"daemon is not running for this store; run 'ggrep daemon start'")
	}

	conn, err := dialDaemon(app.DaemonCfg.SocketPath)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
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

	if err := c.WriteEnvelope(&protocol.Envelope{
		Type: protocol.TypeSearch,
		Search: &protocol.Search{
			Query:          query,
			Limit:          limit,
			PerFileLimit:   perFileLimit,
			Scope:          scope,
			Rerank:         rerank,
			IncludeAnchors: includeAnchors,
			Mode:           mode,
		},
	}); err != nil {
		return err
	}
	resp, err := c.ReadEnvelope()
	if err != nil {
		return err
	}
	if resp.Type == protocol.TypeError {
		return ggrepErrors.New(ggrepErrors.Kind(resp.Error.Code), resp.Error.Message)
	}

	sr := resp.Search
	if sr.Status == "indexing" {
		out.Statusf("", "index is syncing (%.0f%%); results are against the last published snapshot", sr.Progress)
	}

	results := make([]search.Result, 0, len(sr.Results))
	for _, r := range sr.Results {
		results = append(results, search.Result{
			PathKey:   r.PathKey,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			ChunkType: r.ChunkType,
			Bucket:    search.Bucket(r.Bucket),
			Score:     r.Score,
			Snippet:   r.Snippet,
		})
	}
	out.SearchResults(&search.Response{Results: results, Warnings: sr.Warnings, LimitsHit: sr.LimitsHit})

	if verbose && sr.Timings != nil {
		out.SearchTimings(search.Timings{
			Admission:    msToDuration(sr.Timings.AdmissionMs),
			SnapshotRead: msToDuration(sr.Timings.SnapshotReadMs),
			Retrieve:     msToDuration(sr.Timings.RetrieveMs),
			Rank:         msToDuration(sr.Timings.RankMs),
			Format:       msToDuration(sr.Timings.FormatMs),
		})
	}
	return nil
}
