package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ggrep/ggrep/pkg/version"
)

// NewRootCmd creates the root command for the ggrep CLI, grounded on the
// teacher's cmd/amanmcp/cmd/root.go NewRootCmd/AddCommand shape.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ggrep",
		Short: "Per-repository semantic code search",
		Long: `ggrep indexes a source tree into a snapshot-versioned vector+lexical
store and answers hybrid natural-language queries from a per-repository
daemon.

Run 'ggrep sync' in a project to build an index, then 'ggrep search
<query>' against the running daemon.`,
		Version:           version.Short(),
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}
	cmd.SetVersionTemplate("ggrep version {{.Version}}\n")

	cmd.PersistentFlags().String("root", ".", "repository root to operate on")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newCompactCmd())
	cmd.AddCommand(newGCCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func rootFlag(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("root")
	if v == "" {
		return "."
	}
	return v
}
