package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ggrep/ggrep/internal/errors"
	"github.com/ggrep/ggrep/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check disk, memory, permissions, and lease/socket health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print check details")
	return cmd
}

func runDoctor(cmd *cobra.Command, verbose bool) error {
	app, err := bootstrap(rootFlag(cmd), 0)
	if err != nil {
		return err
	}
	defer app.Meta.Close()

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(cmd.Context(), preflight.StoreContext{
		CanonicalRoot: app.CanonicalRoot,
		StoreDir:      app.StoreDir,
		SocketPath:    app.DaemonCfg.SocketPath,
	})
	checker.PrintResults(results)

	if checker.HasCriticalFailures(results) {
		return errors.New(errors.KindInternal, "one or more critical checks failed")
	}
	return nil
}
