package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitError carries a specific process exit code out of a RunE handler.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

// GlobalFlags holds the persistent flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags),
		createUpdateCommand(globalFlags),
		createStatusCommand(globalFlags),
		createServeCommand(globalFlags),
		createValidateCommand(globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "idxrun",
		Short: "Single-instance wrapper for source index builds",
		Long: `idxrun runs a source indexing job under a host-wide exclusion lock,
captures the job's combined output to a timestamped log, archives the log
and records run history.

Examples:
  idxrun run --config=idxrun.toml        # one run, exit code follows the job
  idxrun update --config=idxrun.toml     # refresh checkouts and rebuild the index
  idxrun serve --config=idxrun.toml      # periodic runs plus status API
  idxrun status --config=idxrun.toml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")

	return root
}

func createRunCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one single-instance run",
		Long: `Execute the configured job once under the exclusion lock.
The process exit code mirrors the job's exit code; when another instance
holds the lock the sentinel exit code is returned instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(globalFlags)
		},
	}
}

func createUpdateCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Refresh source checkouts and rebuild the index",
		Long: `Refresh the config checkout, bring every repository named by the
sourcemap to its remote branch head, then run the index command.
Without --config the CONFIG_PATH and SOURCE_ROOT environment variables
are used, which is how the command behaves when it is itself the job
wrapped by "idxrun run".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(globalFlags)
		},
	}
}

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show lock state and the most recent run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(globalFlags, cmd.OutOrStdout())
		},
	}
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run periodically with a status API",
		Long: `Run the job on the configured schedule and expose the status API and
metrics listeners. Stops cleanly on SIGINT or SIGTERM; a run already in
flight finishes first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(globalFlags)
		},
	}
}

func createValidateCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and sourcemap",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(globalFlags, cmd.OutOrStdout())
		},
	}
}
