package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/devprof/pkg/version"
)

// NewRootCmd builds the devprof command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "devprof",
		Short: "devprof - CPU profiling and coverage for remote JavaScript targets",
		Long: `Drive the Profiler domain of a devtools protocol agent from the terminal.

devprof connects to an inspector endpoint (node --inspect, a browser's remote
debugging port or any agent speaking the devtools protocol) and:
- records sampling CPU profiles on demand,
- collects precise code coverage with live delta updates,
- captures profiles started by console.profile() in the debugged program.

Finished profiles are kept under ~/.devprof/profiles as the devtools JSON
payload and as a pprof file usable with 'go tool pprof'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts.register(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newRecordCmd(opts))
	rootCmd.AddCommand(newCoverageCmd(opts))
	rootCmd.AddCommand(newWatchCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("devprof version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command. ctx is cancelled on interrupt by the
// caller.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
