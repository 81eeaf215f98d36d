package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/devprof/internal/constants"
	"github.com/coral-mesh/devprof/internal/profiler"
	"github.com/coral-mesh/devprof/internal/protocol"
)

func newCoverageCmd(opts *rootOptions) *cobra.Command {
	var (
		duration time.Duration
		detailed bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Collect precise code coverage",
		Long: `Collect precise code coverage from the target for a fixed duration.

Coverage deltas pushed by the agent are printed as they arrive. At the end a
snapshot is taken and summarized per script.

Examples:
  # Function-level coverage for 5s
  devprof coverage

  # Block-level coverage, full snapshot as JSON
  devprof coverage --detailed --duration 30s --json > coverage.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if duration <= 0 {
				duration = constants.DefaultRecordDuration
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := cmd.Context()
			sess, err := openSession(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			errOut := &lockedWriter{w: cmd.ErrOrStderr()}
			onDelta := func(timestamp float64, occasion string, entries []protocol.ScriptCoverage) {
				fmt.Fprintf(errOut, "Coverage update (%s) at %.3fs: %d scripts\n",
					occasion, timestamp, len(entries))
			}

			callCtx, cancel := sess.callContext(ctx)
			err = sess.manager.StartPreciseCoverage(callCtx, detailed, onDelta)
			cancel()
			if err != nil {
				return fmt.Errorf("failed to start coverage: %w", err)
			}

			fmt.Fprintf(errOut, "Collecting coverage of target %s for %s...\n", sess.target.ID(), duration)

			timer := time.NewTimer(duration)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			case <-sess.client.Done():
				timer.Stop()
				return fmt.Errorf("agent connection lost: %w", sess.client.Err())
			}

			takeCtx, cancel := sess.cleanupContext()
			snap, takeErr := sess.manager.TakePreciseCoverage(takeCtx)
			cancel()

			stopCtx, cancel := sess.cleanupContext()
			stopErr := sess.manager.StopPreciseCoverage(stopCtx)
			cancel()

			if takeErr != nil {
				return fmt.Errorf("failed to take coverage: %w", takeErr)
			}
			if stopErr != nil {
				logger.Warn().Err(stopErr).Msg("Failed to stop precise coverage")
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			return printCoverage(cmd.OutOrStdout(), snap)
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", constants.DefaultRecordDuration, "Collection duration")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "Collect block-level instead of function-level coverage")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the snapshot as JSON")

	return cmd
}

// scriptCoverage summarizes one script of a coverage snapshot.
type scriptCoverage struct {
	URL           string
	Functions     int
	CoveredFuncs  int
	Ranges        int
	CoveredRanges int
}

// summarizeCoverage aggregates a snapshot per script URL, sorted by URL.
// Scripts without a URL are grouped by script id.
func summarizeCoverage(entries []protocol.ScriptCoverage) []scriptCoverage {
	byURL := make(map[string]*scriptCoverage)
	for _, script := range entries {
		key := locationName(script.URL, string(script.ScriptID))
		sum, ok := byURL[key]
		if !ok {
			sum = &scriptCoverage{URL: key}
			byURL[key] = sum
		}
		for _, fn := range script.Functions {
			sum.Functions++
			// The first range spans the whole function.
			if len(fn.Ranges) > 0 && fn.Ranges[0].Count > 0 {
				sum.CoveredFuncs++
			}
			for _, r := range fn.Ranges {
				sum.Ranges++
				if r.Count > 0 {
					sum.CoveredRanges++
				}
			}
		}
	}

	out := make([]scriptCoverage, 0, len(byURL))
	for _, sum := range byURL {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

func printCoverage(w io.Writer, snap profiler.CoverageSnapshot) error {
	summary := summarizeCoverage(snap.Entries)
	if len(summary) == 0 {
		fmt.Fprintln(w, "No coverage collected")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "SCRIPT\tFUNCTIONS\tRANGES")
	fmt.Fprintln(tw, "------\t---------\t------")
	for _, s := range summary {
		fmt.Fprintf(tw, "%s\t%d/%d\t%d/%d\n", s.URL, s.CoveredFuncs, s.Functions, s.CoveredRanges, s.Ranges)
	}
	return tw.Flush()
}
