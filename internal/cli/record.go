package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/devprof/internal/constants"
	"github.com/coral-mesh/devprof/internal/pprofconv"
	"github.com/coral-mesh/devprof/internal/protocol"
	"github.com/coral-mesh/devprof/internal/stats"
	"github.com/coral-mesh/devprof/internal/store"
)

const maxRecordDuration = 10 * time.Minute

func newRecordCmd(opts *rootOptions) *cobra.Command {
	var (
		duration time.Duration
		outDir   string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a sampling CPU profile",
		Long: `Record a sampling CPU profile of the target for a fixed duration.

The agent samples every 100us. Recording stops when the duration elapses or
on interrupt; the profile collected so far is kept either way.

Examples:
  # Record 5s and keep the profile in ~/.devprof/profiles
  devprof record --endpoint ws://127.0.0.1:9229/<id>

  # Generate a flamegraph (requires flamegraph.pl)
  devprof record --duration 30s --format folded | flamegraph.pl > cpu.svg

  # Raw devtools payload, loadable in Chrome DevTools
  devprof record --format json > app.cpuprofile`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if duration <= 0 {
				duration = constants.DefaultRecordDuration
			}
			if duration > maxRecordDuration {
				return fmt.Errorf("duration cannot exceed %s", maxRecordDuration)
			}
			switch format {
			case "store", "json", "folded":
			default:
				return fmt.Errorf("unknown format %q (store, json, folded)", format)
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if outDir != "" {
				cfg.Store.Dir = outDir
			}
			logger := newLogger(cfg)

			ctx := cmd.Context()
			sess, err := openSession(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			callCtx, cancel := sess.callContext(ctx)
			err = sess.manager.StartRecording(callCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("failed to start recording: %w", err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Recording CPU profile of target %s for %s...\n",
				sess.target.ID(), duration)

			timer := time.NewTimer(duration)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted, stopping recording")
			case <-sess.client.Done():
				timer.Stop()
				return fmt.Errorf("agent connection lost: %w", sess.client.Err())
			}

			stopCtx, cancel := sess.cleanupContext()
			profile, err := sess.manager.StopRecording(stopCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("failed to stop recording: %w", err)
			}
			if profile == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "No profile was returned by the agent")
				return nil
			}

			switch format {
			case "json":
				return writeProfileJSON(cmd.OutOrStdout(), profile)
			case "folded":
				return writeProfileFolded(cmd.OutOrStdout(), profile)
			}

			st, err := store.Open(cfg.Store.Dir, logger)
			if err != nil {
				return err
			}
			rec, err := st.Save(
				sessionProfileID(sess.target.ID(), sess.stats),
				"",
				profile,
			)
			if err != nil {
				return err
			}
			printProfileSummary(cmd.ErrOrStderr(), profile)
			printRecord(cmd.OutOrStdout(), st, rec)
			return nil
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", constants.DefaultRecordDuration, "Recording duration")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Profile store directory (default from config)")
	cmd.Flags().StringVarP(&format, "format", "f", "store", "Output: store, json or folded")

	return cmd
}

// sessionProfileID numbers recordings within a session by the profiler
// starts seen so far.
func sessionProfileID(targetID string, rec *stats.Recorder) string {
	return fmt.Sprintf("%s.recording-%d", targetID, rec.Count(stats.TypeProfilerStart))
}

func writeProfileJSON(w io.Writer, p *protocol.Profile) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func writeProfileFolded(w io.Writer, p *protocol.Profile) error {
	out, err := pprofconv.Convert(p)
	if err != nil {
		return fmt.Errorf("failed to convert profile: %w", err)
	}
	return pprofconv.WriteFolded(w, out, 0)
}

func printProfileSummary(w io.Writer, p *protocol.Profile) {
	wall := time.Duration(p.Duration()) * time.Microsecond
	fmt.Fprintf(w, "Collected %d samples over %d nodes (%s)\n",
		len(p.Samples), len(p.Nodes), wall)
}

func printRecord(w io.Writer, st *store.Store, rec store.Record) {
	if rec.Duplicate {
		fmt.Fprintf(w, "Identical profile already stored as %s\n", rec.ID)
	}
	fmt.Fprintf(w, "%s\t%s/%s\n", rec.GlobalID, st.Dir(), rec.JSONFile)
	if rec.PprofFile != "" {
		fmt.Fprintf(w, "%s\t%s/%s\n", rec.GlobalID, st.Dir(), rec.PprofFile)
	}
}
