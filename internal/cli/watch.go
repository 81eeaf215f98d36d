package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/devprof/internal/modgate"
	"github.com/coral-mesh/devprof/internal/profiler"
	"github.com/coral-mesh/devprof/internal/store"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		outDir string
		count  int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Capture profiles started by console.profile()",
		Long: `Wait for the debugged program to call console.profile() and
console.profileEnd(), and store every finished profile.

Untitled profiles are named "Profile 1", "Profile 2"... in start order.
Runs until interrupted, the agent disconnects, or --count profiles have been
stored.

Examples:
  devprof watch --endpoint ws://127.0.0.1:9229/<id>
  devprof watch --out ./profiles --count 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 0 {
				return fmt.Errorf("--count cannot be negative")
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if outDir != "" {
				cfg.Store.Dir = outDir
			}
			logger := newLogger(cfg)

			profiles := &storeModule{dir: cfg.Store.Dir, logger: logger}
			gate := modgate.NewLoader(profiles.load)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sess, err := openSession(ctx, cfg, logger, gate)
			if err != nil {
				return err
			}
			defer sess.Close()

			out := &lockedWriter{w: cmd.OutOrStdout()}
			errOut := &lockedWriter{w: cmd.ErrOrStderr()}

			var (
				mu     sync.Mutex
				stored int
			)

			sess.manager.On(profiler.EventConsoleProfileStarted, func(data profiler.EventData) {
				loc := data.ScriptLocation
				fmt.Fprintf(errOut, "Profile started: %s (%s) at %s:%d\n",
					data.Title, data.ID, locationName(loc.URL, string(loc.ScriptID)), loc.LineNumber+1)
			})

			sess.manager.On(profiler.EventConsoleProfileFinished, func(data profiler.EventData) {
				if data.CPUProfile == nil {
					fmt.Fprintf(errOut, "Profile finished without data: %s (%s)\n", data.Title, data.ID)
					return
				}

				st := profiles.get()
				rec, err := st.Save(data.ID, data.Title, data.CPUProfile)
				if err != nil {
					logger.Error().Err(err).Str("profile_id", data.ID).Msg("Failed to store console profile")
					return
				}
				printProfileSummary(errOut, data.CPUProfile)
				printRecord(out, st, rec)

				mu.Lock()
				stored++
				done := count > 0 && stored >= count
				mu.Unlock()
				if done {
					cancel()
				}
			})

			fmt.Fprintf(errOut, "Watching console profiles of target %s (Ctrl+C to stop)...\n", sess.target.ID())

			select {
			case <-ctx.Done():
			case <-sess.client.Done():
				if err := sess.client.Err(); err != nil {
					return fmt.Errorf("agent connection lost: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Profile store directory (default from config)")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after storing this many profiles (0 = no limit)")

	return cmd
}

// storeModule is the profiler module of the watch command: finished
// profiles are only republished once the store is open.
type storeModule struct {
	dir    string
	logger zerolog.Logger

	mu    sync.Mutex
	store *store.Store
}

func (m *storeModule) load(_ context.Context, module string) error {
	if module != profiler.ProfilerModule {
		return fmt.Errorf("unknown module %q", module)
	}
	st, err := store.Open(m.dir, m.logger)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.store = st
	m.mu.Unlock()
	return nil
}

func (m *storeModule) get() *store.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store
}

// lockedWriter serializes writes from event listeners running on different
// goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func locationName(url, scriptID string) string {
	if url != "" {
		return url
	}
	return "<script " + scriptID + ">"
}
