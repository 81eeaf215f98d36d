package cli

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/devprof/internal/agent"
	"github.com/coral-mesh/devprof/internal/config"
	"github.com/coral-mesh/devprof/internal/debugger"
	"github.com/coral-mesh/devprof/internal/errors"
	"github.com/coral-mesh/devprof/internal/modgate"
	"github.com/coral-mesh/devprof/internal/profiler"
	"github.com/coral-mesh/devprof/internal/stats"
	"github.com/coral-mesh/devprof/internal/target"
)

// closeTimeout bounds the wait for pending console profile deliveries.
const closeTimeout = 5 * time.Second

// session is one connection to an agent with its target and manager.
type session struct {
	cfg     *config.Config
	logger  zerolog.Logger
	client  *agent.Client
	target  *target.Target
	manager *profiler.Manager
	stats   *stats.Recorder
}

// openSession dials the agent and builds the target, its debugger context
// and the profiling session manager. gate may be nil.
func openSession(ctx context.Context, cfg *config.Config, logger zerolog.Logger, gate modgate.Gate) (*session, error) {
	opts := agent.DefaultOptions()
	opts.DialTimeout = cfg.Agent.DialTimeout
	opts.Retry = cfg.Agent.Retry
	opts.Logger = logger

	client, err := agent.Dial(ctx, cfg.Agent.Endpoint, opts)
	if err != nil {
		return nil, err
	}

	targetID := cfg.Target.ID
	if targetID == "" {
		targetID = uuid.NewString()
	}

	tgt := target.New(targetID, client.Profiler())
	client.SetDispatcher(tgt)

	dbg := debugger.NewContext(targetID, cfg.Target.EngineType, debugger.Runtime{Name: cfg.Target.Runtime})
	errors.Must(tgt.Register(target.CapabilityDebugger, dbg), "register debugger context")

	recorder := &stats.Recorder{}
	reporter := stats.Multi{recorder}
	if cfg.Stats.Enabled {
		extra := make(map[string]any, len(cfg.Stats.Extra))
		for k, v := range cfg.Stats.Extra {
			extra[k] = v
		}
		reporter = append(reporter, stats.NewLogReporter(logger, extra))
	}

	s := &session{
		cfg:    cfg,
		logger: logger,
		client: client,
		target: tgt,
		stats:  recorder,
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	// Without the Debugger domain locations resolve with an empty URL.
	if err := agent.EnableDebugger(callCtx, client); err != nil {
		logger.Warn().Err(err).Msg("Failed to enable debugger, script URLs will be missing")
	}

	mgr, err := profiler.New(callCtx, tgt, profiler.Options{
		Logger:   logger,
		Reporter: reporter,
		Gate:     gate,
	})
	errors.Must(err, "create profiler")
	s.manager = mgr

	logger.Debug().
		Str("endpoint", cfg.Agent.Endpoint).
		Str("target", targetID).
		Msg("Session opened")

	return s, nil
}

// callContext bounds a single protocol call by the configured call timeout.
func (s *session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Agent.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Agent.CallTimeout)
}

// cleanupContext is used for calls that must still be sent after the
// command context was cancelled, such as stopping a recording on interrupt.
func (s *session) cleanupContext() (context.Context, context.CancelFunc) {
	return s.callContext(context.Background())
}

func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := s.manager.Close(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Abandoned pending console profile events")
	}
	errors.DeferClose(s.logger, s.client, "Failed to close agent connection")
}
