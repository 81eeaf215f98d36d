package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/devprof/internal/protocol"
	"github.com/coral-mesh/devprof/internal/testutil"
)

func dialTest(t *testing.T, endpoint string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := DefaultOptions()
	opts.Logger = testutil.NewTestLogger(t)
	c, err := Dial(ctx, endpoint, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type recordingDispatcher struct {
	mu       sync.Mutex
	started  []protocol.ConsoleProfileStartedEvent
	finished []protocol.ConsoleProfileFinishedEvent
	deltas   []protocol.PreciseCoverageDeltaUpdateEvent
	order    []string
}

func (d *recordingDispatcher) ConsoleProfileStarted(ev protocol.ConsoleProfileStartedEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = append(d.started, ev)
	d.order = append(d.order, "started:"+ev.ID)
}

func (d *recordingDispatcher) ConsoleProfileFinished(ev protocol.ConsoleProfileFinishedEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finished = append(d.finished, ev)
	d.order = append(d.order, "finished:"+ev.ID)
}

func (d *recordingDispatcher) PreciseCoverageDeltaUpdate(ev protocol.PreciseCoverageDeltaUpdateEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deltas = append(d.deltas, ev)
	d.order = append(d.order, "delta:"+ev.Occasion)
}

func TestClient_ProfilerCalls(t *testing.T) {
	profile := &protocol.Profile{
		Nodes:     []protocol.ProfileNode{{ID: 1, CallFrame: protocol.CallFrame{FunctionName: "(root)"}}},
		StartTime: 10,
		EndTime:   30,
	}

	var (
		mu          sync.Mutex
		gotInterval protocol.SetSamplingIntervalParams
		gotCoverage protocol.StartPreciseCoverageParams
	)
	fake := testutil.NewAgent(t, func(msg protocol.Message) (any, *protocol.ErrorPayload, []protocol.Message) {
		mu.Lock()
		defer mu.Unlock()
		switch msg.Method {
		case protocol.MethodSetSamplingInterval:
			_ = json.Unmarshal(msg.Params, &gotInterval)
		case protocol.MethodStartPreciseCoverage:
			_ = json.Unmarshal(msg.Params, &gotCoverage)
		case protocol.MethodStop:
			return protocol.StopResult{Profile: profile}, nil, nil
		case protocol.MethodTakePreciseCoverage:
			return protocol.TakePreciseCoverageResult{
				Timestamp: 42.5,
				Result:    []protocol.ScriptCoverage{{ScriptID: "7", URL: "app.js"}},
			}, nil, nil
		}
		return nil, nil, nil
	})

	c := dialTest(t, fake.URL)
	api := c.Profiler()
	ctx := context.Background()

	require.NoError(t, api.Enable(ctx))
	require.NoError(t, api.SetSamplingInterval(ctx, 100))
	require.NoError(t, api.Start(ctx))

	got, err := api.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, profile, got)

	require.NoError(t, api.StartPreciseCoverage(ctx, protocol.StartPreciseCoverageParams{Detailed: true, AllowTriggeredUpdates: true}))
	cov, err := api.TakePreciseCoverage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42.5, cov.Timestamp)
	require.Len(t, cov.Result, 1)
	assert.Equal(t, "app.js", cov.Result[0].URL)
	require.NoError(t, api.StopPreciseCoverage(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 100, gotInterval.Interval)
	assert.Equal(t, protocol.StartPreciseCoverageParams{Detailed: true, AllowTriggeredUpdates: true}, gotCoverage)
	assert.Equal(t, []string{
		protocol.MethodEnable,
		protocol.MethodSetSamplingInterval,
		protocol.MethodStart,
		protocol.MethodStop,
		protocol.MethodStartPreciseCoverage,
		protocol.MethodTakePreciseCoverage,
		protocol.MethodStopPreciseCoverage,
	}, fake.Methods())
	assert.Contains(t, fake.UserAgent(), "devprof/")
}

func TestClient_StopWithoutProfile(t *testing.T) {
	fake := testutil.NewAgent(t, func(msg protocol.Message) (any, *protocol.ErrorPayload, []protocol.Message) {
		return nil, nil, nil
	})

	c := dialTest(t, fake.URL)
	got, err := c.Profiler().Stop(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClient_ErrorResponse(t *testing.T) {
	fake := testutil.NewAgent(t, func(msg protocol.Message) (any, *protocol.ErrorPayload, []protocol.Message) {
		return nil, &protocol.ErrorPayload{Code: -32000, Message: "Profiler is not enabled"}, nil
	})

	c := dialTest(t, fake.URL)
	err := c.Profiler().Start(context.Background())
	require.Error(t, err)

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, protocol.MethodStart, respErr.Method)
	assert.Equal(t, -32000, respErr.Code)
	assert.Equal(t, "Profiler is not enabled", respErr.Message)
}

func TestClient_EventsDispatchedInOrder(t *testing.T) {
	fake := testutil.NewAgent(t, func(msg protocol.Message) (any, *protocol.ErrorPayload, []protocol.Message) {
		return nil, nil, []protocol.Message{
			testutil.Event(t, protocol.EventConsoleProfileStarted, protocol.ConsoleProfileStartedEvent{ID: "1"}),
			testutil.Event(t, "Debugger.paused", map[string]any{}),
			testutil.Event(t, protocol.EventPreciseCoverageDeltaUpdate, protocol.PreciseCoverageDeltaUpdateEvent{Occasion: "tick"}),
			testutil.Event(t, protocol.EventConsoleProfileFinished, protocol.ConsoleProfileFinishedEvent{ID: "1", Profile: &protocol.Profile{}}),
		}
	})

	c := dialTest(t, fake.URL)
	d := &recordingDispatcher{}
	c.SetDispatcher(d)

	// The response is written after the events, so they have all been
	// dispatched by the time Enable returns.
	require.NoError(t, c.Profiler().Enable(context.Background()))

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, []string{"started:1", "delta:tick", "finished:1"}, d.order)
	require.Len(t, d.finished, 1)
	assert.NotNil(t, d.finished[0].Profile)
}

func TestClient_CallAfterClose(t *testing.T) {
	fake := testutil.NewAgent(t, func(msg protocol.Message) (any, *protocol.ErrorPayload, []protocol.Message) {
		return nil, nil, nil
	})

	c := dialTest(t, fake.URL)
	require.NoError(t, c.Close())

	err := c.Profiler().Enable(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_CallHonorsContext(t *testing.T) {
	block := make(chan struct{})
	fake := testutil.NewAgent(t, func(msg protocol.Message) (any, *protocol.ErrorPayload, []protocol.Message) {
		<-block
		return nil, nil, nil
	})
	t.Cleanup(func() { close(block) })

	c := dialTest(t, fake.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Profiler().Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDial_Unreachable(t *testing.T) {
	opts := DefaultOptions()
	opts.Retry.MaxRetries = 2
	opts.Retry.InitialBackoff = time.Millisecond

	_, err := Dial(context.Background(), "ws://127.0.0.1:1/devtools", opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial agent")
}

func TestDispatch_MalformedParams(t *testing.T) {
	d := &recordingDispatcher{}
	handled, err := Dispatch(d, protocol.EventConsoleProfileStarted, json.RawMessage(`{"id": 5}`))
	assert.True(t, handled)
	assert.Error(t, err)
	assert.Empty(t, d.started)
}

type scriptDispatcher struct {
	recordingDispatcher
	scripts []protocol.ScriptParsedEvent
}

func (d *scriptDispatcher) ScriptParsed(ev protocol.ScriptParsedEvent) {
	d.scripts = append(d.scripts, ev)
}

func TestDispatch_ScriptParsed(t *testing.T) {
	params := json.RawMessage(`{"scriptId": "3", "url": "app.js"}`)

	handled, err := Dispatch(&recordingDispatcher{}, protocol.EventScriptParsed, params)
	require.NoError(t, err)
	assert.False(t, handled, "plain dispatchers do not take script events")

	d := &scriptDispatcher{}
	handled, err = Dispatch(d, protocol.EventScriptParsed, params)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []protocol.ScriptParsedEvent{{ScriptID: "3", URL: "app.js"}}, d.scripts)
}
