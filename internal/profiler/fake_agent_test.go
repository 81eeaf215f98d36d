package profiler

import (
	"context"
	"sync"

	"github.com/coral-mesh/devprof/internal/protocol"
)

// fakeAgent is an in-memory agent.Profiler. Methods named in block wait
// until their channel is closed; entered receives a method name when a call
// starts waiting.
type fakeAgent struct {
	mu             sync.Mutex
	calls          []string
	interval       int
	coverageParams protocol.StartPreciseCoverageParams

	stopProfile *protocol.Profile
	takeResult  *protocol.TakePreciseCoverageResult
	errs        map[string]error
	block       map[string]chan struct{}
	entered     chan string
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		errs:    make(map[string]error),
		block:   make(map[string]chan struct{}),
		entered: make(chan string, 16),
	}
}

func (f *fakeAgent) call(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	ch := f.block[method]
	err := f.errs[method]
	f.mu.Unlock()

	if ch != nil {
		f.entered <- method
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeAgent) blockOn(method string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.block[method] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeAgent) failOn(method string, err error) {
	f.mu.Lock()
	f.errs[method] = err
	f.mu.Unlock()
}

func (f *fakeAgent) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAgent) Enable(ctx context.Context) error {
	return f.call(ctx, protocol.MethodEnable)
}

func (f *fakeAgent) SetSamplingInterval(ctx context.Context, intervalUs int) error {
	f.mu.Lock()
	f.interval = intervalUs
	f.mu.Unlock()
	return f.call(ctx, protocol.MethodSetSamplingInterval)
}

func (f *fakeAgent) Start(ctx context.Context) error {
	return f.call(ctx, protocol.MethodStart)
}

func (f *fakeAgent) Stop(ctx context.Context) (*protocol.Profile, error) {
	if err := f.call(ctx, protocol.MethodStop); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopProfile, nil
}

func (f *fakeAgent) StartPreciseCoverage(ctx context.Context, params protocol.StartPreciseCoverageParams) error {
	f.mu.Lock()
	f.coverageParams = params
	f.mu.Unlock()
	return f.call(ctx, protocol.MethodStartPreciseCoverage)
}

func (f *fakeAgent) TakePreciseCoverage(ctx context.Context) (*protocol.TakePreciseCoverageResult, error) {
	if err := f.call(ctx, protocol.MethodTakePreciseCoverage); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.takeResult, nil
}

func (f *fakeAgent) StopPreciseCoverage(ctx context.Context) error {
	return f.call(ctx, protocol.MethodStopPreciseCoverage)
}
