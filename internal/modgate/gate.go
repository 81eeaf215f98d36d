// Package modgate provides the barrier that holds back work until a named
// host module has finished loading.
package modgate

import (
	"context"
	"sync"
)

// Gate blocks until a module is ready.
type Gate interface {
	Ready(ctx context.Context, module string) error
}

// AlwaysReady is a Gate for hosts that have no lazily loaded modules.
type AlwaysReady struct{}

// Ready implements Gate.
func (AlwaysReady) Ready(ctx context.Context, _ string) error {
	return ctx.Err()
}

// LoadFunc loads one module.
type LoadFunc func(ctx context.Context, module string) error

type load struct {
	done chan struct{}
	err  error
}

// Loader is a Gate that loads each module once. Concurrent callers share a
// single load; a failed load is forgotten so the next caller tries again.
type Loader struct {
	fn LoadFunc

	mu    sync.Mutex
	loads map[string]*load
}

// NewLoader creates a Loader backed by fn.
func NewLoader(fn LoadFunc) *Loader {
	return &Loader{
		fn:    fn,
		loads: make(map[string]*load),
	}
}

// Ready implements Gate. A caller whose ctx ends while waiting returns
// ctx.Err(); the load itself keeps running for the other waiters.
func (l *Loader) Ready(ctx context.Context, module string) error {
	l.mu.Lock()
	ld, ok := l.loads[module]
	if !ok {
		ld = &load{done: make(chan struct{})}
		l.loads[module] = ld
		go l.run(module, ld)
	}
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ld.done:
		return ld.err
	}
}

// Loaded reports whether module has loaded successfully.
func (l *Loader) Loaded(module string) bool {
	l.mu.Lock()
	ld, ok := l.loads[module]
	l.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-ld.done:
		return ld.err == nil
	default:
		return false
	}
}

func (l *Loader) run(module string, ld *load) {
	ld.err = l.fn(context.Background(), module)
	if ld.err != nil {
		l.mu.Lock()
		delete(l.loads, module)
		l.mu.Unlock()
	}
	close(ld.done)
}
