package testutil

import (
	"io"
	"os"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

// NewTestLogger returns a debug-level logger for tests. Output is discarded
// unless DEVPROF_TEST_LOG is set, in which case it goes to t.Log.
func NewTestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	if os.Getenv("DEVPROF_TEST_LOG") == "" {
		return zerolog.New(io.Discard)
	}
	return NewTestLoggerWithOutput(t)
}

// NewTestLoggerWithOutput creates a test logger that logs to t.Log().
// Lines written after the test finished, typically by connection readers
// still shutting down, are dropped.
func NewTestLoggerWithOutput(t *testing.T) zerolog.Logger {
	t.Helper()
	w := &testLogWriter{t: t}
	t.Cleanup(func() { w.done.Store(true) })

	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Logger()
}

// testLogWriter wraps testing.T to implement io.Writer.
type testLogWriter struct {
	t    *testing.T
	done atomic.Bool
}

func (w *testLogWriter) Write(p []byte) (n int, err error) {
	if !w.done.Load() {
		w.t.Log(string(p))
	}
	return len(p), nil
}
