// Package testutil provides testing utilities for devprof packages.
package testutil

import (
	"context"
	"testing"
	"time"
)

// NewTestContext returns a context that ends after 10 seconds or when the
// test finishes, whichever comes first.
func NewTestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
