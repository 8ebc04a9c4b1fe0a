package context

import (
	"context"
	"testing"
	"time"
)

// WithTest derives a context which is done 1 second before the test deadline,
// leaving time for servers under test to shut down.
//
// Without test deadline, it returns ctx and a no-op cancel.
func WithTest(ctx context.Context, t *testing.T) (context.Context, context.CancelFunc) {
	if deadline, ok := t.Deadline(); ok {
		return context.WithDeadline(ctx, deadline.Add(-time.Second))
	}
	return context.WithCancel(ctx)
}
