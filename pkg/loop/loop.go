package loop

import (
	"context"
	"fmt"
	"time"
)

type Next struct {
	// if not nil, breaks with error
	err error

	// if quit == true and err == nil, breaks without error
	quit bool

	// otherwise, continue loop with interval.
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("[break] with error: %v", n.err)
	}
	if n.quit {
		return "[break] without error"
	}

	return fmt.Sprintf("[continue] interval: %s", n.interval)
}

// continue loop.
//
// interval: sleep before starting next task.
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// break loop.
//
// err: If you break loop with error, set non nil value.
func Break(err error) Next {
	return Next{quit: true, err: err}
}

// Task is called repeatedly by Start, with the value it returned last time.
type Task[T any] func(context.Context, T) (T, Next)

// Start task in loop.
//
// Task returns a new value and Next, which is Continue(interval) or Break(err).
// With Continue, the task is called again with the new value after the interval.
// Zero value (Next{}) equals Continue(0).
//
// For example, polling a training job until it ends:
//
//	Start(ctx, job, func(ctx context.Context, last TrainingJob) (TrainingJob, Next) {
//		job, err := describe(ctx, last.Name)
//		if err != nil {
//			return last, Break(err)
//		}
//		if job.Completed() {
//			return job, Break(nil)
//		}
//		return job, Continue(30 * time.Second)
//	})
//
// When ctx get be Done, loop breaks with ctx.Err().
//
// It returns the value which the task returns at last, together with the error in Break.
// The error is nil when the loop breaks with Break(nil).
func Start[T any](ctx context.Context, init T, task Task[T], options ...LoopOption) (T, error) {
	select {
	case <-ctx.Done():
		return init, ctx.Err()
	default:
	}

	value := init
	for {
		lc := &loopConfig{ctx: ctx}
		for _, opt := range options {
			lc = opt(lc)
		}

		v, n := func() (T, Next) {
			ctx := lc.ctx
			if lc.deferred != nil {
				defer lc.deferred()
			}
			return task(ctx, value)
		}()

		if n.err != nil {
			return v, n.err
		} else if n.quit {
			return v, nil
		}
		value = v

		timer := time.NewTimer(n.interval)
		select {
		case <-ctx.Done():
			// shutting down is priority. it should come first, and checking timer later.
			timer.Stop()
			return value, ctx.Err()

		case <-timer.C:
			continue
		}
	}
}

type loopConfig struct {
	ctx      context.Context
	deferred func()
}

type LoopOption func(*loopConfig) *loopConfig

// set timeout per loop
//
// this timeout is set on context.Context passed to task.
func WithTimeout(d time.Duration) LoopOption {
	return func(lc *loopConfig) *loopConfig {
		ctx, cancel := context.WithTimeout(lc.ctx, d)
		return &loopConfig{
			ctx: ctx,
			deferred: func() {
				if lc.deferred != nil {
					defer lc.deferred()
				}
				cancel()
			},
		}
	}
}
