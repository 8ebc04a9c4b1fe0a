package filewatch

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// UntilModifyContext returns a context that is canceled
// when one of target files is modified (= written, created, removed, or renamed).
//
// targetFilePath can be directories. Then, modifications of files in them are watched.
//
// If error is not nil, both of the the context and the cancel function are nil.
func UntilModifyContext(ctx context.Context, targetFilePath ...string) (context.Context, func(), error) {
	cctx, cancel := context.WithCancelCause(ctx)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		cancel(err)
		return nil, nil, err
	}

	go func() {
		defer w.Close()

		for {
			select {
			case <-cctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				cancel(fmt.Errorf("%s is updated (%s)", event.Name, event.Op.String()))
			}
		}
	}()

	for _, f := range targetFilePath {
		if err = w.Add(f); err != nil {
			cancel(err)
			return nil, nil, err
		}
	}
	return cctx, func() { cancel(nil) }, nil
}

// OnModify calls onModify each time one of target files is modified, until ctx is done.
//
// After a modification, it waits for settle before calling onModify,
// so that a burst of events (for example, write to a temporary file and rename it) causes only one call.
// Watching is restarted before onModify is called, so modifications during onModify are not lost.
//
// It returns ctx.Err() when ctx is done, or the error from onModify.
func OnModify(
	ctx context.Context, settle time.Duration,
	onModify func(ctx context.Context, cause error) error,
	targetFilePath ...string,
) error {
	wctx, cancel, err := UntilModifyContext(ctx, targetFilePath...)
	if err != nil {
		return err
	}

	for {
		<-wctx.Done()
		cause := context.Cause(wctx)
		cancel()
		if err := ctx.Err(); err != nil {
			return err
		}

		timer := time.NewTimer(settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		next, nextCancel, err := UntilModifyContext(ctx, targetFilePath...)
		if err != nil {
			return err
		}
		if err := onModify(ctx, cause); err != nil {
			nextCancel()
			return err
		}
		wctx, cancel = next, nextCancel
	}
}
