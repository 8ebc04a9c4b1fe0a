package filewatch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opst/mlci/pkg/utils/filewatch"
)

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context is not done")
	}
}

func TestUntilModifyContext(t *testing.T) {
	t.Run("when a file is created in a watched directory, it cancels context", func(t *testing.T) {
		dir := t.TempDir()

		ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), dir)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := ctx.Err(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := os.WriteFile(filepath.Join(dir, "model.json"), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
		waitDone(t, ctx)
	})

	t.Run("when a file in a watched directory is replaced by rename, it cancels context", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "model.json")
		if err := os.WriteFile(file, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
		tmp := filepath.Join(dir, "model.json.tmp")
		if err := os.WriteFile(tmp, []byte(`{"features": 1}`), 0o644); err != nil {
			t.Fatal(err)
		}

		ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), dir)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := os.Rename(tmp, file); err != nil {
			t.Fatal(err)
		}
		waitDone(t, ctx)
	})

	t.Run("when the target does not exist, it returns error", func(t *testing.T) {
		_, _, err := filewatch.UntilModifyContext(
			context.Background(), filepath.Join(t.TempDir(), "no-such-file"),
		)
		if err == nil {
			t.Error("expected error, but got nil")
		}
	})

	t.Run("cancel function cancels context without modification", func(t *testing.T) {
		ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		cancel()
		waitDone(t, ctx)
	})
}

func TestOnModify(t *testing.T) {
	t.Run("it calls back for each modification until context is done", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "model.json")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		called := make(chan struct{}, 10)
		done := make(chan error, 1)
		go func() {
			done <- filewatch.OnModify(
				ctx, 10*time.Millisecond,
				func(context.Context, error) error {
					called <- struct{}{}
					return nil
				},
				dir,
			)
		}()

		for i := 0; i < 2; i++ {
			// watching can start slightly after the goroutine, so keep writing until noticed.
			noticed := false
			for attempt := 0; attempt < 50 && !noticed; attempt++ {
				if err := os.WriteFile(file, []byte("{}"), 0o644); err != nil {
					t.Fatal(err)
				}
				select {
				case <-called:
					noticed = true
				case <-time.After(100 * time.Millisecond):
				}
			}
			if !noticed {
				t.Fatalf("modification #%d is not noticed", i+1)
			}
		}

		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("unexpected error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("OnModify does not stop")
		}
	})

	t.Run("it stops with the error from callback", func(t *testing.T) {
		dir := t.TempDir()
		expectedErr := errors.New("fake error")

		done := make(chan error, 1)
		go func() {
			done <- filewatch.OnModify(
				context.Background(), time.Millisecond,
				func(context.Context, error) error { return expectedErr },
				dir,
			)
		}()

		file := filepath.Join(dir, "model.json")
		for attempt := 0; attempt < 50; attempt++ {
			if err := os.WriteFile(file, []byte("{}"), 0o644); err != nil {
				t.Fatal(err)
			}
			select {
			case err := <-done:
				if !errors.Is(err, expectedErr) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
		t.Fatal("OnModify does not stop")
	})
}
