package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/surfacefuzz/internal/model"
)

// stepFactory returns a Factory building a one-step pipeline per config
// path, with the path doubling as the site URL.
func stepFactory(do func(ctx context.Context, run *model.Run) error) Factory {
	return func(_ context.Context, configPath string) (*Target, error) {
		p := New()
		p.AddStep(&mockStep{name: "step", doFunc: do})
		return &Target{Pipeline: p, Run: model.NewRun(configPath, configPath)}, nil
	}
}

func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(stepFactory(nil))
		if bp.concurrency != 1 {
			t.Errorf("expected default concurrency 1, got %d", bp.concurrency)
		}
		if bp.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithConcurrency option", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(stepFactory(nil), WithConcurrency(5))
		if bp.concurrency != 5 {
			t.Errorf("expected concurrency 5, got %d", bp.concurrency)
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(stepFactory(nil), WithConcurrency(0))
		if bp.concurrency != 1 {
			t.Errorf("expected default concurrency, got %d", bp.concurrency)
		}
	})

	t.Run("applies WithBatchLogger option", func(t *testing.T) {
		t.Parallel()

		logger := slog.Default()
		bp := NewBatchProcessor(stepFactory(nil), WithBatchLogger(logger))
		if bp.logger != logger {
			t.Error("expected custom logger")
		}
	})
}

func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("runs every configuration", func(t *testing.T) {
		t.Parallel()

		var processed atomic.Int32
		bp := NewBatchProcessor(stepFactory(func(_ context.Context, _ *model.Run) error {
			processed.Add(1)
			return nil
		}), WithConcurrency(3))

		results, err := bp.ProcessBatch(context.Background(), []string{"a.yaml", "b.yaml", "c.yaml"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 3 || processed.Load() != 3 {
			t.Errorf("got %d results, %d processed", len(results), processed.Load())
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var current, peak atomic.Int32
		var mu sync.Mutex
		bp := NewBatchProcessor(stepFactory(func(_ context.Context, _ *model.Run) error {
			n := current.Add(1)
			mu.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
			return nil
		}), WithConcurrency(2))

		paths := make([]string, 8)
		for i := range paths {
			paths[i] = fmt.Sprintf("site%d.yaml", i)
		}
		if _, err := bp.ProcessBatch(context.Background(), paths); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("peak concurrency %d, expected <= 2", peak.Load())
		}
	})

	t.Run("maintains result order", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(stepFactory(nil), WithConcurrency(3))
		paths := []string{"first.yaml", "second.yaml", "third.yaml"}

		results, err := bp.ProcessBatch(context.Background(), paths)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, run := range results {
			if run.ConfigPath != paths[i] {
				t.Errorf("results[%d] = %q, expected %q", i, run.ConfigPath, paths[i])
			}
		}
	})

	t.Run("continues after an individual run fails", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(stepFactory(func(_ context.Context, run *model.Run) error {
			if run.SiteURL == "fail.yaml" {
				return errors.New("simulated failure")
			}
			return nil
		}))

		results, err := bp.ProcessBatch(context.Background(), []string{"first.yaml", "fail.yaml", "third.yaml"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[1].Error == "" {
			t.Error("expected error in second result")
		}
		if results[0].Error != "" || results[2].Error != "" {
			t.Error("other runs should succeed")
		}
	})

	t.Run("records configuration errors without running", func(t *testing.T) {
		t.Parallel()

		configErr := errors.New("site_url is required")
		bp := NewBatchProcessor(func(_ context.Context, configPath string) (*Target, error) {
			if configPath == "bad.yaml" {
				return nil, configErr
			}
			return stepFactory(nil)(context.Background(), configPath)
		})

		results, err := bp.ProcessBatch(context.Background(), []string{"bad.yaml", "good.yaml"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[0].Error != configErr.Error() || results[0].Site != nil {
			t.Errorf("bad run = %+v", results[0])
		}
		if results[0].ConfigPath != "bad.yaml" || results[0].FinishedAt.IsZero() {
			t.Errorf("bad run should name its config and be finished: %+v", results[0])
		}
		if results[1].Error != "" {
			t.Errorf("good run error = %q", results[1].Error)
		}
	})

	t.Run("releases each target", func(t *testing.T) {
		t.Parallel()

		var closed atomic.Int32
		bp := NewBatchProcessor(func(ctx context.Context, configPath string) (*Target, error) {
			target, err := stepFactory(nil)(ctx, configPath)
			if err != nil {
				return nil, err
			}
			target.Close = func() { closed.Add(1) }
			return target, nil
		})

		if _, err := bp.ProcessBatch(context.Background(), []string{"a.yaml", "b.yaml"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if closed.Load() != 2 {
			t.Errorf("closed %d targets, expected 2", closed.Load())
		}
	})

	t.Run("handles context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		var started atomic.Int32
		bp := NewBatchProcessor(stepFactory(func(ctx context.Context, _ *model.Run) error {
			started.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		}), WithConcurrency(2))

		paths := make([]string, 10)
		for i := range paths {
			paths[i] = fmt.Sprintf("site%d.yaml", i)
		}

		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()

		_, err := bp.ProcessBatch(ctx, paths)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		//nolint:gosec // len(paths) is small
		if started.Load() >= int32(len(paths)) {
			t.Error("expected some runs to not start due to cancellation")
		}
	})
}

func TestBatchProcessorProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	t.Run("calls callback for each result", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		received := make(map[int]string)

		bp := NewBatchProcessor(stepFactory(nil), WithConcurrency(2))
		paths := []string{"a.yaml", "b.yaml", "c.yaml"}

		err := bp.ProcessBatchWithCallback(context.Background(), paths, func(run *model.Run, index int) {
			mu.Lock()
			defer mu.Unlock()
			received[index] = run.ConfigPath
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(received) != len(paths) {
			t.Fatalf("expected %d callbacks, got %d", len(paths), len(received))
		}
		for i, path := range paths {
			if received[i] != path {
				t.Errorf("callback %d got %q, expected %q", i, received[i], path)
			}
		}
	})
}

func TestBatchProcessorRunTimeout(t *testing.T) {
	t.Parallel()

	bp := NewBatchProcessor(stepFactory(func(ctx context.Context, _ *model.Run) error {
		<-ctx.Done()
		return ctx.Err()
	}), WithRunTimeout(50*time.Millisecond), WithConcurrency(2))

	runs, err := bp.ProcessBatch(context.Background(), []string{"a.yaml", "b.yaml"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, run := range runs {
		if !run.TimedOut {
			t.Errorf("%s: expected the run to time out", run.ConfigPath)
		}
		if run.FinishedAt.IsZero() {
			t.Errorf("%s: timed out run should still be finished", run.ConfigPath)
		}
	}
}
