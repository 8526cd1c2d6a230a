package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/surfacefuzz/internal/model"
)

// Target is one prepared run: the pipeline to execute, the run it fills
// and an optional release hook for resources such as a browser.
type Target struct {
	Pipeline *Pipeline
	Run      *model.Run
	Close    func()
}

// Factory prepares the target for one site configuration file. An error
// is a configuration error; the run is then reported as failed without
// sending any request.
type Factory func(ctx context.Context, configPath string) (*Target, error)

// BatchProcessor runs several site configurations, each with a fresh
// pipeline and site model, at most concurrency at a time.
type BatchProcessor struct {
	factory     Factory
	concurrency int
	runTimeout  time.Duration
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent runs.
// Default is 1 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithRunTimeout bounds each run. A run cut short keeps what it found so
// far and is marked timed out. Zero means no bound.
func WithRunTimeout(d time.Duration) BatchOption {
	return func(b *BatchProcessor) {
		b.runTimeout = d
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(factory Factory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch runs every configuration and returns the runs in input
// order, failed ones included. The error is non-nil only when the batch
// was cancelled; runs never started are then nil.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, configPaths []string) ([]*model.Run, error) {
	bp.logger.Info("starting batch processing",
		"total_sites", len(configPaths),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	// Each goroutine writes only its own index.
	results := make([]*model.Run, len(configPaths))
	err := bp.process(ctx, configPaths, func(run *model.Run, index int) {
		results[index] = run
	})

	bp.logger.Info("batch processing complete",
		"total_sites", len(configPaths),
		"elapsed", time.Since(startTime),
	)
	return results, err
}

// ProcessBatchWithCallback runs every configuration and calls callback
// with each finished run and its index in configPaths. The callback runs
// on the goroutine that finished the run and must be safe for concurrent
// use when concurrency is above one.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	configPaths []string,
	callback func(run *model.Run, index int),
) error {
	bp.logger.Info("starting batch processing with callback",
		"total_sites", len(configPaths),
		"concurrency", bp.concurrency,
	)
	return bp.process(ctx, configPaths, callback)
}

func (bp *BatchProcessor) process(ctx context.Context, configPaths []string, done func(*model.Run, int)) error {
	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, path := range configPaths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			bp.logger.Info("running site configuration",
				"config", path,
				"index", i+1,
				"total", len(configPaths),
			)
			run := bp.runOne(ctx, path)
			done(run, i)
			return nil
		})
	}
	return g.Wait()
}

// runOne prepares and executes one target. Failures are recorded on the
// returned run and never cancel the other runs.
func (bp *BatchProcessor) runOne(ctx context.Context, configPath string) *model.Run {
	target, err := bp.factory(ctx, configPath)
	if err != nil {
		bp.logger.Error("invalid site configuration",
			"config", configPath,
			"error", err,
		)
		run := model.NewRun(configPath, "")
		run.Error = err.Error()
		run.Finish()
		return run
	}
	if target.Close != nil {
		defer target.Close()
	}

	if bp.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bp.runTimeout)
		defer cancel()
	}

	if err := target.Pipeline.Execute(ctx, target.Run); err != nil {
		bp.logger.Warn("run failed",
			"config", configPath,
			"site", target.Run.SiteURL,
			"error", err,
		)
		return target.Run
	}

	bp.logger.Info("run completed",
		"config", configPath,
		"site", target.Run.SiteURL,
		"findings", len(target.Run.Findings()),
	)
	return target.Run
}
