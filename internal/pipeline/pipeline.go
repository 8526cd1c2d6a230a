package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/surfacefuzz/internal/model"
)

// Step is one stage of a run. Steps execute in sequence, each receiving
// the run as left by the previous ones.
//
// Design decision: We use an interface rather than function types because:
// 1. Steps carry their collaborators (spider, sweeper, lists) as state
// 2. Name() gives the log and Run.PerformedSteps a stable label
// 3. Discovery-only runs are built by leaving the fuzz step out
type Step interface {
	// Do executes the step. Problems confined to one page or one submission
	// are recorded as findings on the run's site; an error is returned only
	// when the run cannot meaningfully continue.
	Do(ctx context.Context, run *model.Run) error

	// Name returns the step's name for logging and the run record.
	Name() string
}

// Pipeline executes its steps in order against one run.
type Pipeline struct {
	steps []Step

	logger *slog.Logger

	// continueOnError keeps executing the remaining steps after one fails.
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to execute the remaining
// steps after one fails. The failure is still recorded on the run.
// By default the pipeline stops at the first error, since a failed
// discovery leaves nothing to guess or fuzz.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every step in sequence and stamps the run's end time.
//
// Cancellation is checked before each step; a step in progress handles
// its own cancellation. When the context ends the run is marked TimedOut.
// Returns the first step error unless continueOnError is set; the error
// message is recorded on the run either way.
//
// Design decision: A timed-out run keeps everything recorded so far. A
// crawl cut short after an hour of work is worth reporting, and the
// findings log is append-only, so a partial run is never inconsistent.
func (p *Pipeline) Execute(ctx context.Context, run *model.Run) error {
	defer run.Finish()

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", err,
			)
			run.TimedOut = true
			run.Error = err.Error()
			return err
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"site", run.SiteURL,
		)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"site", run.SiteURL,
				"error", err,
			)
			run.Error = err.Error()
			if ctx.Err() != nil {
				run.TimedOut = true
			}
			if !p.continueOnError {
				return err
			}
			continue
		}

		p.logger.Debug("step completed",
			"step", step.Name(),
			"site", run.SiteURL,
		)
		run.AddStep(step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
