package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/surfacefuzz/internal/crawler"
	"github.com/nao1215/surfacefuzz/internal/fuzz"
	"github.com/nao1215/surfacefuzz/internal/model"
)

// ErrNoSite is returned by steps that need the site model when discovery
// has not produced one.
var ErrNoSite = errors.New("run has no site model: discovery did not run")

// DiscoverStep crawls the configured origin and stores the site model on
// the run.
type DiscoverStep struct {
	spider *crawler.Spider
	logger *slog.Logger
}

// DiscoverStepOption configures a DiscoverStep.
type DiscoverStepOption func(*DiscoverStep)

// WithDiscoverLogger sets a custom logger for the discover step.
func WithDiscoverLogger(logger *slog.Logger) DiscoverStepOption {
	return func(s *DiscoverStep) {
		s.logger = logger
	}
}

// NewDiscoverStep creates a discovery step driven by spider.
func NewDiscoverStep(spider *crawler.Spider, opts ...DiscoverStepOption) *DiscoverStep {
	s := &DiscoverStep{spider: spider, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *DiscoverStep) Name() string {
	return "discover"
}

// Do crawls run.SiteURL. The partial site is kept when the crawl is cut
// short by cancellation.
func (s *DiscoverStep) Do(ctx context.Context, run *model.Run) error {
	site, err := s.spider.Discover(ctx, run.SiteURL)
	if site != nil {
		run.Site = site
	}
	if err != nil {
		return err
	}

	s.logger.Info("discovery complete",
		"site", run.SiteURL,
		"pages", site.PageCount(),
		"attempts", len(site.Attempts()),
	)
	return nil
}

// GuessStep probes the guessed paths of the data file and crawls every
// unlinked page it finds.
type GuessStep struct {
	spider  *crawler.Spider
	guesses []string
	logger  *slog.Logger
}

// GuessStepOption configures a GuessStep.
type GuessStepOption func(*GuessStep)

// WithGuessLogger sets a custom logger for the guess step.
func WithGuessLogger(logger *slog.Logger) GuessStepOption {
	return func(s *GuessStep) {
		s.logger = logger
	}
}

// NewGuessStep creates a guessed-path step.
func NewGuessStep(spider *crawler.Spider, guesses []string, opts ...GuessStepOption) *GuessStep {
	s := &GuessStep{spider: spider, guesses: guesses, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *GuessStep) Name() string {
	return "guess"
}

// Do runs the guessed-path phase. A fetcher without an existence probe
// skips the phase instead of failing the run.
func (s *GuessStep) Do(ctx context.Context, run *model.Run) error {
	if run.Site == nil {
		return ErrNoSite
	}
	if len(s.guesses) == 0 {
		s.logger.Debug("no page guesses configured")
		return nil
	}

	before := run.Site.PageCount()
	if err := s.spider.GuessPaths(ctx, run.Site, s.guesses); err != nil {
		if errors.Is(err, crawler.ErrNoProber) {
			s.logger.Warn("page guessing skipped", "reason", err)
			return nil
		}
		return err
	}

	s.logger.Info("page guessing complete",
		"site", run.SiteURL,
		"guesses", len(s.guesses),
		"new_pages", run.Site.PageCount()-before,
	)
	return nil
}

// FuzzStep delivers fuzz vectors and sanitization probes to every input
// of the site model.
type FuzzStep struct {
	sweeper *fuzz.Sweeper
	vectors []string
	probes  []string
	logger  *slog.Logger
}

// FuzzStepOption configures a FuzzStep.
type FuzzStepOption func(*FuzzStep)

// WithFuzzLogger sets a custom logger for the fuzz step.
func WithFuzzLogger(logger *slog.Logger) FuzzStepOption {
	return func(s *FuzzStep) {
		s.logger = logger
	}
}

// NewFuzzStep creates a fuzz sweep step.
func NewFuzzStep(sweeper *fuzz.Sweeper, vectors, probes []string, opts ...FuzzStepOption) *FuzzStep {
	s := &FuzzStep{sweeper: sweeper, vectors: vectors, probes: probes, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *FuzzStep) Name() string {
	return "fuzz"
}

// Do runs the sweep. Submission failures become findings; only
// cancellation is returned as an error.
func (s *FuzzStep) Do(ctx context.Context, run *model.Run) error {
	if run.Site == nil {
		return ErrNoSite
	}

	findings := s.sweeper.Sweep(ctx, run.Site, s.vectors, s.probes)
	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.Info("fuzz sweep complete",
		"site", run.SiteURL,
		"findings", len(findings),
	)
	return nil
}
