package pipeline

import (
	"github.com/nao1215/surfacefuzz/internal/auth"
	"github.com/nao1215/surfacefuzz/internal/config"
	"github.com/nao1215/surfacefuzz/internal/crawler"
	"github.com/nao1215/surfacefuzz/internal/datafile"
	"github.com/nao1215/surfacefuzz/internal/fetch"
	"github.com/nao1215/surfacefuzz/internal/fuzz"
)

// SiteSettings holds the runtime defaults a site configuration may override.
type SiteSettings struct {
	// MaxPages is the page cap unless the site sets max_pages.
	MaxPages int

	// Workers is the crawl worker count unless the site sets workers.
	Workers int

	// DiscoverOnly leaves the fuzz step out.
	DiscoverOnly bool
}

// SiteOption configures SiteSettings.
type SiteOption func(*SiteSettings)

// WithSiteMaxPages sets the default page cap.
func WithSiteMaxPages(maxPages int) SiteOption {
	return func(s *SiteSettings) {
		s.MaxPages = maxPages
	}
}

// WithSiteWorkers sets the default crawl worker count.
func WithSiteWorkers(workers int) SiteOption {
	return func(s *SiteSettings) {
		s.Workers = workers
	}
}

// WithDiscoverOnly builds a pipeline that discovers without fuzzing.
func WithDiscoverOnly(discoverOnly bool) SiteOption {
	return func(s *SiteSettings) {
		s.DiscoverOnly = discoverOnly
	}
}

// SitePipeline assembles the standard pipeline for one site configuration:
// discover (with authentication when the site has credentials), guess,
// then fuzz. Every component shares fetcher, so the session established
// by a successful login carries over to guessing and fuzzing.
//
// The first variadic parameter accepts pipeline options (WithLogger, etc).
// The second accepts site settings (WithSiteMaxPages, etc).
func SitePipeline(sc *config.SiteConfig, lists *datafile.Lists, fetcher fetch.Fetcher, pipelineOpts []Option, siteOpts ...SiteOption) *Pipeline {
	p := New(pipelineOpts...)

	settings := &SiteSettings{
		MaxPages: config.DefaultMaxPages,
		Workers:  config.DefaultWorkers,
	}
	for _, opt := range siteOpts {
		opt(settings)
	}

	spiderOpts := []crawler.SpiderOption{
		crawler.WithMaxPages(sc.PageCap(settings.MaxPages)),
		crawler.WithWorkers(sc.WorkerCount(settings.Workers)),
		crawler.WithLogger(p.logger),
	}
	if len(sc.IgnorePatterns) > 0 {
		spiderOpts = append(spiderOpts, crawler.WithIgnorePatterns(sc.IgnorePatterns))
	}
	if len(sc.FollowPatterns) > 0 {
		spiderOpts = append(spiderOpts, crawler.WithFollowPatterns(sc.FollowPatterns))
	}
	if sc.AuthenticationEnabled() {
		spiderOpts = append(spiderOpts, crawler.WithAuthenticator(newProber(sc, lists, fetcher, p)))
	}
	spider := crawler.NewSpider(fetcher, spiderOpts...)

	p.AddSteps(
		NewDiscoverStep(spider, WithDiscoverLogger(p.logger)),
		NewGuessStep(spider, lists.PageGuesses, WithGuessLogger(p.logger)),
	)
	if !settings.DiscoverOnly {
		p.AddStep(NewFuzzStep(newSweeper(sc, lists, fetcher, p), lists.Vectors, lists.SanitizationInputs, WithFuzzLogger(p.logger)))
	}
	return p
}

func newProber(sc *config.SiteConfig, lists *datafile.Lists, fetcher fetch.Fetcher, p *Pipeline) *auth.Prober {
	opts := []auth.Option{
		auth.WithSuccessMarker(sc.AuthenticationSuccessString),
		auth.WithStopOnSuccess(sc.StopOnSuccess),
		auth.WithLogger(p.logger),
	}
	if sc.PasswordGuessing {
		opts = append(opts, auth.WithDictionary(lists.PasswordDictionary))
	} else {
		opts = append(opts, auth.WithFixedPassword(sc.Password))
	}
	if sc.SuccessCriterion == config.CriterionAll {
		opts = append(opts, auth.WithCriterion(auth.CriterionAll))
	}
	return auth.NewProber(fetcher, sc.Username, opts...)
}

func newSweeper(sc *config.SiteConfig, lists *datafile.Lists, fetcher fetch.Fetcher, p *Pipeline) *fuzz.Sweeper {
	opts := []fuzz.Option{
		fuzz.WithRandomSample(sc.RandomSample),
		fuzz.WithSeed(sc.Seed),
		fuzz.WithLogger(p.logger),
	}
	if sc.Completeness == config.CompletenessRandom {
		opts = append(opts, fuzz.WithCompleteness(fuzz.CompletenessRandom))
	}
	if len(lists.SensitiveData) > 0 {
		opts = append(opts, fuzz.WithAnalyzers(fuzz.NewSensitiveDataAnalyzer(lists.SensitiveData)))
	}
	if sc.LeakPatterns {
		opts = append(opts, fuzz.WithAnalyzers(fuzz.NewLeakAnalyzer()))
	}
	return fuzz.NewSweeper(fetcher, opts...)
}
