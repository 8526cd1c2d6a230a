package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/surfacefuzz/internal/classifier"
	"github.com/nao1215/surfacefuzz/internal/fetch"
	"github.com/nao1215/surfacefuzz/internal/model"
)

// ErrInvalidOrigin is returned when the seed is not an absolute http(s) URL.
var ErrInvalidOrigin = errors.New("origin must be an absolute http or https URL")

// ErrNoProber is returned by GuessPaths when no existence probe is available.
var ErrNoProber = errors.New("no existence prober configured")

// Authenticator tries to pass the login forms of a freshly recorded page.
// It returns the documents reached by successful attempts, which the
// crawler records and follows like any other page.
type Authenticator interface {
	Authenticate(ctx context.Context, site *model.Site, page *model.Page) []*fetch.Document
}

// Spider builds the site model of one origin.
//
// Every URL is claimed on the Site before it is queued, so it is fetched
// at most once however many pages link to it and however many workers run.
type Spider struct {
	fetcher fetch.Fetcher
	prober  fetch.Prober
	auth    Authenticator

	// maxPages caps the number of URLs claimed per site, failed ones
	// included. Zero means no cap.
	maxPages int

	// workers is the number of concurrent fetches.
	workers int

	filter pathFilter
	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxPages caps the number of URLs fetched per site.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithWorkers sets the number of concurrent fetches.
func WithWorkers(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithAuthenticator enables authentication on pages holding login forms.
func WithAuthenticator(a Authenticator) SpiderOption {
	return func(s *Spider) {
		s.auth = a
	}
}

// WithProber sets the existence probe used by GuessPaths.
func WithProber(p fetch.Prober) SpiderOption {
	return func(s *Spider) {
		s.prober = p
	}
}

// WithIgnorePatterns sets URL path globs that are never fetched,
// e.g. "/logout*" or "*.pdf".
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.filter.ignore = patterns
	}
}

// WithFollowPatterns restricts the crawl to URL paths matching at least
// one glob. The seed is always fetched.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.filter.follow = patterns
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = l
	}
}

// NewSpider creates a spider fetching through fetcher. When fetcher can
// also probe for existence it serves as the default prober.
func NewSpider(fetcher fetch.Fetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:  fetcher,
		maxPages: 1000,
		workers:  1,
		logger:   slog.Default(),
	}
	if p, ok := fetcher.(fetch.Prober); ok {
		s.prober = p
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Discover crawls every page reachable by links from origin without
// leaving it. Pages that fail to load are recorded as FetchFailed findings
// and the crawl carries on. The returned error is non-nil only for an
// invalid origin or a canceled context; the site built so far is returned
// with the latter.
func (s *Spider) Discover(ctx context.Context, origin string) (*model.Site, error) {
	u, err := url.Parse(origin)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrigin, origin)
	}

	site := model.NewSite(origin)
	site.Claim(site.Origin(), s.maxPages)

	s.logger.Info("starting discovery", "origin", site.Origin(), "workers", s.workers, "max_pages", s.maxPages)
	err = s.crawl(ctx, site, []task{{url: site.Origin(), via: model.DiscoverySeed}})
	s.logger.Info("discovery finished", "origin", site.Origin(), "pages", site.PageCount())
	return site, err
}

// GuessPaths probes origin+guess for every guess not already known. Each
// page that exists is recorded as an unlinked page and crawled; pages only
// reachable through it are attributed to it. Run it after Discover, once
// every linked page is known.
func (s *Spider) GuessPaths(ctx context.Context, site *model.Site, guesses []string) error {
	if s.prober == nil {
		return ErrNoProber
	}

	var seeds []task
	for _, guess := range guesses {
		if err := ctx.Err(); err != nil {
			return err
		}

		candidate := model.NormalizeURL(model.JoinGuess(site.Origin(), guess))
		if site.Known(candidate) || !site.Contains(candidate) || !s.filter.allows(candidate) {
			continue
		}
		if !s.prober.Exists(ctx, candidate) {
			continue
		}
		if !site.Claim(candidate, s.maxPages) {
			s.logger.Debug("page cap reached, guess not crawled", "url", candidate)
			continue
		}

		site.AddFinding(model.Finding{
			Kind:    model.KindUnlinkedPageDiscovered,
			PageURL: candidate,
			Detail:  "page guessing found an unlinked page",
		})
		s.logger.Info("unlinked page found", "url", candidate, "guess", guess)
		seeds = append(seeds, task{url: candidate, via: model.DiscoveryGuess})
	}

	if len(seeds) == 0 {
		return nil
	}
	return s.crawl(ctx, site, seeds)
}

// crawl drains a worklist seeded with already claimed tasks.
func (s *Spider) crawl(ctx context.Context, site *model.Site, seeds []task) error {
	wl := newWorklist()
	for _, t := range seeds {
		wl.push(t)
	}
	stop := context.AfterFunc(ctx, wl.close)
	defer stop()

	var g errgroup.Group
	for range s.workers {
		g.Go(func() error {
			for {
				t, ok := wl.pop()
				if !ok {
					return nil
				}
				s.visit(ctx, site, wl, t)
				wl.done()
			}
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return an error

	return ctx.Err()
}

// visit fetches one claimed URL, records it, authenticates on it when it
// holds a login form and queues its unclaimed links.
func (s *Spider) visit(ctx context.Context, site *model.Site, wl *worklist, t task) {
	doc, err := s.fetcher.Fetch(ctx, t.url)
	if err != nil {
		if ctx.Err() == nil {
			s.recordFailure(site, t.url, err)
		}
		return
	}

	page := newPage(t.url, doc, t.via)
	if err := site.AddPage(page); err != nil {
		s.logger.Debug("page not recorded", "url", t.url, "error", err)
		return
	}
	s.logger.Debug("page recorded", "url", page.URL, "via", string(t.via), "forms", len(page.Forms), "links", len(page.Links))

	if t.via == model.DiscoveryGuessLink {
		site.AddFinding(model.Finding{
			Kind:    model.KindUnlinkedPageDiscovered,
			PageURL: page.URL,
			Detail:  "reachable only through a guessed page",
		})
	}

	if s.auth != nil && page.HasAuthenticationForm() {
		for _, landing := range s.auth.Authenticate(ctx, site, page) {
			s.recordLanding(site, wl, landing)
		}
	}

	s.enqueueLinks(site, wl, page.Links, childVia(t.via))
}

// recordLanding adds the page reached by a successful login, unless it is
// known already, and follows its links.
func (s *Spider) recordLanding(site *model.Site, wl *worklist, doc *fetch.Document) {
	if !site.Claim(doc.URL, s.maxPages) {
		return
	}
	page := newPage(doc.URL, doc, model.DiscoveryAuthentication)
	if err := site.AddPage(page); err != nil {
		s.logger.Debug("landing page not recorded", "url", doc.URL, "error", err)
		return
	}
	s.logger.Info("authenticated page recorded", "url", page.URL)
	s.enqueueLinks(site, wl, page.Links, model.DiscoveryLink)
}

func (s *Spider) enqueueLinks(site *model.Site, wl *worklist, links []string, via model.DiscoverySource) {
	for _, link := range links {
		if !s.filter.allows(link) {
			continue
		}
		if site.Claim(link, s.maxPages) {
			wl.push(task{url: model.NormalizeURL(link), via: via})
		}
	}
}

func (s *Spider) recordFailure(site *model.Site, rawURL string, err error) {
	s.logger.Warn("fetch failed", "url", rawURL, "error", err)

	f := model.Finding{
		Kind:    model.KindFetchFailed,
		PageURL: model.NormalizeURL(rawURL),
		Detail:  err.Error(),
	}
	var fe *fetch.Error
	if errors.As(err, &fe) {
		f.StatusCode = fe.StatusCode
	}
	site.AddFinding(f)
}

// childVia is the discovery source of pages linked from a page found via v.
func childVia(v model.DiscoverySource) model.DiscoverySource {
	switch v {
	case model.DiscoveryGuess, model.DiscoveryGuessLink:
		return model.DiscoveryGuessLink
	default:
		return model.DiscoveryLink
	}
}

// newPage converts a fetched document into a page recorded under rawURL.
func newPage(rawURL string, doc *fetch.Document, via model.DiscoverySource) *model.Page {
	page := &model.Page{
		URL:           model.NormalizeURL(rawURL),
		StatusCode:    doc.StatusCode,
		ContentType:   doc.ContentType,
		Title:         doc.Title,
		Forms:         classifier.Classify(doc.Forms),
		Links:         doc.Links,
		Cookies:       doc.Cookies,
		DiscoveredVia: via,
	}
	if u, err := url.Parse(page.URL); err == nil {
		page.Query = u.RawQuery
	}
	if final := model.NormalizeURL(doc.URL); final != page.URL {
		page.FinalURL = final
	}
	page.SetBody(doc.Body)
	return page
}
