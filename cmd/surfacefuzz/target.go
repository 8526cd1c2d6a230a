package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/nao1215/surfacefuzz/internal/config"
	"github.com/nao1215/surfacefuzz/internal/datafile"
	"github.com/nao1215/surfacefuzz/internal/fetch"
	seclog "github.com/nao1215/surfacefuzz/internal/log"
	"github.com/nao1215/surfacefuzz/internal/model"
	"github.com/nao1215/surfacefuzz/internal/pipeline"
	"github.com/nao1215/surfacefuzz/internal/transport"
)

// errOnionWithoutProxy is returned for an onion target when neither --tor
// nor --proxy is set.
var errOnionWithoutProxy = errors.New("onion sites need --tor or --proxy")

// targetFactory prepares one run per site configuration file. It
// implements pipeline.Factory through its build method.
type targetFactory struct {
	cfg       *config.Config
	defaults  config.SiteConfig
	proxyAddr string
	observer  fetch.Observer
	logger    *slog.Logger
}

// build loads the site configuration at configPath and wires the fetcher
// and pipeline for it. Every error is a configuration error.
func (f *targetFactory) build(ctx context.Context, configPath string) (*pipeline.Target, error) {
	sc, err := loadSite(configPath, f.defaults)
	if err != nil {
		return nil, err
	}
	if transport.IsOnionHost(sc.SiteURL) && f.proxyAddr == "" {
		return nil, fmt.Errorf("%s: %w", configPath, errOnionWithoutProxy)
	}

	lists, err := datafile.Load(sc.AppDataFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}

	logger := seclog.WithSecrets(f.logger, siteSecrets(sc)...).With("config", configPath)

	fetcher, closeFn, err := f.newFetcher(ctx, sc, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}

	p := pipeline.SitePipeline(sc, lists, fetcher,
		[]pipeline.Option{pipeline.WithLogger(logger)},
		pipeline.WithSiteMaxPages(f.cfg.MaxPages),
		pipeline.WithSiteWorkers(f.cfg.Workers),
		pipeline.WithDiscoverOnly(f.cfg.DiscoverOnly),
	)

	return &pipeline.Target{
		Pipeline: p,
		Run:      model.NewRun(configPath, sc.SiteURL),
		Close:    closeFn,
	}, nil
}

// loadSite reads a site configuration and fills its unset options from
// defaults.
func loadSite(path string, defaults config.SiteConfig) (*config.SiteConfig, error) {
	sc, err := config.LoadSiteConfig(path)
	if err != nil {
		return nil, err
	}
	sc.MergeDefaults(defaults)
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// newFetcher returns the fetcher for sc and its release hook, if any.
func (f *targetFactory) newFetcher(ctx context.Context, sc *config.SiteConfig, logger *slog.Logger) (fetch.Fetcher, func(), error) {
	pacer := fetch.NewPacer(sc.TimeGapDuration())

	opts := []transport.Option{
		transport.WithTimeout(f.cfg.Timeout),
		transport.WithInsecureTLS(f.cfg.InsecureTLS),
		transport.WithCookie(sc.Cookie),
		transport.WithHeaders(sc.Headers),
	}
	if f.proxyAddr != "" {
		opts = append(opts, transport.WithProxy(f.proxyAddr))
	}
	client, err := transport.NewClient(opts...)
	if err != nil {
		return nil, nil, err
	}

	hf := fetch.NewHTTPFetcher(client.HTTPClient(),
		fetch.WithPacer(pacer),
		fetch.WithUserAgent(f.cfg.UserAgent),
		fetch.WithMaxBodySize(f.cfg.MaxBodySize),
		fetch.WithObserver(f.observer),
		fetch.WithLogger(logger),
	)

	if f.cfg.UseBrowser {
		headers := maps.Clone(sc.Headers)
		if sc.Cookie != "" {
			if headers == nil {
				headers = make(map[string]string, 1)
			}
			headers["Cookie"] = sc.Cookie
		}
		bf, err := fetch.NewBrowserFetcher(ctx,
			fetch.WithBrowserProxy(f.proxyAddr),
			fetch.WithBrowserUserAgent(f.cfg.UserAgent),
			fetch.WithBrowserHeaders(headers),
			fetch.WithBrowserInsecureTLS(f.cfg.InsecureTLS),
			fetch.WithBrowserTimeout(f.cfg.Timeout),
			fetch.WithBrowserPacer(pacer),
			fetch.WithBrowserProber(hf),
			fetch.WithBrowserObserver(f.observer),
			fetch.WithBrowserLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		return bf, bf.Close, nil
	}

	return hf, nil, nil
}

// siteSecrets lists the configured values that must never reach the log:
// the password, the cookie string and each cookie value, and header values.
func siteSecrets(sc *config.SiteConfig) []string {
	secrets := []string{sc.Password, sc.Cookie}
	for _, part := range strings.Split(sc.Cookie, ";") {
		if _, value, ok := strings.Cut(part, "="); ok {
			secrets = append(secrets, strings.TrimSpace(value))
		}
	}
	for _, v := range sc.Headers {
		secrets = append(secrets, v)
	}
	return secrets
}
