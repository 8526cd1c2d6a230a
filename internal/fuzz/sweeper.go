package fuzz

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/agnivade/levenshtein"

	"github.com/nao1215/surfacefuzz/internal/fetch"
	"github.com/nao1215/surfacefuzz/internal/model"
)

// deviationWindow bounds the bytes compared when computing Deviation.
const deviationWindow = 2048

// Completeness selects how many vectors each input receives.
type Completeness int

const (
	// CompletenessFull delivers every vector to every input.
	CompletenessFull Completeness = iota
	// CompletenessRandom delivers a random sample of the vectors to each input.
	CompletenessRandom
)

// Delivery is one submitted payload and its response.
type Delivery struct {
	Page  *model.Page
	Form  model.Form
	Input model.Input
	Value string

	// Probe is set for sanitization probes.
	Probe bool

	Document *fetch.Document
}

// Analyzer inspects deliveries and reports findings of its own.
// It may be called from one goroutine at a time only.
type Analyzer interface {
	Analyze(d Delivery) []model.Finding
}

// Sweeper drives the payload sweep.
type Sweeper struct {
	fetcher      fetch.Fetcher
	completeness Completeness
	sample       int
	seed         uint64
	analyzers    []Analyzer
	logger       *slog.Logger
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithCompleteness selects full or random vector coverage.
func WithCompleteness(c Completeness) Option {
	return func(s *Sweeper) {
		s.completeness = c
	}
}

// WithRandomSample sets the number of vectors per input under random
// completeness.
func WithRandomSample(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.sample = n
		}
	}
}

// WithSeed makes random sampling reproducible. Zero picks a random seed.
func WithSeed(seed uint64) Option {
	return func(s *Sweeper) {
		s.seed = seed
	}
}

// WithAnalyzers adds analyzers run on every successful delivery.
func WithAnalyzers(a ...Analyzer) Option {
	return func(s *Sweeper) {
		s.analyzers = append(s.analyzers, a...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = l
	}
}

// NewSweeper creates a sweeper submitting through fetcher.
func NewSweeper(fetcher fetch.Fetcher, opts ...Option) *Sweeper {
	s := &Sweeper{
		fetcher:      fetcher,
		completeness: CompletenessFull,
		sample:       10,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep submits every vector and every sanitization probe to every
// fuzzable input of every submittable form on the site's pages. Forms
// without a submit control are skipped. An input without a name cannot
// carry a value, so it gets a single DeliveryFailed finding instead. The
// findings appended to site are returned in order. A canceled context ends
// the sweep early.
func (s *Sweeper) Sweep(ctx context.Context, site *model.Site, vectors, probes []string) []model.Finding {
	seed := s.seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	var out []model.Finding
	for _, page := range site.Pages() {
		for _, form := range page.Forms {
			if !form.Submittable() {
				s.logger.Debug("form has no submit control, skipped", "page", page.URL, "form", form.Label())
				continue
			}

			for _, in := range form.UnnamedInputs() {
				out = append(out, s.unnamed(site, page, form, in))
			}
			for _, in := range form.FuzzTargets() {
				for _, v := range s.pick(rng, vectors) {
					if ctx.Err() != nil {
						return out
					}
					out = append(out, s.deliver(ctx, site, Delivery{Page: page, Form: form, Input: in, Value: v})...)
				}
				for _, v := range probes {
					if ctx.Err() != nil {
						return out
					}
					out = append(out, s.deliver(ctx, site, Delivery{Page: page, Form: form, Input: in, Value: v, Probe: true})...)
				}
			}
		}
	}

	s.logger.Info("sweep finished", "origin", site.Origin(), "findings", len(out))
	return out
}

// pick returns the vectors one input receives.
func (s *Sweeper) pick(rng *rand.Rand, vectors []string) []string {
	if s.completeness != CompletenessRandom || len(vectors) <= s.sample {
		return vectors
	}
	picked := make([]string, 0, s.sample)
	for _, i := range rng.Perm(len(vectors))[:s.sample] {
		picked = append(picked, vectors[i])
	}
	return picked
}

// unnamed records an input that no submission can reach.
func (s *Sweeper) unnamed(site *model.Site, page *model.Page, form model.Form, in model.Input) model.Finding {
	s.logger.Warn("input has no name, not fuzzed", "page", page.URL, "form", form.Label(), "input", in.Label())
	return site.AddFinding(model.Finding{
		Kind:    model.KindDeliveryFailed,
		PageURL: page.URL,
		FormID:  form.Label(),
		Input:   in.Label(),
		Detail:  "input has no name, so no value can be submitted",
	})
}

// deliver submits one value and records the outcome plus whatever the
// analyzers report about it.
func (s *Sweeper) deliver(ctx context.Context, site *model.Site, d Delivery) []model.Finding {
	doc, err := s.fetcher.Submit(ctx, d.Page.URL, d.Form, map[model.InputRef]string{d.Input.Ref: d.Value})

	f := model.Finding{
		PageURL: d.Page.URL,
		FormID:  d.Form.Label(),
		Input:   d.Input.Label(),
		Value:   d.Value,
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		f.Kind = model.KindDeliveryFailed
		f.Detail = fmt.Sprintf("submission failed: %v", err)
		var fe *fetch.Error
		if errors.As(err, &fe) {
			f.StatusCode = fe.StatusCode
		}
		s.logger.Warn("delivery failed", "page", d.Page.URL, "form", f.FormID, "input", f.Input, "error", err)
		return []model.Finding{site.AddFinding(f)}
	}

	d.Document = doc
	f.Kind = model.KindVectorDelivered
	if d.Probe {
		f.Kind = model.KindSanitizationCheckResult
	}
	f.ResultURL = doc.URL
	f.StatusCode = doc.StatusCode
	f.Reflected = d.Value != "" && bytes.Contains(doc.Body, []byte(d.Value))
	f.Deviation = deviation(d.Page.Snapshot, doc.Body)
	f.Detail = fmt.Sprintf("status %d at %s", doc.StatusCode, doc.URL)
	if f.Reflected {
		f.Detail += ", value reflected unchanged"
	}

	out := []model.Finding{site.AddFinding(f)}
	for _, a := range s.analyzers {
		for _, extra := range a.Analyze(d) {
			out = append(out, site.AddFinding(extra))
		}
	}
	return out
}

// deviation is the edit distance between the first bytes of the source
// page and of the response.
func deviation(source string, body []byte) int {
	if len(source) > deviationWindow {
		source = source[:deviationWindow]
	}
	if len(body) > deviationWindow {
		body = body[:deviationWindow]
	}
	return levenshtein.ComputeDistance(source, string(body))
}
