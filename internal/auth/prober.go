package auth

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/nao1215/surfacefuzz/internal/classifier"
	"github.com/nao1215/surfacefuzz/internal/fetch"
	"github.com/nao1215/surfacefuzz/internal/model"
)

// Criterion combines the URL-change and marker signals.
type Criterion int

const (
	// CriterionAny accepts a login when either signal is present.
	CriterionAny Criterion = iota
	// CriterionAll requires the URL change and, when a marker is set, the marker.
	CriterionAll
)

// Result is the outcome of one submission.
type Result struct {
	Attempt model.CredentialAttempt

	// Landing is the response to the submission, nil when it failed.
	Landing *fetch.Document
}

// Prober drives login forms through a Fetcher.
type Prober struct {
	fetcher  fetch.Fetcher
	username string

	password   string
	dictionary []string
	guessing   bool

	marker        string
	criterion     Criterion
	stopOnSuccess bool

	logger *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithFixedPassword tries exactly one password.
func WithFixedPassword(password string) Option {
	return func(p *Prober) {
		p.password = password
		p.guessing = false
	}
}

// WithDictionary tries every word in order.
func WithDictionary(words []string) Option {
	return func(p *Prober) {
		p.dictionary = words
		p.guessing = true
	}
}

// WithSuccessMarker sets the text whose presence in a response marks a
// successful login.
func WithSuccessMarker(marker string) Option {
	return func(p *Prober) {
		p.marker = marker
	}
}

// WithCriterion selects how the success signals combine.
func WithCriterion(c Criterion) Option {
	return func(p *Prober) {
		p.criterion = c
	}
}

// WithStopOnSuccess ends dictionary guessing at the first accepted password.
func WithStopOnSuccess(stop bool) Option {
	return func(p *Prober) {
		p.stopOnSuccess = stop
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Prober) {
		p.logger = l
	}
}

// NewProber creates a prober logging in as username.
func NewProber(fetcher fetch.Fetcher, username string, opts ...Option) *Prober {
	p := &Prober{
		fetcher:   fetcher,
		username:  username,
		criterion: CriterionAny,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Candidates returns the passwords Authenticate will try.
func (p *Prober) Candidates() []string {
	if p.guessing {
		return p.dictionary
	}
	return []string{p.password}
}

// Attempt submits form once per candidate password, in order. Attempts
// continue after a success unless stop-on-success is set. A form without
// username field or submit control cannot be driven and yields a single
// failed attempt.
func (p *Prober) Attempt(ctx context.Context, page *model.Page, form model.Form, username string, candidates []string) []Result {
	base := model.CredentialAttempt{
		PageURL:  page.URL,
		FormID:   form.Label(),
		Username: username,
		Outcome:  model.OutcomeFailure,
	}

	if !form.CanAuthenticate() {
		base.Reason = "form has no username field or no submit control"
		p.logger.Warn("login form cannot be driven", "page", page.URL, "form", form.Label())
		return []Result{{Attempt: base}}
	}

	results := make([]Result, 0, len(candidates))
	for _, password := range candidates {
		if ctx.Err() != nil {
			break
		}

		attempt := base
		attempt.Password = password

		doc, err := p.fetcher.Submit(ctx, page.URL, form, map[model.InputRef]string{
			form.UsernameField: username,
			form.PasswordField: password,
		})
		if err != nil {
			attempt.Reason = err.Error()
			p.logger.Warn("login submission failed", "page", page.URL, "form", form.Label(), "error", err)
			results = append(results, Result{Attempt: attempt})
			continue
		}

		attempt.ResultURL = doc.URL
		ok, reason := p.judge(page, form, doc)
		attempt.Reason = reason
		if ok {
			attempt.Outcome = model.OutcomeSuccess
		}
		p.logger.Info("login attempt",
			"page", page.URL,
			"form", form.Label(),
			"username", username,
			"password", password,
			"outcome", string(attempt.Outcome),
			"result_url", doc.URL,
		)
		results = append(results, Result{Attempt: attempt, Landing: doc})

		if ok && p.stopOnSuccess {
			break
		}
	}
	return results
}

// Authenticate tries the configured credentials on every login form of
// page. Attempts and their findings go to site; the documents reached by
// successful attempts are returned.
func (p *Prober) Authenticate(ctx context.Context, site *model.Site, page *model.Page) []*fetch.Document {
	var landings []*fetch.Document
	for _, form := range page.Forms {
		if !form.RequiresAuthentication {
			continue
		}
		for _, r := range p.Attempt(ctx, page, form, p.username, p.Candidates()) {
			site.AddAttempt(r.Attempt)
			site.AddFinding(attemptFinding(form, r))
			if r.Attempt.Succeeded() {
				landings = append(landings, r.Landing)
			}
		}
	}
	return landings
}

// judge decides whether doc is the response to an accepted login.
//
// A response at the form's action URL without a login form counts as a
// move, so a site whose rejection page there is plain text reads as a
// success. Setting authentication_success_string settles such sites.
func (p *Prober) judge(page *model.Page, form model.Form, doc *fetch.Document) (bool, string) {
	if doc.StatusCode >= 400 {
		return false, fmt.Sprintf("status %d", doc.StatusCode)
	}

	moved := !sameResource(doc.URL, page.URL) &&
		(page.FinalURL == "" || !sameResource(doc.URL, page.FinalURL))
	if moved && sameResource(doc.URL, form.Action) {
		// The action URL renders both outcomes; only a response without
		// a login form has moved past it.
		moved = !hasAuthenticationForm(doc)
	}
	marked := p.marker != "" && bytes.Contains(doc.Body, []byte(p.marker))

	var ok bool
	switch p.criterion {
	case CriterionAll:
		ok = moved && (p.marker == "" || marked)
	default:
		ok = moved || marked
	}

	switch {
	case moved && marked:
		return ok, "landed on a new page showing the success marker"
	case moved:
		return ok, "landed on a new page"
	case marked:
		return ok, "response shows the success marker"
	case sameResource(doc.URL, form.Action) && !sameResource(doc.URL, page.URL):
		return ok, "response still shows the login form"
	default:
		return ok, "stayed on the login page"
	}
}

func hasAuthenticationForm(doc *fetch.Document) bool {
	for _, f := range classifier.Classify(doc.Forms) {
		if f.RequiresAuthentication {
			return true
		}
	}
	return false
}

// sameResource compares two URLs ignoring query and fragment.
func sameResource(a, b string) bool {
	return stripQuery(a) == stripQuery(b)
}

func stripQuery(raw string) string {
	u, err := url.Parse(model.NormalizeURL(raw))
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.ForceQuery = false
	return u.String()
}

func attemptFinding(form model.Form, r Result) model.Finding {
	f := model.Finding{
		Kind:      model.KindAuthenticationFailed,
		PageURL:   r.Attempt.PageURL,
		FormID:    r.Attempt.FormID,
		Value:     r.Attempt.Password,
		ResultURL: r.Attempt.ResultURL,
		Detail:    fmt.Sprintf("user %q: %s", r.Attempt.Username, r.Attempt.Reason),
	}
	if in, ok := form.Input(form.PasswordField); ok {
		f.Input = in.Label()
	}
	if r.Landing != nil {
		f.StatusCode = r.Landing.StatusCode
	}
	if r.Attempt.Succeeded() {
		f.Kind = model.KindAuthenticationSucceeded
	}
	return f
}
