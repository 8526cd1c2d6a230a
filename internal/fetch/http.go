package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/surfacefuzz/internal/model"
)

const (
	defaultUserAgent   = "surfacefuzz/1.0"
	defaultMaxBodySize = 5 * 1024 * 1024
)

// Operation names the kind of request reported to an Observer.
type Operation string

const (
	OperationFetch  Operation = "fetch"
	OperationSubmit Operation = "submit"
	OperationProbe  Operation = "probe"
)

// Observer receives one call per completed request.
type Observer interface {
	ObserveRequest(op Operation, status int, err error, elapsed time.Duration)
}

// HTTPFetcher implements Fetcher and Prober over net/http.
type HTTPFetcher struct {
	client      *http.Client
	pacer       *Pacer
	userAgent   string
	maxBodySize int64
	observer    Observer
	logger      *slog.Logger
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithPacer shares pacer with the fetcher.
func WithPacer(p *Pacer) HTTPOption {
	return func(f *HTTPFetcher) {
		f.pacer = p
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// WithMaxBodySize caps the bytes read per response.
func WithMaxBodySize(n int64) HTTPOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithObserver reports every request to o.
func WithObserver(o Observer) HTTPOption {
	return func(f *HTTPFetcher) {
		f.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(f *HTTPFetcher) {
		f.logger = l
	}
}

// NewHTTPFetcher creates a fetcher on client. A client without a cookie jar
// is copied and given one, since authenticated crawling depends on it.
func NewHTTPFetcher(client *http.Client, opts ...HTTPOption) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if client.Jar == nil {
		c := *client
		c.Jar, _ = cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options
		client = &c
	}

	f := &HTTPFetcher{
		client:      client,
		userAgent:   defaultUserAgent,
		maxBodySize: defaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves rawURL with GET.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	if err := checkURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, classify(rawURL, err)
	}

	doc, err := f.do(ctx, OperationFetch, req)
	if err != nil {
		return nil, err
	}
	if doc.StatusCode < 200 || doc.StatusCode > 299 {
		return nil, statusError(rawURL, doc.StatusCode)
	}
	return doc, nil
}

// Submit submits form the way a browser would for an enctype of
// application/x-www-form-urlencoded or multipart/form-data.
func (f *HTTPFetcher) Submit(ctx context.Context, pageURL string, form model.Form, values map[model.InputRef]string) (*Document, error) {
	target, err := actionURL(pageURL, form.Action)
	if err != nil {
		return nil, err
	}
	fields := FormValues(form, values)

	var req *http.Request
	if form.IsPost() {
		body, contentType, err := encodeBody(form.Enctype, fields)
		if err != nil {
			return nil, classify(target.String(), err)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target.String(), body)
		if err != nil {
			return nil, classify(target.String(), err)
		}
		req.Header.Set("Content-Type", contentType)
	} else {
		target.RawQuery = fields.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return nil, classify(target.String(), err)
		}
	}
	req.Header.Set("Referer", pageURL)

	return f.do(ctx, OperationSubmit, req)
}

// Exists reports whether rawURL answers 200 without a redirect. HEAD is
// tried first, GET when the server refuses HEAD.
func (f *HTTPFetcher) Exists(ctx context.Context, rawURL string) bool {
	if checkURL(rawURL) != nil {
		return false
	}

	noRedirect := *f.client
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	status := f.probe(ctx, &noRedirect, http.MethodHead, rawURL)
	if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		status = f.probe(ctx, &noRedirect, http.MethodGet, rawURL)
	}
	return status == http.StatusOK
}

func (f *HTTPFetcher) probe(ctx context.Context, client *http.Client, method, rawURL string) int {
	if err := f.pacer.Wait(ctx); err != nil {
		return 0
	}
	defer f.pacer.Done()
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0
	}
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		f.observe(OperationProbe, 0, err, start)
		f.logger.Debug("probe failed", "url", rawURL, "error", err)
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, f.maxBodySize)) //nolint:errcheck // draining only
	f.observe(OperationProbe, resp.StatusCode, nil, start)
	return resp.StatusCode
}

func (f *HTTPFetcher) do(ctx context.Context, op Operation, req *http.Request) (*Document, error) {
	requested := req.URL.String()
	if err := f.pacer.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindTimeout, URL: requested, Err: err}
	}
	defer f.pacer.Done()

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.observe(op, 0, err, start)
		return nil, classify(requested, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		f.observe(op, resp.StatusCode, err, start)
		return nil, classify(requested, err)
	}
	f.observe(op, resp.StatusCode, nil, start)

	final := resp.Request.URL
	doc := &Document{
		URL:         final.String(),
		RequestURL:  requested,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Cookies:     f.cookies(final, resp.Cookies()),
	}

	if doc.IsHTML() {
		parser, err := NewParser(doc.URL)
		if err == nil {
			if result, err := parser.Parse(bytes.NewReader(body)); err == nil {
				doc.Title = result.Title
				doc.Links = result.Links
				doc.Forms = result.Forms
			} else {
				f.logger.Debug("html parse failed", "url", doc.URL, "error", err)
			}
		}
	}

	f.logger.Debug("request complete", "op", string(op), "method", req.Method, "url", requested, "status", resp.StatusCode, "final_url", doc.URL)
	return doc, nil
}

// cookies returns the jar content for u, with the attributes of cookies
// set by this response filled in.
func (f *HTTPFetcher) cookies(u *url.URL, set []*http.Cookie) []model.CookieSnapshot {
	attrs := make(map[string]*http.Cookie, len(set))
	for _, c := range set {
		attrs[c.Name] = c
	}

	jar := f.client.Jar.Cookies(u)
	out := make([]model.CookieSnapshot, 0, len(jar))
	for _, c := range jar {
		snap := model.CookieSnapshot{Name: c.Name, Value: c.Value}
		if a, ok := attrs[c.Name]; ok {
			snap.Domain = a.Domain
			snap.Path = a.Path
			snap.Secure = a.Secure
			snap.HTTPOnly = a.HttpOnly
		}
		out = append(out, snap)
	}
	return out
}

func (f *HTTPFetcher) observe(op Operation, status int, err error, start time.Time) {
	if f.observer != nil {
		f.observer.ObserveRequest(op, status, err, time.Since(start))
	}
}

func checkURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &Error{Kind: KindMalformed, URL: rawURL, Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return &Error{Kind: KindMalformed, URL: rawURL, Err: fmt.Errorf("not an absolute URL")}
	}
	return nil
}

func actionURL(pageURL, action string) (*url.URL, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, URL: pageURL, Err: err}
	}
	if strings.TrimSpace(action) == "" {
		return base, nil
	}
	ref, err := url.Parse(strings.TrimSpace(action))
	if err != nil {
		return nil, &Error{Kind: KindMalformed, URL: action, Err: err}
	}
	target := base.ResolveReference(ref)
	target.Fragment = ""
	if err := checkURL(target.String()); err != nil {
		return nil, err
	}
	return target, nil
}

func encodeBody(enctype string, fields url.Values) (io.Reader, string, error) {
	if enctype != "multipart/form-data" {
		return strings.NewReader(fields.Encode()), "application/x-www-form-urlencoded", nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, vals := range fields {
		for _, v := range vals {
			if err := w.WriteField(name, v); err != nil {
				return nil, "", err
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
