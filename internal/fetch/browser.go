package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/nao1215/surfacefuzz/internal/model"
)

// BrowserFetcher drives a headless Chrome tab. Pages are rendered, so links
// and forms created by scripts are visible, and submissions run the page's
// own submit handlers. One tab serves every call in turn.
type BrowserFetcher struct {
	mu sync.Mutex

	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	proxy       string
	userAgent   string
	headers     map[string]string
	insecureTLS bool
	navTimeout  time.Duration

	pacer    *Pacer
	prober   Prober
	observer Observer
	logger   *slog.Logger
}

// BrowserOption configures a BrowserFetcher.
type BrowserOption func(*BrowserFetcher)

// WithBrowserProxy routes the browser through a SOCKS5 proxy (host:port).
func WithBrowserProxy(addr string) BrowserOption {
	return func(b *BrowserFetcher) {
		b.proxy = addr
	}
}

// WithBrowserUserAgent sets the browser's User-Agent.
func WithBrowserUserAgent(ua string) BrowserOption {
	return func(b *BrowserFetcher) {
		b.userAgent = ua
	}
}

// WithBrowserHeaders adds headers to every request, Cookie included.
func WithBrowserHeaders(h map[string]string) BrowserOption {
	return func(b *BrowserFetcher) {
		b.headers = h
	}
}

// WithBrowserInsecureTLS ignores certificate errors.
func WithBrowserInsecureTLS(insecure bool) BrowserOption {
	return func(b *BrowserFetcher) {
		b.insecureTLS = insecure
	}
}

// WithBrowserTimeout bounds each navigation.
func WithBrowserTimeout(d time.Duration) BrowserOption {
	return func(b *BrowserFetcher) {
		if d > 0 {
			b.navTimeout = d
		}
	}
}

// WithBrowserPacer shares pacer with the browser.
func WithBrowserPacer(p *Pacer) BrowserOption {
	return func(b *BrowserFetcher) {
		b.pacer = p
	}
}

// WithBrowserProber answers existence checks with p instead of a full page
// navigation. p does not share the browser's cookies.
func WithBrowserProber(p Prober) BrowserOption {
	return func(b *BrowserFetcher) {
		b.prober = p
	}
}

// WithBrowserObserver reports every navigation to o.
func WithBrowserObserver(o Observer) BrowserOption {
	return func(b *BrowserFetcher) {
		b.observer = o
	}
}

// WithBrowserLogger sets the logger.
func WithBrowserLogger(l *slog.Logger) BrowserOption {
	return func(b *BrowserFetcher) {
		b.logger = l
	}
}

// NewBrowserFetcher launches a headless browser bound to ctx. Close must be
// called to stop it.
func NewBrowserFetcher(ctx context.Context, opts ...BrowserOption) (*BrowserFetcher, error) {
	b := &BrowserFetcher{
		userAgent:  defaultUserAgent,
		navTimeout: 30 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.UserAgent(b.userAgent))
	if b.proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer("socks5://"+b.proxy))
	}
	if b.insecureTLS {
		allocOpts = append(allocOpts, chromedp.Flag("ignore-certificate-errors", true))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	b.ctx = tabCtx
	b.cancelTab = cancelTab
	b.cancelAlloc = cancelAlloc

	setup := []chromedp.Action{network.Enable()}
	if len(b.headers) > 0 {
		hdrs := make(network.Headers, len(b.headers))
		for k, v := range b.headers {
			hdrs[k] = v
		}
		setup = append(setup, network.SetExtraHTTPHeaders(hdrs))
	}
	if err := chromedp.Run(b.ctx, setup...); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return b, nil
}

// Close stops the browser.
func (b *BrowserFetcher) Close() {
	if b.cancelTab != nil {
		b.cancelTab()
	}
	if b.cancelAlloc != nil {
		b.cancelAlloc()
	}
}

// Fetch navigates to rawURL and returns the rendered document.
func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	if err := checkURL(rawURL); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.navigate(ctx, OperationFetch, rawURL, chromedp.Navigate(rawURL))
	if err != nil {
		return nil, err
	}
	if doc.StatusCode < 200 || doc.StatusCode > 299 {
		return nil, statusError(rawURL, doc.StatusCode)
	}
	return doc, nil
}

// Submit loads pageURL, fills the form in place and clicks its submit
// control. When the submission does not navigate, the current DOM is
// returned.
func (b *BrowserFetcher) Submit(ctx context.Context, pageURL string, form model.Form, values map[model.InputRef]string) (*Document, error) {
	if err := checkURL(pageURL); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.navigate(ctx, OperationFetch, pageURL, chromedp.Navigate(pageURL)); err != nil {
		return nil, err
	}

	script, err := submitScript(form, values)
	if err != nil {
		return nil, &Error{Kind: KindProtocol, URL: pageURL, Err: err}
	}

	doc, err := b.navigate(ctx, OperationSubmit, pageURL, chromedp.Evaluate(script, nil))
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, ErrTimeout) || ctx.Err() != nil {
		return nil, err
	}

	b.logger.Debug("submission did not navigate, reading current page", "url", pageURL, "form", form.Label())
	return b.current(pageURL, 0)
}

// Exists reports whether rawURL loads with status 200 and no redirect.
// Without a prober set by WithBrowserProber, each check costs a full page
// navigation.
func (b *BrowserFetcher) Exists(ctx context.Context, rawURL string) bool {
	if checkURL(rawURL) != nil {
		return false
	}
	if b.prober != nil {
		return b.prober.Exists(ctx, rawURL)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.navigate(ctx, OperationProbe, rawURL, chromedp.Navigate(rawURL))
	if err != nil {
		return false
	}
	return doc.StatusCode == 200 && !doc.Redirected()
}

func (b *BrowserFetcher) navigate(ctx context.Context, op Operation, requested string, action chromedp.Action) (*Document, error) {
	if err := b.pacer.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindTimeout, URL: requested, Err: err}
	}
	defer b.pacer.Done()

	navCtx, cancel := context.WithTimeout(b.ctx, b.navTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	resp, err := chromedp.RunResponse(navCtx, action)
	if err != nil {
		b.observe(op, 0, err, start)
		return nil, classify(requested, err)
	}
	status := 0
	if resp != nil {
		status = int(resp.Status)
	}
	b.observe(op, status, nil, start)

	doc, err := b.current(requested, status)
	if err != nil {
		return nil, err
	}
	if resp != nil {
		doc.ContentType = resp.MimeType
	}
	return doc, nil
}

// current reads the document loaded in the tab.
func (b *BrowserFetcher) current(requested string, status int) (*Document, error) {
	var (
		location string
		markup   string
		cookies  []*network.Cookie
	)
	err := chromedp.Run(b.ctx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &markup),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, classify(requested, err)
	}

	doc := &Document{
		URL:        location,
		RequestURL: requested,
		StatusCode: status,
		Body:       []byte(markup),
	}
	for _, c := range cookies {
		doc.Cookies = append(doc.Cookies, model.CookieSnapshot{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}

	if parser, err := NewParser(location); err == nil {
		if result, err := parser.Parse(strings.NewReader(markup)); err == nil {
			doc.Title = result.Title
			doc.Links = result.Links
			doc.Forms = result.Forms
		}
	}
	return doc, nil
}

func (b *BrowserFetcher) observe(op Operation, status int, err error, start time.Time) {
	if b.observer != nil {
		b.observer.ObserveRequest(op, status, err, time.Since(start))
	}
}

// submitScript returns the JavaScript that fills form's controls from values
// and submits it. Controls are addressed by their position in the form, in
// the same order the parser assigns InputRefs.
func submitScript(form model.Form, values map[model.InputRef]string) (string, error) {
	byRef := make(map[string]string, len(values))
	for ref, v := range values {
		byRef[strconv.Itoa(int(ref))] = v
	}
	encoded, err := json.Marshal(byRef)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`(() => {
  const form = document.forms[%d];
  if (!form) { return false; }
  const controls = form.querySelectorAll("input, textarea, select, button");
  const values = %s;
  for (const [ref, value] of Object.entries(values)) {
    const el = controls[Number(ref)];
    if (el) { el.value = value; }
  }
  const submit = controls[%d];
  if (submit) { submit.click(); }
  else if (form.requestSubmit) { form.requestSubmit(); }
  else { form.submit(); }
  return true;
})()`, form.Index, encoded, int(form.SubmitControl)), nil
}
