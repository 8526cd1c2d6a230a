package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

const (
	checkProxyTimeout   = 2 * time.Second
	defaultMaxRedirects = 10
)

// Client creates HTTP clients that share one dialer configuration.
type Client struct {
	proxyAddress string
	dialer       proxy.Dialer
	timeout      time.Duration
	insecureTLS  bool
	maxRedirects int
	cookie       string
	headers      map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithProxy routes every connection through the SOCKS5 proxy at address.
func WithProxy(address string) Option {
	return func(c *Client) {
		c.proxyAddress = address
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithInsecureTLS disables certificate verification.
func WithInsecureTLS(insecure bool) Option {
	return func(c *Client) {
		c.insecureTLS = insecure
	}
}

// WithMaxRedirects caps the redirects followed per request.
func WithMaxRedirects(n int) Option {
	return func(c *Client) {
		c.maxRedirects = n
	}
}

// WithCookie sends the raw Cookie header value with every request.
func WithCookie(cookie string) Option {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithHeaders sends extra headers with every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// NewClient creates a Client. Without WithProxy connections are direct.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		timeout:      30 * time.Second,
		maxRedirects: defaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.proxyAddress == "" {
		c.dialer = proxy.Direct
		return c, nil
	}

	if !isValidProxyAddress(c.proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}
	dialer, err := proxy.SOCKS5("tcp", c.proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	c.dialer = dialer
	return c, nil
}

func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// ProxyAddress returns the SOCKS5 proxy address, empty for direct clients.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// HTTPClient returns a new http.Client with its own cookie jar.
// Every run gets its own client so that sessions never leak between runs.
func (c *Client) HTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext:         c.dialContext,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: c.insecureTLS}, //nolint:gosec // opt-in flag
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	var rt http.RoundTripper = transport
	if c.cookie != "" || len(c.headers) > 0 {
		rt = &headerInjectingTransport{base: transport, cookie: c.cookie, headers: c.headers}
	}

	maxRedirects := c.maxRedirects
	return &http.Client{
		Transport: rt,
		Timeout:   c.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

func (c *Client) dialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := c.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := c.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CheckConnection performs a SOCKS5 greeting against the proxy.
func (c *Client) CheckConnection(ctx context.Context) (ProxyStatus, error) {
	if c.proxyAddress == "" {
		return ProxyStatusCannotConnect, ErrNoProxy
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if ctx.Err() != nil {
			return ProxyStatusTimeout, ProxyStatusTimeout.Err()
		}
		return ProxyStatusCannotConnect, ProxyStatusCannotConnect.Err()
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect, ProxyStatusCannotConnect.Err()
	}

	// version 5, one method, "no authentication"
	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		return ProxyStatusCannotConnect, ProxyStatusCannotConnect.Err()
	}

	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return ProxyStatusTimeout, ProxyStatusTimeout.Err()
		}
		return ProxyStatusWrongType, ProxyStatusWrongType.Err()
	}
	if reply[0] != 0x05 || reply[1] != 0x00 {
		return ProxyStatusWrongType, ProxyStatusWrongType.Err()
	}
	return ProxyStatusOK, nil
}

// headerInjectingTransport adds the configured cookie and headers to requests
// that do not already carry them.
type headerInjectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.cookie != "" {
		if existing := req.Header.Get("Cookie"); existing != "" {
			req.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			req.Header.Set("Cookie", t.cookie)
		}
	}
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}
