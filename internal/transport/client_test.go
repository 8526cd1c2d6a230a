package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("direct client without proxy", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.ProxyAddress() != "" {
			t.Errorf("expected no proxy, got %q", client.ProxyAddress())
		}
	})

	t.Run("valid proxy addresses", func(t *testing.T) {
		t.Parallel()

		for _, addr := range []string{"127.0.0.1:9050", "localhost:1080", "[::1]:9050"} {
			if _, err := NewClient(WithProxy(addr)); err != nil {
				t.Errorf("NewClient(%q) unexpected error: %v", addr, err)
			}
		}
	})

	t.Run("invalid proxy addresses", func(t *testing.T) {
		t.Parallel()

		for _, addr := range []string{"127.0.0.1", ":9050", "127.0.0.1:0", "127.0.0.1:70000", "host:port"} {
			_, err := NewClient(WithProxy(addr))
			if !errors.Is(err, ErrInvalidProxyAddress) {
				t.Errorf("NewClient(%q) expected ErrInvalidProxyAddress, got %v", addr, err)
			}
		}
	})
}

func TestHTTPClient(t *testing.T) {
	t.Parallel()

	t.Run("injects cookie and headers", func(t *testing.T) {
		t.Parallel()

		var gotCookie, gotHeader string
		srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			gotCookie = r.Header.Get("Cookie")
			gotHeader = r.Header.Get("X-Test")
		}))
		defer srv.Close()

		client, err := NewClient(WithCookie("session=abc"), WithHeaders(map[string]string{"X-Test": "yes"}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp, err := client.HTTPClient().Get(srv.URL)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		if gotCookie != "session=abc" {
			t.Errorf("cookie = %q", gotCookie)
		}
		if gotHeader != "yes" {
			t.Errorf("header = %q", gotHeader)
		}
	})

	t.Run("each client has its own jar", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		a, b := client.HTTPClient(), client.HTTPClient()
		if a.Jar == nil || a.Jar == b.Jar {
			t.Error("expected distinct non-nil cookie jars")
		}
	})

	t.Run("redirect cap", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/again", http.StatusFound)
		}))
		defer srv.Close()

		client, err := NewClient(WithMaxRedirects(2), WithTimeout(5*time.Second))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp, err := client.HTTPClient().Get(srv.URL)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusFound {
			t.Errorf("expected last redirect response, got %d", resp.StatusCode)
		}
	})
}

// serveOnce accepts one connection and answers the greeting with reply.
func serveOnce(t *testing.T, reply []byte) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 3)
		_, _ = conn.Read(buf)
		_, _ = conn.Write(reply)
	}()
	return ln.Addr().String()
}

func TestCheckConnection(t *testing.T) {
	t.Parallel()

	t.Run("SOCKS5 proxy is OK", func(t *testing.T) {
		t.Parallel()

		addr := serveOnce(t, []byte{0x05, 0x00})
		client, err := NewClient(WithProxy(addr))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		status, err := client.CheckConnection(context.Background())
		if status != ProxyStatusOK || err != nil {
			t.Errorf("got %v, %v", status, err)
		}
	})

	t.Run("non SOCKS5 answer", func(t *testing.T) {
		t.Parallel()

		addr := serveOnce(t, []byte("HTTP/1.1 400 Bad Request\r\n"))
		client, err := NewClient(WithProxy(addr))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		status, err := client.CheckConnection(context.Background())
		if status != ProxyStatusWrongType || !errors.Is(err, ErrProxyNotSOCKS5) {
			t.Errorf("got %v, %v", status, err)
		}
	})

	t.Run("direct client has no proxy", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := client.CheckConnection(context.Background()); !errors.Is(err, ErrNoProxy) {
			t.Errorf("expected ErrNoProxy, got %v", err)
		}
	})
}

func TestProxyStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status   ProxyStatus
		expected string
		err      error
	}{
		{ProxyStatusOK, "OK", nil},
		{ProxyStatusWrongType, "wrong type (not SOCKS5)", ErrProxyNotSOCKS5},
		{ProxyStatusCannotConnect, "cannot connect", ErrProxyCannotConnect},
		{ProxyStatusTimeout, "timeout", ErrProxyTimeout},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if tc.status.String() != tc.expected {
				t.Errorf("String() = %q", tc.status.String())
			}
			if !errors.Is(tc.status.Err(), tc.err) {
				t.Errorf("Err() = %v, expected %v", tc.status.Err(), tc.err)
			}
		})
	}
}
