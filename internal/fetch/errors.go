package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Fetch failure classes. Every *Error unwraps to exactly one of them.
var (
	ErrNotFound     = errors.New("not found")
	ErrTimeout      = errors.New("timeout")
	ErrMalformedURL = errors.New("malformed url")
	ErrProtocol     = errors.New("protocol error")
)

// ErrorKind classifies a fetch failure.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota
	KindTimeout
	KindMalformed
	KindProtocol
)

func (k ErrorKind) String() string {
	return k.sentinel().Error()
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindTimeout:
		return ErrTimeout
	case KindMalformed:
		return ErrMalformedURL
	default:
		return ErrProtocol
	}
}

// Error describes a failed fetch or submission.
type Error struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: %s: status %d", e.URL, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

// Unwrap exposes both the kind sentinel and the underlying error.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func statusError(rawURL string, status int) *Error {
	kind := KindProtocol
	if status == 404 || status == 410 {
		kind = KindNotFound
	}
	return &Error{Kind: kind, URL: rawURL, StatusCode: status}
}

func classify(rawURL string, err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}

	kind := KindProtocol
	var ne net.Error
	var ue *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &ne) && ne.Timeout():
		kind = KindTimeout
	case errors.As(err, &ue) && ue.Op == "parse":
		kind = KindMalformed
	}
	return &Error{Kind: kind, URL: rawURL, Err: err}
}
