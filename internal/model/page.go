package model

import (
	"encoding/hex"
	"net/url"

	"golang.org/x/crypto/sha3"
)

// DiscoverySource records how the crawler reached a page.
type DiscoverySource string

const (
	// DiscoverySeed is the origin URL itself.
	DiscoverySeed DiscoverySource = "seed"
	// DiscoveryLink is a page reached by following a link.
	DiscoveryLink DiscoverySource = "link"
	// DiscoveryAuthentication is the landing page of a successful login.
	DiscoveryAuthentication DiscoverySource = "authentication"
	// DiscoveryGuess is a page found by the guessed-path phase.
	DiscoveryGuess DiscoverySource = "guess"
	// DiscoveryGuessLink is a page only reachable through a guessed page.
	DiscoveryGuessLink DiscoverySource = "guess-link"
)

// Page represents one fetched page of the target site.
type Page struct {
	// URL is the normalized absolute URL and the key in Site.
	URL string `json:"url"`

	// FinalURL is the URL after redirects, when it differs from URL.
	FinalURL string `json:"final_url,omitempty"`

	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	Title       string `json:"title,omitempty"`

	// Query holds the raw query parameters of URL.
	Query string `json:"query,omitempty"`

	// Forms are the classified forms in document order.
	Forms []Form `json:"forms,omitempty"`

	// Links are absolute outgoing link targets, in document order.
	Links []string `json:"links,omitempty"`

	// Cookies is the cookie jar content observed right after the fetch.
	Cookies []CookieSnapshot `json:"cookies,omitempty"`

	// Hash is a SHA3-256 fingerprint of the response body.
	Hash string `json:"hash,omitempty"`

	// Snapshot is a prefix of the body kept for response comparison.
	Snapshot string `json:"-"`

	DiscoveredVia DiscoverySource `json:"discovered_via"`
}

// MaxSnapshotSize bounds Page.Snapshot.
const MaxSnapshotSize = 64 * 1024

// SetBody stores the fingerprint and a bounded snapshot of body.
func (p *Page) SetBody(body []byte) {
	p.Hash = Fingerprint(body)
	if len(body) > MaxSnapshotSize {
		body = body[:MaxSnapshotSize]
	}
	p.Snapshot = string(body)
}

// HasAuthenticationForm reports whether any form on the page takes a password.
func (p *Page) HasAuthenticationForm() bool {
	for _, f := range p.Forms {
		if f.RequiresAuthentication {
			return true
		}
	}
	return false
}

// QueryParams parses Query into its values.
func (p *Page) QueryParams() url.Values {
	v, err := url.ParseQuery(p.Query)
	if err != nil {
		return url.Values{}
	}
	return v
}

// Fingerprint returns the hex SHA3-256 digest of body, or "" when body is empty.
func Fingerprint(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum := sha3.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// CookieSnapshot is one cookie as seen by the client after a fetch.
type CookieSnapshot struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
}
