package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// ErrOutsideOrigin is returned when a page URL does not start with the site origin.
var ErrOutsideOrigin = errors.New("url is outside the site origin")

// ErrDuplicatePage is returned when a page URL is already present.
var ErrDuplicatePage = errors.New("page already recorded")

// Site is the attack-surface model of one target.
// It is shared by the workers of a single run and safe for concurrent use.
// Pages are only ever added; findings and attempts are only ever appended.
type Site struct {
	origin string

	mu       sync.RWMutex
	claimed  map[string]struct{}
	pages    map[string]*Page
	findings []Finding
	attempts []CredentialAttempt
}

// NewSite creates an empty site rooted at origin.
func NewSite(origin string) *Site {
	return &Site{
		origin:  NormalizeURL(origin),
		claimed: make(map[string]struct{}),
		pages:   make(map[string]*Page),
	}
}

// Origin returns the normalized origin URL used for containment checks.
func (s *Site) Origin() string {
	return s.origin
}

// Contains reports whether rawURL lies under the origin.
// The check is a plain prefix test on the normalized URL.
func (s *Site) Contains(rawURL string) bool {
	return strings.HasPrefix(NormalizeURL(rawURL), s.origin)
}

// Claim atomically marks rawURL as visited.
// It returns false when the URL is outside the origin, already claimed, or
// when limit (if positive) URLs have been claimed already.
// A claimed URL is never fetched by anyone else, even if its fetch fails.
//
// Design decision: URLs are claimed before they are queued, not when they
// are fetched. Two workers finding the same link on different pages both
// call Claim and exactly one wins, so the queue never holds duplicates and
// the page cap counts URLs the crawl has committed to rather than pages
// that happened to finish first.
func (s *Site) Claim(rawURL string, limit int) bool {
	u := NormalizeURL(rawURL)
	if !strings.HasPrefix(u, s.origin) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.claimed[u]; ok {
		return false
	}
	if limit > 0 && len(s.claimed) >= limit {
		return false
	}
	s.claimed[u] = struct{}{}
	return true
}

// Known reports whether rawURL has been claimed or recorded.
func (s *Site) Known(rawURL string) bool {
	u := NormalizeURL(rawURL)

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, claimed := s.claimed[u]
	_, page := s.pages[u]
	return claimed || page
}

// AddPage records a fetched page under its normalized URL.
func (s *Site) AddPage(p *Page) error {
	p.URL = NormalizeURL(p.URL)
	if !strings.HasPrefix(p.URL, s.origin) {
		return fmt.Errorf("%w: %s", ErrOutsideOrigin, p.URL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pages[p.URL]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePage, p.URL)
	}
	s.claimed[p.URL] = struct{}{}
	s.pages[p.URL] = p
	return nil
}

// HasPage reports whether a page is recorded under rawURL.
func (s *Site) HasPage(rawURL string) bool {
	_, ok := s.Page(rawURL)
	return ok
}

// Page returns the page recorded under rawURL.
func (s *Site) Page(rawURL string) (*Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pages[NormalizeURL(rawURL)]
	return p, ok
}

// Pages returns the recorded pages ordered by URL.
func (s *Site) Pages() []*Page {
	s.mu.RLock()
	pages := make([]*Page, 0, len(s.pages))
	for _, p := range s.pages {
		pages = append(pages, p)
	}
	s.mu.RUnlock()

	slices.SortFunc(pages, func(a, b *Page) int {
		return strings.Compare(a.URL, b.URL)
	})
	return pages
}

// URLs returns the recorded page URLs in sorted order.
func (s *Site) URLs() []string {
	pages := s.Pages()
	urls := make([]string, len(pages))
	for i, p := range pages {
		urls[i] = p.URL
	}
	return urls
}

// PageCount returns the number of recorded pages.
func (s *Site) PageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// AddFinding appends f to the log, assigning its sequence number and,
// when unset, its timestamp. The stored copy is returned.
func (s *Site) AddFinding(f Finding) Finding {
	if f.Time.IsZero() {
		f.Time = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f.Seq = len(s.findings) + 1
	s.findings = append(s.findings, f)
	return f
}

// Findings returns a copy of the log in append order.
func (s *Site) Findings() []Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.findings)
}

// FindingsOfKind returns the findings of one kind in append order.
func (s *Site) FindingsOfKind(kind FindingKind) []Finding {
	var out []Finding
	for _, f := range s.Findings() {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// AddAttempt appends a credential attempt.
func (s *Site) AddAttempt(a CredentialAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
}

// Attempts returns a copy of the credential attempts in append order.
func (s *Site) Attempts() []CredentialAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.attempts)
}

type siteJSON struct {
	Origin   string              `json:"origin"`
	Pages    []*Page             `json:"pages"`
	Findings []Finding           `json:"findings"`
	Attempts []CredentialAttempt `json:"attempts,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s *Site) MarshalJSON() ([]byte, error) {
	return json.Marshal(siteJSON{
		Origin:   s.origin,
		Pages:    s.Pages(),
		Findings: s.Findings(),
		Attempts: s.Attempts(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Site) UnmarshalJSON(data []byte) error {
	var aux siteJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	restored := NewSite(aux.Origin)
	for _, p := range aux.Pages {
		if err := restored.AddPage(p); err != nil {
			return err
		}
	}
	restored.findings = aux.Findings
	restored.attempts = aux.Attempts

	s.mu.Lock()
	defer s.mu.Unlock()
	s.origin = restored.origin
	s.claimed = restored.claimed
	s.pages = restored.pages
	s.findings = restored.findings
	s.attempts = restored.attempts
	return nil
}
