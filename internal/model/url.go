package model

import (
	"net/url"
	"strings"
)

// NormalizeURL returns the canonical form used as a page key.
// The fragment is dropped, scheme and host are lowercased and an empty
// path becomes "/". Unparseable input is returned unchanged.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" && u.Host != "" {
		u.Path = "/"
	}

	return u.String()
}

// JoinGuess appends a guessed path suffix to the origin, inserting exactly
// one "/" between them.
func JoinGuess(origin, guess string) string {
	guess = strings.TrimLeft(strings.TrimSpace(guess), "/")
	if strings.HasSuffix(origin, "/") {
		return origin + guess
	}
	return origin + "/" + guess
}
