package crawler

import (
	"net/url"
	"path"
	"strings"
)

// pathFilter decides from the URL path whether a link may be fetched.
// Ignore patterns win over follow patterns; an empty follow list follows
// everything not ignored.
type pathFilter struct {
	ignore []string
	follow []string
}

func (f pathFilter) allows(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := u.Path
	if p == "" {
		p = "/"
	}

	if matchAny(f.ignore, p) {
		return false
	}
	return len(f.follow) == 0 || matchAny(f.follow, p)
}

func matchAny(patterns []string, p string) bool {
	for _, pattern := range patterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern matches a URL path against a glob. Besides path.Match
// syntax it understands "/dir/*" as the whole subtree under /dir and a
// slash-free pattern such as "*.pdf" as a match on the last segment.
func matchPattern(pattern, p string) bool {
	if dir, ok := strings.CutSuffix(pattern, "/*"); ok {
		if p == dir || strings.HasPrefix(p, dir+"/") {
			return true
		}
	}

	if ok, err := path.Match(pattern, p); err == nil && ok {
		return true
	}

	if !strings.Contains(pattern, "/") {
		if ok, err := path.Match(pattern, path.Base(p)); err == nil && ok {
			return true
		}
	}
	return false
}
