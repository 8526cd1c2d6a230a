package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/surfacefuzz/internal/model"
	"github.com/nao1215/surfacefuzz/internal/transport"
)

// Completeness selects how many vectors each input receives.
type Completeness string

const (
	// CompletenessFull delivers every vector to every input.
	CompletenessFull Completeness = "full"
	// CompletenessRandom delivers a random sample of vectors to each input.
	CompletenessRandom Completeness = "random"
)

// SuccessCriterion decides how the URL-change and marker signals combine.
type SuccessCriterion string

const (
	// CriterionAny accepts a login when either signal is present.
	CriterionAny SuccessCriterion = "any"
	// CriterionAll requires the URL change and, when configured, the marker.
	CriterionAll SuccessCriterion = "all"
)

// DefaultRandomSample is the vector sample size under random completeness.
const DefaultRandomSample = 10

// SiteConfig holds one target's options, read from a site configuration file.
// The legacy one-option-per-line "key: value" format decodes into it as well.
type SiteConfig struct {
	// SiteURL is the seed URL; every recorded page must start with it.
	SiteURL string `yaml:"site_url"`

	// Username enables authentication probing when non-empty.
	Username string `yaml:"username,omitempty"`

	// Password is the fixed password used when guessing is off.
	Password string `yaml:"password,omitempty"`

	// PasswordGuessing tries every dictionary word instead of Password.
	// Accepts on/off as well as true/false.
	PasswordGuessing bool `yaml:"password_guessing,omitempty"`

	// AuthenticationSuccessString marks a successful login when present in the response.
	AuthenticationSuccessString string `yaml:"authentication_success_string,omitempty"`

	// SuccessCriterion is any (default) or all.
	SuccessCriterion SuccessCriterion `yaml:"success_criterion,omitempty"`

	// StopOnSuccess ends dictionary guessing at the first accepted password.
	StopOnSuccess bool `yaml:"stop_on_success,omitempty"`

	// TimeGap is the minimum delay between requests, in milliseconds.
	TimeGap int `yaml:"time_gap,omitempty"`

	// Completeness is full (default) or random.
	Completeness Completeness `yaml:"completeness,omitempty"`

	// RandomSample is the number of vectors per input under random completeness.
	RandomSample int `yaml:"random_sample,omitempty"`

	// Seed makes random completeness reproducible. Zero picks a random seed.
	Seed uint64 `yaml:"seed,omitempty"`

	// AppDataFile is the data file with vectors, dictionary and guesses.
	// Relative paths resolve against the configuration file's directory.
	// Empty selects the built-in lists.
	AppDataFile string `yaml:"app_data_file,omitempty"`

	// LeakPatterns also scans fuzz responses for private keys, cloud
	// credentials, debug pages, stack traces and database errors.
	LeakPatterns bool `yaml:"leak_patterns,omitempty"`

	// MaxPages overrides the runtime page cap when positive.
	MaxPages int `yaml:"max_pages,omitempty"`

	// Workers overrides the runtime worker count when positive.
	Workers int `yaml:"workers,omitempty"`

	// Cookie is sent with every request. Format: "name=value; name2=value2".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra request headers.
	Headers map[string]string `yaml:"headers,omitempty"`

	// IgnorePatterns are glob patterns of URL paths never fetched, e.g. "/logout*".
	IgnorePatterns []string `yaml:"ignore_patterns,omitempty"`

	// FollowPatterns, when set, restrict the crawl to matching URL paths.
	FollowPatterns []string `yaml:"follow_patterns,omitempty"`
}

// ApplyDefaults normalizes enumerations and fills unset values.
func (sc *SiteConfig) ApplyDefaults() {
	sc.SiteURL = strings.TrimSpace(sc.SiteURL)
	sc.Completeness = Completeness(strings.ToLower(strings.TrimSpace(string(sc.Completeness))))
	if sc.Completeness == "" {
		sc.Completeness = CompletenessFull
	}
	sc.SuccessCriterion = SuccessCriterion(strings.ToLower(strings.TrimSpace(string(sc.SuccessCriterion))))
	if sc.SuccessCriterion == "" {
		sc.SuccessCriterion = CriterionAny
	}
	if sc.RandomSample == 0 {
		sc.RandomSample = DefaultRandomSample
	}
}

// Validate checks the site options and returns the first problem found.
func (sc *SiteConfig) Validate() error {
	if sc.SiteURL == "" {
		return ErrNoSiteURL
	}
	u, err := url.Parse(sc.SiteURL)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidSiteURL
	}
	if transport.IsOnionHost(sc.SiteURL) && !transport.IsValidV3Address(u.Hostname()) {
		return ErrInvalidOnionAddress
	}
	if sc.TimeGap < 0 {
		return ErrInvalidTimeGap
	}
	switch sc.Completeness {
	case CompletenessFull, CompletenessRandom:
	default:
		return ErrInvalidCompleteness
	}
	switch sc.SuccessCriterion {
	case CriterionAny, CriterionAll:
	default:
		return ErrInvalidSuccessCriterion
	}
	if sc.MaxPages < 0 || sc.Workers < 0 || sc.RandomSample < 0 {
		return ErrNegativeLimit
	}
	return nil
}

// Origin returns the normalized seed URL used as the containment prefix.
func (sc *SiteConfig) Origin() string {
	return model.NormalizeURL(sc.SiteURL)
}

// BaseURL returns scheme://host[:port] of the seed URL.
func (sc *SiteConfig) BaseURL() string {
	u, err := url.Parse(sc.SiteURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// TimeGapDuration returns TimeGap as a duration.
func (sc *SiteConfig) TimeGapDuration() time.Duration {
	return time.Duration(sc.TimeGap) * time.Millisecond
}

// AuthenticationEnabled reports whether login forms should be probed.
// A username is required, plus either a fixed password or guessing.
func (sc *SiteConfig) AuthenticationEnabled() bool {
	return sc.Username != "" && (sc.PasswordGuessing || sc.Password != "")
}

// PageCap returns the effective page cap given the runtime default.
func (sc *SiteConfig) PageCap(fallback int) int {
	if sc.MaxPages > 0 {
		return sc.MaxPages
	}
	return fallback
}

// WorkerCount returns the effective worker count given the runtime default.
func (sc *SiteConfig) WorkerCount(fallback int) int {
	if sc.Workers > 0 {
		return sc.Workers
	}
	return fallback
}

// MergeDefaults fills options left unset in sc from defaults. Headers are
// merged with sc's values taking precedence.
func (sc *SiteConfig) MergeDefaults(defaults SiteConfig) {
	if sc.Cookie == "" {
		sc.Cookie = defaults.Cookie
	}
	if sc.TimeGap == 0 {
		sc.TimeGap = defaults.TimeGap
	}
	if sc.MaxPages == 0 {
		sc.MaxPages = defaults.MaxPages
	}
	if sc.Workers == 0 {
		sc.Workers = defaults.Workers
	}
	if sc.AppDataFile == "" {
		sc.AppDataFile = defaults.AppDataFile
	}
	if len(sc.IgnorePatterns) == 0 {
		sc.IgnorePatterns = defaults.IgnorePatterns
	}
	if len(sc.FollowPatterns) == 0 {
		sc.FollowPatterns = defaults.FollowPatterns
	}
	if len(defaults.Headers) > 0 {
		merged := make(map[string]string, len(defaults.Headers)+len(sc.Headers))
		for k, v := range defaults.Headers {
			merged[k] = v
		}
		for k, v := range sc.Headers {
			merged[k] = v
		}
		sc.Headers = merged
	}
}
