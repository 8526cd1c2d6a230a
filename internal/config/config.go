package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultBatchSize is the number of site configurations processed concurrently.
	// One keeps separate targets from competing for the local network.
	DefaultBatchSize = 1

	// DefaultWorkers is the number of concurrent crawl workers per site.
	// One keeps requests to a target strictly sequential.
	DefaultWorkers = 1

	// DefaultMaxPages caps the pages claimed per site. Zero would mean unlimited.
	DefaultMaxPages = 1000

	// AppName is the application name used for XDG directory paths.
	AppName = "surfacefuzz"

	// DefaultUserAgent identifies surfacefuzz in HTTP requests.
	DefaultUserAgent = "surfacefuzz/1.0 (+https://github.com/nao1215/surfacefuzz)"

	// DefaultMaxBodySize limits the response body size read per request.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultTorStartupTimeout bounds embedded Tor bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds the runtime options of one invocation.
// It is populated from CLI flags and passed down explicitly; per-target
// options live in SiteConfig.
type Config struct {
	// ConfigFiles are the site configuration files to run, one run each.
	ConfigFiles []string

	// DefaultsFile is an explicit defaults file path. Empty searches the
	// usual locations (see FindConfigFile).
	DefaultsFile string

	// Timeout applies to each individual HTTP request.
	Timeout time.Duration

	// RunTimeout bounds one whole run. Zero means no bound.
	RunTimeout time.Duration

	// MaxPages caps pages per site unless the site config sets max_pages.
	MaxPages int

	// Workers is the crawl worker count unless the site config sets workers.
	Workers int

	// BatchSize is the number of site configurations run concurrently.
	BatchSize int

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches the log output to JSON.
	LogJSON bool

	// JSONReport selects the JSON report. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects the Markdown report.
	MarkdownReport bool

	// ReportFile redirects the report from stdout to a file.
	ReportFile string

	// DBDir is the directory of the run history database.
	DBDir string

	// SaveToDB stores every run in the history database.
	SaveToDB bool

	// MetricsFile, when set, receives Prometheus metrics in textfile format.
	MetricsFile string

	// ProxyAddress routes traffic through a SOCKS5 proxy ("host:port").
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes traffic through it.
	UseTor bool

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// UseBrowser fetches pages with a headless Chrome instead of net/http.
	UseBrowser bool

	// InsecureTLS skips TLS certificate verification.
	InsecureTLS bool

	// UserAgent is sent with every HTTP request.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// DiscoverOnly skips the fuzz sweep.
	DiscoverOnly bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:           DefaultTimeout,
		MaxPages:          DefaultMaxPages,
		Workers:           DefaultWorkers,
		BatchSize:         DefaultBatchSize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		SaveToDB:          true,
		DBDir:             XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for surfacefuzz.
// On Linux: ~/.local/share/surfacefuzz
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for surfacefuzz.
// On Linux: ~/.config/surfacefuzz
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the runtime configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.ConfigFiles) == 0 {
		return ErrNoConfigFile
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingTransports
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}
