package config

import "errors"

// Runtime configuration errors returned by Config.Validate.
var (
	// ErrNoConfigFile is returned when no site configuration file is given.
	ErrNoConfigFile = errors.New("no site configuration specified: provide at least one config file")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidWorkers is returned when the crawler worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrInvalidMaxPages is returned when the page cap is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingTransports is returned when --tor is combined with --proxy.
	ErrConflictingTransports = errors.New("conflicting transports: --tor and --proxy cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)

// Site configuration errors returned by SiteConfig.Validate and LoadSiteConfig.
// They all describe a ConfigurationError: the run is aborted before any request.
var (
	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrNoSiteURL is returned when site_url is missing.
	ErrNoSiteURL = errors.New("site_url is required")

	// ErrInvalidSiteURL is returned when site_url is not an absolute http(s) URL.
	ErrInvalidSiteURL = errors.New("site_url must be an absolute http or https URL")

	// ErrInvalidOnionAddress is returned when site_url names a malformed .onion host.
	ErrInvalidOnionAddress = errors.New("site_url is not a valid v3 onion address")

	// ErrInvalidTimeGap is returned when time_gap is negative.
	ErrInvalidTimeGap = errors.New("time_gap must be non-negative")

	// ErrInvalidCompleteness is returned for a completeness other than full or random.
	ErrInvalidCompleteness = errors.New("completeness must be full or random")

	// ErrInvalidSuccessCriterion is returned for a success_criterion other than any or all.
	ErrInvalidSuccessCriterion = errors.New("success_criterion must be any or all")

	// ErrNegativeLimit is returned when max_pages, workers or random_sample is negative.
	ErrNegativeLimit = errors.New("max_pages, workers and random_sample must be non-negative")
)
