package model

import (
	"time"

	"github.com/google/uuid"
)

// Run is one execution of the engine against one site configuration.
// It is the unit that report writers render and the database stores.
type Run struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// ConfigPath is the site configuration file the run was built from.
	ConfigPath string `json:"config_path,omitempty"`

	// SiteURL is the configured seed URL.
	SiteURL string `json:"site_url"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Site is the populated model; nil when the run failed before discovery.
	Site *Site `json:"site,omitempty"`

	// PerformedSteps lists the pipeline steps that completed.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// TimedOut is set when the run's deadline expired.
	TimedOut bool `json:"timed_out,omitempty"`

	// Error is the message of the error that stopped the run.
	Error string `json:"error,omitempty"`
}

// NewRun creates a run for siteURL with a fresh identifier.
func NewRun(configPath, siteURL string) *Run {
	return &Run{
		ID:         uuid.NewString(),
		ConfigPath: configPath,
		SiteURL:    siteURL,
		StartedAt:  time.Now(),
	}
}

// AddStep records that a pipeline step completed.
func (r *Run) AddStep(name string) {
	r.PerformedSteps = append(r.PerformedSteps, name)
}

// Finish stamps the end time.
func (r *Run) Finish() {
	r.FinishedAt = time.Now()
}

// Duration returns how long the run took, or zero if it has not finished.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Findings returns the site's finding log, or nil without a site.
func (r *Run) Findings() []Finding {
	if r.Site == nil {
		return nil
	}
	return r.Site.Findings()
}

// Pages returns the site's pages, or nil without a site.
func (r *Run) Pages() []*Page {
	if r.Site == nil {
		return nil
	}
	return r.Site.Pages()
}
