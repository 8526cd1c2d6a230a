package model

import (
	"fmt"
	"strings"
)

// Severity represents how much attention a finding deserves.
type Severity int

const (
	// SeverityInfo is a plain record of activity, e.g. a delivered vector.
	SeverityInfo Severity = iota

	// SeverityLow marks minor observations such as failed fetches.
	SeverityLow

	// SeverityMedium marks surface the operator did not expect to be exposed,
	// e.g. unlinked pages or probes echoed back unaltered.
	SeverityMedium

	// SeverityHigh marks accepted credentials and leaked sensitive data.
	SeverityHigh
)

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	for _, sev := range []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh} {
		if strings.EqualFold(strings.TrimSpace(s), sev.String()) {
			return sev, nil
		}
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q (want info, low, medium or high)", s)
}

// FindingInfo contains metadata about a finding kind including severity,
// impact description and remediation recommendation.
type FindingInfo struct {
	Severity       Severity
	Impact         string
	Recommendation string
}

var findingInfoMapping = map[FindingKind]FindingInfo{
	KindAuthenticationSucceeded: {
		Severity:       SeverityHigh,
		Impact:         "The credentials were accepted. A guessed password means the account is protected by a dictionary word.",
		Recommendation: "Enforce strong passwords and rate-limit or lock out repeated login attempts.",
	},
	KindSensitiveDataExposed: {
		Severity:       SeverityHigh,
		Impact:         "A response contained a marker configured as sensitive, such as a stack trace or credential.",
		Recommendation: "Review the response and remove internal details from user-facing output.",
	},
	KindUnlinkedPageDiscovered: {
		Severity:       SeverityMedium,
		Impact:         "A page that no crawled page links to is reachable by guessing its path.",
		Recommendation: "Remove unused pages or protect them with authentication.",
	},
	KindSanitizationCheckResult: {
		Severity:       SeverityInfo,
		Impact:         "A sanitization probe was submitted. A reflected probe was echoed back without encoding.",
		Recommendation: "Encode user input on output and validate it on input.",
	},
	KindFetchFailed: {
		Severity:       SeverityLow,
		Impact:         "A linked or guessed page could not be retrieved.",
		Recommendation: "Check for broken links or intermittent server errors.",
	},
	KindDeliveryFailed: {
		Severity:       SeverityLow,
		Impact:         "A form submission produced no page. The server may have failed on the input.",
		Recommendation: "Inspect server logs for errors triggered by the submitted value.",
	},
	KindAuthenticationFailed: {
		Severity:       SeverityInfo,
		Impact:         "The credentials were rejected.",
		Recommendation: "None.",
	},
	KindVectorDelivered: {
		Severity:       SeverityInfo,
		Impact:         "A fuzz vector was submitted through a form input.",
		Recommendation: "Review reflected vectors and large response deviations manually.",
	},
}

// GetSeverity returns the severity level for a finding kind.
// Returns SeverityInfo if the kind is not in the mapping.
func GetSeverity(kind FindingKind) Severity {
	if info, ok := findingInfoMapping[kind]; ok {
		return info.Severity
	}
	return SeverityInfo
}

// GetFindingInfo returns the full finding information for a finding kind.
func GetFindingInfo(kind FindingKind) FindingInfo {
	if info, ok := findingInfoMapping[kind]; ok {
		return info
	}
	return FindingInfo{
		Severity:       SeverityInfo,
		Impact:         "Unknown finding kind. Review manually.",
		Recommendation: "Investigate the finding and assess risk.",
	}
}
