package model

import (
	"fmt"
	"time"
)

// FindingKind classifies an entry of the finding log.
type FindingKind int

const (
	// KindUnlinkedPageDiscovered: a page reached only through path guessing.
	KindUnlinkedPageDiscovered FindingKind = iota
	// KindAuthenticationSucceeded: a credential pair was accepted.
	KindAuthenticationSucceeded
	// KindAuthenticationFailed: a credential pair was rejected or could not be submitted.
	KindAuthenticationFailed
	// KindVectorDelivered: a fuzz vector was submitted through an input.
	KindVectorDelivered
	// KindSanitizationCheckResult: a sanitization probe was submitted and its echo inspected.
	KindSanitizationCheckResult
	// KindFetchFailed: a claimed URL could not be fetched.
	KindFetchFailed
	// KindDeliveryFailed: a vector or probe submission produced no page.
	KindDeliveryFailed
	// KindSensitiveDataExposed: a response contained a configured sensitive marker.
	KindSensitiveDataExposed
)

var kindNames = map[FindingKind]string{
	KindUnlinkedPageDiscovered:  "unlinked_page_discovered",
	KindAuthenticationSucceeded: "authentication_succeeded",
	KindAuthenticationFailed:    "authentication_failed",
	KindVectorDelivered:         "vector_delivered",
	KindSanitizationCheckResult: "sanitization_check_result",
	KindFetchFailed:             "fetch_failed",
	KindDeliveryFailed:          "delivery_failed",
	KindSensitiveDataExposed:    "sensitive_data_exposed",
}

// AllKinds lists every finding kind in declaration order.
func AllKinds() []FindingKind {
	return []FindingKind{
		KindUnlinkedPageDiscovered,
		KindAuthenticationSucceeded,
		KindAuthenticationFailed,
		KindVectorDelivered,
		KindSanitizationCheckResult,
		KindFetchFailed,
		KindDeliveryFailed,
		KindSensitiveDataExposed,
	}
}

// String returns the snake_case name of the kind.
func (k FindingKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k FindingKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *FindingKind) UnmarshalText(text []byte) error {
	kind, err := ParseFindingKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseFindingKind is the inverse of FindingKind.String.
func ParseFindingKind(s string) (FindingKind, error) {
	for kind, name := range kindNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown finding kind %q", s)
}

// Finding is one observation appended to a site's log.
type Finding struct {
	// Seq is the 1-based position in the log.
	Seq int `json:"seq"`

	Kind    FindingKind `json:"kind"`
	PageURL string      `json:"page_url"`
	Detail  string      `json:"detail"`

	FormID string `json:"form_id,omitempty"`
	Input  string `json:"input,omitempty"`
	Value  string `json:"value,omitempty"`

	// ResultURL and StatusCode describe the response to a submission.
	ResultURL  string `json:"result_url,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	// Reflected is set when the submitted value appears verbatim in the response.
	Reflected bool `json:"reflected,omitempty"`

	// Deviation is the edit distance between the source page and the response prefix.
	Deviation int `json:"deviation,omitempty"`

	Time time.Time `json:"time"`
}

// Severity returns the severity assigned to the finding's kind.
func (f Finding) Severity() Severity {
	sev := GetFindingInfo(f.Kind).Severity
	if f.Kind == KindSanitizationCheckResult && f.Reflected {
		return SeverityMedium
	}
	return sev
}
