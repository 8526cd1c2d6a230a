package model

// AttemptOutcome is the result of one credential attempt.
type AttemptOutcome string

const (
	// OutcomeSuccess means the submission was judged a successful login.
	OutcomeSuccess AttemptOutcome = "success"
	// OutcomeFailure means the login was rejected or could not be submitted.
	OutcomeFailure AttemptOutcome = "failure"
)

// CredentialAttempt records one (username, password) submission.
type CredentialAttempt struct {
	PageURL   string         `json:"page_url"`
	FormID    string         `json:"form_id"`
	Username  string         `json:"username"`
	Password  string         `json:"password"`
	Outcome   AttemptOutcome `json:"outcome"`
	ResultURL string         `json:"result_url,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// Succeeded reports whether the attempt was accepted.
func (a CredentialAttempt) Succeeded() bool {
	return a.Outcome == OutcomeSuccess
}
