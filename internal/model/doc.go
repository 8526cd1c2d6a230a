// Package model defines the data structures shared by every stage of a
// surfacefuzz run.
//
// This package contains the following main types:
//   - Site: the attack-surface model of one target (pages, findings, attempts)
//   - Page: a fetched page with its classified forms, links and cookies
//   - Form and Input: classified HTML forms and their submittable controls
//   - Finding: one entry of the append-only observation log
//   - CredentialAttempt: the outcome of one authentication try
//   - Run and Summary: the unit that is reported and persisted
//
// Models live in their own package so that the crawler, the fuzzer, the
// report writers and the run database can share them without import cycles.
// Everything here serialises to JSON for reports and storage.
package model
