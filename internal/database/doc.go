// Package database provides SQLite-based storage for finished runs.
//
// RunDB keeps two tables:
//   - runs: one row per run with its summary counts and the whole run as JSON
//   - findings: the finding log of every run, one row per entry
//
// The runs table is what the history and compare commands read back; the
// findings table lets a caller filter the log by severity without decoding
// the stored site model.
//
// The database is a single file in the XDG data directory, opened through
// the CGO-free modernc.org/sqlite driver with WAL enabled.
package database
