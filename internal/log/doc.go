// Package log provides slog loggers that mask sensitive information.
//
// A scan handles credentials: the configured password, every
// dictionary candidate, session cookies set by the site under test and any
// extra headers from the site configuration. SecureHandler keeps them out of
// log output:
//   - attributes keyed like a credential (password, cookie, token, sid, ...)
//   - values shaped like a token (JWT, bearer or basic auth, long opaque IDs)
//   - any occurrence of a registered secret, inside messages and errors too
//
// The report, not the log, is where accepted credentials are shown.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	siteLogger := log.WithSecrets(logger, sc.Password, sc.Cookie)
//	siteLogger.Warn("login submission failed", "url", u, "error", err)
package log
