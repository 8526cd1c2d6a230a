package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// sensitiveKeys contains attribute keys whose values are never logged.
var sensitiveKeys = map[string]bool{
	// HTTP headers
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"x-csrf-token":        true,
	"proxy-authorization": true,

	// Credentials typed into login forms
	"password":    true,
	"passwd":      true,
	"pass":        true,
	"pwd":         true,
	"credential":  true,
	"credentials": true,
	"auth":        true,

	// Tokens
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"api-key":       true,
	"access_token":  true,
	"refresh_token": true,
	"csrf":          true,
	"xsrf":          true,

	// Session
	"session":    true,
	"session_id": true,
	"sessionid":  true,
	"sid":        true,
	"jsessionid": true,
	"phpsessid":  true,
}

// sensitiveKeywords mark a key as sensitive when they appear anywhere in it.
// The bare word "key" is left out; it matches too much ("primary_key").
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "auth", "credential", "cookie", "session",
}

// sensitivePatterns match values that are masked whatever their key.
var sensitivePatterns = []*regexp.Regexp{
	// JWT
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),

	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),

	// Long opaque strings such as API keys and session IDs
	regexp.MustCompile(`^[a-zA-Z0-9]{32,}$`),

	// AWS access keys
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),

	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// minSecretLen is the shortest value WithSecrets registers.
const minSecretLen = 4

// SecureHandler wraps an slog.Handler and masks sensitive attributes before
// they reach it. An attribute is masked when its key names a credential or
// session value, when its value looks like a token, or when its value
// contains one of the handler's secrets (the configured password, cookie
// and header values of a site).
type SecureHandler struct {
	handler slog.Handler
	secrets []string
}

// NewSecureHandler creates a new SecureHandler wrapping the given handler.
// If handler is nil, the returned SecureHandler will use slog.Default().Handler().
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// WithSecrets returns a handler that also masks every occurrence of the
// given values inside string attributes. Values shorter than four bytes are
// ignored.
func (h *SecureHandler) WithSecrets(values ...string) *SecureHandler {
	secrets := append([]string(nil), h.secrets...)
	for _, v := range values {
		if len(strings.TrimSpace(v)) >= minSecretLen {
			secrets = append(secrets, v)
		}
	}
	return &SecureHandler{handler: h.handler, secrets: secrets}
}

// Enabled reports whether the underlying handler handles records at level.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle masks the record's attributes and message and passes the record on.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, h.scrub(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(h.sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new handler with the given attributes added, masked.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitizedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitizedAttrs[i] = h.sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitizedAttrs), secrets: h.secrets}
}

// WithGroup returns a new handler with the given group name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name), secrets: h.secrets}
}

func (h *SecureHandler) sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitizedAttrs := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			sanitizedAttrs[i] = h.sanitizeAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitizedAttrs...)}
	}

	keyLower := strings.ToLower(a.Key)
	if sensitiveKeys[keyLower] || containsSensitiveKeyword(keyLower) {
		return slog.String(a.Key, MaskValue)
	}

	var str string
	switch a.Value.Kind() {
	case slog.KindString:
		str = a.Value.String()
	case slog.KindAny:
		// Errors often quote the request that failed.
		err, ok := a.Value.Any().(error)
		if !ok {
			return a
		}
		str = err.Error()
	default:
		return a
	}

	if isSensitiveValue(str) {
		return slog.String(a.Key, MaskValue)
	}
	if scrubbed := h.scrub(str); scrubbed != str {
		return slog.String(a.Key, scrubbed)
	}
	return a
}

// scrub replaces every occurrence of a secret in s.
func (h *SecureHandler) scrub(s string) string {
	for _, secret := range h.secrets {
		s = strings.ReplaceAll(s, secret, MaskValue)
	}
	return s
}

func containsSensitiveKeyword(key string) bool {
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

func isSensitiveValue(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// Level returns the level used by the loggers of this package: Debug in
// verbose mode, Warn otherwise.
func Level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// NewSecureLogger creates a text logger writing to w that masks sensitive
// information.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: Level(verbose)})))
}

// NewSecureJSONLogger is NewSecureLogger with JSON output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: Level(verbose)})))
}

// WithSecrets returns a logger that additionally masks the given values.
// Loggers not built by this package are wrapped in a SecureHandler first.
func WithSecrets(logger *slog.Logger, values ...string) *slog.Logger {
	h, ok := logger.Handler().(*SecureHandler)
	if !ok {
		h = NewSecureHandler(logger.Handler())
	}
	return slog.New(h.WithSecrets(values...))
}
