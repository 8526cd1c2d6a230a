package report

import (
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/surfacefuzz/internal/model"
)

// Writer renders a finished run.
//
// Rendering is a pure step over the run's site model and finding log, so a
// run loaded back from the history database renders exactly as it did live.
type Writer interface {
	// Write outputs the report of run.
	// Returns the number of bytes written and any error encountered.
	Write(run *model.Run) (int, error)
}

// MultiWriter writes to multiple Writers in turn.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written and stops on the first error.
func (m *MultiWriter) Write(run *model.Run) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(run)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

var titleCaser = cases.Title(language.English)

// kindTitle turns a finding kind into a heading, e.g. "Unlinked Page Discovered".
func kindTitle(kind model.FindingKind) string {
	return titleCaser.String(strings.ReplaceAll(kind.String(), "_", " "))
}

// statusText describes how the run ended.
func statusText(run *model.Run) string {
	switch {
	case run.TimedOut:
		return "TIMED OUT (partial results)"
	case run.Error != "":
		return "ERROR - " + run.Error
	default:
		return "Complete"
	}
}

// inputRole names the part an input plays in its form, empty for none.
func inputRole(form model.Form, in model.Input) string {
	switch in.Ref {
	case form.PasswordField:
		return "password"
	case form.UsernameField:
		return "username"
	case form.SubmitControl:
		return "submit"
	}
	return ""
}

// orDash substitutes "-" for an empty table cell.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
