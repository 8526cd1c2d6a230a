package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/surfacefuzz/internal/model"
)

// JSONWriter outputs runs as JSON for tool integration.
// Each run is wrapped in a JSONReport carrying the tool version and the
// summary counts next to the full site model.
type JSONWriter struct {
	baseWriter

	version string

	// indent enables pretty-printed JSON output.
	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the tool version in every report.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport is the document JSONWriter emits for one run.
//
// Design decision: We wrap the run in an envelope rather than encoding it
// directly so that the summary a human reads first sits at the top, and a
// consumer can check which version produced the document before decoding
// the rest.
type JSONReport struct {
	// Version is the surfacefuzz version that produced the report.
	Version string `json:"version,omitempty"`

	Summary model.Summary `json:"summary"`

	// Run holds the site model, the attempts and the ordered finding log.
	Run *model.Run `json:"run"`
}

// NewJSONReport wraps run with its summary.
func NewJSONReport(run *model.Run, version string) *JSONReport {
	return &JSONReport{
		Version: version,
		Summary: model.NewSummary(run),
		Run:     run,
	}
}

// Write outputs the run as one JSON document followed by a newline.
func (w *JSONWriter) Write(run *model.Run) (int, error) {
	return w.writeJSON(NewJSONReport(run, w.version))
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
