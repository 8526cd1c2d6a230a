package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/surfacefuzz/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display:
// the page inventory (forms, inputs and cookies per page), the credential
// attempts, the finding log in the order it was written and a summary.
type SimpleWriter struct {
	baseWriter

	// showEmpty prints sections that have nothing to show.
	showEmpty bool

	// verbose adds impact and recommendation text to findings.
	verbose bool

	// minSeverity hides findings below it from the log.
	minSeverity model.Severity
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithMinSeverity hides findings below sev. The summary still counts them.
func WithMinSeverity(sev model.Severity) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.minSeverity = sev
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run in human-readable format.
func (w *SimpleWriter) Write(run *model.Run) (int, error) {
	var sb strings.Builder
	summary := model.NewSummary(run)

	w.writeHeader(&sb, run)
	w.writePages(&sb, run)
	w.writeAttempts(&sb, run)
	w.writeFindings(&sb, run)
	w.writeSummary(&sb, summary)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, run *model.Run) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        SURFACEFUZZ REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Site:       %s\n", run.SiteURL)
	if run.ConfigPath != "" {
		fmt.Fprintf(sb, "Config:     %s\n", run.ConfigPath)
	}
	fmt.Fprintf(sb, "Run ID:     %s\n", run.ID)
	fmt.Fprintf(sb, "Started:    %s\n", run.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if d := run.Duration(); d > 0 {
		fmt.Fprintf(sb, "Duration:   %s\n", d.Round(time.Millisecond))
	}
	if len(run.PerformedSteps) > 0 {
		fmt.Fprintf(sb, "Steps:      %s\n", strings.Join(run.PerformedSteps, ", "))
	}
	fmt.Fprintf(sb, "Status:     %s\n\n", statusText(run))
}

// writePages lists every page with its forms, inputs and cookies.
func (w *SimpleWriter) writePages(sb *strings.Builder, run *model.Run) {
	pages := run.Pages()
	if len(pages) == 0 && !w.showEmpty {
		return
	}
	section(sb, "PAGES")

	if len(pages) == 0 {
		sb.WriteString("  No pages discovered\n\n")
		return
	}

	for _, p := range pages {
		fmt.Fprintf(sb, "[%d] %s (%s)\n", p.StatusCode, p.URL, p.DiscoveredVia)
		if p.FinalURL != "" {
			fmt.Fprintf(sb, "    Redirected to: %s\n", p.FinalURL)
		}
		if p.Title != "" {
			fmt.Fprintf(sb, "    Title: %s\n", p.Title)
		}
		if p.Query != "" {
			fmt.Fprintf(sb, "    Query: %s\n", p.Query)
		}
		for _, f := range p.Forms {
			writeForm(sb, f)
		}
		if len(p.Cookies) > 0 {
			sb.WriteString("    Cookies:\n")
			for _, c := range p.Cookies {
				fmt.Fprintf(sb, "      %s=%s%s\n", c.Name, c.Value, cookieFlags(c))
			}
		}
		sb.WriteString("\n")
	}
}

func writeForm(sb *strings.Builder, f model.Form) {
	kind := "form"
	if f.RequiresAuthentication {
		kind = "login form"
	}
	fmt.Fprintf(sb, "    %s %q: %s %s\n", kind, f.Label(), strings.ToUpper(f.Method), f.Action)
	if !f.Submittable() {
		sb.WriteString("      (no submit control, not fuzzed)\n")
	}
	for _, in := range f.Inputs {
		var attrs []string
		if in.ID != "" {
			attrs = append(attrs, "id="+in.ID)
		} else {
			attrs = append(attrs, "no id")
		}
		if in.Name != "" {
			attrs = append(attrs, "name="+in.Name)
		}
		attrs = append(attrs, "type="+in.DeclaredType)
		line := fmt.Sprintf("      - %s (%s)", in.Label(), strings.Join(attrs, ", "))
		if role := inputRole(f, in); role != "" {
			line += " [" + role + "]"
		}
		sb.WriteString(line + "\n")
	}
}

func cookieFlags(c model.CookieSnapshot) string {
	var flags []string
	if c.Domain != "" {
		flags = append(flags, "domain="+c.Domain)
	}
	if c.Path != "" {
		flags = append(flags, "path="+c.Path)
	}
	if c.Secure {
		flags = append(flags, "secure")
	}
	if c.HTTPOnly {
		flags = append(flags, "httponly")
	}
	if len(flags) == 0 {
		return ""
	}
	return " (" + strings.Join(flags, "; ") + ")"
}

func (w *SimpleWriter) writeAttempts(sb *strings.Builder, run *model.Run) {
	if run.Site == nil {
		return
	}
	attempts := run.Site.Attempts()
	if len(attempts) == 0 && !w.showEmpty {
		return
	}
	section(sb, "CREDENTIAL ATTEMPTS")

	if len(attempts) == 0 {
		sb.WriteString("  No login forms attempted\n\n")
		return
	}
	for _, a := range attempts {
		mark := "-"
		if a.Succeeded() {
			mark = "+"
		}
		fmt.Fprintf(sb, "  [%s] %s / %s  %s#%s", mark, a.Username, a.Password, a.PageURL, a.FormID)
		if a.ResultURL != "" {
			fmt.Fprintf(sb, " -> %s", a.ResultURL)
		}
		if a.Reason != "" {
			fmt.Fprintf(sb, " (%s)", a.Reason)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

// writeFindings prints the log in append order.
func (w *SimpleWriter) writeFindings(sb *strings.Builder, run *model.Run) {
	var shown []model.Finding
	for _, f := range run.Findings() {
		if f.Severity() >= w.minSeverity {
			shown = append(shown, f)
		}
	}
	if len(shown) == 0 && !w.showEmpty {
		return
	}
	section(sb, "FINDINGS")

	if len(shown) == 0 {
		sb.WriteString("  No findings\n\n")
		return
	}
	for _, f := range shown {
		fmt.Fprintf(sb, "  #%d [%s] %s\n", f.Seq, f.Severity(), kindTitle(f.Kind))
		fmt.Fprintf(sb, "      Page: %s\n", f.PageURL)
		if f.FormID != "" || f.Input != "" {
			fmt.Fprintf(sb, "      Input: %s/%s\n", f.FormID, f.Input)
		}
		if f.Value != "" {
			fmt.Fprintf(sb, "      Value: %s\n", f.Value)
		}
		if f.ResultURL != "" || f.StatusCode != 0 {
			fmt.Fprintf(sb, "      Response: %d %s", f.StatusCode, f.ResultURL)
			if f.Reflected {
				sb.WriteString(" (reflected)")
			}
			if f.Deviation > 0 {
				fmt.Fprintf(sb, " (deviation %d)", f.Deviation)
			}
			sb.WriteString("\n")
		}
		if f.Detail != "" {
			fmt.Fprintf(sb, "      %s\n", f.Detail)
		}
		if w.verbose {
			info := model.GetFindingInfo(f.Kind)
			fmt.Fprintf(sb, "      Impact: %s\n", info.Impact)
			fmt.Fprintf(sb, "      Recommendation: %s\n", info.Recommendation)
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, s model.Summary) {
	section(sb, "SUMMARY")

	fmt.Fprintf(sb, "  Pages:     %d\n", s.Pages)
	fmt.Fprintf(sb, "  Forms:     %d (%d login)\n", s.Forms, s.AuthForms)
	fmt.Fprintf(sb, "  Inputs:    %d\n", s.Inputs)
	fmt.Fprintf(sb, "  Attempts:  %d (%d accepted)\n", s.Attempts, s.SuccessfulAttempts)
	fmt.Fprintf(sb, "  Findings:  %d\n", s.Findings)
	for _, kind := range model.AllKinds() {
		if n := s.Count(kind); n > 0 || w.showEmpty {
			fmt.Fprintf(sb, "    %-28s %d\n", kindTitle(kind)+":", n)
		}
	}
	if s.Findings > 0 {
		fmt.Fprintf(sb, "  Highest:   %s\n", s.HighestSeverity)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by surfacefuzz\n")
	sb.WriteString("https://github.com/nao1215/surfacefuzz\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
