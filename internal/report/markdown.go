package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/surfacefuzz/internal/model"
)

// MarkdownWriter outputs runs in Markdown for documentation and sharing,
// with a mermaid pie chart of the finding kinds.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run in Markdown format.
func (w *MarkdownWriter) Write(run *model.Run) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := model.NewSummary(run)

	w.writeHeader(md, run)
	w.writeSummary(md, summary)
	w.writePages(md, run)
	w.writeAttempts(md, run)
	w.writeFindings(md, run)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, run *model.Run) {
	md.H1("surfacefuzz Report")
	md.PlainText("")

	rows := [][]string{
		{"Site", "`" + run.SiteURL + "`"},
		{"Run ID", "`" + run.ID + "`"},
		{"Started", run.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Status", statusText(run)},
	}
	if run.ConfigPath != "" {
		rows = append(rows, []string{"Config", "`" + run.ConfigPath + "`"})
	}
	if len(run.PerformedSteps) > 0 {
		rows = append(rows, []string{"Steps", strings.Join(run.PerformedSteps, ", ")})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, s model.Summary) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Item", "Count"},
		Rows: [][]string{
			{"Pages", strconv.Itoa(s.Pages)},
			{"Forms", strconv.Itoa(s.Forms)},
			{"Login forms", strconv.Itoa(s.AuthForms)},
			{"Inputs", strconv.Itoa(s.Inputs)},
			{"Credential attempts", strconv.Itoa(s.Attempts)},
			{"Accepted credentials", strconv.Itoa(s.SuccessfulAttempts)},
			{"**Findings**", "**" + strconv.Itoa(s.Findings) + "**"},
		},
	})
	md.PlainText("")

	if s.Findings > 0 {
		w.writePieChart(md, s)
	}
	w.writeAlert(md, s)
}

// writePieChart writes a mermaid pie chart of findings per kind.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Findings by Kind"),
		piechart.WithShowData(true),
	)
	for _, kind := range model.AllKinds() {
		if n := s.Count(kind); n > 0 {
			chart.LabelAndIntValue(kindTitle(kind), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the worst finding.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s model.Summary) {
	switch {
	case s.Findings == 0:
		md.Tip("No findings recorded.")
	case s.HighestSeverity == model.SeverityHigh:
		md.Warningf(
			"High severity findings recorded: %d accepted credential(s), %d sensitive data exposure(s).",
			s.Count(model.KindAuthenticationSucceeded),
			s.Count(model.KindSensitiveDataExposed),
		)
	case s.HighestSeverity == model.SeverityMedium:
		md.Importantf(
			"Medium severity findings recorded: %d unlinked page(s). Review them along with any reflected probes.",
			s.Count(model.KindUnlinkedPageDiscovered),
		)
	default:
		md.Note("Only low severity and informational findings recorded.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, run *model.Run) {
	md.H2("Pages")
	md.PlainText("")

	pages := run.Pages()
	if len(pages) == 0 {
		md.PlainText("No pages discovered.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(pages))
	for _, p := range pages {
		rows = append(rows, []string{
			"`" + p.URL + "`",
			strconv.Itoa(p.StatusCode),
			string(p.DiscoveredVia),
			strconv.Itoa(len(p.Forms)),
			strconv.Itoa(len(p.Cookies)),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Found via", "Forms", "Cookies"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, p := range pages {
		if len(p.Forms) == 0 && len(p.Cookies) == 0 {
			continue
		}
		md.PlainText("### `" + p.URL + "`")
		md.PlainText("")
		for _, f := range p.Forms {
			w.writeForm(md, f)
		}
		if len(p.Cookies) > 0 {
			cookies := make([]string, 0, len(p.Cookies))
			for _, c := range p.Cookies {
				cookies = append(cookies, fmt.Sprintf("`%s=%s`%s", c.Name, truncateString(c.Value, 40), cookieFlags(c)))
			}
			md.PlainText("Cookies:")
			md.PlainText("")
			md.BulletList(cookies...)
			md.PlainText("")
		}
	}
}

func (w *MarkdownWriter) writeForm(md *markdown.Markdown, f model.Form) {
	title := fmt.Sprintf("Form `%s`: %s `%s`", f.Label(), strings.ToUpper(f.Method), f.Action)
	if f.RequiresAuthentication {
		title += " (login)"
	}
	md.PlainText(title)
	md.PlainText("")

	rows := make([][]string, 0, len(f.Inputs))
	for _, in := range f.Inputs {
		rows = append(rows, []string{
			orDash(in.ID),
			orDash(in.Name),
			in.DeclaredType,
			orDash(inputRole(f, in)),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Name", "Type", "Role"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAttempts(md *markdown.Markdown, run *model.Run) {
	if run.Site == nil || len(run.Site.Attempts()) == 0 {
		return
	}
	md.H2("Credential Attempts")
	md.PlainText("")

	attempts := run.Site.Attempts()
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, []string{
			"`" + a.PageURL + "`",
			a.FormID,
			a.Username,
			"`" + a.Password + "`",
			string(a.Outcome),
			orDash(a.Reason),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Page", "Form", "Username", "Password", "Outcome", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFindings writes the log in append order.
func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, run *model.Run) {
	md.H2("Findings")
	md.PlainText("")

	findings := run.Findings()
	if len(findings) == 0 {
		md.PlainText("No findings recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(findings))
	for _, f := range findings {
		status := "-"
		if f.StatusCode != 0 {
			status = strconv.Itoa(f.StatusCode)
		}
		value := orDash(f.Value)
		if f.Reflected {
			value += " (reflected)"
		}
		rows = append(rows, []string{
			strconv.Itoa(f.Seq),
			f.Severity().String(),
			kindTitle(f.Kind),
			truncateString(f.PageURL, 50),
			orDash(f.Input),
			truncateString(value, 40),
			status,
			truncateString(orDash(f.Detail), 60),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Severity", "Kind", "Page", "Input", "Value", "Status", "Detail"},
		Rows:   rows,
	})
	md.PlainText("")

	seen := make(map[model.FindingKind]bool)
	for _, f := range findings {
		if seen[f.Kind] || f.Severity() < model.SeverityMedium {
			continue
		}
		seen[f.Kind] = true
		info := model.GetFindingInfo(f.Kind)
		md.Details(kindTitle(f.Kind), info.Impact+" "+info.Recommendation)
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [surfacefuzz](https://github.com/nao1215/surfacefuzz)*")
}
