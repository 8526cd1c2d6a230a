package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/surfacefuzz/internal/config"
	"github.com/nao1215/surfacefuzz/internal/database"
	"github.com/nao1215/surfacefuzz/internal/model"
)

// Constants for risk direction.
const (
	riskDirectionWorsened  = "worsened"
	riskDirectionImproved  = "improved"
	riskDirectionUnchanged = "unchanged"
)

// errNotEnoughRuns is returned when a site has fewer than two stored runs.
var errNotEnoughRuns = errors.New("at least 2 runs are required for comparison")

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [previous-run-id [current-run-id]]",
		Short: "Compare two stored runs",
		Long: `Compare shows what changed between two runs stored in the history database:

- findings that appeared or disappeared (matched by kind, page, form, input and value)
- pages that were added or are no longer reachable
- the change in the number of findings per severity

With two run IDs the first is the previous run. With one run ID it is compared
with the latest run of the same site. With --site the two latest runs of that
site are compared.

Examples:
  # Compare the two latest runs of a site
  surfacefuzz compare --site http://127.0.0.1:8080/

  # Compare an older run with the latest run of its site
  surfacefuzz compare 3f2a9c

  # Compare two given runs as JSON
  surfacefuzz compare --json 3f2a9c 8b71d0`,
		Args: cobra.MaximumNArgs(2),
		RunE: runCompareCmd,
	}

	cmd.Flags().StringP("site", "s", "",
		"Compare the two latest runs of this site URL")
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

func runCompareCmd(cmd *cobra.Command, args []string) error {
	site, err := cmd.Flags().GetString("site")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}
	if site == "" && len(args) == 0 {
		return errors.New("a run ID or --site is required (use 'surfacefuzz history' to list runs)")
	}
	if site != "" && len(args) > 0 {
		return errors.New("--site cannot be combined with run IDs")
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	previous, current, err := selectRuns(cmd.Context(), db, site, args)
	if err != nil {
		return err
	}

	result := compareRuns(previous, current)
	out := cmd.OutOrStdout()
	switch {
	case jsonOutput:
		return outputComparisonJSON(out, result)
	case markdownOutput:
		return outputComparisonMarkdown(out, result)
	default:
		return outputComparisonText(out, result)
	}
}

// selectRuns resolves the previous and current runs from the arguments.
func selectRuns(ctx context.Context, db *database.RunDB, site string, args []string) (*model.Run, *model.Run, error) {
	switch {
	case site != "":
		runs, err := db.ListRuns(ctx, site)
		if err != nil {
			return nil, nil, err
		}
		if len(runs) < 2 {
			return nil, nil, fmt.Errorf("%w (found %d for %s)", errNotEnoughRuns, len(runs), site)
		}
		current, err := db.GetRun(ctx, runs[0].ID)
		if err != nil {
			return nil, nil, err
		}
		previous, err := db.GetRun(ctx, runs[1].ID)
		if err != nil {
			return nil, nil, err
		}
		return previous, current, nil

	case len(args) == 1:
		previous, err := db.GetRun(ctx, args[0])
		if err != nil {
			return nil, nil, err
		}
		current, err := db.LatestRun(ctx, previous.SiteURL)
		if err != nil {
			return nil, nil, err
		}
		if current.ID == previous.ID {
			return nil, nil, fmt.Errorf("run %s is the latest run of %s; give a second run ID", shortID(previous.ID), previous.SiteURL)
		}
		return previous, current, nil

	default:
		previous, err := db.GetRun(ctx, args[0])
		if err != nil {
			return nil, nil, err
		}
		current, err := db.GetRun(ctx, args[1])
		if err != nil {
			return nil, nil, err
		}
		if previous.SiteURL != current.SiteURL {
			return nil, nil, fmt.Errorf("run %s belongs to %s, not %s", shortID(current.ID), current.SiteURL, previous.SiteURL)
		}
		return previous, current, nil
	}
}

// ComparisonResult holds the result of comparing two runs of one site.
type ComparisonResult struct {
	SiteURL string `json:"site_url"`

	PreviousRun RunMetadata `json:"previous_run"`
	CurrentRun  RunMetadata `json:"current_run"`

	// NewFindings are in the current run only, in log order.
	NewFindings []model.Finding `json:"new_findings,omitempty"`

	// ResolvedFindings are in the previous run only, in log order.
	ResolvedFindings []model.Finding `json:"resolved_findings,omitempty"`

	// UnchangedCount is the number of findings present in both runs.
	UnchangedCount int `json:"unchanged_count"`

	NewPages     []string `json:"new_pages,omitempty"`
	RemovedPages []string `json:"removed_pages,omitempty"`

	RiskChange RiskChange `json:"risk_change"`
}

// RunMetadata describes one side of a comparison.
type RunMetadata struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	Pages         int       `json:"pages"`
	TotalFindings int       `json:"total_findings"`
	HighCount     int       `json:"high_count"`
	MediumCount   int       `json:"medium_count"`
	LowCount      int       `json:"low_count"`
	InfoCount     int       `json:"info_count"`
}

// RiskChange describes the change in findings per severity.
type RiskChange struct {
	// Direction is "improved", "worsened", or "unchanged".
	Direction string `json:"direction"`

	HighDelta   int `json:"high_delta"`
	MediumDelta int `json:"medium_delta"`
	LowDelta    int `json:"low_delta"`
	InfoDelta   int `json:"info_delta"`
}

func newRunMetadata(run *model.Run) RunMetadata {
	m := RunMetadata{
		ID:        run.ID,
		StartedAt: run.StartedAt,
		Pages:     len(run.Pages()),
	}
	for _, f := range run.Findings() {
		m.TotalFindings++
		switch f.Severity() {
		case model.SeverityHigh:
			m.HighCount++
		case model.SeverityMedium:
			m.MediumCount++
		case model.SeverityLow:
			m.LowCount++
		default:
			m.InfoCount++
		}
	}
	return m
}

// compareRuns compares two runs and generates a comparison result.
func compareRuns(previous, current *model.Run) *ComparisonResult {
	result := &ComparisonResult{
		SiteURL:     current.SiteURL,
		PreviousRun: newRunMetadata(previous),
		CurrentRun:  newRunMetadata(current),
	}

	previousKeys := make(map[string]bool)
	for _, f := range previous.Findings() {
		previousKeys[findingKey(f)] = true
	}
	currentKeys := make(map[string]bool)
	for _, f := range current.Findings() {
		key := findingKey(f)
		if currentKeys[key] {
			continue
		}
		currentKeys[key] = true
		if previousKeys[key] {
			result.UnchangedCount++
		} else {
			result.NewFindings = append(result.NewFindings, f)
		}
	}
	seen := make(map[string]bool)
	for _, f := range previous.Findings() {
		key := findingKey(f)
		if !currentKeys[key] && !seen[key] {
			result.ResolvedFindings = append(result.ResolvedFindings, f)
		}
		seen[key] = true
	}

	result.NewPages, result.RemovedPages = diffPages(previous, current)
	result.RiskChange = calculateRiskChange(result.PreviousRun, result.CurrentRun)
	return result
}

// findingKey identifies a finding across runs. Seq, time and response
// details are left out; they differ on every run.
func findingKey(f model.Finding) string {
	return strings.Join([]string{f.Kind.String(), f.PageURL, f.FormID, f.Input, f.Value}, "|")
}

// diffPages returns the page URLs only in current and only in previous,
// both sorted.
func diffPages(previous, current *model.Run) (added, removed []string) {
	var before, after []string
	if previous.Site != nil {
		before = previous.Site.URLs()
	}
	if current.Site != nil {
		after = current.Site.URLs()
	}

	beforeSet := make(map[string]bool, len(before))
	for _, u := range before {
		beforeSet[u] = true
	}
	afterSet := make(map[string]bool, len(after))
	for _, u := range after {
		afterSet[u] = true
		if !beforeSet[u] {
			added = append(added, u)
		}
	}
	for _, u := range before {
		if !afterSet[u] {
			removed = append(removed, u)
		}
	}
	return added, removed
}

// calculateRiskChange calculates the change in risk between two runs.
// Informational findings are activity records and carry no weight.
func calculateRiskChange(previous, current RunMetadata) RiskChange {
	change := RiskChange{
		HighDelta:   current.HighCount - previous.HighCount,
		MediumDelta: current.MediumCount - previous.MediumCount,
		LowDelta:    current.LowCount - previous.LowCount,
		InfoDelta:   current.InfoCount - previous.InfoCount,
	}

	previousScore := previous.HighCount*50 + previous.MediumCount*10 + previous.LowCount*5
	currentScore := current.HighCount*50 + current.MediumCount*10 + current.LowCount*5

	switch {
	case currentScore < previousScore:
		change.Direction = riskDirectionImproved
	case currentScore > previousScore:
		change.Direction = riskDirectionWorsened
	default:
		change.Direction = riskDirectionUnchanged
	}
	return change
}

func outputComparisonJSON(out io.Writer, result *ComparisonResult) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(out)

	md.H1("Run Comparison: " + result.SiteURL)
	md.PlainText("")
	md.PlainText("**Risk Status:** " + formatRiskDirection(result.RiskChange.Direction))
	md.PlainText("")

	prev, cur, rc := result.PreviousRun, result.CurrentRun, result.RiskChange
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Run", "`" + shortID(prev.ID) + "`", "`" + shortID(cur.ID) + "`", "-"},
			{"Date", prev.StartedAt.Format("2006-01-02 15:04"), cur.StartedAt.Format("2006-01-02 15:04"), "-"},
			{"Pages", strconv.Itoa(prev.Pages), strconv.Itoa(cur.Pages), formatDelta(cur.Pages - prev.Pages)},
			{"High", strconv.Itoa(prev.HighCount), strconv.Itoa(cur.HighCount), formatDelta(rc.HighDelta)},
			{"Medium", strconv.Itoa(prev.MediumCount), strconv.Itoa(cur.MediumCount), formatDelta(rc.MediumDelta)},
			{"Low", strconv.Itoa(prev.LowCount), strconv.Itoa(cur.LowCount), formatDelta(rc.LowDelta)},
			{"Info", strconv.Itoa(prev.InfoCount), strconv.Itoa(cur.InfoCount), formatDelta(rc.InfoDelta)},
			{"**Total**", "**" + strconv.Itoa(prev.TotalFindings) + "**", "**" + strconv.Itoa(cur.TotalFindings) + "**",
				"**" + formatDelta(cur.TotalFindings-prev.TotalFindings) + "**"},
		},
	})
	md.PlainText("")

	if len(result.NewFindings) > 0 {
		md.H2(fmt.Sprintf("New Findings (%d)", len(result.NewFindings)))
		md.PlainText("")
		items := make([]string, 0, len(result.NewFindings))
		for _, f := range result.NewFindings {
			items = append(items, fmt.Sprintf("**[%s]** %s: `%s` %s", f.Severity(), f.Kind, f.PageURL, findingTarget(f)))
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if len(result.ResolvedFindings) > 0 {
		md.H2(fmt.Sprintf("Resolved Findings (%d)", len(result.ResolvedFindings)))
		md.PlainText("")
		items := make([]string, 0, len(result.ResolvedFindings))
		for _, f := range result.ResolvedFindings {
			items = append(items, fmt.Sprintf("~~**[%s]** %s: `%s` %s~~", f.Severity(), f.Kind, f.PageURL, findingTarget(f)))
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if len(result.NewPages) > 0 || len(result.RemovedPages) > 0 {
		md.H2("Pages")
		md.PlainText("")
		items := make([]string, 0, len(result.NewPages)+len(result.RemovedPages))
		for _, u := range result.NewPages {
			items = append(items, "added `"+u+"`")
		}
		for _, u := range result.RemovedPages {
			items = append(items, "removed `"+u+"`")
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if result.UnchangedCount > 0 {
		md.HorizontalRule()
		md.PlainText(fmt.Sprintf("*%d findings unchanged*", result.UnchangedCount))
	}

	return md.Build()
}

func outputComparisonText(out io.Writer, result *ComparisonResult) error {
	prev, cur, rc := result.PreviousRun, result.CurrentRun, result.RiskChange

	fmt.Fprintf(out, "Run Comparison: %s\n", result.SiteURL)
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "\nRisk Status: %s\n", formatRiskDirection(rc.Direction))

	fmt.Fprintf(out, "\nPrevious run: %s  %s\n", shortID(prev.ID), prev.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Current run:  %s  %s\n", shortID(cur.ID), cur.StartedAt.Format("2006-01-02 15:04:05"))

	row := func(label string, before, after int, delta string) {
		fmt.Fprintf(out, "  %-10s  %-10d  %-10d  %-10s\n", label, before, after, delta)
	}
	fmt.Fprintln(out, "\nSummary:")
	fmt.Fprintf(out, "  %-10s  %-10s  %-10s  %-10s\n", "", "Previous", "Current", "Change")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 45))
	row("Pages", prev.Pages, cur.Pages, formatDelta(cur.Pages-prev.Pages))
	row("High", prev.HighCount, cur.HighCount, formatDelta(rc.HighDelta))
	row("Medium", prev.MediumCount, cur.MediumCount, formatDelta(rc.MediumDelta))
	row("Low", prev.LowCount, cur.LowCount, formatDelta(rc.LowDelta))
	row("Info", prev.InfoCount, cur.InfoCount, formatDelta(rc.InfoDelta))
	fmt.Fprintln(out, "  "+strings.Repeat("-", 45))
	row("Total", prev.TotalFindings, cur.TotalFindings, formatDelta(cur.TotalFindings-prev.TotalFindings))

	if len(result.NewFindings) > 0 {
		fmt.Fprintf(out, "\nNew Findings (%d):\n", len(result.NewFindings))
		for _, f := range result.NewFindings {
			fmt.Fprintf(out, "  [+] [%s] %s: %s %s\n", f.Severity(), f.Kind, f.PageURL, findingTarget(f))
		}
	}
	if len(result.ResolvedFindings) > 0 {
		fmt.Fprintf(out, "\nResolved Findings (%d):\n", len(result.ResolvedFindings))
		for _, f := range result.ResolvedFindings {
			fmt.Fprintf(out, "  [-] [%s] %s: %s %s\n", f.Severity(), f.Kind, f.PageURL, findingTarget(f))
		}
	}
	if len(result.NewPages) > 0 || len(result.RemovedPages) > 0 {
		fmt.Fprintln(out, "\nPages:")
		for _, u := range result.NewPages {
			fmt.Fprintf(out, "  [+] %s\n", u)
		}
		for _, u := range result.RemovedPages {
			fmt.Fprintf(out, "  [-] %s\n", u)
		}
	}
	if result.UnchangedCount > 0 {
		fmt.Fprintf(out, "\nUnchanged: %d findings\n", result.UnchangedCount)
	}
	return nil
}

// findingTarget describes the form input a finding concerns, if any.
func findingTarget(f model.Finding) string {
	if f.Input == "" {
		return ""
	}
	return fmt.Sprintf("(%s#%s = %q)", f.FormID, f.Input, f.Value)
}

// formatRiskDirection formats the risk change direction for display.
func formatRiskDirection(direction string) string {
	switch direction {
	case riskDirectionImproved:
		return "IMPROVED (risk decreased)"
	case riskDirectionWorsened:
		return "WORSENED (risk increased)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
