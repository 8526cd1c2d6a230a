package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/surfacefuzz/internal/config"
	"github.com/nao1215/surfacefuzz/internal/database"
	"github.com/nao1215/surfacefuzz/internal/model"
	"github.com/nao1215/surfacefuzz/internal/report"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List stored runs or show one of them",
		Long: `History reads the run database written by scan and discover.

Without arguments it lists every stored run, newest first. With a run ID
(or an unambiguous prefix of one) it prints that run's report again, in
any report format.

Examples:
  # List every stored run
  surfacefuzz history

  # List the sites that have been scanned
  surfacefuzz history --sites

  # List the runs of one site
  surfacefuzz history --site http://127.0.0.1:8080/

  # Show a stored run as Markdown
  surfacefuzz history --markdown 3f2a9c

  # Show only the medium and high findings of a run
  surfacefuzz history --findings --min-severity medium 3f2a9c

  # Delete a stored run
  surfacefuzz history --delete 3f2a9c`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("sites", "S", false,
		"List the sites with stored runs")
	cmd.Flags().StringP("site", "s", "",
		"List the runs of this site URL")
	cmd.Flags().Bool("findings", false,
		"Print only the finding log of the given run")
	cmd.Flags().String("min-severity", "info",
		"Hide findings below this severity (info, low, medium, high)")
	cmd.Flags().Bool("delete", false,
		"Delete the given run")
	cmd.Flags().BoolP("json", "j", false,
		"Show the run as JSON")
	cmd.Flags().BoolP("markdown", "m", false,
		"Show the run as Markdown")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

// historyOptions are the parsed history flags.
type historyOptions struct {
	listSites   bool
	site        string
	findings    bool
	minSeverity model.Severity
	delete      bool
	json        bool
	markdown    bool
	dbDir       string
}

func parseHistoryFlags(cmd *cobra.Command) (*historyOptions, error) {
	var opts historyOptions
	var err error
	flags := cmd.Flags()

	if opts.listSites, err = flags.GetBool("sites"); err != nil {
		return nil, err
	}
	if opts.site, err = flags.GetString("site"); err != nil {
		return nil, err
	}
	if opts.findings, err = flags.GetBool("findings"); err != nil {
		return nil, err
	}
	if opts.delete, err = flags.GetBool("delete"); err != nil {
		return nil, err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if opts.dbDir == "" {
		opts.dbDir = config.XDGDataDir()
	}

	sev, err := flags.GetString("min-severity")
	if err != nil {
		return nil, err
	}
	if opts.minSeverity, err = model.ParseSeverity(sev); err != nil {
		return nil, err
	}

	if opts.json && opts.markdown {
		return nil, config.ErrConflictingReportFormats
	}
	return &opts, nil
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseHistoryFlags(cmd)
	if err != nil {
		return err
	}
	if (opts.findings || opts.delete) && len(args) == 0 {
		return errors.New("a run ID is required with --findings and --delete")
	}

	// Reading history never creates a database.
	db, err := database.Open(opts.dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case opts.listSites:
		return listSites(ctx, db, out)
	case len(args) == 0:
		return listRuns(ctx, db, opts.site, out)
	case opts.delete:
		return deleteRun(ctx, db, args[0], out)
	case opts.findings:
		return showFindings(ctx, db, args[0], opts.minSeverity, out)
	default:
		return showRun(ctx, db, args[0], opts, out)
	}
}

func listSites(ctx context.Context, db *database.RunDB, out io.Writer) error {
	sites, err := db.ListSites(ctx)
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		fmt.Fprintln(out, "No scanned sites found in the database.")
		fmt.Fprintln(out, "\nUse 'surfacefuzz scan <site-config>' to scan a site.")
		return nil
	}

	fmt.Fprintf(out, "Scanned sites (%d):\n\n", len(sites))
	for _, site := range sites {
		fmt.Fprintf(out, "  • %s\n", site)
	}
	fmt.Fprintln(out, "\nUse 'surfacefuzz history --site <url>' to see the runs of a site.")
	return nil
}

func listRuns(ctx context.Context, db *database.RunDB, site string, out io.Writer) error {
	runs, err := db.ListRuns(ctx, site)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		if site != "" {
			fmt.Fprintf(out, "No runs found for %s\n", site)
		} else {
			fmt.Fprintln(out, "No runs found in the database.")
		}
		return nil
	}

	fmt.Fprintf(out, "Stored runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-8s  %-19s  %6s  %8s  %-7s  %-10s  %s\n", "ID", "Started", "Pages", "Findings", "Highest", "Status", "Site")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 90))
	for _, m := range runs {
		fmt.Fprintf(out, "  %-8s  %-19s  %6d  %8d  %-7s  %-10s  %s\n",
			shortID(m.ID),
			m.StartedAt.Local().Format("2006-01-02 15:04:05"),
			m.Pages,
			m.Findings,
			m.HighestSeverity,
			runStatus(m),
			orValue(m.SiteURL, m.ConfigPath),
		)
	}
	fmt.Fprintln(out, "\nUse 'surfacefuzz history <id>' to show a run.")
	return nil
}

func showRun(ctx context.Context, db *database.RunDB, id string, opts *historyOptions, out io.Writer) error {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}

	var w report.Writer
	switch {
	case opts.json:
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case opts.markdown:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out, report.WithMinSeverity(opts.minSeverity))
	}
	_, err = w.Write(run)
	return err
}

func showFindings(ctx context.Context, db *database.RunDB, id string, minSeverity model.Severity, out io.Writer) error {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}
	findings, err := db.GetFindings(ctx, run.ID, minSeverity)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Findings of run %s (%s), %s and above: %d\n\n", shortID(run.ID), run.SiteURL, minSeverity, len(findings))
	for _, f := range findings {
		fmt.Fprintf(out, "  #%-5d [%-6s] %-28s %s\n", f.Seq, f.Severity(), f.Kind, f.PageURL)
		if f.Input != "" || f.Value != "" {
			fmt.Fprintf(out, "         %s#%s = %q\n", f.FormID, f.Input, f.Value)
		}
	}
	return nil
}

func deleteRun(ctx context.Context, db *database.RunDB, id string, out io.Writer) error {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if err := db.DeleteRun(ctx, run.ID); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted run %s (%s)\n", run.ID, run.SiteURL)
	return nil
}

func runStatus(m database.RunMetadata) string {
	switch {
	case m.TimedOut:
		return "timed out"
	case m.Error != "":
		return "error"
	default:
		return "complete"
	}
}

// shortID returns the first eight characters of a run ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orValue(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
