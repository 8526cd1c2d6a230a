package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/surfacefuzz/internal/config"
	"github.com/nao1215/surfacefuzz/internal/database"
	"github.com/nao1215/surfacefuzz/internal/metrics"
	"github.com/nao1215/surfacefuzz/internal/model"
	"github.com/nao1215/surfacefuzz/internal/pipeline"
	"github.com/nao1215/surfacefuzz/internal/report"
	"github.com/nao1215/surfacefuzz/internal/transport"
)

// errRunsFailed is returned when at least one run ended with an error.
var errRunsFailed = errors.New("one or more runs failed")

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <site-config>...",
		Short: "Discover a site's attack surface and fuzz its inputs",
		Long: `Scan runs the full engine against every site configuration given:

  1. discover: crawl the origin, recording pages, forms, inputs and cookies,
     and try the configured credentials on every login form found
  2. guess:    probe the data file's page guesses for unlinked pages
  3. fuzz:     submit every attack vector and sanitization probe to every
               input of every submittable form

Each configuration is an independent run with its own site model. Runs are
saved to the history database unless --no-db is given.

Examples:
  # Scan one site
  surfacefuzz scan site.yaml

  # Scan several sites, two at a time, and write a Markdown report
  surfacefuzz scan --batch 2 --markdown -o report.md shop.yaml blog.yaml

  # Scan an onion service through an embedded Tor daemon
  surfacefuzz scan --tor hidden.yaml

  # Render pages in headless Chrome and export Prometheus metrics
  surfacefuzz scan --browser --metrics-file surfacefuzz.prom site.yaml`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScanCmd(cmd, args, false)
		},
	}
	addScanFlags(cmd)
	return cmd
}

// NewDiscoverCmd creates the discover command: a scan without the fuzz sweep.
func NewDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover <site-config>...",
		Short: "Map a site's pages, forms and inputs without fuzzing",
		Long: `Discover crawls the origin, probes login forms and guesses unlinked
pages exactly like scan, then stops. No attack vector is submitted.

Examples:
  surfacefuzz discover site.yaml
  surfacefuzz discover --json -o surface.json site.yaml`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScanCmd(cmd, args, true)
		},
	}
	addScanFlags(cmd)
	return cmd
}

func addScanFlags(cmd *cobra.Command) {
	// Configuration
	cmd.Flags().StringP("defaults", "c", "",
		"Defaults file applied to every site (default: .surfacefuzz.yaml in the current, XDG config or home directory)")

	// Limits
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Duration("run-timeout", 0,
		"Timeout for each whole run; partial results are kept (0 = none)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages per site unless the site sets max_pages (0 = unlimited)")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Concurrent crawl workers per site unless the site sets workers")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of site configurations run concurrently")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")

	// Transport
	cmd.Flags().StringP("proxy", "x", "",
		"Route traffic through a SOCKS5 proxy (host:port)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and route traffic through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
	cmd.Flags().Bool("browser", false,
		"Fetch pages and submit forms with headless Chrome")
	cmd.Flags().BoolP("insecure", "k", false,
		"Skip TLS certificate verification")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")

	// Output
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write the report to a file instead of stdout")
	cmd.Flags().String("metrics-file", "",
		"Write Prometheus metrics in textfile format to this path")
	cmd.Flags().Bool("no-db", false,
		"Do not save runs to the history database")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")
}

func runScanCmd(cmd *cobra.Command, args []string, discoverOnly bool) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	cfg.DiscoverOnly = discoverOnly

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = runScan(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return err
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.ConfigFiles = args
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	var err error
	flags := cmd.Flags()

	if cfg.DefaultsFile, err = flags.GetString("defaults"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.RunTimeout, err = flags.GetDuration("run-timeout"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.UseBrowser, err = flags.GetBool("browser"); err != nil {
		return nil, err
	}
	if cfg.InsecureTLS, err = flags.GetBool("insecure"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.MetricsFile, err = flags.GetString("metrics-file"); err != nil {
		return nil, err
	}

	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB

	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}

	return cfg, nil
}

// loadDefaults loads the defaults file. An explicit path must exist; when
// none is given and no file is found, empty defaults are returned.
func loadDefaults(explicit string) (config.SiteConfig, error) {
	path := config.FindConfigFile(explicit)
	if path == "" {
		if explicit != "" {
			return config.SiteConfig{}, fmt.Errorf("%s: %w", explicit, config.ErrConfigNotFound)
		}
		return config.SiteConfig{}, nil
	}
	f, err := config.LoadConfigFile(path)
	if err != nil {
		return config.SiteConfig{}, fmt.Errorf("failed to load defaults file %s: %w", path, err)
	}
	return f.Defaults, nil
}

// runScan executes every configured run and returns them in argument order.
func runScan(ctx context.Context, cfg *config.Config, logger *slog.Logger, out, errOut io.Writer) ([]*model.Run, error) {
	defaults, err := loadDefaults(cfg.DefaultsFile)
	if err != nil {
		return nil, err
	}

	logger.Info("starting scan",
		"configs", cfg.ConfigFiles,
		"batch", cfg.BatchSize,
		"discover_only", cfg.DiscoverOnly,
		"save_to_db", cfg.SaveToDB,
	)

	var db *database.RunDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	proxyAddr := cfg.ProxyAddress
	if cfg.UseTor {
		embeddedTor, err := startEmbeddedTor(ctx, cfg, logger, errOut)
		if err != nil {
			return nil, err
		}
		defer func() {
			logger.Info("stopping embedded Tor daemon")
			if err := embeddedTor.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()
		proxyAddr = embeddedTor.SocksAddr()
	}
	if proxyAddr != "" {
		if err := checkProxy(ctx, proxyAddr); err != nil {
			return nil, err
		}
		logger.Info("proxy connection verified", "address", proxyAddr)
	}

	recorder := metrics.New()
	factory := &targetFactory{
		cfg:       cfg,
		defaults:  defaults,
		proxyAddr: proxyAddr,
		observer:  recorder,
		logger:    logger,
	}

	bp := pipeline.NewBatchProcessor(factory.build,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithRunTimeout(cfg.RunTimeout),
		pipeline.WithBatchLogger(logger),
	)

	total := len(cfg.ConfigFiles)
	fmt.Fprintf(errOut, "Running %d site configuration(s) (concurrency: %d)...\n", total, cfg.BatchSize)
	startTime := time.Now()

	runs := make([]*model.Run, total)
	var mu sync.Mutex
	err = bp.ProcessBatchWithCallback(ctx, cfg.ConfigFiles, func(run *model.Run, index int) {
		mu.Lock()
		defer mu.Unlock()

		runs[index] = run
		fmt.Fprintf(errOut, "[%d/%d] %s\n", index+1, total, progressLine(run))

		recorder.RecordRun(run)
		// A cancelled scan still saves what it found.
		if err := saveRun(context.WithoutCancel(ctx), db, run, logger); err != nil {
			logger.Error("failed to save run", "config", run.ConfigPath, "error", err)
		}
	})
	fmt.Fprintf(errOut, "Finished in %s\n\n", time.Since(startTime).Round(time.Millisecond))

	completed := make([]*model.Run, 0, total)
	for _, run := range runs {
		if run != nil {
			completed = append(completed, run)
		}
	}

	if reportErr := outputReports(cfg, completed, out); reportErr != nil {
		return completed, fmt.Errorf("failed to write report: %w", reportErr)
	}
	if cfg.MetricsFile != "" {
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			return completed, fmt.Errorf("failed to write metrics: %w", err)
		}
		logger.Info("metrics written", "path", cfg.MetricsFile)
	}
	if err != nil {
		return completed, err
	}

	failed := 0
	for _, run := range completed {
		if run.Error != "" && !run.TimedOut {
			failed++
		}
	}
	if failed > 0 {
		return completed, fmt.Errorf("%w: %d of %d", errRunsFailed, failed, total)
	}
	return completed, nil
}

// progressLine summarizes a finished run in one line.
func progressLine(run *model.Run) string {
	site := run.SiteURL
	if site == "" {
		site = run.ConfigPath
	}
	switch {
	case run.Error != "" && !run.TimedOut:
		return fmt.Sprintf("%s: failed: %s", site, run.Error)
	case run.TimedOut:
		return fmt.Sprintf("%s: timed out after %d pages, %d findings", site, len(run.Pages()), len(run.Findings()))
	default:
		return fmt.Sprintf("%s: %d pages, %d findings in %s", site, len(run.Pages()), len(run.Findings()), run.Duration().Round(time.Millisecond))
	}
}

// newReportWriter returns the writer selected by the report flags.
func newReportWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}

// outputReports writes one report per run to stdout or the report file.
func outputReports(cfg *config.Config, runs []*model.Run, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		// Reports hold accepted credentials.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	writer := newReportWriter(cfg, output)
	for _, run := range runs {
		if _, err := writer.Write(run); err != nil {
			return err
		}
	}
	return nil
}

// saveRun stores run in db. A nil db is a no-op.
func saveRun(ctx context.Context, db *database.RunDB, run *model.Run, logger *slog.Logger) error {
	if db == nil {
		return nil
	}
	if err := db.SaveRun(ctx, run); err != nil {
		return err
	}
	logger.Info("run saved to database", "id", run.ID, "site", run.SiteURL)
	return nil
}

// startEmbeddedTor starts an embedded Tor daemon using tornago.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger, errOut io.Writer) (*transport.EmbeddedTor, error) {
	fmt.Fprintln(errOut, "Starting embedded Tor daemon...")
	fmt.Fprintf(errOut, "This may take 1-3 minutes while Tor bootstraps.\n\n")

	embeddedTor := transport.NewEmbeddedTor(transport.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	logger.Info("embedded Tor daemon started", "socks_addr", embeddedTor.SocksAddr())
	return embeddedTor, nil
}

// checkProxy verifies that a SOCKS5 proxy answers at addr.
func checkProxy(ctx context.Context, addr string) error {
	client, err := transport.NewClient(transport.WithProxy(addr))
	if err != nil {
		return fmt.Errorf("invalid proxy: %w", err)
	}
	status, err := client.CheckConnection(ctx)
	if err != nil {
		return fmt.Errorf("proxy check failed: %s (make sure a SOCKS5 proxy is running at %s): %w", status, addr, err)
	}
	return nil
}
