package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/surfacefuzz/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "surfacefuzz.db"

var (
	// ErrRunNotFound is returned when no stored run matches an ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrAmbiguousRunID is returned when an ID prefix matches several runs.
	ErrAmbiguousRunID = errors.New("run ID prefix matches more than one run")
)

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02 15:04:05.000000"

// RunDB stores finished runs in SQLite. Each run is kept whole as JSON so
// it can be reported again, and its findings are also kept as rows so the
// log can be queried without decoding every run.
//
// Design decision: We store the run twice rather than normalising it into
// page, form and input tables because reports need the whole run exactly
// as it was recorded, while history and compare only ever filter findings.
// The snapshot keeps re-rendering lossless as the model grows, and the
// findings rows keep severity queries in SQL.
type RunDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the run database in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rwc"
	if !opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return rdb, nil
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

// Path returns the database file path.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

func (rdb *RunDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		site_url TEXT NOT NULL,
		config_path TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		timed_out INTEGER DEFAULT 0,
		error TEXT,
		pages INTEGER DEFAULT 0,
		findings INTEGER DEFAULT 0,
		highest_severity INTEGER DEFAULT 0,
		run_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_site ON runs(site_url);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- One row per finding log entry, in append order.
	CREATE TABLE IF NOT EXISTS findings (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		severity INTEGER NOT NULL,
		page_url TEXT NOT NULL,
		form_id TEXT,
		input TEXT,
		value TEXT,
		result_url TEXT,
		status_code INTEGER,
		reflected INTEGER DEFAULT 0,
		deviation INTEGER DEFAULT 0,
		detail TEXT,
		time TEXT,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_findings_kind ON findings(kind);
	`
	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores run and its finding log in one transaction. Saving a run
// again replaces the stored copy.
func (rdb *RunDB) SaveRun(ctx context.Context, run *model.Run) error {
	runJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}
	summary := model.NewSummary(run)

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, site_url, config_path, started_at, finished_at, timed_out, error, pages, findings, highest_severity, run_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		finished_at = excluded.finished_at,
		timed_out = excluded.timed_out,
		error = excluded.error,
		pages = excluded.pages,
		findings = excluded.findings,
		highest_severity = excluded.highest_severity,
		run_json = excluded.run_json
	`,
		run.ID,
		run.SiteURL,
		run.ConfigPath,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.TimedOut,
		run.Error,
		summary.Pages,
		summary.Findings,
		int(summary.HighestSeverity),
		string(runJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM findings WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("failed to clear findings: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO findings (run_id, seq, kind, severity, page_url, form_id, input, value, result_url, status_code, reflected, deviation, detail, time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare finding insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range run.Findings() {
		_, err := stmt.ExecContext(ctx,
			run.ID, f.Seq, f.Kind.String(), int(f.Severity()), f.PageURL,
			f.FormID, f.Input, f.Value, f.ResultURL, f.StatusCode,
			f.Reflected, f.Deviation, f.Detail, formatTime(f.Time),
		)
		if err != nil {
			return fmt.Errorf("failed to save finding %d: %w", f.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun loads a stored run by its ID or by an unambiguous ID prefix.
func (rdb *RunDB) GetRun(ctx context.Context, id string) (*model.Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrRunNotFound
	}

	rows, err := rdb.db.QueryContext(ctx,
		"SELECT run_json FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\\' ORDER BY id = ? DESC LIMIT 2",
		id, escapeLike(id)+"%", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var runJSON string
		if err := rows.Scan(&runJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		matches = append(matches, runJSON)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	case 1:
		return decodeRun(matches[0])
	default:
		// An exact match sorts first.
		run, err := decodeRun(matches[0])
		if err == nil && run.ID == id {
			return run, nil
		}
		return nil, fmt.Errorf("%s: %w", id, ErrAmbiguousRunID)
	}
}

// LatestRun returns the most recent run of siteURL.
func (rdb *RunDB) LatestRun(ctx context.Context, siteURL string) (*model.Run, error) {
	var runJSON string
	err := rdb.db.QueryRowContext(ctx,
		"SELECT run_json FROM runs WHERE site_url = ? ORDER BY started_at DESC LIMIT 1",
		siteURL).Scan(&runJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", siteURL, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return decodeRun(runJSON)
}

// RunMetadata summarizes a stored run without decoding its site model.
type RunMetadata struct {
	ID         string
	SiteURL    string
	ConfigPath string
	StartedAt  time.Time
	FinishedAt time.Time
	TimedOut   bool
	Error      string

	Pages           int
	Findings        int
	HighestSeverity model.Severity
}

// Duration returns how long the run took.
func (m RunMetadata) Duration() time.Duration {
	if m.FinishedAt.IsZero() {
		return 0
	}
	return m.FinishedAt.Sub(m.StartedAt)
}

// ListRuns returns the metadata of the runs of siteURL, newest first.
// An empty siteURL lists every run.
func (rdb *RunDB) ListRuns(ctx context.Context, siteURL string) ([]RunMetadata, error) {
	query := `
	SELECT id, site_url, config_path, started_at, finished_at, timed_out, error, pages, findings, highest_severity
	FROM runs`
	var args []any
	if siteURL != "" {
		query += " WHERE site_url = ?"
		args = append(args, siteURL)
	}
	query += " ORDER BY started_at DESC"

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var m RunMetadata
		var started string
		var configPath, finished, runErr sql.NullString
		var severity int
		if err := rows.Scan(&m.ID, &m.SiteURL, &configPath, &started, &finished, &m.TimedOut, &runErr, &m.Pages, &m.Findings, &severity); err != nil {
			return nil, fmt.Errorf("failed to scan run metadata: %w", err)
		}
		m.ConfigPath = configPath.String
		m.StartedAt = parseTimestamp(started)
		m.FinishedAt = parseTimestamp(finished.String)
		m.Error = runErr.String
		m.HighestSeverity = model.Severity(severity)
		results = append(results, m)
	}
	return results, rows.Err()
}

// ListSites returns every site URL with at least one stored run.
func (rdb *RunDB) ListSites(ctx context.Context) ([]string, error) {
	rows, err := rdb.db.QueryContext(ctx, "SELECT DISTINCT site_url FROM runs WHERE site_url <> '' ORDER BY site_url")
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// GetFindings returns the findings of a run at or above minSeverity, in
// log order.
func (rdb *RunDB) GetFindings(ctx context.Context, runID string, minSeverity model.Severity) ([]model.Finding, error) {
	rows, err := rdb.db.QueryContext(ctx, `
	SELECT seq, kind, page_url, form_id, input, value, result_url, status_code, reflected, deviation, detail, time
	FROM findings
	WHERE run_id = ? AND severity >= ?
	ORDER BY seq
	`, runID, int(minSeverity))
	if err != nil {
		return nil, fmt.Errorf("failed to get findings: %w", err)
	}
	defer rows.Close()

	var findings []model.Finding
	for rows.Next() {
		var f model.Finding
		var kind, ts string
		var formID, input, value, resultURL, detail sql.NullString
		if err := rows.Scan(&f.Seq, &kind, &f.PageURL, &formID, &input, &value, &resultURL, &f.StatusCode, &f.Reflected, &f.Deviation, &detail, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		if f.Kind, err = model.ParseFindingKind(kind); err != nil {
			return nil, err
		}
		f.FormID = formID.String
		f.Input = input.String
		f.Value = value.String
		f.ResultURL = resultURL.String
		f.Detail = detail.String
		f.Time = parseTimestamp(ts)
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// DeleteRun removes a stored run and its findings.
func (rdb *RunDB) DeleteRun(ctx context.Context, id string) error {
	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports affected rows
		return fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM findings WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete findings: %w", err)
	}
	return tx.Commit()
}

func decodeRun(runJSON string) (*model.Run, error) {
	var run model.Run
	if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
		return nil, fmt.Errorf("failed to parse run: %w", err)
	}
	return &run, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",  // timeLayout; fractional seconds are accepted when parsing
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",  // ISO 8601 without timezone
	time.RFC3339,
	time.RFC3339Nano,
}

// parseTimestamp tries every known format and returns the zero time when
// none matches.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
