package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"scanrouter/internal/config"
)

// Store keeps a per-job history of every scan file the pipeline has
// touched. The CSV audit log remains the canonical operator record;
// the journal backs the status and history surfaces.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const jobColumns = `id, site, scan_file, request_id, print_id, printer, copies, spooler_job_id, state, error_message, created_at, updated_at`

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the journal database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.JournalPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site TEXT NOT NULL,
    scan_file TEXT NOT NULL,
    request_id TEXT NOT NULL DEFAULT '',
    print_id TEXT NOT NULL DEFAULT '',
    printer TEXT NOT NULL DEFAULT '',
    copies INTEGER NOT NULL DEFAULT 0,
    spooler_job_id TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL,
    error_message TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_jobs_site ON jobs(site);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewJob records a freshly claimed scan file.
func (s *Store) NewJob(ctx context.Context, site, scanFile, requestID string) (*Job, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (site, scan_file, request_id, state, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		site,
		scanFile,
		requestID,
		StateClaimed,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. It returns nil when no row exists.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job row.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()

	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET
            site = ?, scan_file = ?, request_id = ?, print_id = ?, printer = ?,
            copies = ?, spooler_job_id = ?, state = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		job.Site,
		job.ScanFile,
		job.RequestID,
		job.PrintID,
		job.Printer,
		job.Copies,
		job.SpoolerJobID,
		job.State,
		job.ErrorMessage,
		job.UpdatedAt.Format(time.RFC3339Nano),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// Recent returns the newest jobs, optionally filtered by site and state.
// A limit of zero or less means no limit.
func (s *Store) Recent(ctx context.Context, limit int, site string, state State) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var (
		clauses []string
		args    []any
	)
	if site != "" {
		clauses = append(clauses, "site = ?")
		args = append(args, site)
	}
	if state != "" {
		clauses = append(clauses, "state = ?")
		args = append(args, state)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// Summarize aggregates job counts for the status surface.
func (s *Store) Summarize(ctx context.Context) (*Summary, error) {
	ctx = ensureContext(ctx)
	summary := &Summary{BySite: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			state string
			count int
		)
		if scanErr := rows.Scan(&state, &count); scanErr != nil {
			return nil, fmt.Errorf("scan state count: %w", scanErr)
		}
		summary.Total += count
		switch State(state) {
		case StateDone:
			summary.Done += count
		case StateError:
			summary.Error += count
		case StateStalled:
			summary.Stalled += count
		default:
			summary.Active += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state counts: %w", err)
	}

	siteRows, err := s.db.QueryContext(ctx, `SELECT site, COUNT(*) FROM jobs GROUP BY site`)
	if err != nil {
		return nil, fmt.Errorf("count by site: %w", err)
	}
	defer siteRows.Close()
	for siteRows.Next() {
		var (
			site  string
			count int
		)
		if scanErr := siteRows.Scan(&site, &count); scanErr != nil {
			return nil, fmt.Errorf("scan site count: %w", scanErr)
		}
		summary.BySite[site] = count
	}
	if err := siteRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site counts: %w", err)
	}

	return summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job       Job
		state     string
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Site,
		&job.ScanFile,
		&job.RequestID,
		&job.PrintID,
		&job.Printer,
		&job.Copies,
		&job.SpoolerJobID,
		&state,
		&job.ErrorMessage,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	job.State = State(state)
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		job.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		job.UpdatedAt = ts
	}
	return &job, nil
}
