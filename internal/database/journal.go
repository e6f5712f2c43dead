package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/crawlproxy/internal/proxypool"
)

// FileName is the journal file inside the data directory.
const FileName = "crawlproxy.db"

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// Journal is an append-only SQLite log of proxy decisions.
// It implements proxypool.Recorder and is safe for concurrent use.
type Journal struct {
	db     *sql.DB
	dbPath string

	// run is the ID decisions are attached to, 0 for none.
	run atomic.Int64
}

// Options configures Journal behavior.
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

// Open opens or creates the journal in dbDir.
func Open(dbDir string, opts Options) (*Journal, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("journal not found at %s (run crawl first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check journal path: %w", err)
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

	j := &Journal{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := j.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.dbPath
}

func (j *Journal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		pool_url TEXT NOT NULL,
		requested INTEGER DEFAULT 0,
		succeeded INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER REFERENCES runs(id),
		timestamp TEXT NOT NULL,
		outcome TEXT NOT NULL,
		proxy TEXT,
		retry_times INTEGER NOT NULL,
		draw REAL,
		error TEXT,
		elapsed_ms REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_run ON decisions(run_id);
	CREATE INDEX IF NOT EXISTS idx_decisions_outcome ON decisions(outcome);
	`

	_, err := j.db.ExecContext(context.Background(), schema)
	return err
}

// Run is one crawl session.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	PoolURL    string
	Requested  int
	Succeeded  int
}

// StartRun opens a new run and attaches subsequent decisions to it.
// Credentials in poolURL are redacted before they are stored.
func (j *Journal) StartRun(ctx context.Context, poolURL string) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (started_at, pool_url) VALUES (?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), redact(poolURL))
	if err != nil {
		return 0, fmt.Errorf("failed to start run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}
	j.run.Store(id)
	return id, nil
}

// FinishRun stores the crawl totals of a run and detaches the journal from it.
func (j *Journal) FinishRun(ctx context.Context, id int64, requested, succeeded int) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, requested = ?, succeeded = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), requested, succeeded, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	j.run.CompareAndSwap(id, 0)
	return nil
}

// Record implements proxypool.Recorder.
func (j *Journal) Record(ctx context.Context, d proxypool.Decision) error {
	var (
		run  sql.NullInt64
		draw sql.NullFloat64
		msg  sql.NullString
	)
	if id := j.run.Load(); id != 0 {
		run = sql.NullInt64{Int64: id, Valid: true}
	}
	if d.Draw >= 0 {
		draw = sql.NullFloat64{Float64: d.Draw, Valid: true}
	}
	if d.Err != nil {
		msg = sql.NullString{String: d.Err.Error(), Valid: true}
	}
	ts := d.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
	INSERT INTO decisions (run_id, timestamp, outcome, proxy, retry_times, draw, error, elapsed_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run, ts.UTC().Format(time.RFC3339Nano), d.Outcome.String(), d.Proxy,
		d.RetryTimes, draw, msg, float64(d.Elapsed)/float64(time.Millisecond))
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// Entry is a stored decision.
type Entry struct {
	ID         int64
	RunID      int64
	Timestamp  time.Time
	Outcome    proxypool.Outcome
	Proxy      string
	RetryTimes int
	Draw       float64
	Error      string
	Elapsed    time.Duration
}

// Recent returns the newest decisions of a run, newest first.
// runID 0 selects all runs.
func (j *Journal) Recent(ctx context.Context, runID int64, limit int) ([]Entry, error) {
	query := `
	SELECT id, COALESCE(run_id, 0), timestamp, outcome, COALESCE(proxy, ''), retry_times,
		COALESCE(draw, -1), COALESCE(error, ''), elapsed_ms
	FROM decisions
	WHERE (? = 0 OR run_id = ?)
	ORDER BY id DESC
	LIMIT ?
	`

	rows, err := j.db.QueryContext(ctx, query, runID, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			timestamp string
			outcome   string
			elapsedMS float64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &timestamp, &outcome, &e.Proxy,
			&e.RetryTimes, &e.Draw, &e.Error, &elapsedMS); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		e.Timestamp = parseTimestamp(timestamp)
		e.Outcome, _ = proxypool.ParseOutcome(outcome)
		e.Elapsed = time.Duration(elapsedMS * float64(time.Millisecond))
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Runs returns the newest runs first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
	SELECT id, started_at, COALESCE(finished_at, ''), pool_url, requested, succeeded
	FROM runs
	ORDER BY id DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.PoolURL, &r.Requested, &r.Succeeded); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = parseTimestamp(started)
		r.FinishedAt = parseTimestamp(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns one run by ID, or ErrRunNotFound.
func (j *Journal) Run(ctx context.Context, id int64) (*Run, error) {
	var (
		r                 Run
		started, finished string
	)
	err := j.db.QueryRowContext(ctx, `
	SELECT id, started_at, COALESCE(finished_at, ''), pool_url, requested, succeeded
	FROM runs
	WHERE id = ?
	`, id).Scan(&r.ID, &started, &finished, &r.PoolURL, &r.Requested, &r.Succeeded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	r.StartedAt = parseTimestamp(started)
	r.FinishedAt = parseTimestamp(finished)
	return &r, nil
}

// LatestRun returns the ID of the newest run, or ErrRunNotFound.
func (j *Journal) LatestRun(ctx context.Context) (int64, error) {
	var id int64
	err := j.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrRunNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get latest run: %w", err)
	}
	return id, nil
}

// ProxyCount is how often one proxy was assigned.
type ProxyCount struct {
	Proxy string
	Count int
}

// Summary aggregates the decisions of a run.
type Summary struct {
	RunID     int64
	Total     int
	ByOutcome map[proxypool.Outcome]int

	// TopProxies lists the most assigned proxies, most frequent first.
	TopProxies []ProxyCount

	// AvgFetch is the mean duration of evaluations that called the pool.
	AvgFetch time.Duration
}

// Summarize aggregates the decisions of runID, or of all runs when runID is 0.
func (j *Journal) Summarize(ctx context.Context, runID int64, top int) (*Summary, error) {
	s := &Summary{
		RunID:     runID,
		ByOutcome: make(map[proxypool.Outcome]int),
	}

	rows, err := j.db.QueryContext(ctx, `
	SELECT outcome, COUNT(*)
	FROM decisions
	WHERE (? = 0 OR run_id = ?)
	GROUP BY outcome
	`, runID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			outcome string
			count   int
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		s.Total += count
		if o, ok := proxypool.ParseOutcome(outcome); ok {
			s.ByOutcome[o] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	err = j.db.QueryRowContext(ctx, `
	SELECT AVG(elapsed_ms)
	FROM decisions
	WHERE (? = 0 OR run_id = ?) AND outcome IN (?, ?)
	`, runID, runID, proxypool.OutcomeAssigned.String(), proxypool.OutcomeUnavailable.String()).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("failed to average fetch time: %w", err)
	}
	if avg.Valid {
		s.AvgFetch = time.Duration(avg.Float64 * float64(time.Millisecond))
	}

	if top > 0 {
		s.TopProxies, err = j.topProxies(ctx, runID, top)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (j *Journal) topProxies(ctx context.Context, runID int64, limit int) ([]ProxyCount, error) {
	rows, err := j.db.QueryContext(ctx, `
	SELECT proxy, COUNT(*) AS n
	FROM decisions
	WHERE (? = 0 OR run_id = ?) AND outcome = ?
	GROUP BY proxy
	ORDER BY n DESC, proxy ASC
	LIMIT ?
	`, runID, runID, proxypool.OutcomeAssigned.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query proxies: %w", err)
	}
	defer rows.Close()

	var out []ProxyCount
	for rows.Next() {
		var pc ProxyCount
		if err := rows.Scan(&pc.Proxy, &pc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan proxy: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

// timestampFormats lists formats SQLite timestamps may come back in.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
