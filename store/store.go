// Package store persists conformance runs in a local SQLite database
// so results can be reviewed after the fact. A run records the device
// and suite version; each result records one model under one test
// kind.
//
// SQLite handles its own locking for concurrent access, so no
// application-level locks are needed around database operations.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Run is one invocation of the suite against a device.
type Run struct {
	ID       string
	Device   string
	Version  string
	Started  time.Time
	Finished time.Time
}

// Result is one model's outcome under one test kind.
type Result struct {
	Model    string
	Kind     string
	Verdict  string
	Reason   string
	Duration time.Duration
}

// Summary counts a run's results by verdict.
type Summary struct {
	Passed  int
	Skipped int
	Failed  int
}

func (s Summary) Total() int { return s.Passed + s.Skipped + s.Failed }

// Store wraps the results database.
type Store struct {
	conn *sql.DB
}

// Open opens or creates the results database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")

	return s.conn.Close()
}

func (s *Store) init() error {
	if _, err := s.conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		device TEXT NOT NULL,
		version TEXT NOT NULL DEFAULT '',
		started TIMESTAMP NOT NULL,
		finished TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		model TEXT NOT NULL,
		kind TEXT NOT NULL,
		verdict TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		duration_us INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// BeginRun opens a new run against device and returns it with a fresh
// id.
func (s *Store) BeginRun(device, version string) (*Run, error) {
	run := &Run{
		ID:      uuid.NewString(),
		Device:  device,
		Version: version,
		Started: time.Now().UTC(),
	}

	_, err := s.conn.Exec(`
		INSERT INTO runs (id, device, version, started)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.Device, run.Version, run.Started)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	return run, nil
}

// FinishRun stamps the run's end time.
func (s *Store) FinishRun(id string) error {
	res, err := s.conn.Exec("UPDATE runs SET finished = ? WHERE id = ?", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %q not found", id)
	}
	return nil
}

// AddResult records one result under a run.
func (s *Store) AddResult(runID string, r Result) error {
	_, err := s.conn.Exec(`
		INSERT INTO results (run_id, model, kind, verdict, reason, duration_us)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, r.Model, r.Kind, r.Verdict, r.Reason, r.Duration.Microseconds())
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Runs lists all runs, most recent first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.conn.Query(`
		SELECT id, device, version, started, finished
		FROM runs
		ORDER BY started DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// FindRun resolves a run from a full id or a unique prefix, the way
// short commit hashes resolve.
func (s *Store) FindRun(prefix string) (*Run, error) {
	rows, err := s.conn.Query(`
		SELECT id, device, version, started, finished
		FROM runs
		WHERE id LIKE ? || '%'
		ORDER BY started DESC
		LIMIT 2
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("run %q not found", prefix)
	case 1:
		return &runs[0], nil
	default:
		return nil, fmt.Errorf("run %q is ambiguous", prefix)
	}
}

func scanRun(rows *sql.Rows) (Run, error) {
	var run Run
	var finished sql.NullTime
	if err := rows.Scan(&run.ID, &run.Device, &run.Version, &run.Started, &finished); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if finished.Valid {
		run.Finished = finished.Time
	}
	return run, nil
}

// Results lists a run's results in insertion order.
func (s *Store) Results(runID string) ([]Result, error) {
	rows, err := s.conn.Query(`
		SELECT model, kind, verdict, reason, duration_us
		FROM results
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var micros int64
		if err := rows.Scan(&r.Model, &r.Kind, &r.Verdict, &r.Reason, &micros); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Duration = time.Duration(micros) * time.Microsecond
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}

	return results, nil
}

// Summarize counts a run's results by verdict.
func (s *Store) Summarize(runID string) (Summary, error) {
	rows, err := s.conn.Query(`
		SELECT verdict, COUNT(*)
		FROM results
		WHERE run_id = ?
		GROUP BY verdict
	`, runID)
	if err != nil {
		return Summary{}, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var sum Summary
	for rows.Next() {
		var verdict string
		var count int
		if err := rows.Scan(&verdict, &count); err != nil {
			return Summary{}, fmt.Errorf("scan summary: %w", err)
		}
		switch verdict {
		case "passed":
			sum.Passed = count
		case "skipped":
			sum.Skipped = count
		case "failed":
			sum.Failed = count
		}
	}

	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate summary: %w", err)
	}

	return sum, nil
}
