package history

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arkilian/advisor/pkg/types"
)

// recentRunsSQL selects the most recent runs of a table.
const recentRunsSQL = `
SELECT run_id FROM runs
WHERE table_name = ?
ORDER BY started_at DESC, run_id DESC
LIMIT ?`

// SQLiteStore implements the advisor's history store on SQLite.
type SQLiteStore struct {
	db      *sql.DB
	mu      sync.Mutex // serializes writers
	maxRuns int
}

// Open opens or creates a history database. maxRuns bounds both the runs
// kept per table and the runs averaged by MeanFrequencies.
func Open(path string, maxRuns int) (*SQLiteStore, error) {
	if maxRuns < 1 {
		return nil, fmt.Errorf("history: max runs must be at least 1, got %d", maxRuns)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("history: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range AllSchemaSQL() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: failed to create schema: %w", err)
		}
	}
	return &SQLiteStore{db: db, maxRuns: maxRuns}, nil
}

// MeanFrequencies returns, per shape key, the mean frequency over the table's
// most recent runs. A shape missing from a run counts as zero in that run.
func (s *SQLiteStore) MeanFrequencies(ctx context.Context, table string) (map[string]float64, error) {
	var runs int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (`+recentRunsSQL+`)`, table, s.maxRuns).Scan(&runs)
	if err != nil {
		return nil, fmt.Errorf("history: count runs: %w", err)
	}
	out := make(map[string]float64)
	if runs == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT shape_key, SUM(frequency) FROM shape_frequencies
WHERE run_id IN (`+recentRunsSQL+`)
GROUP BY shape_key`, table, s.maxRuns)
	if err != nil {
		return nil, fmt.Errorf("history: query frequencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var total int64
		if err := rows.Scan(&key, &total); err != nil {
			return nil, fmt.Errorf("history: scan frequency: %w", err)
		}
		out[key] = float64(total) / float64(runs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: read frequencies: %w", err)
	}
	return out, nil
}

// Append records one completed run and prunes the table's runs beyond the
// retention bound. Appending the same run id twice is a no-op.
func (s *SQLiteStore) Append(ctx context.Context, runID, table string, shapes []*types.QueryShape, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (run_id, table_name, started_at) VALUES (?, ?, ?)`,
		runID, table, at.UnixNano())
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO shape_frequencies (run_id, shape_key, frequency) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history: prepare: %w", err)
	}
	defer stmt.Close()

	for _, sh := range shapes {
		if _, err := stmt.ExecContext(ctx, runID, sh.Key, sh.Frequency); err != nil {
			return fmt.Errorf("history: insert shape %s: %w", sh.Key, err)
		}
	}

	res, err = tx.ExecContext(ctx, `
DELETE FROM runs
WHERE table_name = ? AND run_id NOT IN (`+recentRunsSQL+`)`, table, table, s.maxRuns)
	if err != nil {
		return fmt.Errorf("history: prune: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("history: pruned %d runs of %s", n, table)
	}
	return nil
}

// RunCount returns how many runs are kept for a table.
func (s *SQLiteStore) RunCount(ctx context.Context, table string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE table_name = ?`, table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("history: count runs: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
