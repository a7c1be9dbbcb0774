package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arkilian/advisor/pkg/types"
)

// sqliteSchema holds the tables a SQLite source reads.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    table_name TEXT NOT NULL,
    query_text TEXT NOT NULL,
    execution_ms REAL NOT NULL DEFAULT 0,
    rows_scanned INTEGER NOT NULL DEFAULT 0,
    rows_returned INTEGER NOT NULL DEFAULT 0,
    executed_at INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_query_log_table ON query_log(table_name, executed_at)`,
	`CREATE TABLE IF NOT EXISTS table_statistics (
    table_name TEXT PRIMARY KEY,
    row_count INTEGER NOT NULL,
    growth_rate REAL NOT NULL DEFAULT 0,
    write_frequency REAL NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS column_statistics (
    table_name TEXT NOT NULL,
    column_name TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT 'numeric',
    distinct_count REAL NOT NULL DEFAULT 0,
    null_fraction REAL NOT NULL DEFAULT 0,
    histogram TEXT,
    most_common_values TEXT,
    PRIMARY KEY (table_name, column_name)
)`,
	`CREATE TABLE IF NOT EXISTS access_policies (
    name TEXT NOT NULL,
    table_name TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT '',
    predicate TEXT NOT NULL DEFAULT '',
    effect TEXT NOT NULL DEFAULT 'filter'
)`,
}

// SQLiteSource reads workload, statistics and policies from a SQLite
// database. The query window is measured back from the current time.
type SQLiteSource struct {
	db  *sql.DB
	mu  sync.Mutex // serializes writers
	now func() time.Time
}

// OpenSQLite opens or creates a source database.
func OpenSQLite(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("source: failed to open database: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("source: failed to create schema: %w", err)
		}
	}
	return &SQLiteSource{db: db, now: time.Now}, nil
}

// GetColumnStatistics reads one column's statistics.
func (s *SQLiteSource) GetColumnStatistics(ctx context.Context, table, column string) (*types.ColumnStatistics, error) {
	var (
		cs         = types.ColumnStatistics{Table: table, Column: column}
		kind       string
		hist, mcvs sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT kind, distinct_count, null_fraction, histogram, most_common_values
FROM column_statistics WHERE table_name = ? AND column_name = ?`, table, column).
		Scan(&kind, &cs.DistinctCount, &cs.NullFraction, &hist, &mcvs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("source: column statistics %s.%s: %w", table, column, err)
	}
	cs.Kind = types.ColumnKind(kind)

	if hist.Valid && hist.String != "" {
		if err := json.Unmarshal([]byte(hist.String), &cs.Histogram); err != nil {
			return nil, fmt.Errorf("source: histogram of %s.%s: %w", table, column, err)
		}
	}
	if mcvs.Valid && mcvs.String != "" {
		if err := json.Unmarshal([]byte(mcvs.String), &cs.MostCommonValues); err != nil {
			return nil, fmt.Errorf("source: most common values of %s.%s: %w", table, column, err)
		}
	}
	return &cs, nil
}

// GetTableStatistics reads the table-level statistics.
func (s *SQLiteSource) GetTableStatistics(ctx context.Context, table string) (*types.TableStatistics, error) {
	ts := types.TableStatistics{Table: table}
	err := s.db.QueryRowContext(ctx, `
SELECT row_count, growth_rate, write_frequency FROM table_statistics WHERE table_name = ?`, table).
		Scan(&ts.RowCount, &ts.GrowthRate, &ts.WriteFrequency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("source: table statistics %s: %w", table, err)
	}
	return &ts, nil
}

// ListPolicies returns the policies applying to a table.
func (s *SQLiteSource) ListPolicies(ctx context.Context, table string) ([]types.AccessPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT name, table_name, role, predicate, effect FROM access_policies
WHERE table_name = ? OR table_name = ''`, table)
	if err != nil {
		return nil, fmt.Errorf("source: list policies: %w", err)
	}
	defer rows.Close()

	var out []types.AccessPolicy
	for rows.Next() {
		var p types.AccessPolicy
		var effect string
		if err := rows.Scan(&p.Name, &p.Table, &p.Role, &p.Predicate, &effect); err != nil {
			return nil, fmt.Errorf("source: scan policy: %w", err)
		}
		p.Effect = types.PolicyEffect(effect)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source: read policies: %w", err)
	}
	return policiesFor(out, table), nil
}

// SampleRecentQueries returns the table's queries logged inside the window,
// oldest first. A non-positive window returns the whole log.
func (s *SQLiteSource) SampleRecentQueries(ctx context.Context, table string, window time.Duration) ([]types.QueryLogEntry, error) {
	cutoff := int64(0)
	if window > 0 {
		cutoff = s.now().Add(-window).UnixNano()
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT query_text, execution_ms, rows_scanned, rows_returned FROM query_log
WHERE table_name = ? AND executed_at >= ?
ORDER BY executed_at, id`, table, cutoff)
	if err != nil {
		return nil, fmt.Errorf("source: sample queries: %w", err)
	}
	defer rows.Close()

	var out []types.QueryLogEntry
	for rows.Next() {
		var q QueryRecord
		if err := rows.Scan(&q.Query, &q.ExecutionMs, &q.RowsScanned, &q.RowsReturned); err != nil {
			return nil, fmt.Errorf("source: scan query: %w", err)
		}
		out = append(out, q.Entry())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source: read queries: %w", err)
	}
	return out, nil
}

// AppendQueries logs query executions for a table. Records without a
// timestamp are logged at the current time; Count expands into rows.
func (s *SQLiteSource) AppendQueries(ctx context.Context, table string, records []QueryRecord) (int, error) {
	table = strings.ToLower(strings.TrimSpace(table))
	if table == "" {
		return 0, fmt.Errorf("source: table is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("source: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO query_log (table_name, query_text, execution_ms, rows_scanned, rows_returned, executed_at)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("source: prepare: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	n := 0
	for _, q := range records {
		at := q.At
		if at.IsZero() {
			at = now
		}
		for i := 0; i < q.count(); i++ {
			if _, err := stmt.ExecContext(ctx, table, q.Query, q.ExecutionMs, q.RowsScanned, q.RowsReturned, at.UnixNano()); err != nil {
				return 0, fmt.Errorf("source: insert query: %w", err)
			}
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("source: commit: %w", err)
	}
	log.Printf("source: logged %d queries for %s", n, table)
	return n, nil
}

// PutTableStatistics stores table-level statistics.
func (s *SQLiteSource) PutTableStatistics(ctx context.Context, ts types.TableStatistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO table_statistics (table_name, row_count, growth_rate, write_frequency)
VALUES (?, ?, ?, ?)`, ts.Table, ts.RowCount, ts.GrowthRate, ts.WriteFrequency)
	if err != nil {
		return fmt.Errorf("source: put table statistics: %w", err)
	}
	return nil
}

// PutColumnStatistics stores one column's statistics.
func (s *SQLiteSource) PutColumnStatistics(ctx context.Context, cs types.ColumnStatistics) error {
	hist, err := json.Marshal(cs.Histogram)
	if err != nil {
		return fmt.Errorf("source: encode histogram: %w", err)
	}
	mcvs, err := json.Marshal(cs.MostCommonValues)
	if err != nil {
		return fmt.Errorf("source: encode most common values: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO column_statistics
    (table_name, column_name, kind, distinct_count, null_fraction, histogram, most_common_values)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cs.Table, cs.Column, string(cs.Kind), cs.DistinctCount, cs.NullFraction, string(hist), string(mcvs))
	if err != nil {
		return fmt.Errorf("source: put column statistics: %w", err)
	}
	return nil
}

// PutPolicy stores an access policy.
func (s *SQLiteSource) PutPolicy(ctx context.Context, p types.AccessPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO access_policies (name, table_name, role, predicate, effect) VALUES (?, ?, ?, ?, ?)`,
		p.Name, p.Table, p.Role, p.Predicate, string(p.Effect))
	if err != nil {
		return fmt.Errorf("source: put policy: %w", err)
	}
	return nil
}

// Tables lists the tables with statistics or logged queries.
func (s *SQLiteSource) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT table_name FROM table_statistics
UNION
SELECT DISTINCT table_name FROM query_log
ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("source: list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("source: scan table: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
