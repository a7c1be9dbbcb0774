// Package history keeps a SQLite log of past advisory runs: which shapes each
// run saw and how often. Later runs read the mean frequency per shape to
// weight recurring shapes above one-off bursts.
package history

// CreateRunsTableSQL creates the table of completed runs.
const CreateRunsTableSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    table_name TEXT NOT NULL,
    started_at INTEGER NOT NULL
)`

// CreateShapeFrequenciesTableSQL creates the per-run shape frequency table.
const CreateShapeFrequenciesTableSQL = `
CREATE TABLE IF NOT EXISTS shape_frequencies (
    run_id TEXT NOT NULL,
    shape_key TEXT NOT NULL,
    frequency INTEGER NOT NULL,
    PRIMARY KEY (run_id, shape_key),
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
)`

// CreateIndexesSQL creates the lookup indexes.
var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_runs_table ON runs(table_name, started_at)`,
}

// AllSchemaSQL returns all schema statements in execution order.
func AllSchemaSQL() []string {
	stmts := []string{CreateRunsTableSQL, CreateShapeFrequenciesTableSQL}
	return append(stmts, CreateIndexesSQL...)
}
