// Package source implements the workload, statistics and policy providers the
// advisor reads from: a static snapshot file and a SQLite database.
package source

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/arkilian/advisor/internal/config"
	"github.com/arkilian/advisor/pkg/types"
)

// QueryRecord is one logged query execution.
type QueryRecord struct {
	Query        string  `json:"query" yaml:"query" toml:"query"`
	ExecutionMs  float64 `json:"execution_ms" yaml:"execution_ms" toml:"execution_ms"`
	RowsScanned  int64   `json:"rows_scanned" yaml:"rows_scanned" toml:"rows_scanned"`
	RowsReturned int64   `json:"rows_returned" yaml:"rows_returned" toml:"rows_returned"`
	// Count repeats the record; zero means one execution.
	Count int `json:"count,omitempty" yaml:"count,omitempty" toml:"count"`
	// At is when the query ran; the zero time is always inside the window.
	At time.Time `json:"at,omitempty" yaml:"at,omitempty" toml:"at"`
}

// Entry converts the record into a log entry.
func (q QueryRecord) Entry() types.QueryLogEntry {
	return types.QueryLogEntry{
		QueryText:     q.Query,
		ExecutionTime: time.Duration(q.ExecutionMs * float64(time.Millisecond)),
		RowsScanned:   q.RowsScanned,
		RowsReturned:  q.RowsReturned,
	}
}

func (q QueryRecord) count() int {
	if q.Count < 1 {
		return 1
	}
	return q.Count
}

// Provider is a complete input source for the advisor.
type Provider interface {
	GetColumnStatistics(ctx context.Context, table, column string) (*types.ColumnStatistics, error)
	GetTableStatistics(ctx context.Context, table string) (*types.TableStatistics, error)
	ListPolicies(ctx context.Context, table string) ([]types.AccessPolicy, error)
	SampleRecentQueries(ctx context.Context, table string, window time.Duration) ([]types.QueryLogEntry, error)
	// Tables lists the tables the source knows about.
	Tables(ctx context.Context) ([]string, error)
	Close() error
}

// Ingester is implemented by sources that accept new query log entries.
type Ingester interface {
	AppendQueries(ctx context.Context, table string, records []QueryRecord) (int, error)
}

// Open opens the source selected by the configuration.
func Open(cfg config.SourceConfig) (Provider, error) {
	switch cfg.Type {
	case "file":
		return LoadFile(cfg.Path)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("source: unknown type %q", cfg.Type)
	}
}

// policiesFor returns the policies that apply to a table, ordered by name and role.
func policiesFor(all []types.AccessPolicy, table string) []types.AccessPolicy {
	var out []types.AccessPolicy
	for _, p := range all {
		if p.Table == "" || p.Table == table {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Role < out[j].Role
	})
	return out
}
