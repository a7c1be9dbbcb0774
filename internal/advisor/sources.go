package advisor

import (
	"context"
	"time"

	"github.com/arkilian/advisor/pkg/types"
)

// StatisticsProvider supplies table and column statistics. Both methods
// return types.ErrNotFound when nothing is known.
type StatisticsProvider interface {
	GetColumnStatistics(ctx context.Context, table, column string) (*types.ColumnStatistics, error)
	GetTableStatistics(ctx context.Context, table string) (*types.TableStatistics, error)
}

// PolicyProvider lists the row-level access policies of a table.
type PolicyProvider interface {
	ListPolicies(ctx context.Context, table string) ([]types.AccessPolicy, error)
}

// WorkloadSource samples recently executed queries.
type WorkloadSource interface {
	SampleRecentQueries(ctx context.Context, table string, window time.Duration) ([]types.QueryLogEntry, error)
}

// HistoryStore keeps shape frequencies across runs.
type HistoryStore interface {
	// MeanFrequencies returns the mean recorded frequency per shape key.
	MeanFrequencies(ctx context.Context, table string) (map[string]float64, error)
	// Append records the shape frequencies of a completed run.
	Append(ctx context.Context, runID, table string, shapes []*types.QueryShape, at time.Time) error
}
