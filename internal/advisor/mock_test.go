package advisor

import (
	"context"
	"sync"
	"time"

	"github.com/arkilian/advisor/pkg/types"
)

// mockStats is an in-memory StatisticsProvider.
type mockStats struct {
	table   *types.TableStatistics
	columns map[string]*types.ColumnStatistics
	err     error
	// block, when set, makes every call wait for ctx or the channel.
	block chan struct{}
}

func (m *mockStats) wait(ctx context.Context) error {
	if m.block == nil {
		return nil
	}
	select {
	case <-m.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockStats) GetColumnStatistics(ctx context.Context, table, column string) (*types.ColumnStatistics, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	cs, ok := m.columns[column]
	if !ok {
		return nil, types.ErrNotFound
	}
	return cs, nil
}

func (m *mockStats) GetTableStatistics(ctx context.Context, table string) (*types.TableStatistics, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.table == nil {
		return nil, types.ErrNotFound
	}
	return m.table, nil
}

// mockPolicies is an in-memory PolicyProvider.
type mockPolicies struct {
	policies []types.AccessPolicy
}

func (m *mockPolicies) ListPolicies(ctx context.Context, table string) ([]types.AccessPolicy, error) {
	return m.policies, nil
}

// mockWorkload returns a fixed sample per table.
type mockWorkload struct {
	entries map[string][]types.QueryLogEntry
	err     error
	// stall ignores the context and waits for release.
	stall   bool
	release chan struct{}
}

func (m *mockWorkload) SampleRecentQueries(ctx context.Context, table string, window time.Duration) ([]types.QueryLogEntry, error) {
	if m.stall {
		<-m.release
		return nil, nil
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.entries[table], nil
}

// mockHistory records appends and serves fixed mean frequencies.
type mockHistory struct {
	mu       sync.Mutex
	means    map[string]float64
	appended map[string]int
}

func (m *mockHistory) MeanFrequencies(ctx context.Context, table string) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.means, nil
}

func (m *mockHistory) Append(ctx context.Context, runID, table string, shapes []*types.QueryShape, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appended == nil {
		m.appended = make(map[string]int)
	}
	m.appended[table] += len(shapes)
	return nil
}
