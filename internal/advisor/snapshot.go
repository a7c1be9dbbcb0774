package advisor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	adverrors "github.com/arkilian/advisor/internal/errors"
	"github.com/arkilian/advisor/internal/workload"
	"github.com/arkilian/advisor/pkg/types"
)

// inputs is everything a run reads from the outside world, pulled once at
// run start.
type inputs struct {
	entries  []types.QueryLogEntry
	table    types.TableStatistics
	columns  []*types.ColumnStatistics
	policies []types.AccessPolicy
	history  map[string]float64
	// tableMissing is set when the provider has no table statistics.
	tableMissing bool
}

// guard runs fn in its own goroutine and returns when fn finishes or ctx is
// done, whichever comes first. A stage that outlives its deadline yields a
// TimedOutError.
func guard(ctx context.Context, stage string, fn func(context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() != nil {
			return ctxError(ctx, stage)
		}
		return err
	case <-ctx.Done():
		return ctxError(ctx, stage)
	}
}

func ctxError(ctx context.Context, stage string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return adverrors.NewTimedOutError(stage, ctx.Err())
	}
	return adverrors.Wrap(adverrors.ErrCategoryRun, adverrors.CodeCancelled, stage+" cancelled", ctx.Err())
}

// pull reads the workload sample, statistics, policies and history for one
// table. The recorder is filled as a side effect so column statistics are
// requested only for columns the workload filters on.
func (a *Advisor) pull(ctx context.Context, table string, rec *workload.Recorder) (*inputs, workload.BatchResult, error) {
	in := &inputs{table: types.TableStatistics{Table: table}}
	var batch workload.BatchResult

	err := guard(ctx, "workload sample", func(ctx context.Context) error {
		entries, err := a.workload.SampleRecentQueries(ctx, table, a.cfg.Run.Window)
		if err != nil {
			return providerError(adverrors.ErrCategoryWorkload, adverrors.CodeSourceFailed, "sample workload", err)
		}
		in.entries = entries
		return nil
	})
	if err != nil {
		return nil, batch, err
	}
	batch = rec.RecordBatch(in.entries)

	err = guard(ctx, "statistics", func(ctx context.Context) error {
		ts, err := a.stats.GetTableStatistics(ctx, table)
		switch {
		case errors.Is(err, types.ErrNotFound) || (err == nil && ts == nil):
			in.tableMissing = true
		case err != nil:
			return providerError(adverrors.ErrCategoryStatistics, adverrors.CodeProviderFailed, "table statistics", err)
		case ts != nil:
			in.table = *ts
		}

		for _, col := range filterColumns(rec.Shapes()) {
			cs, err := a.stats.GetColumnStatistics(ctx, table, col)
			if errors.Is(err, types.ErrNotFound) || (err == nil && cs == nil) {
				continue
			}
			if err != nil {
				return providerError(adverrors.ErrCategoryStatistics, adverrors.CodeProviderFailed,
					fmt.Sprintf("column statistics for %s.%s", table, col), err)
			}
			cp := *cs
			cp.Column = col
			in.columns = append(in.columns, &cp)
		}
		return nil
	})
	if err != nil {
		return nil, batch, err
	}

	err = guard(ctx, "policies", func(ctx context.Context) error {
		policies, err := a.policies.ListPolicies(ctx, table)
		if err != nil {
			return providerError(adverrors.ErrCategoryPolicy, adverrors.CodeProviderFailed, "list policies", err)
		}
		in.policies = policies
		return nil
	})
	if err != nil {
		return nil, batch, err
	}

	if a.history != nil && a.cfg.History.Enabled {
		err = guard(ctx, "history", func(ctx context.Context) error {
			h, err := a.history.MeanFrequencies(ctx, table)
			if err != nil {
				return providerError(adverrors.ErrCategoryStorage, adverrors.CodeDownloadFailed, "load history", err)
			}
			in.history = h
			return nil
		})
		if err != nil {
			return nil, batch, err
		}
	}
	return in, batch, nil
}

// estimateRows stands in for a missing table row count: the most rows any
// sampled shape scanned on average.
func estimateRows(shapes []*types.QueryShape) int64 {
	var rows float64
	for _, s := range shapes {
		rows = math.Max(rows, s.MeanRowsScanned)
	}
	return int64(math.Round(rows))
}

func providerError(category adverrors.ErrorCategory, code, what string, err error) error {
	var ae *adverrors.AdvisorError
	if errors.As(err, &ae) {
		return err
	}
	return adverrors.Wrap(category, code, what+" failed", err)
}

// filterColumns returns the sorted columns the shapes filter on.
func filterColumns(shapes []*types.QueryShape) []string {
	set := make(map[string]bool)
	for _, s := range shapes {
		for _, t := range s.Terms {
			set[t.Column] = true
		}
	}
	cols := make([]string, 0, len(set))
	for c := range set {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
