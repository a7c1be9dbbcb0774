package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/arkilian/advisor/pkg/types"
)

// Snapshot is the on-disk layout of a snapshot file.
type Snapshot struct {
	Tables   []TableSnapshot      `json:"tables" yaml:"tables" toml:"tables"`
	Policies []types.AccessPolicy `json:"policies" yaml:"policies" toml:"policies"`
}

// TableSnapshot holds one table's statistics and query log.
type TableSnapshot struct {
	Name           string                   `json:"name" yaml:"name" toml:"name"`
	RowCount       int64                    `json:"row_count" yaml:"row_count" toml:"row_count"`
	GrowthRate     float64                  `json:"growth_rate" yaml:"growth_rate" toml:"growth_rate"`
	WriteFrequency float64                  `json:"write_frequency" yaml:"write_frequency" toml:"write_frequency"`
	Columns        []types.ColumnStatistics `json:"columns" yaml:"columns" toml:"columns"`
	Queries        []QueryRecord            `json:"queries" yaml:"queries" toml:"queries"`
}

// FileSource serves a snapshot file. The query window is measured back from
// the newest timestamped query of each table, so a snapshot gives the same
// sample whenever it is read.
type FileSource struct {
	path   string
	tables map[string]*TableSnapshot
	snap   Snapshot
}

// LoadFile reads a YAML, JSON or TOML snapshot file.
func LoadFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("source: failed to read snapshot: %w", err)
	}
	snap, err := ParseSnapshot(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return NewFileSource(path, snap)
}

// ParseSnapshot decodes a snapshot in the format named by ext.
func ParseSnapshot(data []byte, ext string) (Snapshot, error) {
	var snap Snapshot
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &snap); err != nil {
			return snap, fmt.Errorf("source: failed to parse YAML snapshot: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &snap); err != nil {
			return snap, fmt.Errorf("source: failed to parse JSON snapshot: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &snap); err != nil {
			return snap, fmt.Errorf("source: failed to parse TOML snapshot: %w", err)
		}
	default:
		return snap, fmt.Errorf("source: unsupported snapshot format: %s", ext)
	}
	return snap, nil
}

// NewFileSource indexes a decoded snapshot.
func NewFileSource(path string, snap Snapshot) (*FileSource, error) {
	fs := &FileSource{path: path, snap: snap, tables: make(map[string]*TableSnapshot, len(snap.Tables))}
	for i := range snap.Tables {
		t := &snap.Tables[i]
		t.Name = strings.ToLower(t.Name)
		if t.Name == "" {
			return nil, fmt.Errorf("source: table %d has no name", i)
		}
		if _, dup := fs.tables[t.Name]; dup {
			return nil, fmt.Errorf("source: duplicate table %s", t.Name)
		}
		for j := range t.Columns {
			t.Columns[j].Table = t.Name
			t.Columns[j].Column = strings.ToLower(t.Columns[j].Column)
		}
		fs.tables[t.Name] = t
	}
	for i := range fs.snap.Policies {
		fs.snap.Policies[i].Table = strings.ToLower(fs.snap.Policies[i].Table)
	}
	return fs, nil
}

// GetColumnStatistics returns a copy of one column's statistics.
func (f *FileSource) GetColumnStatistics(ctx context.Context, table, column string) (*types.ColumnStatistics, error) {
	t, ok := f.tables[table]
	if !ok {
		return nil, types.ErrNotFound
	}
	for _, c := range t.Columns {
		if c.Column == column {
			cp := c
			return &cp, nil
		}
	}
	return nil, types.ErrNotFound
}

// GetTableStatistics returns the table-level statistics.
func (f *FileSource) GetTableStatistics(ctx context.Context, table string) (*types.TableStatistics, error) {
	t, ok := f.tables[table]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &types.TableStatistics{
		Table:          t.Name,
		RowCount:       t.RowCount,
		GrowthRate:     t.GrowthRate,
		WriteFrequency: t.WriteFrequency,
	}, nil
}

// ListPolicies returns the policies applying to a table.
func (f *FileSource) ListPolicies(ctx context.Context, table string) ([]types.AccessPolicy, error) {
	return policiesFor(f.snap.Policies, table), nil
}

// SampleRecentQueries expands the table's query records inside the window.
// A non-positive window returns every record.
func (f *FileSource) SampleRecentQueries(ctx context.Context, table string, window time.Duration) ([]types.QueryLogEntry, error) {
	t, ok := f.tables[table]
	if !ok {
		return nil, nil
	}

	var newest time.Time
	for _, q := range t.Queries {
		if q.At.After(newest) {
			newest = q.At
		}
	}
	cutoff := newest.Add(-window)

	var out []types.QueryLogEntry
	for _, q := range t.Queries {
		if window > 0 && !q.At.IsZero() && q.At.Before(cutoff) {
			continue
		}
		e := q.Entry()
		for i := 0; i < q.count(); i++ {
			out = append(out, e)
		}
	}
	return out, nil
}

// Tables lists the tables in the snapshot.
func (f *FileSource) Tables(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(f.tables))
	for name := range f.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Close is a no-op.
func (f *FileSource) Close() error {
	return nil
}
