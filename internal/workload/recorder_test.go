package workload

import (
	"errors"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	advisorerrors "github.com/arkilian/advisor/internal/errors"
	"github.com/arkilian/advisor/pkg/types"
)

func TestRecordAggregatesShapes(t *testing.T) {
	r := NewRecorder("orders")

	queries := []struct {
		text string
		ms   int
	}{
		{"SELECT * FROM orders WHERE tenant_id = 7 AND created_at >= '2024-01-01'", 10},
		{"select * from ORDERS where TENANT_ID = 9 and created_at >= '2023-06-01'", 20},
		{"SELECT * FROM orders o WHERE o.tenant_id = 1 AND o.created_at >= '2022-01-01';", 30},
	}
	for _, q := range queries {
		if _, err := r.Record(q.text, time.Duration(q.ms)*time.Millisecond, 1000, 10); err != nil {
			t.Fatalf("input %q: unexpected error: %v", q.text, err)
		}
	}

	shapes := r.Shapes()
	if len(shapes) != 1 {
		t.Fatalf("expected 1 shape, got %d", len(shapes))
	}
	s := shapes[0]
	if s.Frequency != 3 {
		t.Errorf("Frequency = %d, want 3", s.Frequency)
	}
	if math.Abs(s.MeanExecTimeMs-20) > 1e-9 {
		t.Errorf("MeanExecTimeMs = %v, want 20", s.MeanExecTimeMs)
	}
	if math.Abs(s.ExecTimeVariance()-100) > 1e-9 {
		t.Errorf("variance = %v, want 100", s.ExecTimeVariance())
	}
	if s.MeanRowsScanned != 1000 || s.MeanRowsReturned != 10 {
		t.Errorf("unexpected row means %v %v", s.MeanRowsScanned, s.MeanRowsReturned)
	}
	if s.Key != ShapeKey(s.NormalizedText) || len(s.Key) != 32 {
		t.Errorf("unexpected key %q", s.Key)
	}
}

func TestRecordKeepsFirstExemplars(t *testing.T) {
	r := NewRecorder("orders")
	mustRecord(t, r, "SELECT * FROM orders WHERE tenant_id = 7 AND region IN ('eu', 'us')")
	mustRecord(t, r, "SELECT * FROM orders WHERE tenant_id = 8 AND region IN ('apac')")

	s := r.Shapes()[0]
	if len(s.Terms) != 2 {
		t.Fatalf("expected 2 terms, got %d", len(s.Terms))
	}
	tenant := s.Terms[0]
	if tenant.Column != "tenant_id" || len(tenant.Values) != 1 || tenant.Values[0].Num != 7 || tenant.Values[0].Kind != types.PlaceholderInt {
		t.Errorf("unexpected tenant term %+v", tenant)
	}
	region := s.Terms[1]
	if region.Operator != "IN" || len(region.Values) != 2 || region.Values[1].Text != "us" {
		t.Errorf("unexpected region term %+v", region)
	}
}

func TestRecordPlaceholdersCarryNoExemplar(t *testing.T) {
	r := NewRecorder("orders")
	mustRecord(t, r, "SELECT * FROM orders WHERE created_at BETWEEN $1 AND $2")

	term := r.Shapes()[0].Terms[0]
	if term.Operator != "BETWEEN" || len(term.Values) != 2 {
		t.Fatalf("unexpected term %+v", term)
	}
	for _, v := range term.Values {
		if v.Kind != types.PlaceholderParam {
			t.Errorf("expected param value, got %+v", v)
		}
	}
}

func TestRecordProjectionsAndAggregates(t *testing.T) {
	r := NewRecorder("orders")
	mustRecord(t, r, "SELECT region, sum(total), count(*) FROM orders WHERE status = 'paid' GROUP BY region")

	s := r.Shapes()[0]
	if !s.IsAggregation() || len(s.Aggregates) != 2 {
		t.Errorf("expected 2 aggregates, got %v", s.Aggregates)
	}
	if len(s.Projections) != 1 || s.Projections[0] != "region" {
		t.Errorf("unexpected projections %v", s.Projections)
	}
	if len(s.GroupBy) != 1 || s.GroupBy[0] != "region" {
		t.Errorf("unexpected group by %v", s.GroupBy)
	}
}

func TestRecordMalformed(t *testing.T) {
	r := NewRecorder("orders")

	for _, q := range []string{"", "DELETE FROM orders", "SELECT * FROM orders JOIN users ON a = b", "SELECT * FROM orders WHERE"} {
		_, err := r.Record(q, time.Millisecond, 1, 1)
		if err == nil {
			t.Errorf("input %q: expected error", q)
			continue
		}
		if !errors.Is(err, advisorerrors.ErrMalformedQuery) {
			t.Errorf("input %q: expected malformed query error, got %v", q, err)
		}
		if !advisorerrors.IsRecoverable(err) {
			t.Errorf("input %q: malformed query should be recoverable", q)
		}
	}

	if _, malformed, _ := r.Counts(); malformed != 4 {
		t.Errorf("malformed = %d, want 4", malformed)
	}
	if r.Len() != 0 {
		t.Errorf("expected no shapes, got %d", r.Len())
	}
}

func TestRecordBatch(t *testing.T) {
	r := NewRecorder("orders")
	res := r.RecordBatch([]types.QueryLogEntry{
		{QueryText: "SELECT * FROM orders WHERE id = 1", ExecutionTime: time.Millisecond},
		{QueryText: "SELEC * FROM orders"},
		{QueryText: "SELECT * FROM users WHERE id = 1"},
		{QueryText: "SELECT * FROM orders WHERE id = 2", ExecutionTime: 3 * time.Millisecond},
	})

	if res.Recorded != 2 || res.Malformed != 1 || res.OtherTable != 1 {
		t.Errorf("unexpected batch result %+v", res)
	}
	if len(res.Issues) != 1 || res.Issues[0].Code != types.IssueMalformedQuery {
		t.Errorf("unexpected issues %+v", res.Issues)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 shape, got %d", r.Len())
	}
}

func TestRecordOtherTable(t *testing.T) {
	r := NewRecorder("orders")
	_, err := r.Record("SELECT * FROM users", time.Millisecond, 1, 1)
	if !errors.Is(err, ErrOtherTable) {
		t.Fatalf("expected ErrOtherTable, got %v", err)
	}
	if _, _, other := r.Counts(); other != 1 {
		t.Errorf("other = %d, want 1", other)
	}
}

func TestShapesAreCopies(t *testing.T) {
	r := NewRecorder("orders")
	mustRecord(t, r, "SELECT * FROM orders WHERE id = 1")

	s := r.Shapes()[0]
	s.Frequency = 99
	s.Terms[0].Column = "mutated"

	again := r.Shapes()[0]
	if again.Frequency != 1 || again.Terms[0].Column != "id" {
		t.Error("Shapes should return independent copies")
	}
}

func TestRecordConcurrent(t *testing.T) {
	r := NewRecorder("orders")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = r.Record("SELECT * FROM orders WHERE id = 1", time.Millisecond, 1, 1)
			}
		}()
	}
	wg.Wait()

	if s := r.Shapes(); len(s) != 1 || s[0].Frequency != 400 {
		t.Errorf("unexpected shapes after concurrent recording: %+v", s)
	}
}

// TestProperty_WelfordMatchesBatchMean checks that the running mean and variance
// equal the batch statistics of the recorded execution times.
func TestProperty_WelfordMatchesBatchMean(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("running mean equals batch mean", prop.ForAll(
		func(samples []int) bool {
			if len(samples) == 0 {
				return true
			}
			r := NewRecorder("t")
			sum := 0.0
			for _, ms := range samples {
				if _, err := r.Record("SELECT * FROM t WHERE a = 1", time.Duration(ms)*time.Millisecond, 0, 0); err != nil {
					return false
				}
				sum += float64(ms)
			}
			mean := sum / float64(len(samples))

			variance := 0.0
			if len(samples) > 1 {
				for _, ms := range samples {
					d := float64(ms) - mean
					variance += d * d
				}
				variance /= float64(len(samples) - 1)
			}

			s := r.Shapes()[0]
			return s.Frequency == int64(len(samples)) &&
				math.Abs(s.MeanExecTimeMs-mean) < 1e-6 &&
				math.Abs(s.ExecTimeVariance()-variance) <= 1e-6*math.Max(1, variance)
		},
		gen.SliceOf(gen.IntRange(0, 10000)),
	))

	properties.Property("literals never change the shape key", prop.ForAll(
		func(a, b int64, s string) bool {
			r := NewRecorder("t")
			q1 := "SELECT * FROM t WHERE a = " + strconv.FormatInt(a, 10) + " AND b = 'x'"
			q2 := "SELECT * FROM t WHERE a = " + strconv.FormatInt(b, 10) + " AND b = '" + quote(s) + "'"
			s1, err1 := r.Record(q1, 0, 0, 0)
			s2, err2 := r.Record(q2, 0, 0, 0)
			return err1 == nil && err2 == nil && s1.Key == s2.Key && r.Len() == 1
		},
		gen.Int64Range(0, 1<<40),
		gen.Int64Range(0, 1<<40),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func mustRecord(t *testing.T, r *Recorder, query string) {
	t.Helper()
	if _, err := r.Record(query, time.Millisecond, 1, 1); err != nil {
		t.Fatalf("input %q: unexpected error: %v", query, err)
	}
}

func quote(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	return string(out)
}
