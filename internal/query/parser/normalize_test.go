package parser

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{
			"select * from Orders where Status = 'open'",
			"SELECT * FROM orders WHERE status = ?text",
		},
		{
			"SELECT o.id FROM orders o WHERE o.tenant_id = 7 AND o.total > 10.5 LIMIT 50",
			"SELECT id FROM orders WHERE tenant_id = ?int AND total > ?num LIMIT ?int",
		},
		{
			"SELECT * FROM orders WHERE region IN ('eu', 'us', 'apac') AND paid = true",
			"SELECT * FROM orders WHERE region IN (?list) AND paid = ?bool",
		},
		{
			"SELECT * FROM orders WHERE id = $1 OR id = ?",
			"SELECT * FROM orders WHERE id = ?param OR id = ?param",
		},
		{
			"SELECT date_trunc('month', created_at), count(*) AS n FROM orders GROUP BY 1",
			"SELECT date_trunc(?text, created_at), COUNT(*) FROM orders GROUP BY ?int",
		},
		{
			"SELECT * FROM orders WHERE created_at >= '2024-01-01'::timestamp AND deleted_at IS NULL",
			"SELECT * FROM orders WHERE created_at >= ?text::timestamp AND deleted_at IS NULL",
		},
	}

	for _, tt := range tests {
		sel, err := ParseSelect(tt.input)
		if err != nil {
			t.Errorf("input %q: unexpected error: %v", tt.input, err)
			continue
		}
		if got := Normalize(sel); got != tt.expected {
			t.Errorf("input %q:\n got  %q\n want %q", tt.input, got, tt.expected)
		}
	}
}

func TestNormalizeCollapsesLiterals(t *testing.T) {
	queries := []string{
		"SELECT * FROM events WHERE tenant_id = 'acme' AND ts BETWEEN 1 AND 2",
		"select *   from EVENTS where TENANT_ID = 'corp'   and ts between 100 and 200;",
		"SELECT * FROM events e WHERE e.tenant_id = 'x' AND e.ts BETWEEN 5 AND 6 -- nightly job",
	}

	var first string
	for i, q := range queries {
		sel, err := ParseSelect(q)
		if err != nil {
			t.Fatalf("input %q: unexpected error: %v", q, err)
		}
		got := Normalize(sel)
		if i == 0 {
			first = got
			continue
		}
		if got != first {
			t.Errorf("input %q normalized to %q, want %q", q, got, first)
		}
	}
}

func TestNormalizeKeepsNonValueInLists(t *testing.T) {
	sel, err := ParseSelect("SELECT * FROM t WHERE a IN (b, 1)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "SELECT * FROM t WHERE a IN (b, ?int)"
	if got := Normalize(sel); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCanonicalExpr(t *testing.T) {
	expr, err := ParseExpression("DATE_TRUNC('month', Created_At)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := CanonicalExpr(expr); got != "date_trunc('month', created_at)" {
		t.Errorf("got %q", got)
	}
	if got := NormalizeExpr(expr); got != "date_trunc(?text, created_at)" {
		t.Errorf("got %q", got)
	}
}

func TestPlaceholderFor(t *testing.T) {
	tests := []struct {
		value    interface{}
		expected string
	}{
		{int64(1), PlaceholderInt},
		{1.5, PlaceholderNum},
		{"x", PlaceholderText},
		{true, PlaceholderBool},
		{nil, "NULL"},
		{Param{}, PlaceholderParam},
	}
	for _, tt := range tests {
		if got := PlaceholderFor(tt.value); got != tt.expected {
			t.Errorf("PlaceholderFor(%#v) = %q, want %q", tt.value, got, tt.expected)
		}
	}
}
