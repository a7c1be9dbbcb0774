package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"

	"github.com/arkilian/advisor/pkg/types"
)

// Render writes a human-readable rendering of a report.
func Render(w io.Writer, r *types.RecommendationReport) error {
	s := r.Summary
	fmt.Fprintf(w, "Table %s: %s queries sampled, %s shapes, %d candidates evaluated\n",
		r.Table, humanize.Comma(int64(s.QueriesSampled)), humanize.Comma(int64(s.ShapesAnalyzed)), s.CandidatesEvaluated)
	if s.MalformedDropped > 0 || s.OtherTableIgnored > 0 {
		fmt.Fprintf(w, "Dropped %d malformed and ignored %d other-table queries\n", s.MalformedDropped, s.OtherTableIgnored)
	}

	if len(r.Recommendations) == 0 {
		fmt.Fprintln(w, "\nNo recommendations.")
	} else {
		fmt.Fprintln(w, "\nRecommendations:")
		t := newTable(w)
		t.AddHeader("#", "ACTION", "SUBJECT", "NET BENEFIT", "SHAPES", "NOTES")
		for i := range r.Recommendations {
			rec := &r.Recommendations[i]
			t.AddLine(i+1, rec.Action, subject(rec), benefit(rec), rec.Rationale.ShapesServed, notes(rec))
		}
		t.Print()
	}

	if len(r.Blocked) > 0 {
		fmt.Fprintln(w, "\nBlocked:")
		t := newTable(w)
		t.AddHeader("ACTION", "SUBJECT", "ERRORS")
		for i := range r.Blocked {
			rec := &r.Blocked[i]
			t.AddLine(rec.Action, subject(rec), issueText(rec.Errors))
		}
		t.Print()
	}

	if len(r.FullScanShapes) > 0 {
		fmt.Fprintln(w, "\nFull scans:")
		t := newTable(w)
		t.AddHeader("FREQUENCY", "MEAN MS", "QUERY", "REASON")
		for _, f := range r.FullScanShapes {
			t.AddLine(humanize.Comma(f.Frequency), fmt.Sprintf("%.1f", f.MeanExecTimeMs), f.NormalizedText, f.Reason)
		}
		t.Print()
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		t := newTable(w)
		t.AddHeader("CODE", "SUBJECT", "MESSAGE")
		for _, is := range r.Warnings {
			t.AddLine(is.Code, is.Subject, is.Message)
		}
		t.Print()
	}

	if len(r.Recommendations) > 0 {
		fmt.Fprintln(w, "\nSuggested DDL:")
		for _, rec := range r.Recommendations {
			fmt.Fprintln(w, rec.Statement)
		}
	}
	return nil
}

func newTable(w io.Writer) *tabby.Tabby {
	return tabby.NewCustom(tabwriter.NewWriter(w, 0, 0, 2, ' ', 0))
}

func subject(rec *types.Recommendation) string {
	switch {
	case rec.Index != nil:
		c := rec.Index
		switch c.Kind {
		case types.IndexExpression:
			return fmt.Sprintf("%s (%s)", c.Table, c.Expression)
		case types.IndexPartial:
			return fmt.Sprintf("%s (%s) WHERE %s", c.Table, strings.Join(c.Columns, ", "), c.Predicate)
		default:
			return fmt.Sprintf("%s (%s)", c.Table, strings.Join(c.Columns, ", "))
		}
	case rec.Partition != nil:
		p := rec.Partition
		return fmt.Sprintf("%s by %s %s, %d buckets", p.Table, p.Strategy, p.KeyColumn, p.BucketCount())
	default:
		return rec.Subject()
	}
}

func benefit(rec *types.Recommendation) string {
	if rec.Action == types.ActionCreatePartitionPlan {
		return "-"
	}
	return humanize.Commaf(float64(int64(rec.Rationale.NetBenefit)))
}

func notes(rec *types.Recommendation) string {
	var parts []string
	if rec.Rationale.Reason != "" {
		parts = append(parts, rec.Rationale.Reason)
	}
	if rec.Rationale.LowConfidence {
		parts = append(parts, "low confidence")
	}
	for _, w := range rec.Warnings {
		parts = append(parts, w.Code)
	}
	return strings.Join(parts, "; ")
}

func issueText(issues []types.Issue) string {
	parts := make([]string, len(issues))
	for i, is := range issues {
		parts[i] = is.Code + ": " + is.Message
	}
	return strings.Join(parts, "; ")
}
