// Package access checks index candidates and partition plans against
// row-level access policies.
package access

import (
	"fmt"
	"log"
	"sort"
	"strings"

	adverrors "github.com/arkilian/advisor/internal/errors"
	"github.com/arkilian/advisor/internal/query/parser"
	"github.com/arkilian/advisor/pkg/types"
)

// CompatibilityReport holds the checker's findings. Index findings are
// warnings; plan findings are errors and block the plan.
type CompatibilityReport struct {
	// IndexWarnings maps a candidate identity to its warnings.
	IndexWarnings map[string][]types.Issue
	// PlanErrors are must-fix findings against the partition plan.
	PlanErrors []types.Issue
	// Warnings are findings about the policies themselves.
	Warnings []types.Issue
}

// WarningsFor returns the warnings recorded for a candidate.
func (r *CompatibilityReport) WarningsFor(c *types.IndexCandidate) []types.Issue {
	return r.IndexWarnings[c.Identity()]
}

// PlanBlocked reports whether the partition plan must not be proposed.
func (r *CompatibilityReport) PlanBlocked() bool {
	return len(r.PlanErrors) > 0
}

// compiledPolicy is a filter policy with its predicate parsed once.
type compiledPolicy struct {
	policy  types.AccessPolicy
	columns map[string]bool
	// nullChecks maps a column to true for IS NOT NULL and false for IS NULL.
	nullChecks map[string]bool
	parseErr   error
}

// Check verifies every candidate and the plan against the filter policies.
// A nil plan is allowed.
func Check(candidates []*types.IndexCandidate, plan *types.PartitionPlan, policies []types.AccessPolicy) *CompatibilityReport {
	report := &CompatibilityReport{IndexWarnings: make(map[string][]types.Issue)}

	for _, cp := range compile(policies) {
		if cp.parseErr != nil {
			report.Warnings = append(report.Warnings, types.Issue{
				Code:    types.IssuePolicyUnparsable,
				Message: fmt.Sprintf("policy %s: unparsable predicate, treated as filtering every column: %v", cp.policy.Name, cp.parseErr),
				Subject: cp.policy.Name,
			})
		}

		for _, c := range candidates {
			if !sameTable(cp.policy.Table, c.Table) {
				continue
			}
			id := c.Identity()
			report.IndexWarnings[id] = append(report.IndexWarnings[id], checkCandidate(cp, c)...)
		}

		if plan != nil && sameTable(cp.policy.Table, plan.Table) {
			if issue, ok := checkPlan(cp, plan); ok {
				report.PlanErrors = append(report.PlanErrors, issue)
			}
		}
	}

	for id, issues := range report.IndexWarnings {
		if len(issues) == 0 {
			delete(report.IndexWarnings, id)
		}
	}
	return report
}

// compile parses the filter policies in a stable order. allow-all policies
// are skipped.
func compile(policies []types.AccessPolicy) []compiledPolicy {
	sorted := append([]types.AccessPolicy(nil), policies...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Role < sorted[j].Role
	})

	out := make([]compiledPolicy, 0, len(sorted))
	for _, p := range sorted {
		if p.Effect == types.EffectAllowAll {
			continue
		}
		cp := compiledPolicy{policy: p, columns: make(map[string]bool), nullChecks: make(map[string]bool)}
		expr, err := parser.ParseExpression(p.Predicate)
		if err != nil || strings.TrimSpace(p.Predicate) == "" {
			if err == nil {
				err = fmt.Errorf("empty predicate")
			}
			log.Printf("[WARN] access: policy %s on %s: unparsable predicate: %v", p.Name, p.Table, err)
			cp.parseErr = err
			out = append(out, cp)
			continue
		}
		for _, col := range parser.ReferencedColumns(expr) {
			cp.columns[col] = true
		}
		for _, pred := range parser.ExtractExprPredicates(expr) {
			if pred.Type == parser.PredicateIsNull && !pred.Disjunctive && pred.Function == "" {
				cp.nullChecks[pred.Column] = pred.Not
			}
		}
		out = append(out, cp)
	}
	return out
}

// references reports whether the policy filters on col. An unparsable policy
// references every column.
func (cp compiledPolicy) references(col string) bool {
	return cp.parseErr != nil || cp.columns[strings.ToLower(col)]
}

func checkCandidate(cp compiledPolicy, c *types.IndexCandidate) []types.Issue {
	subject := c.Identity()
	if cp.parseErr != nil {
		return []types.Issue{{
			Code:    types.IssuePolicyUnparsable,
			Message: fmt.Sprintf("policy %s could not be parsed; verify index %s does not expose rows hidden from role %s", cp.policy.Name, describe(c), cp.policy.Role),
			Subject: subject,
		}}
	}

	var issues []types.Issue
	var overlap []string
	for _, col := range candidateColumns(c) {
		if cp.references(col) {
			overlap = append(overlap, col)
		}
	}
	if len(overlap) > 0 {
		issues = append(issues, types.Issue{
			Code: types.IssuePolicyOverlap,
			Message: fmt.Sprintf("index %s covers %s filtered by policy %s for role %s; index-only scans must apply the policy",
				describe(c), strings.Join(overlap, ", "), cp.policy.Name, cp.policy.Role),
			Subject: subject,
		})
	}

	if c.Kind == types.IndexPartial {
		if col, notNull, ok := partialNullCheck(c.Predicate); ok {
			if policyNotNull, found := cp.nullChecks[col]; found && policyNotNull != notNull {
				issues = append(issues, types.Issue{
					Code: types.IssuePolicyContradiction,
					Message: fmt.Sprintf("partial index predicate %q contradicts policy %s (%s): the index holds only rows the policy hides from role %s",
						c.Predicate, cp.policy.Name, cp.policy.Predicate, cp.policy.Role),
					Subject: subject,
				})
			}
		}
	}
	return issues
}

func checkPlan(cp compiledPolicy, plan *types.PartitionPlan) (types.Issue, bool) {
	if !cp.references(plan.KeyColumn) {
		return types.Issue{}, false
	}

	var msg string
	switch {
	case cp.parseErr != nil:
		msg = fmt.Sprintf("policy %s could not be parsed; partitioning on %s may expose filtered rows through partition metadata",
			cp.policy.Name, plan.KeyColumn)
	case plan.Strategy == types.StrategyList:
		msg = fmt.Sprintf("list partitions on %s are named after values policy %s hides from role %s",
			plan.KeyColumn, cp.policy.Name, cp.policy.Role)
	default:
		msg = fmt.Sprintf("partition bounds on %s reveal row counts policy %s hides from role %s",
			plan.KeyColumn, cp.policy.Name, cp.policy.Role)
	}
	err := adverrors.NewPolicyConflictError(cp.policy.Name, plan.KeyColumn, msg)
	return types.Issue{Code: err.Code, Message: err.Message, Subject: "partition|" + plan.KeyColumn}, true
}

// candidateColumns returns every column the candidate's keys, expression or
// predicate touch.
func candidateColumns(c *types.IndexCandidate) []string {
	set := make(map[string]bool)
	for _, col := range c.Columns {
		set[strings.ToLower(col)] = true
	}
	for _, text := range []string{c.Expression, c.Predicate} {
		if text == "" {
			continue
		}
		if expr, err := parser.ParseExpression(text); err == nil {
			for _, col := range parser.ReferencedColumns(expr) {
				set[col] = true
			}
		}
	}
	cols := make([]string, 0, len(set))
	for col := range set {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func partialNullCheck(predicate string) (column string, notNull bool, ok bool) {
	expr, err := parser.ParseExpression(predicate)
	if err != nil {
		return "", false, false
	}
	for _, p := range parser.ExtractExprPredicates(expr) {
		if p.Type == parser.PredicateIsNull && p.Function == "" {
			return p.Column, p.Not, true
		}
	}
	return "", false, false
}

func describe(c *types.IndexCandidate) string {
	if c.Kind == types.IndexExpression {
		return "(" + c.Expression + ")"
	}
	return "(" + strings.Join(c.Columns, ", ") + ")"
}

func sameTable(policyTable, table string) bool {
	return policyTable == "" || table == "" || strings.EqualFold(policyTable, table)
}
