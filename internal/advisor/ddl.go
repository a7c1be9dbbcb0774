package advisor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spaolacci/murmur3"

	"github.com/arkilian/advisor/pkg/types"
)

// maxIdentifier is the PostgreSQL identifier length limit.
const maxIdentifier = 63

var nonIdent = regexp.MustCompile(`[^a-z0-9]+`)

// IndexName derives a stable index name from a candidate. Names longer than
// the identifier limit are cut and suffixed with a hash of the identity.
func IndexName(c *types.IndexCandidate) string {
	parts := []string{"idx", c.Table}
	switch c.Kind {
	case types.IndexExpression:
		parts = append(parts, c.Expression)
	default:
		parts = append(parts, c.Columns...)
	}
	if c.Kind == types.IndexPartial {
		parts = append(parts, "where", c.Predicate)
	}
	name := strings.Trim(nonIdent.ReplaceAllString(strings.ToLower(strings.Join(parts, "_")), "_"), "_")
	if len(name) <= maxIdentifier {
		return name
	}
	sum := fmt.Sprintf("%08x", murmur3.Sum32([]byte(c.Identity())))
	return strings.TrimRight(name[:maxIdentifier-len(sum)-1], "_") + "_" + sum
}

// IndexDDL renders the suggested CREATE INDEX statement.
func IndexDDL(c *types.IndexCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE INDEX CONCURRENTLY %s ON %s ", IndexName(c), c.Table)
	if c.Kind == types.IndexExpression {
		fmt.Fprintf(&b, "((%s))", c.Expression)
	} else {
		fmt.Fprintf(&b, "(%s)", strings.Join(c.Columns, ", "))
	}
	if c.Kind == types.IndexPartial && c.Predicate != "" {
		fmt.Fprintf(&b, " WHERE %s", c.Predicate)
	}
	b.WriteString(";")
	return b.String()
}

// PartitionDDL renders the suggested partitioned table and its partitions.
// The parent is created alongside the existing table; moving rows is left to
// the operator.
func PartitionDDL(plan *types.PartitionPlan) string {
	parent := plan.Table + "_partitioned"
	method := "RANGE"
	if plan.Strategy == types.StrategyList {
		method = "LIST"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (LIKE %s INCLUDING ALL) PARTITION BY %s (%s);\n",
		parent, plan.Table, method, plan.KeyColumn)
	for _, bucket := range plan.Buckets {
		fmt.Fprintf(&b, "CREATE TABLE %s PARTITION OF %s ", bucket.Name, parent)
		switch {
		case bucket.IsDefault:
			b.WriteString("DEFAULT")
		case plan.Strategy == types.StrategyList:
			vals := make([]string, len(bucket.Values))
			for i, v := range bucket.Values {
				vals[i] = literal(v, plan.Kind)
			}
			fmt.Fprintf(&b, "FOR VALUES IN (%s)", strings.Join(vals, ", "))
		default:
			fmt.Fprintf(&b, "FOR VALUES FROM (%s) TO (%s)",
				literal(bucket.Lower.Label, plan.Kind), literal(bucket.Upper.Label, plan.Kind))
		}
		fmt.Fprintf(&b, "; -- ~%s rows\n", humanize.Comma(bucket.EstimatedRows))
	}
	return strings.TrimRight(b.String(), "\n")
}

func literal(v string, kind types.ColumnKind) string {
	if kind == types.ColumnNumeric {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
