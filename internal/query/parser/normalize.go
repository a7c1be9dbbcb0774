package parser

import (
	"strings"
)

// Typed placeholders written by Normalize in place of literals.
const (
	PlaceholderInt   = "?int"
	PlaceholderNum   = "?num"
	PlaceholderText  = "?text"
	PlaceholderBool  = "?bool"
	PlaceholderParam = "?param"
	PlaceholderList  = "(?list)"
)

// Normalize renders a canonical, literal-free text for a SELECT statement.
// Keywords are upper-cased, identifiers lower-cased, table qualifiers and
// aliases dropped, and every literal replaced by a typed placeholder. IN lists
// made only of literals and bind parameters collapse to (?list), so queries that
// differ only in their constants share one normalized text.
func Normalize(stmt *SelectStatement) string {
	r := renderer{}
	return r.statement(stmt)
}

// NormalizeExpr renders an expression the way Normalize does.
func NormalizeExpr(expr Expression) string {
	r := renderer{}
	return r.expr(expr)
}

// CanonicalExpr renders an expression with canonical casing and spacing but
// keeps its literals, producing text usable in DDL.
func CanonicalExpr(expr Expression) string {
	r := renderer{keepLiterals: true}
	return r.expr(expr)
}

// PlaceholderFor returns the typed placeholder for a literal value.
func PlaceholderFor(v interface{}) string {
	switch v.(type) {
	case int64:
		return PlaceholderInt
	case float64:
		return PlaceholderNum
	case string:
		return PlaceholderText
	case bool:
		return PlaceholderBool
	case nil:
		return "NULL"
	default:
		return PlaceholderParam
	}
}

type renderer struct {
	keepLiterals bool
}

func (r renderer) statement(s *SelectStatement) string {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	if s.Distinct {
		sb.WriteString("DISTINCT ")
	}
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = r.expr(c.Expr)
	}
	sb.WriteString(strings.Join(cols, ", "))

	if s.From != nil {
		sb.WriteString(" FROM ")
		sb.WriteString(strings.ToLower(s.From.Name))
	}
	if s.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(r.expr(s.Where))
	}
	if len(s.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(r.list(s.GroupBy))
	}
	if s.Having != nil {
		sb.WriteString(" HAVING ")
		sb.WriteString(r.expr(s.Having))
	}
	if len(s.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		orders := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			dir := " ASC"
			if o.Desc {
				dir = " DESC"
			}
			orders[i] = r.expr(o.Expr) + dir
		}
		sb.WriteString(strings.Join(orders, ", "))
	}
	if s.Limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(PlaceholderInt)
	}
	if s.Offset != nil {
		sb.WriteString(" OFFSET ")
		sb.WriteString(PlaceholderInt)
	}

	return sb.String()
}

func (r renderer) list(exprs []Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = r.expr(e)
	}
	return strings.Join(parts, ", ")
}

func (r renderer) expr(e Expression) string {
	switch ex := e.(type) {
	case *ColumnRef:
		return strings.ToLower(ex.Column)
	case *Literal:
		if r.keepLiterals || ex.Value == nil {
			return ex.String()
		}
		return PlaceholderFor(ex.Value)
	case *Placeholder:
		if r.keepLiterals {
			return ex.String()
		}
		return PlaceholderParam
	case *CastExpr:
		return r.expr(ex.Expr) + "::" + strings.ToLower(ex.Type)
	case *StarExpr:
		return "*"
	case *FunctionCall:
		return strings.ToLower(ex.Name) + "(" + r.list(ex.Args) + ")"
	case *AggregateExpr:
		var sb strings.Builder
		sb.WriteString(strings.ToUpper(ex.Function))
		sb.WriteString("(")
		if ex.Distinct {
			sb.WriteString("DISTINCT ")
		}
		if ex.Arg != nil {
			sb.WriteString(r.expr(ex.Arg))
		}
		sb.WriteString(")")
		return sb.String()
	case *BinaryExpr:
		return r.expr(ex.Left) + " " + strings.ToUpper(ex.Operator) + " " + r.expr(ex.Right)
	case *UnaryExpr:
		if ex.Operator == "-" {
			return "-" + r.expr(ex.Operand)
		}
		return ex.Operator + " " + r.expr(ex.Operand)
	case *InExpr:
		op := " IN "
		if ex.Not {
			op = " NOT IN "
		}
		if !r.keepLiterals && allValues(ex.Values) {
			return r.expr(ex.Expr) + op + PlaceholderList
		}
		return r.expr(ex.Expr) + op + "(" + r.list(ex.Values) + ")"
	case *BetweenExpr:
		op := " BETWEEN "
		if ex.Not {
			op = " NOT BETWEEN "
		}
		return r.expr(ex.Expr) + op + r.expr(ex.Low) + " AND " + r.expr(ex.High)
	case *IsNullExpr:
		if ex.Not {
			return r.expr(ex.Expr) + " IS NOT NULL"
		}
		return r.expr(ex.Expr) + " IS NULL"
	case *LikeExpr:
		op := " LIKE "
		if ex.Not {
			op = " NOT LIKE "
		}
		return r.expr(ex.Expr) + op + r.expr(ex.Pattern)
	case *ParenExpr:
		return "(" + r.expr(ex.Expr) + ")"
	default:
		return e.String()
	}
}

// allValues reports whether every expression is a literal, bind parameter, or a cast of one.
func allValues(exprs []Expression) bool {
	for _, e := range exprs {
		if !isValue(e) {
			return false
		}
	}
	return true
}

func isValue(e Expression) bool {
	switch ex := e.(type) {
	case *Literal, *Placeholder:
		return true
	case *CastExpr:
		return isValue(ex.Expr)
	case *ParenExpr:
		return isValue(ex.Expr)
	default:
		return false
	}
}
