package parser

import (
	"testing"
)

// lex reads tokens up to and including EOF or the first error.
func lex(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return tokens
		}
	}
}

func TestLexer(t *testing.T) {
	tests := []struct {
		input    string
		expected []TokenType
	}{
		{
			"SELECT * FROM orders",
			[]TokenType{TokenSelect, TokenStar, TokenFrom, TokenIdent, TokenEOF},
		},
		{
			"SELECT id FROM orders WHERE id = ?",
			[]TokenType{TokenSelect, TokenIdent, TokenFrom, TokenIdent, TokenWhere, TokenIdent, TokenEq, TokenPlaceholder, TokenEOF},
		},
		{
			"SELECT COUNT(*) FROM orders WHERE status = $1 -- trailing comment",
			[]TokenType{TokenSelect, TokenCount, TokenLParen, TokenStar, TokenRParen, TokenFrom, TokenIdent, TokenWhere, TokenIdent, TokenEq, TokenPlaceholder, TokenEOF},
		},
		{
			"created_at::date >= '2024-01-01' /* block */ AND TRUE",
			[]TokenType{TokenIdent, TokenCast, TokenIdent, TokenGe, TokenString, TokenAnd, TokenTrue, TokenEOF},
		},
		{
			"a != 1.5",
			[]TokenType{TokenIdent, TokenNe, TokenNumber, TokenEOF},
		},
	}

	for _, tt := range tests {
		tokens := lex(tt.input)

		if len(tokens) != len(tt.expected) {
			t.Errorf("input %q: expected %d tokens, got %d", tt.input, len(tt.expected), len(tokens))
			continue
		}

		for i, tok := range tokens {
			if tok.Type != tt.expected[i] {
				t.Errorf("input %q: token %d: expected %s, got %s", tt.input, i, tt.expected[i], tok.Type)
			}
		}
	}
}

func TestLexerEscapedQuote(t *testing.T) {
	stmt, err := ParseSelect("SELECT * FROM customers WHERE name = 'O''Brien'")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bin, ok := stmt.Where.(*BinaryExpr)
	if !ok {
		t.Fatalf("expected BinaryExpr, got %T", stmt.Where)
	}
	lit, ok := bin.Right.(*Literal)
	if !ok || lit.Value != "O'Brien" {
		t.Errorf("expected O'Brien, got %v", bin.Right)
	}
}

func TestParseSimpleSelect(t *testing.T) {
	sel, err := ParseSelect("SELECT * FROM orders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sel.Columns) != 1 {
		t.Errorf("expected 1 column, got %d", len(sel.Columns))
	}
	if sel.TableName() != "orders" {
		t.Errorf("expected FROM orders, got %v", sel.From)
	}
}

func TestParseClauses(t *testing.T) {
	sel, err := ParseSelect(`SELECT o.status, COUNT(*) AS n
		FROM public.Orders o
		WHERE o.tenant_id = 42
		GROUP BY o.status
		HAVING COUNT(*) > 10
		ORDER BY n DESC
		LIMIT 100 OFFSET 20;`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sel.TableName() != "orders" || sel.From.Alias != "o" {
		t.Errorf("unexpected table ref %+v", sel.From)
	}
	if len(sel.Columns) != 2 || sel.Columns[1].Alias != "n" {
		t.Errorf("unexpected columns %v", sel.Columns)
	}
	if len(sel.GroupBy) != 1 || sel.Having == nil {
		t.Error("expected GROUP BY and HAVING")
	}
	if len(sel.OrderBy) != 1 || !sel.OrderBy[0].Desc {
		t.Error("expected ORDER BY n DESC")
	}
	if sel.Limit == nil || *sel.Limit != 100 || sel.Offset == nil || *sel.Offset != 20 {
		t.Errorf("unexpected LIMIT/OFFSET %v %v", sel.Limit, sel.Offset)
	}
}

func TestParseAggregates(t *testing.T) {
	tests := []struct {
		input    string
		funcName string
	}{
		{"SELECT COUNT(*) FROM events", "COUNT"},
		{"SELECT SUM(amount) FROM orders", "SUM"},
		{"SELECT AVG(price) FROM products", "AVG"},
		{"SELECT MIN(created_at) FROM users", "MIN"},
		{"SELECT max(updated_at) FROM users", "MAX"},
	}

	for _, tt := range tests {
		sel, err := ParseSelect(tt.input)
		if err != nil {
			t.Errorf("input %q: unexpected error: %v", tt.input, err)
			continue
		}

		agg, ok := sel.Columns[0].Expr.(*AggregateExpr)
		if !ok {
			t.Errorf("input %q: expected AggregateExpr, got %T", tt.input, sel.Columns[0].Expr)
			continue
		}
		if agg.Function != tt.funcName {
			t.Errorf("input %q: expected function %s, got %s", tt.input, tt.funcName, agg.Function)
		}
	}
}

func TestParseNotInfix(t *testing.T) {
	tests := []struct {
		input string
		check func(Expression) bool
	}{
		{"SELECT * FROM t WHERE a NOT IN (1, 2)", func(e Expression) bool {
			in, ok := e.(*InExpr)
			return ok && in.Not && len(in.Values) == 2
		}},
		{"SELECT * FROM t WHERE a NOT LIKE 'x%'", func(e Expression) bool {
			l, ok := e.(*LikeExpr)
			return ok && l.Not
		}},
		{"SELECT * FROM t WHERE a NOT BETWEEN 1 AND 5", func(e Expression) bool {
			b, ok := e.(*BetweenExpr)
			return ok && b.Not
		}},
		{"SELECT * FROM t WHERE a IS NOT NULL", func(e Expression) bool {
			n, ok := e.(*IsNullExpr)
			return ok && n.Not
		}},
	}

	for _, tt := range tests {
		sel, err := ParseSelect(tt.input)
		if err != nil {
			t.Errorf("input %q: unexpected error: %v", tt.input, err)
			continue
		}
		if !tt.check(sel.Where) {
			t.Errorf("input %q: unexpected WHERE %s", tt.input, sel.Where)
		}
	}
}

func TestParsePlaceholdersAndCasts(t *testing.T) {
	sel, err := ParseSelect("SELECT * FROM events WHERE created_at::date = $2 AND kind = ? AND ts >= TIMESTAMP '2024-01-01'")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	preds := ExtractPredicates(sel)
	if len(preds) != 3 {
		t.Fatalf("expected 3 predicates, got %d", len(preds))
	}
	if preds[0].Function != "cast" || preds[0].Expr != "created_at::date" {
		t.Errorf("unexpected cast predicate %+v", preds[0])
	}
	if p, ok := preds[0].Value.(Param); !ok || p.Index != 2 {
		t.Errorf("expected $2 param, got %#v", preds[0].Value)
	}
	if _, ok := preds[1].Value.(Param); !ok {
		t.Errorf("expected ? param, got %#v", preds[1].Value)
	}
	if preds[2].Value != "2024-01-01" {
		t.Errorf("expected typed literal value, got %#v", preds[2].Value)
	}
}

func TestParseNegativeNumber(t *testing.T) {
	sel, err := ParseSelect("SELECT * FROM t WHERE balance < -10.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	preds := ExtractPredicates(sel)
	if len(preds) != 1 || preds[0].Value != -10.5 {
		t.Errorf("expected balance < -10.5, got %+v", preds)
	}
}

func TestASTString(t *testing.T) {
	tests := []string{
		"SELECT * FROM events",
		"SELECT id, name FROM users WHERE id = 1",
		"SELECT COUNT(*) FROM events GROUP BY tenant_id",
		"SELECT * FROM events WHERE ts::date = $1 ORDER BY event_time DESC LIMIT 10",
	}

	for _, input := range tests {
		stmt, err := Parse(input)
		if err != nil {
			t.Errorf("input %q: unexpected error: %v", input, err)
			continue
		}

		sql := stmt.String()
		if sql == "" {
			t.Errorf("input %q: String() returned empty string", input)
		}

		if _, err := Parse(sql); err != nil {
			t.Errorf("input %q: generated SQL %q failed to parse: %v", input, sql, err)
		}
	}
}

func TestParseError(t *testing.T) {
	tests := []string{
		"SELEC * FROM events",                                   // Typo in SELECT
		"SELECT FROM events",                                    // Missing columns
		"SELECT * FROM",                                         // Missing table name
		"SELECT * FROM events WHERE",                            // Incomplete WHERE
		"SELECT * FROM events WHERE a = 1 garbage more",         // Trailing tokens
		"SELECT * FROM a JOIN b ON a.id = b.id",                 // Join
		"SELECT * FROM a, b",                                    // Multiple tables
		"SELECT * FROM a WHERE id IN (SELECT id FROM b)",        // Sub-query
		"SELECT * FROM (SELECT 1) x",                            // Derived table
		"UPDATE events SET a = 1",                               // Not a SELECT
		"SELECT * FROM events WHERE name = 'unterminated",       // Bad string
		"SELECT * FROM events UNION SELECT * FROM events_2024",  // Set operation
		"SELECT * FROM events GROUP tenant_id",                  // GROUP without BY
		"SELECT 1",                                              // No FROM
	}

	for _, input := range tests {
		if _, err := ParseSelect(input); err == nil {
			t.Errorf("input %q: expected error, got nil", input)
		}
	}
}

func TestParseExpression(t *testing.T) {
	expr, err := ParseExpression("tenant_id = current_setting('app.tenant')::int AND deleted_at IS NULL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cols := ReferencedColumns(expr)
	if len(cols) != 2 || cols[0] != "deleted_at" || cols[1] != "tenant_id" {
		t.Errorf("unexpected referenced columns %v", cols)
	}

	if _, err := ParseExpression("tenant_id = = 1"); err == nil {
		t.Error("expected error for malformed expression")
	}
}
