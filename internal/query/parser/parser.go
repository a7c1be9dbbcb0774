package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError represents a parsing error with location information.
type ParseError struct {
	Message  string
	Position int
	Token    Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s (got %s)", e.Position, e.Message, e.Token.Literal)
}

// Parser parses SQL statements into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the input and returns a Statement. The whole input must be
// consumed; an optional trailing semicolon is accepted.
func Parse(input string) (Statement, error) {
	p := NewParser(input)
	stmt, err := p.ParseStatement()
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return stmt, nil
}

// ParseSelect parses a single-table SELECT statement.
func ParseSelect(input string) (*SelectStatement, error) {
	stmt, err := Parse(input)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*SelectStatement)
	if !ok {
		return nil, fmt.Errorf("parser: expected SELECT statement, got %T", stmt)
	}
	if sel.From == nil {
		return nil, &ParseError{Message: "expected FROM clause", Position: len(input)}
	}
	return sel, nil
}

// ParseExpression parses a standalone boolean or scalar expression, such as a
// row-level policy predicate.
func ParseExpression(input string) (Expression, error) {
	p := NewParser(input)
	expr, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return expr, nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) errorf(format string, args ...interface{}) *ParseError {
	return &ParseError{
		Message:  fmt.Sprintf(format, args...),
		Position: p.curToken.Pos,
		Token:    p.curToken,
	}
}

// expectEnd verifies that only an optional semicolon remains.
func (p *Parser) expectEnd() error {
	if p.curTokenIs(TokenSemicolon) {
		p.nextToken()
	}
	if p.curTokenIs(TokenError) {
		return p.errorf("invalid token")
	}
	if p.curTokenIs(TokenUnsupported) {
		return p.errorf("unsupported clause %s", p.curToken.Literal)
	}
	if !p.curTokenIs(TokenEOF) {
		return p.errorf("unexpected trailing input")
	}
	return nil
}

// ParseStatement parses a SQL statement.
func (p *Parser) ParseStatement() (Statement, error) {
	switch p.curToken.Type {
	case TokenSelect:
		return p.parseSelectStatement()
	default:
		return nil, p.errorf("expected SELECT")
	}
}

func (p *Parser) parseSelectStatement() (*SelectStatement, error) {
	stmt := &SelectStatement{}

	p.nextToken() // Skip SELECT

	if p.curTokenIs(TokenDistinct) {
		stmt.Distinct = true
		p.nextToken()
	}

	columns, err := p.parseSelectColumns()
	if err != nil {
		return nil, err
	}
	stmt.Columns = columns

	if p.curTokenIs(TokenFrom) {
		p.nextToken()
		tableRef, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		stmt.From = tableRef
	}

	if p.curTokenIs(TokenWhere) {
		p.nextToken()
		where, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if p.curTokenIs(TokenGroupBy) {
		if err := p.expectBy(); err != nil {
			return nil, err
		}
		groupBy, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		stmt.GroupBy = groupBy
	}

	if p.curTokenIs(TokenHaving) {
		p.nextToken()
		having, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		stmt.Having = having
	}

	if p.curTokenIs(TokenOrderBy) {
		if err := p.expectBy(); err != nil {
			return nil, err
		}
		orderBy, err := p.parseOrderByList()
		if err != nil {
			return nil, err
		}
		stmt.OrderBy = orderBy
	}

	if p.curTokenIs(TokenLimit) {
		limit, err := p.parseCount("LIMIT")
		if err != nil {
			return nil, err
		}
		stmt.Limit = limit
	}

	if p.curTokenIs(TokenOffset) {
		offset, err := p.parseCount("OFFSET")
		if err != nil {
			return nil, err
		}
		stmt.Offset = offset
	}

	return stmt, nil
}

// expectBy consumes GROUP/ORDER and the BY that must follow.
func (p *Parser) expectBy() error {
	keyword := p.curToken.Literal
	p.nextToken()
	if !p.curTokenIs(TokenBy) {
		return p.errorf("expected BY after %s", keyword)
	}
	p.nextToken()
	return nil
}

// parseCount parses the numeric argument of LIMIT or OFFSET. A bind placeholder
// is accepted and recorded as -1.
func (p *Parser) parseCount(keyword string) (*int64, error) {
	p.nextToken()
	var n int64
	switch {
	case p.curTokenIs(TokenPlaceholder):
		n = -1
	case p.curTokenIs(TokenNumber):
		v, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid %s value", keyword)
		}
		n = v
	default:
		return nil, p.errorf("expected number after %s", keyword)
	}
	p.nextToken()
	return &n, nil
}

func (p *Parser) parseSelectColumns() ([]SelectColumn, error) {
	var columns []SelectColumn

	for {
		col, err := p.parseSelectColumn()
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken() // Skip comma
	}

	return columns, nil
}

func (p *Parser) parseSelectColumn() (SelectColumn, error) {
	col := SelectColumn{}

	if p.curTokenIs(TokenStar) {
		col.Expr = &StarExpr{}
		p.nextToken()
		return col, nil
	}

	expr, err := p.parseExpression(precLowest)
	if err != nil {
		return col, err
	}
	col.Expr = expr

	alias, err := p.parseAlias()
	if err != nil {
		return col, err
	}
	col.Alias = alias
	return col, nil
}

// parseAlias parses an optional [AS] identifier.
func (p *Parser) parseAlias() (string, error) {
	if p.curTokenIs(TokenAs) {
		p.nextToken()
		if !p.curTokenIs(TokenIdent) {
			return "", p.errorf("expected identifier after AS")
		}
		alias := p.curToken.Literal
		p.nextToken()
		return alias, nil
	}
	if p.curTokenIs(TokenIdent) {
		alias := p.curToken.Literal
		p.nextToken()
		return alias, nil
	}
	return "", nil
}

func (p *Parser) parseTableRef() (*TableRef, error) {
	if p.curTokenIs(TokenLParen) {
		return nil, p.errorf("sub-queries are not supported")
	}
	if !p.curTokenIs(TokenIdent) {
		return nil, p.errorf("expected table name")
	}

	ref := &TableRef{Name: p.curToken.Literal}
	p.nextToken()

	// schema.table
	if p.curTokenIs(TokenDot) {
		p.nextToken()
		if !p.curTokenIs(TokenIdent) {
			return nil, p.errorf("expected table name after dot")
		}
		ref.Name = p.curToken.Literal
		p.nextToken()
	}

	alias, err := p.parseAlias()
	if err != nil {
		return nil, err
	}
	ref.Alias = alias

	switch {
	case p.curTokenIs(TokenComma):
		return nil, p.errorf("multiple tables are not supported")
	case p.curTokenIs(TokenUnsupported):
		return nil, p.errorf("unsupported clause %s", p.curToken.Literal)
	}

	return ref, nil
}

func (p *Parser) parseExpressionList() ([]Expression, error) {
	var exprs []Expression

	for {
		expr, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken() // Skip comma
	}

	return exprs, nil
}

func (p *Parser) parseOrderByList() ([]OrderByClause, error) {
	var clauses []OrderByClause

	for {
		expr, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}

		clause := OrderByClause{Expr: expr}

		if p.curTokenIs(TokenAsc) {
			p.nextToken()
		} else if p.curTokenIs(TokenDesc) {
			clause.Desc = true
			p.nextToken()
		}

		clauses = append(clauses, clause)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken() // Skip comma
	}

	return clauses, nil
}

// Operator precedence levels
const (
	precLowest  = 0
	precOr      = 1
	precAnd     = 2
	precNot     = 3
	precCompare = 4
	precAdd     = 5
	precMul     = 6
	precUnary   = 7
	precCast    = 8
)

func (p *Parser) getPrecedence() int {
	switch p.curToken.Type {
	case TokenOr:
		return precOr
	case TokenAnd:
		return precAnd
	case TokenEq, TokenNe, TokenLt, TokenGt, TokenLe, TokenGe, TokenLike, TokenIn, TokenBetween, TokenIs:
		return precCompare
	case TokenNot:
		// Infix NOT only appears as NOT IN / NOT LIKE / NOT BETWEEN
		if p.peekTokenIs(TokenIn) || p.peekTokenIs(TokenLike) || p.peekTokenIs(TokenBetween) {
			return precCompare
		}
		return precLowest
	case TokenPlus, TokenMinus:
		return precAdd
	case TokenStar, TokenSlash:
		return precMul
	case TokenCast:
		return precCast
	default:
		return precLowest
	}
}

// parseExpression parses an expression with operator precedence.
func (p *Parser) parseExpression(precedence int) (Expression, error) {
	left, err := p.parsePrefixExpression()
	if err != nil {
		return nil, err
	}

	for !p.curTokenIs(TokenEOF) && precedence < p.getPrecedence() {
		left, err = p.parseInfixExpression(left)
		if err != nil {
			return nil, err
		}
	}

	return left, nil
}

func (p *Parser) parsePrefixExpression() (Expression, error) {
	switch p.curToken.Type {
	case TokenIdent:
		return p.parseIdentifierOrFunction()
	case TokenNumber:
		return p.parseNumber()
	case TokenString:
		return p.parseString()
	case TokenPlaceholder:
		return p.parsePlaceholder()
	case TokenNull:
		p.nextToken()
		return &Literal{Value: nil}, nil
	case TokenTrue, TokenFalse:
		v := p.curTokenIs(TokenTrue)
		p.nextToken()
		return &Literal{Value: v}, nil
	case TokenLParen:
		return p.parseGroupedExpression()
	case TokenNot:
		return p.parseNotExpression()
	case TokenMinus:
		return p.parseUnaryMinus()
	case TokenCount, TokenSum, TokenAvg, TokenMin, TokenMax:
		return p.parseAggregate()
	case TokenStar:
		p.nextToken()
		return &StarExpr{}, nil
	case TokenSelect:
		return nil, p.errorf("sub-queries are not supported")
	case TokenUnsupported:
		return nil, p.errorf("unsupported clause %s", p.curToken.Literal)
	default:
		return nil, p.errorf("unexpected token in expression")
	}
}

// typedLiteralPrefixes are the type names accepted in TYPE 'literal' form.
var typedLiteralPrefixes = map[string]bool{
	"date":        true,
	"timestamp":   true,
	"timestamptz": true,
	"time":        true,
	"interval":    true,
}

func (p *Parser) parseIdentifierOrFunction() (Expression, error) {
	name := p.curToken.Literal
	p.nextToken()

	// Typed literal: TIMESTAMP '2024-01-01'
	if typedLiteralPrefixes[strings.ToLower(name)] && p.curTokenIs(TokenString) {
		lit, err := p.parseString()
		if err != nil {
			return nil, err
		}
		return &CastExpr{Expr: lit, Type: strings.ToLower(name)}, nil
	}

	// table.column
	if p.curTokenIs(TokenDot) {
		p.nextToken()
		if p.curTokenIs(TokenStar) {
			p.nextToken()
			return &StarExpr{Table: name}, nil
		}
		if !p.curTokenIs(TokenIdent) {
			return nil, p.errorf("expected column name after dot")
		}
		col := &ColumnRef{Table: name, Column: p.curToken.Literal}
		p.nextToken()
		return col, nil
	}

	if p.curTokenIs(TokenLParen) {
		return p.parseFunctionCall(name)
	}

	return &ColumnRef{Column: name}, nil
}

func (p *Parser) parseFunctionCall(name string) (Expression, error) {
	p.nextToken() // Skip (

	var args []Expression
	if !p.curTokenIs(TokenRParen) {
		for {
			if p.curTokenIs(TokenSelect) {
				return nil, p.errorf("sub-queries are not supported")
			}
			arg, err := p.parseExpression(precLowest)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
	}

	if !p.curTokenIs(TokenRParen) {
		return nil, p.errorf("expected ) after function arguments")
	}
	p.nextToken()

	return &FunctionCall{Name: name, Args: args}, nil
}

func (p *Parser) parseAggregate() (Expression, error) {
	funcName := p.curToken.Literal
	p.nextToken()

	if !p.curTokenIs(TokenLParen) {
		return nil, p.errorf("expected ( after aggregate function")
	}
	p.nextToken()

	agg := &AggregateExpr{Function: funcName}

	if p.curTokenIs(TokenDistinct) {
		agg.Distinct = true
		p.nextToken()
	}

	if p.curTokenIs(TokenStar) {
		agg.Arg = &StarExpr{}
		p.nextToken()
	} else if !p.curTokenIs(TokenRParen) {
		arg, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		agg.Arg = arg
	}

	if !p.curTokenIs(TokenRParen) {
		return nil, p.errorf("expected ) after aggregate argument")
	}
	p.nextToken()

	return agg, nil
}

func (p *Parser) parseNumber() (Expression, error) {
	tok := p.curToken
	p.nextToken()

	if !strings.Contains(tok.Literal, ".") {
		if val, err := strconv.ParseInt(tok.Literal, 10, 64); err == nil {
			return &Literal{Value: val}, nil
		}
	}

	val, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil {
		return nil, &ParseError{Message: "invalid number", Position: tok.Pos, Token: tok}
	}
	return &Literal{Value: val}, nil
}

func (p *Parser) parseString() (Expression, error) {
	val := strings.ReplaceAll(p.curToken.Literal, "''", "'")
	p.nextToken()
	return &Literal{Value: val}, nil
}

func (p *Parser) parsePlaceholder() (Expression, error) {
	tok := p.curToken
	p.nextToken()
	if tok.Literal == "?" {
		return &Placeholder{}, nil
	}
	n, err := strconv.Atoi(tok.Literal[1:])
	if err != nil || n < 1 {
		return nil, &ParseError{Message: "invalid placeholder", Position: tok.Pos, Token: tok}
	}
	return &Placeholder{Index: n}, nil
}

func (p *Parser) parseGroupedExpression() (Expression, error) {
	p.nextToken() // Skip (

	if p.curTokenIs(TokenSelect) {
		return nil, p.errorf("sub-queries are not supported")
	}

	expr, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}

	if !p.curTokenIs(TokenRParen) {
		return nil, p.errorf("expected )")
	}
	p.nextToken()

	return &ParenExpr{Expr: expr}, nil
}

func (p *Parser) parseNotExpression() (Expression, error) {
	p.nextToken() // Skip NOT

	expr, err := p.parseExpression(precNot)
	if err != nil {
		return nil, err
	}

	return &UnaryExpr{Operator: "NOT", Operand: expr}, nil
}

func (p *Parser) parseUnaryMinus() (Expression, error) {
	p.nextToken() // Skip -

	expr, err := p.parseExpression(precUnary)
	if err != nil {
		return nil, err
	}

	// Fold negative numeric literals
	if lit, ok := expr.(*Literal); ok {
		switch v := lit.Value.(type) {
		case int64:
			return &Literal{Value: -v}, nil
		case float64:
			return &Literal{Value: -v}, nil
		}
	}

	return &UnaryExpr{Operator: "-", Operand: expr}, nil
}

func (p *Parser) parseInfixExpression(left Expression) (Expression, error) {
	switch p.curToken.Type {
	case TokenAnd, TokenOr:
		return p.parseBinaryExpression(left)
	case TokenEq, TokenNe, TokenLt, TokenGt, TokenLe, TokenGe:
		return p.parseBinaryExpression(left)
	case TokenPlus, TokenMinus, TokenStar, TokenSlash:
		return p.parseBinaryExpression(left)
	case TokenLike:
		return p.parseLikeExpression(left, false)
	case TokenIn:
		return p.parseInExpression(left, false)
	case TokenBetween:
		return p.parseBetweenExpression(left, false)
	case TokenIs:
		return p.parseIsExpression(left)
	case TokenNot:
		return p.parseNotInfix(left)
	case TokenCast:
		return p.parseCast(left)
	default:
		return left, nil
	}
}

func (p *Parser) parseBinaryExpression(left Expression) (Expression, error) {
	op := p.curToken.Literal
	precedence := p.getPrecedence()
	p.nextToken()

	right, err := p.parseExpression(precedence)
	if err != nil {
		return nil, err
	}

	return &BinaryExpr{Left: left, Operator: op, Right: right}, nil
}

// parseCast parses the type name after ::, including an optional (n[, m])
// modifier and [] array suffix.
func (p *Parser) parseCast(left Expression) (Expression, error) {
	p.nextToken() // Skip ::

	if !p.curTokenIs(TokenIdent) {
		return nil, p.errorf("expected type name after ::")
	}
	typeName := strings.ToLower(p.curToken.Literal)
	p.nextToken()

	if p.curTokenIs(TokenLParen) {
		var mods []string
		p.nextToken()
		for p.curTokenIs(TokenNumber) {
			mods = append(mods, p.curToken.Literal)
			p.nextToken()
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		if !p.curTokenIs(TokenRParen) {
			return nil, p.errorf("expected ) after type modifier")
		}
		p.nextToken()
		typeName += "(" + strings.Join(mods, ",") + ")"
	}

	if p.curTokenIs(TokenLBracket) && p.peekTokenIs(TokenRBracket) {
		p.nextToken()
		p.nextToken()
		typeName += "[]"
	}

	return &CastExpr{Expr: left, Type: typeName}, nil
}

func (p *Parser) parseLikeExpression(left Expression, not bool) (Expression, error) {
	p.nextToken() // Skip LIKE

	pattern, err := p.parseExpression(precCompare)
	if err != nil {
		return nil, err
	}

	return &LikeExpr{Expr: left, Pattern: pattern, Not: not}, nil
}

func (p *Parser) parseInExpression(left Expression, not bool) (Expression, error) {
	p.nextToken() // Skip IN

	if !p.curTokenIs(TokenLParen) {
		return nil, p.errorf("expected ( after IN")
	}
	p.nextToken()

	if p.curTokenIs(TokenSelect) {
		return nil, p.errorf("sub-queries are not supported")
	}

	var values []Expression
	for {
		val, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		values = append(values, val)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	if !p.curTokenIs(TokenRParen) {
		return nil, p.errorf("expected ) after IN values")
	}
	p.nextToken()

	return &InExpr{Expr: left, Values: values, Not: not}, nil
}

func (p *Parser) parseBetweenExpression(left Expression, not bool) (Expression, error) {
	p.nextToken() // Skip BETWEEN

	low, err := p.parseExpression(precCompare)
	if err != nil {
		return nil, err
	}

	if !p.curTokenIs(TokenAnd) {
		return nil, p.errorf("expected AND in BETWEEN expression")
	}
	p.nextToken()

	high, err := p.parseExpression(precCompare)
	if err != nil {
		return nil, err
	}

	return &BetweenExpr{Expr: left, Low: low, High: high, Not: not}, nil
}

func (p *Parser) parseIsExpression(left Expression) (Expression, error) {
	p.nextToken() // Skip IS

	not := false
	if p.curTokenIs(TokenNot) {
		not = true
		p.nextToken()
	}

	if !p.curTokenIs(TokenNull) {
		return nil, p.errorf("expected NULL after IS")
	}
	p.nextToken()

	return &IsNullExpr{Expr: left, Not: not}, nil
}

// parseNotInfix parses NOT IN, NOT LIKE, NOT BETWEEN.
func (p *Parser) parseNotInfix(left Expression) (Expression, error) {
	p.nextToken() // Skip NOT

	switch p.curToken.Type {
	case TokenIn:
		return p.parseInExpression(left, true)
	case TokenLike:
		return p.parseLikeExpression(left, true)
	case TokenBetween:
		return p.parseBetweenExpression(left, true)
	default:
		return nil, p.errorf("expected IN, LIKE, or BETWEEN after NOT")
	}
}
