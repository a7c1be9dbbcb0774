// Package parser provides the SQL front end of the advisor: a lexer and Pratt
// parser for single-table SELECT statements, a normalizer that turns a statement
// into a literal-free shape, and a predicate extractor for WHERE clauses.
package parser

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenIdent
	TokenNumber
	TokenString
	TokenPlaceholder // ? or $n

	// Keywords
	TokenSelect
	TokenFrom
	TokenWhere
	TokenGroupBy
	TokenOrderBy
	TokenLimit
	TokenAnd
	TokenOr
	TokenNot
	TokenIn
	TokenBetween
	TokenAs
	TokenAsc
	TokenDesc
	TokenNull
	TokenIs
	TokenLike
	TokenDistinct
	TokenBy
	TokenHaving
	TokenOffset
	TokenTrue
	TokenFalse

	// Reserved words the advisor does not model (JOIN, UNION, ...)
	TokenUnsupported

	// Aggregate functions
	TokenCount
	TokenSum
	TokenAvg
	TokenMin
	TokenMax

	// Operators
	TokenEq        // =
	TokenNe        // <> or !=
	TokenLt        // <
	TokenGt        // >
	TokenLe        // <=
	TokenGe        // >=
	TokenPlus      // +
	TokenMinus     // -
	TokenStar      // *
	TokenSlash     // /
	TokenComma     // ,
	TokenLParen    // (
	TokenRParen    // )
	TokenDot       // .
	TokenSemicolon // ;
	TokenCast      // ::
	TokenLBracket  // [
	TokenRBracket  // ]
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenError:       "ERROR",
	TokenIdent:       "IDENT",
	TokenNumber:      "NUMBER",
	TokenString:      "STRING",
	TokenPlaceholder: "PLACEHOLDER",
	TokenSelect:      "SELECT",
	TokenFrom:        "FROM",
	TokenWhere:       "WHERE",
	TokenGroupBy:     "GROUP BY",
	TokenOrderBy:     "ORDER BY",
	TokenLimit:       "LIMIT",
	TokenAnd:         "AND",
	TokenOr:          "OR",
	TokenNot:         "NOT",
	TokenIn:          "IN",
	TokenBetween:     "BETWEEN",
	TokenAs:          "AS",
	TokenAsc:         "ASC",
	TokenDesc:        "DESC",
	TokenNull:        "NULL",
	TokenIs:          "IS",
	TokenLike:        "LIKE",
	TokenDistinct:    "DISTINCT",
	TokenBy:          "BY",
	TokenHaving:      "HAVING",
	TokenOffset:      "OFFSET",
	TokenTrue:        "TRUE",
	TokenFalse:       "FALSE",
	TokenUnsupported: "UNSUPPORTED",
	TokenCount:       "COUNT",
	TokenSum:         "SUM",
	TokenAvg:         "AVG",
	TokenMin:         "MIN",
	TokenMax:         "MAX",
	TokenEq:          "=",
	TokenNe:          "<>",
	TokenLt:          "<",
	TokenGt:          ">",
	TokenLe:          "<=",
	TokenGe:          ">=",
	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenComma:       ",",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenDot:         ".",
	TokenSemicolon:   ";",
	TokenCast:        "::",
	TokenLBracket:    "[",
	TokenRBracket:    "]",
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // Position in input
}

// String returns a string representation of the token.
func (t Token) String() string {
	return fmt.Sprintf("Token{%s, %q, %d}", t.Type.String(), t.Literal, t.Pos)
}

// String returns the string representation of a TokenType.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// keywords maps SQL keywords to their token types.
var keywords = map[string]TokenType{
	"SELECT":   TokenSelect,
	"FROM":     TokenFrom,
	"WHERE":    TokenWhere,
	"GROUP":    TokenGroupBy, // Combined with BY by the parser
	"ORDER":    TokenOrderBy, // Combined with BY by the parser
	"LIMIT":    TokenLimit,
	"AND":      TokenAnd,
	"OR":       TokenOr,
	"NOT":      TokenNot,
	"IN":       TokenIn,
	"BETWEEN":  TokenBetween,
	"AS":       TokenAs,
	"ASC":      TokenAsc,
	"DESC":     TokenDesc,
	"NULL":     TokenNull,
	"IS":       TokenIs,
	"LIKE":     TokenLike,
	"DISTINCT": TokenDistinct,
	"BY":       TokenBy,
	"HAVING":   TokenHaving,
	"OFFSET":   TokenOffset,
	"TRUE":     TokenTrue,
	"FALSE":    TokenFalse,
	"COUNT":    TokenCount,
	"SUM":      TokenSum,
	"AVG":      TokenAvg,
	"MIN":      TokenMin,
	"MAX":      TokenMax,

	"JOIN":      TokenUnsupported,
	"INNER":     TokenUnsupported,
	"LEFT":      TokenUnsupported,
	"RIGHT":     TokenUnsupported,
	"FULL":      TokenUnsupported,
	"CROSS":     TokenUnsupported,
	"NATURAL":   TokenUnsupported,
	"ON":        TokenUnsupported,
	"USING":     TokenUnsupported,
	"UNION":     TokenUnsupported,
	"INTERSECT": TokenUnsupported,
	"EXCEPT":    TokenUnsupported,
	"WITH":      TokenUnsupported,
	"EXISTS":    TokenUnsupported,
}

// Lexer tokenizes SQL input.
type Lexer struct {
	input   string
	pos     int  // Current position in input
	readPos int  // Reading position (after current char)
	ch      byte // Current character
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// skipWhitespace skips whitespace, -- line comments and /* */ block comments.
func (l *Lexer) skipWhitespace() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '-' && l.peekChar() == '-':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for l.ch != 0 && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
		default:
			return
		}
	}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	startPos := l.pos
	var tok Token

	switch l.ch {
	case '=':
		tok = Token{Type: TokenEq, Literal: "=", Pos: startPos}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenLe, Literal: "<=", Pos: startPos}
		} else if l.peekChar() == '>' {
			l.readChar()
			tok = Token{Type: TokenNe, Literal: "<>", Pos: startPos}
		} else {
			tok = Token{Type: TokenLt, Literal: "<", Pos: startPos}
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenGe, Literal: ">=", Pos: startPos}
		} else {
			tok = Token{Type: TokenGt, Literal: ">", Pos: startPos}
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenNe, Literal: "<>", Pos: startPos}
		} else {
			tok = Token{Type: TokenError, Literal: string(l.ch), Pos: startPos}
		}
	case ':':
		if l.peekChar() == ':' {
			l.readChar()
			tok = Token{Type: TokenCast, Literal: "::", Pos: startPos}
		} else {
			tok = Token{Type: TokenError, Literal: string(l.ch), Pos: startPos}
		}
	case '?':
		tok = Token{Type: TokenPlaceholder, Literal: "?", Pos: startPos}
	case '$':
		if isDigit(l.peekChar()) {
			return l.readNumberedPlaceholder()
		}
		tok = Token{Type: TokenError, Literal: string(l.ch), Pos: startPos}
	case '+':
		tok = Token{Type: TokenPlus, Literal: "+", Pos: startPos}
	case '-':
		tok = Token{Type: TokenMinus, Literal: "-", Pos: startPos}
	case '*':
		tok = Token{Type: TokenStar, Literal: "*", Pos: startPos}
	case '/':
		tok = Token{Type: TokenSlash, Literal: "/", Pos: startPos}
	case ',':
		tok = Token{Type: TokenComma, Literal: ",", Pos: startPos}
	case '(':
		tok = Token{Type: TokenLParen, Literal: "(", Pos: startPos}
	case ')':
		tok = Token{Type: TokenRParen, Literal: ")", Pos: startPos}
	case '[':
		tok = Token{Type: TokenLBracket, Literal: "[", Pos: startPos}
	case ']':
		tok = Token{Type: TokenRBracket, Literal: "]", Pos: startPos}
	case '.':
		tok = Token{Type: TokenDot, Literal: ".", Pos: startPos}
	case ';':
		tok = Token{Type: TokenSemicolon, Literal: ";", Pos: startPos}
	case '\'':
		tok = l.readString()
	case '"':
		tok = l.readQuotedIdentifier()
	case 0:
		tok = Token{Type: TokenEOF, Literal: "", Pos: startPos}
	default:
		if isLetter(l.ch) || l.ch == '_' {
			return l.readIdentifier()
		} else if isDigit(l.ch) {
			return l.readNumber()
		}
		tok = Token{Type: TokenError, Literal: string(l.ch), Pos: startPos}
	}

	l.readChar()
	return tok
}

func (l *Lexer) readIdentifier() Token {
	startPos := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	literal := l.input[startPos:l.pos]
	upper := strings.ToUpper(literal)

	if tokType, ok := keywords[upper]; ok {
		return Token{Type: tokType, Literal: upper, Pos: startPos}
	}

	return Token{Type: TokenIdent, Literal: literal, Pos: startPos}
}

// readQuotedIdentifier reads a "quoted" identifier. The quotes are stripped.
func (l *Lexer) readQuotedIdentifier() Token {
	startPos := l.pos
	l.readChar() // Skip opening quote
	start := l.pos
	for l.ch != '"' && l.ch != 0 {
		l.readChar()
	}
	if l.ch == 0 {
		return Token{Type: TokenError, Literal: "unterminated identifier", Pos: startPos}
	}
	return Token{Type: TokenIdent, Literal: l.input[start:l.pos], Pos: startPos}
}

func (l *Lexer) readNumber() Token {
	startPos := l.pos
	hasDecimal := false

	for isDigit(l.ch) || (l.ch == '.' && !hasDecimal && isDigit(l.peekChar())) {
		if l.ch == '.' {
			hasDecimal = true
		}
		l.readChar()
	}

	return Token{Type: TokenNumber, Literal: l.input[startPos:l.pos], Pos: startPos}
}

func (l *Lexer) readNumberedPlaceholder() Token {
	startPos := l.pos
	l.readChar() // Skip $
	for isDigit(l.ch) {
		l.readChar()
	}
	return Token{Type: TokenPlaceholder, Literal: l.input[startPos:l.pos], Pos: startPos}
}

// readString reads a string literal enclosed in single quotes. Doubled quotes
// are kept in the literal and unescaped by the parser.
func (l *Lexer) readString() Token {
	startPos := l.pos
	l.readChar() // Skip opening quote
	start := l.pos

	for l.ch != 0 {
		if l.ch == '\'' {
			if l.peekChar() != '\'' {
				break
			}
			l.readChar()
		}
		l.readChar()
	}

	if l.ch == 0 {
		return Token{Type: TokenError, Literal: "unterminated string", Pos: startPos}
	}

	// The closing quote is consumed by NextToken
	return Token{Type: TokenString, Literal: l.input[start:l.pos], Pos: startPos}
}

func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
