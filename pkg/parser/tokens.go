package parser

import "strings"

// TokenType represents the type of a lexical token.
type TokenType uint8

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenString  // 'hello'
	TokenNumber  // 123, -4, 3.14
	TokenBoolean // true, false
	TokenNull    // null
	TokenName    // fieldName

	// Grouping symbols
	TokenBracketOpen  // [
	TokenBracketClose // ]
	TokenBraceOpen    // {
	TokenBraceClose   // }
	TokenParenOpen    // (
	TokenParenClose   // )

	// Basic symbols
	TokenDot       // .
	TokenComma     // ,
	TokenColon     // :
	TokenSemicolon // ;
	TokenCondition // ?
	TokenCoalesce  // ??

	// Comparison operators
	TokenEqual        // =
	TokenNotEqual     // !=
	TokenLess         // <
	TokenLessEqual    // <=
	TokenGreater      // >
	TokenGreaterEqual // >=

	// Keyword operators
	TokenAnd        // and, &&
	TokenOr         // or, ||
	TokenAs         // as
	TokenAsc        // asc
	TokenDesc       // desc
	TokenContains   // contains
	TokenStartsWith // startswith
	TokenEndsWith   // endswith
)

// String returns a string representation of the token type.
func (tt TokenType) String() string {
	switch tt {
	case TokenEOF:
		return "(eof)"
	case TokenError:
		return "(error)"
	case TokenString:
		return "(string)"
	case TokenNumber:
		return "(number)"
	case TokenBoolean:
		return "(boolean)"
	case TokenNull:
		return "(null)"
	case TokenName:
		return "(name)"
	case TokenBracketOpen:
		return "["
	case TokenBracketClose:
		return "]"
	case TokenBraceOpen:
		return "{"
	case TokenBraceClose:
		return "}"
	case TokenParenOpen:
		return "("
	case TokenParenClose:
		return ")"
	case TokenDot:
		return "."
	case TokenComma:
		return ","
	case TokenColon:
		return ":"
	case TokenSemicolon:
		return ";"
	case TokenCondition:
		return "?"
	case TokenCoalesce:
		return "??"
	case TokenEqual:
		return "="
	case TokenNotEqual:
		return "!="
	case TokenLess:
		return "<"
	case TokenLessEqual:
		return "<="
	case TokenGreater:
		return ">"
	case TokenGreaterEqual:
		return ">="
	case TokenAnd:
		return "and"
	case TokenOr:
		return "or"
	case TokenAs:
		return "as"
	case TokenAsc:
		return "asc"
	case TokenDesc:
		return "desc"
	case TokenContains:
		return "contains"
	case TokenStartsWith:
		return "startswith"
	case TokenEndsWith:
		return "endswith"
	default:
		return "(unknown)"
	}
}

// IsKeyword reports whether tt is produced from a reserved word. Keyword
// tokens are still accepted where the grammar expects a property name.
func (tt TokenType) IsKeyword() bool {
	switch tt {
	case TokenBoolean, TokenNull, TokenAnd, TokenOr, TokenAs, TokenAsc, TokenDesc,
		TokenContains, TokenStartsWith, TokenEndsWith:
		return true
	default:
		return false
	}
}

// IsComparison reports whether tt is a comparison operator.
func (tt TokenType) IsComparison() bool {
	switch tt {
	case TokenEqual, TokenNotEqual, TokenLess, TokenLessEqual, TokenGreater, TokenGreaterEqual,
		TokenContains, TokenStartsWith, TokenEndsWith:
		return true
	default:
		return false
	}
}

// Token represents a lexical token in an expression.
type Token struct {
	Type     TokenType // Type of the token
	Value    string    // Literal value of the token
	Position int       // Starting position in the input string
}

// symbols1 maps single-character symbols to token types.
var symbols1 = [...]TokenType{
	'[': TokenBracketOpen,
	']': TokenBracketClose,
	'{': TokenBraceOpen,
	'}': TokenBraceClose,
	'(': TokenParenOpen,
	')': TokenParenClose,
	'.': TokenDot,
	',': TokenComma,
	';': TokenSemicolon,
	':': TokenColon,
	'?': TokenCondition,
	'=': TokenEqual,
	'<': TokenLess,
	'>': TokenGreater,
}

// runeTokenType pairs a rune with its corresponding token type.
type runeTokenType struct {
	r  rune
	tt TokenType
}

// symbols2 maps two-character symbol sequences to token types.
// The key is the first character of the sequence.
var symbols2 = [...][]runeTokenType{
	'!': {{'=', TokenNotEqual}},
	'<': {{'=', TokenLessEqual}},
	'>': {{'=', TokenGreaterEqual}},
	'?': {{'?', TokenCoalesce}},
	'&': {{'&', TokenAnd}},
	'|': {{'|', TokenOr}},
}

const (
	symbol1Count = rune(len(symbols1))
	symbol2Count = rune(len(symbols2))
)

// lookupSymbol1 returns the token type for a single-character symbol.
// Returns 0 if the rune is not a valid symbol.
func lookupSymbol1(r rune) TokenType {
	if r < 0 || r >= symbol1Count {
		return 0
	}
	return symbols1[r]
}

// lookupSymbol2 returns possible two-character symbol completions.
// Returns nil if the rune cannot start a two-character symbol.
func lookupSymbol2(r rune) []runeTokenType {
	if r < 0 || r >= symbol2Count {
		return nil
	}
	return symbols2[r]
}

// lookupKeyword returns the token type for a keyword, matched
// case-insensitively. Returns 0 if the string is not a recognized keyword.
func lookupKeyword(s string) TokenType {
	switch strings.ToLower(s) {
	case "and":
		return TokenAnd
	case "or":
		return TokenOr
	case "as":
		return TokenAs
	case "asc":
		return TokenAsc
	case "desc":
		return TokenDesc
	case "contains":
		return TokenContains
	case "startswith":
		return TokenStartsWith
	case "endswith":
		return TokenEndsWith
	case "true", "false":
		return TokenBoolean
	case "null":
		return TokenNull
	default:
		return 0
	}
}
