package parser

import (
	"testing"

	"github.com/sandrolain/goshape/pkg/types"
)

func tokenTypes(t *testing.T, input string) []TokenType {
	t.Helper()
	tokens, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize(%q) failed: %v", input, err)
	}
	out := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Type
	}
	return out
}

func TestLexerTokens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []TokenType
	}{
		{"name", "Name", []TokenType{TokenName, TokenEOF}},
		{"underscore name", "_id2", []TokenType{TokenName, TokenEOF}},
		{"integer", "42", []TokenType{TokenNumber, TokenEOF}},
		{"negative", "-1", []TokenType{TokenNumber, TokenEOF}},
		{"decimal", "3.14", []TokenType{TokenNumber, TokenEOF}},
		{"string", "'hello world'", []TokenType{TokenString, TokenEOF}},
		{"booleans", "true FALSE", []TokenType{TokenBoolean, TokenBoolean, TokenEOF}},
		{"null", "null", []TokenType{TokenNull, TokenEOF}},
		{"navigation", "A.B", []TokenType{TokenName, TokenDot, TokenName, TokenEOF}},
		{"coalesce", "A ?? B", []TokenType{TokenName, TokenCoalesce, TokenName, TokenEOF}},
		{"null safe", "A?.B", []TokenType{TokenName, TokenCondition, TokenDot, TokenName, TokenEOF}},
		{"comparisons", "= != > < >= <=", []TokenType{
			TokenEqual, TokenNotEqual, TokenGreater, TokenLess, TokenGreaterEqual, TokenLessEqual, TokenEOF,
		}},
		{"symbol logical", "&& ||", []TokenType{TokenAnd, TokenOr, TokenEOF}},
		{"keyword logical", "and OR", []TokenType{TokenAnd, TokenOr, TokenEOF}},
		{"string operators", "contains StartsWith endswith", []TokenType{
			TokenContains, TokenStartsWith, TokenEndsWith, TokenEOF,
		}},
		{"indexer", "[0 asc X]", []TokenType{
			TokenBracketOpen, TokenNumber, TokenAsc, TokenName, TokenBracketClose, TokenEOF,
		}},
		{"projection", "{A as B; C}", []TokenType{
			TokenBraceOpen, TokenName, TokenAs, TokenName, TokenSemicolon, TokenName, TokenBraceClose, TokenEOF,
		}},
		{"function", "Name:upper()", []TokenType{
			TokenName, TokenColon, TokenName, TokenParenOpen, TokenParenClose, TokenEOF,
		}},
		{"number then dot", "1.Name", []TokenType{TokenNumber, TokenDot, TokenName, TokenEOF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenTypes(t, tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token %d: got %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLexerValuesAndPositions(t *testing.T) {
	tokens, err := Tokenize("Name = 'a b'")
	if err != nil {
		t.Fatal(err)
	}
	want := []Token{
		{Type: TokenName, Value: "Name", Position: 0},
		{Type: TokenEqual, Value: "=", Position: 5},
		{Type: TokenString, Value: "a b", Position: 8},
		{Type: TokenEOF, Value: "", Position: 12},
	}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(want))
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d: got %+v, want %+v", i, tokens[i], want[i])
		}
	}
}

func TestLexerStringHasNoEscapes(t *testing.T) {
	tokens, err := Tokenize(`'C:\temp\n'`)
	if err != nil {
		t.Fatal(err)
	}
	if tokens[0].Value != `C:\temp\n` {
		t.Errorf("got %q", tokens[0].Value)
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  types.ErrorCode
		pos   int
	}{
		{"unterminated string", "Name = 'abc", types.ErrStringNotClosed, 8},
		{"unknown character", "Name # 1", types.ErrUnexpectedChar, 5},
		{"lone ampersand", "A & B", types.ErrUnexpectedChar, 2},
		{"lone pipe", "A | B", types.ErrUnexpectedChar, 2},
		{"lone bang", "!A", types.ErrUnexpectedChar, 0},
		{"lone minus", "A - 1", types.ErrUnexpectedChar, 2},
		{"double quotes", `"abc"`, types.ErrUnexpectedChar, 0},
		{"number glued to name", "12ab", types.ErrInvalidNumber, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.input)
			if err == nil {
				t.Fatalf("expected error for %q", tt.input)
			}
			if !types.IsLexical(err) {
				t.Errorf("expected lexical error, got %v", err)
			}
			e := err.(*types.Error)
			if e.Code != tt.code {
				t.Errorf("code: got %s, want %s", e.Code, tt.code)
			}
			if e.Position != tt.pos {
				t.Errorf("position: got %d, want %d", e.Position, tt.pos)
			}
		})
	}
}
