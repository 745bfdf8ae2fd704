package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sandrolain/goshape/pkg/functions"
	"github.com/sandrolain/goshape/pkg/types"
)

// Parser implements a recursive descent parser for goshape expressions.
// It walks a fully tokenized input with a single cursor.
type Parser struct {
	input  string
	tokens []Token
	pos    int
	depth  int
	opts   CompileOptions
	// commaAnd is set while parsing a filter condition, where ',' is a
	// logical AND instead of a separator.
	commaAnd bool
}

// NewParser tokenizes input and returns a parser positioned on the first
// token. Lexical errors are reported here.
func NewParser(input string, opts ...CompileOption) (*Parser, error) {
	options := CompileOptions{
		MaxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(&options)
	}

	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}

	return &Parser{
		input:  input,
		tokens: tokens,
		opts:   options,
	}, nil
}

// Parse parses the entire expression and returns the root AST node.
func (p *Parser) Parse() (*types.Expression, error) {
	if p.current().Type == TokenEOF {
		return nil, p.error(types.ErrUnexpectedEnd, "Empty expression")
	}

	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if p.current().Type != TokenEOF {
		return nil, p.error(types.ErrSyntaxError, fmt.Sprintf("Unexpected token: %s", p.current().Value))
	}

	return types.NewExpression(node, p.input), nil
}

// Cursor helpers

func (p *Parser) current() Token {
	return p.tokens[p.pos]
}

// peek returns the token n positions after the current one.
func (p *Parser) peek(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) advance() Token {
	t := p.tokens[p.pos]
	if t.Type != TokenEOF {
		p.pos++
	}
	return t
}

func (p *Parser) at(tt TokenType) bool {
	return p.current().Type == tt
}

// expect checks if the current token matches the expected type and advances.
func (p *Parser) expect(tt TokenType) (Token, error) {
	if !p.at(tt) {
		if p.at(TokenEOF) {
			return Token{}, p.error(types.ErrUnexpectedEnd, fmt.Sprintf("Expected %s but reached end of expression", tt))
		}
		return Token{}, p.error(types.ErrExpectedToken, fmt.Sprintf("Expected %s but got %s", tt, p.current().Value))
	}
	return p.advance(), nil
}

// expectName accepts an identifier or a keyword used as an identifier.
func (p *Parser) expectName(what string) (Token, error) {
	t := p.current()
	if t.Type == TokenName || t.Type.IsKeyword() {
		return p.advance(), nil
	}
	if t.Type == TokenEOF {
		return Token{}, p.error(types.ErrUnexpectedEnd, fmt.Sprintf("Expected %s but reached end of expression", what))
	}
	return Token{}, p.error(types.ErrExpectedToken, fmt.Sprintf("Expected %s but got %s", what, t.Value))
}

func (p *Parser) error(code types.ErrorCode, message string) *types.Error {
	t := p.current()
	return types.NewError(code, message, t.Position).WithToken(t.Value)
}

func (p *Parser) enter() error {
	p.depth++
	if p.opts.MaxDepth > 0 && p.depth > p.opts.MaxDepth {
		return p.error(types.ErrMaxDepth, fmt.Sprintf("Expression nested deeper than %d levels", p.opts.MaxDepth))
	}
	return nil
}

func (p *Parser) leave() {
	p.depth--
}

// withComma runs fn with the comma-as-AND mode set to on.
func (p *Parser) withComma(on bool, fn func() (types.Node, error)) (types.Node, error) {
	saved := p.commaAnd
	p.commaAnd = on
	defer func() { p.commaAnd = saved }()
	return fn()
}

// Expressions

// parseExpression parses Expr := Condition ('?' Expr ':' Expr)?
//
// The condition is built first; only a following '?' turns it into a
// ternary, so comparisons used as plain filters are returned unchanged.
func (p *Parser) parseExpression() (types.Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if !p.at(TokenCondition) {
		return cond, nil
	}
	q := p.advance()

	then, err := p.withComma(false, p.parseExpression)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenColon); err != nil {
		return nil, err
	}
	els, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	return &types.Ternary{
		Position:  q.Position,
		Condition: cond,
		Then:      then,
		Else:      els,
	}, nil
}

// parseOr parses And (('||'|'or') And)*
func (p *Parser) parseOr() (types.Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(TokenOr) {
		op := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &types.Logical{Position: op.Position, Op: types.OpOr, Left: left, Right: right}
	}
	return left, nil
}

// parseAnd parses Comparison (('&&'|'and'|',') Comparison)*
// The comma only joins conditions inside a filter.
func (p *Parser) parseAnd() (types.Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.at(TokenAnd) || (p.commaAnd && p.at(TokenComma)) {
		op := p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &types.Logical{Position: op.Position, Op: types.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

var compareOps = map[TokenType]types.CompareOp{
	TokenEqual:        types.OpEqual,
	TokenNotEqual:     types.OpNotEqual,
	TokenGreater:      types.OpGreater,
	TokenLess:         types.OpLess,
	TokenGreaterEqual: types.OpGreaterEqual,
	TokenLessEqual:    types.OpLessEqual,
	TokenContains:     types.OpContains,
	TokenStartsWith:   types.OpStartsWith,
	TokenEndsWith:     types.OpEndsWith,
}

// parseComparison parses Coalesce (Op Coalesce)?
func (p *Parser) parseComparison() (types.Node, error) {
	left, err := p.parseCoalesce()
	if err != nil {
		return nil, err
	}
	op, ok := compareOps[p.current().Type]
	if !ok {
		return left, nil
	}
	t := p.advance()
	right, err := p.parseCoalesce()
	if err != nil {
		return nil, err
	}
	return &types.Comparison{Position: t.Position, Left: left, Op: op, Right: right}, nil
}

// parseCoalesce parses Postfix ('??' Coalesce)?
func (p *Parser) parseCoalesce() (types.Node, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if !p.at(TokenCoalesce) {
		return left, nil
	}
	t := p.advance()
	right, err := p.parseCoalesce()
	if err != nil {
		return nil, err
	}
	return &types.Coalesce{Position: t.Position, Left: left, Right: right}, nil
}

// parsePostfix parses a primary followed by '.' segments and '.{...}'
// projections. Each segment carries its own suffixes.
func (p *Parser) parsePostfix() (types.Node, error) {
	first, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	steps := []types.Node{first}

	for p.at(TokenDot) {
		if p.peek(1).Type == TokenBraceOpen {
			p.advance()
			proj, err := p.parseProjection(navigation(steps))
			if err != nil {
				return nil, err
			}
			node, err := p.parseSuffixes(proj)
			if err != nil {
				return nil, err
			}
			steps = []types.Node{node}
			continue
		}
		p.advance()
		seg, err := p.parseSegment()
		if err != nil {
			return nil, err
		}
		steps = append(steps, seg)
	}

	return navigation(steps), nil
}

func navigation(steps []types.Node) types.Node {
	if len(steps) == 1 {
		return steps[0]
	}
	return &types.Navigation{Position: steps[0].Pos(), Steps: steps}
}

// parsePrimary parses a root projection, a literal, a parenthesised
// expression or the first segment of a navigation.
func (p *Parser) parsePrimary() (types.Node, error) {
	t := p.current()
	switch t.Type {
	case TokenBraceOpen:
		proj, err := p.parseProjectionBody(t.Position)
		if err != nil {
			return nil, err
		}
		return p.parseSuffixes(&types.RootProjection{Position: t.Position, Properties: proj})

	case TokenString, TokenNumber, TokenBoolean, TokenNull:
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return p.parseSuffixes(lit)

	case TokenParenOpen:
		p.advance()
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenParenClose); err != nil {
			return nil, err
		}
		return p.parseSuffixes(inner)

	case TokenName:
		return p.parseSegment()

	case TokenEOF:
		return nil, p.error(types.ErrUnexpectedEnd, "Unexpected end of expression")

	default:
		if t.Type.IsKeyword() {
			return p.parseSegment()
		}
		return nil, p.error(types.ErrSyntaxError, fmt.Sprintf("Unexpected token: %s", t.Value))
	}
}

func (p *Parser) parseLiteral() (types.Node, error) {
	t := p.advance()
	lit := &types.Literal{Position: t.Position, Text: t.Value}
	switch t.Type {
	case TokenString:
		lit.Kind = types.LiteralString
		lit.Value = t.Value
	case TokenBoolean:
		lit.Kind = types.LiteralBool
		lit.Value = strings.EqualFold(t.Value, "true")
	case TokenNull:
		lit.Kind = types.LiteralNull
	case TokenNumber:
		if strings.Contains(t.Value, ".") {
			d, err := decimal.NewFromString(t.Value)
			if err != nil {
				return nil, types.NewError(types.ErrInvalidNumber, "Invalid decimal literal", t.Position).WithToken(t.Value).WithCause(err)
			}
			lit.Kind = types.LiteralDecimal
			lit.Value = d
			break
		}
		n, err := strconv.ParseInt(t.Value, 10, 64)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidNumber, "Integer literal out of range", t.Position).WithToken(t.Value).WithCause(err)
		}
		lit.Kind = types.LiteralInt
		lit.Value = n
	}
	return lit, nil
}

// parseSegment parses Ident '?'? followed by any number of suffixes.
func (p *Parser) parseSegment() (types.Node, error) {
	t, err := p.expectName("property name")
	if err != nil {
		return nil, err
	}
	prop := &types.Property{Position: t.Position, Name: t.Value}
	if p.at(TokenCondition) && p.isNullSafeMarker(t) {
		p.advance()
		prop.NullSafe = true
	}
	return p.parseSuffixes(prop)
}

// isNullSafeMarker decides whether the '?' after name marks a null-safe
// segment or opens a ternary. It is a ternary when the next token starts
// an expression; a '(' glued to the '?' opens a filter instead.
func (p *Parser) isNullSafeMarker(name Token) bool {
	q := p.current()
	next := p.peek(1)
	switch next.Type {
	case TokenName, TokenString, TokenNumber, TokenBoolean, TokenNull, TokenBraceOpen:
		return false
	case TokenParenOpen:
		return q.Position == name.Position+len(name.Value) && next.Position == q.Position+1
	default:
		return true
	}
}

// parseSuffixes applies ':func', '(cond)' and '[indexer]' suffixes to node,
// in any order, left to right.
func (p *Parser) parseSuffixes(node types.Node) (types.Node, error) {
	for {
		var err error
		switch {
		case p.at(TokenColon) && p.isFunctionSuffix():
			p.advance()
			node, err = p.parseFunction(node)
		case p.at(TokenParenOpen):
			node, err = p.parseFilter(node)
		case p.at(TokenBracketOpen):
			node, err = p.parseIndexer(node)
		default:
			return node, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// isFunctionSuffix reports whether the ':' under the cursor introduces a
// catalog function. Any other ':' belongs to an enclosing ternary.
func (p *Parser) isFunctionSuffix() bool {
	next := p.peek(1)
	if next.Type != TokenName && !next.Type.IsKeyword() {
		return false
	}
	return functions.IsFunction(next.Value)
}

func (p *Parser) parseFilter(source types.Node) (types.Node, error) {
	open := p.advance()
	cond, err := p.withComma(true, p.parseExpression)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenParenClose); err != nil {
		return nil, err
	}
	return &types.Filter{Position: open.Position, Source: source, Condition: cond}, nil
}

// parseFunction parses FnName ('(' Arg (',' Arg)* ')')? after the ':'.
func (p *Parser) parseFunction(source types.Node) (types.Node, error) {
	t := p.advance()
	spec, _ := functions.Lookup(t.Value)

	switch {
	case spec.Name == "groupBy":
		keys, err := p.parseGroupKeys()
		if err != nil {
			return nil, err
		}
		return &types.GroupBy{Position: t.Position, Source: source, Keys: keys}, nil

	case spec.Category == functions.Aggregate:
		args, err := p.parseArgs(spec, false)
		if err != nil {
			return nil, err
		}
		agg := &types.Aggregate{Position: t.Position, Source: source, Name: spec.Name}
		if len(args) == 1 {
			agg.Selector = args[0]
		}
		return agg, nil

	case spec.Category == functions.Boolean:
		args, err := p.parseArgs(spec, true)
		if err != nil {
			return nil, err
		}
		pred := &types.Predicate{Position: t.Position, Source: source, Name: spec.Name}
		if len(args) == 1 {
			pred.Condition = args[0]
		}
		return pred, nil

	default:
		args, err := p.parseArgs(spec, false)
		if err != nil {
			return nil, err
		}
		return &types.Function{Position: t.Position, Source: source, Name: spec.Name, Args: args}, nil
	}
}

// parseArgs parses an optional parenthesised argument list. Aggregates and
// boolean functions accept at most one argument; a boolean function's
// argument is a condition, where ',' means AND.
func (p *Parser) parseArgs(spec *functions.Spec, condition bool) ([]types.Node, error) {
	if !p.at(TokenParenOpen) {
		return nil, nil
	}
	p.advance()
	if p.at(TokenParenClose) {
		p.advance()
		return nil, nil
	}

	if condition {
		cond, err := p.withComma(true, p.parseExpression)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenParenClose); err != nil {
			return nil, err
		}
		return []types.Node{cond}, nil
	}

	var args []types.Node
	for {
		arg, err := p.withComma(false, p.parseExpression)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.at(TokenComma) {
			break
		}
		p.advance()
	}
	if _, err := p.expect(TokenParenClose); err != nil {
		return nil, err
	}

	if spec.Category == functions.Aggregate && len(args) > 1 {
		return nil, types.NewError(types.ErrInvalidArgument,
			fmt.Sprintf("%s accepts a single selector", spec.Name), args[1].Pos())
	}
	return args, nil
}

func (p *Parser) parseGroupKeys() ([]string, error) {
	if _, err := p.expect(TokenParenOpen); err != nil {
		return nil, err
	}
	var keys []string
	for {
		t, err := p.expectName("group key")
		if err != nil {
			return nil, err
		}
		keys = append(keys, t.Value)
		if !p.at(TokenComma) {
			break
		}
		p.advance()
	}
	if _, err := p.expect(TokenParenClose); err != nil {
		return nil, err
	}
	return keys, nil
}

const indexerShapes = "expected [asc|desc Prop], [0 asc|desc Prop], [-1 asc|desc Prop] or [skip take asc|desc Prop]"

// parseIndexer parses '[' Int [Int] ('asc'|'desc') Ident ']' | '[' ('asc'|'desc') Ident ']'.
func (p *Parser) parseIndexer(source types.Node) (types.Node, error) {
	open := p.advance()
	idx := &types.Indexer{Position: open.Position, Source: source, Mode: types.IndexOrder}

	invalid := func() error {
		return types.NewError(types.ErrInvalidIndexer, "Invalid indexer format: "+indexerShapes, open.Position).
			WithToken(p.current().Value)
	}

	var numbers []int
	for p.at(TokenNumber) {
		t := p.advance()
		n, err := strconv.Atoi(t.Value)
		if err != nil {
			return nil, invalid()
		}
		numbers = append(numbers, n)
	}

	switch len(numbers) {
	case 0:
	case 1:
		if numbers[0] != 0 && numbers[0] != -1 {
			return nil, invalid()
		}
		idx.Mode = types.IndexSingle
		idx.Skip = numbers[0]
	case 2:
		if numbers[0] < 0 || numbers[1] < 0 {
			return nil, invalid()
		}
		idx.Mode = types.IndexRange
		idx.Skip = numbers[0]
		idx.Take = numbers[1]
	default:
		return nil, invalid()
	}

	switch {
	case p.at(TokenAsc):
	case p.at(TokenDesc):
		idx.Descending = true
	default:
		return nil, invalid()
	}
	p.advance()

	name := p.current()
	if name.Type != TokenName && !name.Type.IsKeyword() {
		return nil, invalid()
	}
	p.advance()
	idx.OrderBy = name.Value

	if !p.at(TokenBracketClose) {
		return nil, invalid()
	}
	p.advance()
	return idx, nil
}
