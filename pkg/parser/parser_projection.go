package parser

import (
	"fmt"
	"strings"

	"github.com/sandrolain/goshape/pkg/types"
)

// parseProjection parses '{' ProjProp (',' ProjProp)* '}' applied to source.
func (p *Parser) parseProjection(source types.Node) (types.Node, error) {
	pos := p.current().Position
	props, err := p.parseProjectionBody(pos)
	if err != nil {
		return nil, err
	}
	return &types.Projection{Position: pos, Source: source, Properties: props}, nil
}

func (p *Parser) parseProjectionBody(pos int) ([]types.ProjectionProperty, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	saved := p.commaAnd
	p.commaAnd = false
	defer func() { p.commaAnd = saved }()

	if _, err := p.expect(TokenBraceOpen); err != nil {
		return nil, err
	}
	if p.at(TokenBraceClose) {
		return nil, types.NewError(types.ErrInvalidProjection, "Projection must declare at least one property", pos)
	}

	var props []types.ProjectionProperty
	seen := make(map[string]bool)
	for {
		prop, err := p.parseProjectionProperty()
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(prop.OutputKey)
		if seen[key] {
			return nil, types.NewError(types.ErrInvalidProjection,
				fmt.Sprintf("Duplicate projection key %q", prop.OutputKey), prop.Position)
		}
		seen[key] = true
		props = append(props, prop)

		if !p.at(TokenComma) {
			break
		}
		p.advance()
	}

	if _, err := p.expect(TokenBraceClose); err != nil {
		return nil, err
	}
	return props, nil
}

// parseProjectionProperty parses one member of a projection list:
//
//	'(' Expr ')' suffixes 'as' Ident    computed, alias required
//	':' FuncSuffix suffixes 'as' Ident  function over the group elements
//	'{' ... '}' 'as' Ident              projection of the group elements
//	Path suffixes ('as' Ident)?         plain path
func (p *Parser) parseProjectionProperty() (types.ProjectionProperty, error) {
	start := p.current()
	prop := types.ProjectionProperty{Position: start.Position}

	var (
		node types.Node
		err  error
	)
	switch start.Type {
	case TokenParenOpen:
		p.advance()
		node, err = p.parseExpression()
		if err != nil {
			return prop, err
		}
		if _, err = p.expect(TokenParenClose); err != nil {
			return prop, err
		}
		node, err = p.parseSuffixes(node)
		prop.Computed = true

	case TokenColon:
		if !p.isFunctionSuffix() {
			p.advance()
			return prop, p.error(types.ErrUnknownFunction, fmt.Sprintf("Unknown function %q", p.current().Value))
		}
		node, err = p.parseSuffixes(&types.GroupElements{Position: start.Position})
		prop.Computed = true

	case TokenBraceOpen:
		node, err = p.parseProjection(&types.GroupElements{Position: start.Position})
		prop.Computed = true

	default:
		node, err = p.parsePostfix()
	}
	if err != nil {
		return prop, err
	}
	prop.Expr = node

	if p.at(TokenCondition) || p.at(TokenCoalesce) || p.current().Type.IsComparison() {
		return prop, p.error(types.ErrInvalidProjection,
			"Computed expressions in a projection must be wrapped in parentheses and aliased: (expr) as Name")
	}

	if p.at(TokenAs) {
		p.advance()
		alias, err := p.expectName("alias")
		if err != nil {
			return prop, err
		}
		prop.Alias = alias.Value
		prop.OutputKey = alias.Value
		return prop, nil
	}

	if prop.Computed {
		return prop, p.error(types.ErrMissingAlias, "Computed projection property requires an alias: add 'as Name'")
	}
	prop.OutputKey = types.LastName(node)
	if prop.OutputKey == "" {
		return prop, p.error(types.ErrMissingAlias, "Projection property has no name: add 'as Name'")
	}
	return prop, nil
}
