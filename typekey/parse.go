// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package typekey

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/terramate-io/bindgraph/errors"
)

// ErrInvalidType indicates a malformed type expression.
const ErrInvalidType errors.Kind = "invalid type expression"

type typeNode struct {
	name     string
	args     []typeNode
	nullable bool
}

func (n typeNode) render() Type {
	var b strings.Builder
	n.write(&b)
	return Type(b.String())
}

func (n typeNode) write(b *strings.Builder) {
	b.WriteString(n.name)
	if len(n.args) > 0 {
		b.WriteByte('<')
		for i, arg := range n.args {
			if i > 0 {
				b.WriteString(", ")
			}
			arg.write(b)
		}
		b.WriteByte('>')
	}
	if n.nullable {
		b.WriteByte('?')
	}
}

// ParseType parses and normalizes a type expression.
// Whitespace is irrelevant and type arguments are separated by ", " in the
// result.
func ParseType(expr string) (Type, error) {
	n, err := parseTypeNode(expr)
	if err != nil {
		return "", err
	}
	return n.render(), nil
}

// Parse parses a request expression like "Provider<Lazy<com.example.Foo>>"
// into a contextual key. Provider, Lazy and Map wrappers are unwrapped
// recursively and the key is built from the canonical type.
func Parse(expr string, qualifier string) (Contextual, error) {
	n, err := parseTypeNode(expr)
	if err != nil {
		return Contextual{}, err
	}
	w := unwrap(n)
	return Contextual{
		Key:     New(w.Canonical(), qualifier),
		Wrapped: w,
	}, nil
}

// MustParse is like Parse but panics on malformed expressions.
// It's intended for tests and static tables.
func MustParse(expr string, qualifier string) Contextual {
	c, err := Parse(expr, qualifier)
	if err != nil {
		panic(err)
	}
	return c
}

func unwrap(n typeNode) Wrapped {
	if !n.nullable {
		switch {
		case n.name == ProviderName && len(n.args) == 1:
			return Provider{Inner: unwrap(n.args[0])}
		case n.name == LazyName && len(n.args) == 1:
			return Lazy{Inner: unwrap(n.args[0])}
		case n.name == MapName && len(n.args) == 2:
			return Map{KeyType: n.args[0].render(), Value: unwrap(n.args[1])}
		}
	}
	return Canonical{Type: n.render()}
}

type typeParser struct {
	expr string
	pos  int
}

func parseTypeNode(expr string) (typeNode, error) {
	p := &typeParser{expr: expr}
	n, err := p.parseType()
	if err != nil {
		return typeNode{}, err
	}
	p.skipSpaces()
	if p.pos != len(p.expr) {
		return typeNode{}, p.errorf("unexpected %q", p.expr[p.pos:])
	}
	return n, nil
}

func (p *typeParser) parseType() (typeNode, error) {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.expr) && isNameByte(p.expr[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return typeNode{}, p.errorf("expected type name")
	}
	n := typeNode{name: p.expr[start:p.pos]}
	if strings.HasPrefix(n.name, ".") || strings.HasSuffix(n.name, ".") || strings.Contains(n.name, "..") {
		return typeNode{}, p.errorf("malformed type name %q", n.name)
	}

	p.skipSpaces()
	if p.peek() == '<' {
		p.pos++
		for {
			arg, err := p.parseType()
			if err != nil {
				return typeNode{}, err
			}
			n.args = append(n.args, arg)
			p.skipSpaces()
			switch p.peek() {
			case ',':
				p.pos++
				continue
			case '>':
				p.pos++
			default:
				return typeNode{}, p.errorf("expected ',' or '>'")
			}
			break
		}
		p.skipSpaces()
	}
	if p.peek() == '?' {
		p.pos++
		n.nullable = true
	}
	return n, nil
}

func (p *typeParser) peek() byte {
	if p.pos >= len(p.expr) {
		return 0
	}
	return p.expr[p.pos]
}

func (p *typeParser) skipSpaces() {
	for p.pos < len(p.expr) && unicode.IsSpace(rune(p.expr[p.pos])) {
		p.pos++
	}
}

func (p *typeParser) errorf(format string, args ...interface{}) error {
	return errors.E(ErrInvalidType, "%s at offset %d of %q", fmt.Sprintf(format, args...), p.pos, p.expr)
}

func isNameByte(c byte) bool {
	return c == '.' || c == '_' || c == '$' || c == '*' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
