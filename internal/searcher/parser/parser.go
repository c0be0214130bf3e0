// Package parser turns a query string into a query tree.
//
// Grammar, loosest binding first:
//
//	query   = or EOF
//	or      = and { [ "OR" ] and }          adjacent clauses are OR-ed
//	and     = unary { "AND" unary }
//	unary   = "NOT" unary | primary
//	primary = "(" or ")" | field ":" target | word | phrase
//	target  = word | phrase | "(" or ")"
//
// Keywords are upper case; "&&", "||" and "!" are accepted as aliases.
// Unqualified clauses target the catch-all field.
package parser

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
)

// Node is a query tree node.
type Node interface {
	String() string
}

// TermNode matches documents whose Field contains the analysed Text.
type TermNode struct {
	Field string
	Text  string
}

// PhraseNode matches documents whose Field contains the analysed tokens of
// Text at consecutive positions.
type PhraseNode struct {
	Field string
	Text  string
}

type AndNode struct {
	Children []Node
}

type OrNode struct {
	Children []Node
}

type NotNode struct {
	Child Node
}

func (n *TermNode) String() string   { return n.Field + ":" + n.Text }
func (n *PhraseNode) String() string { return fmt.Sprintf("%s:%q", n.Field, n.Text) }
func (n *AndNode) String() string    { return join("AND", n.Children) }
func (n *OrNode) String() string     { return join("OR", n.Children) }
func (n *NotNode) String() string    { return "NOT " + n.Child.String() }

func join(op string, children []Node) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")"
}

// ParseError describes malformed query syntax. It matches ErrQueryParse.
type ParseError struct {
	Query    string
	Position int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("query parse error at position %d: %s", e.Position, e.Message)
}

func (e *ParseError) Unwrap() error {
	return apperrors.ErrQueryParse
}

// Parse parses query. Field names are not validated here; a clause on an
// unknown field simply matches nothing.
func Parse(query string) (Node, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ParseError{Query: query, Message: "query is empty"}
	}
	tokens, err := lex(query)
	if err != nil {
		return nil, err
	}
	p := &parser{query: query, tokens: tokens}
	node, err := p.parseOr(string(index.FieldCatchAll))
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		if tok.kind == tokRParen {
			return nil, p.errorf(tok, "unbalanced ')'")
		}
		return nil, p.errorf(tok, "unexpected %s", tok)
	}
	return node, nil
}

type parser struct {
	query  string
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &ParseError{Query: p.query, Position: tok.pos, Message: fmt.Sprintf(format, args...)}
}

func startsClause(tok token) bool {
	switch tok.kind {
	case tokWord, tokPhrase, tokField, tokLParen, tokNot:
		return true
	}
	return false
}

func (p *parser) parseOr(field string) (Node, error) {
	first, err := p.parseAnd(field)
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for {
		tok := p.peek()
		if tok.kind == tokOr {
			p.next()
			if !startsClause(p.peek()) {
				return nil, p.errorf(tok, "OR must be followed by a clause")
			}
		} else if !startsClause(tok) {
			break
		}
		child, err := p.parseAnd(field)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &OrNode{Children: children}, nil
}

func (p *parser) parseAnd(field string) (Node, error) {
	if tok := p.peek(); tok.kind == tokAnd || tok.kind == tokOr {
		return nil, p.errorf(tok, "%s must follow a clause", tok)
	}
	first, err := p.parseUnary(field)
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.peek().kind == tokAnd {
		tok := p.next()
		if !startsClause(p.peek()) {
			return nil, p.errorf(tok, "AND must be followed by a clause")
		}
		child, err := p.parseUnary(field)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &AndNode{Children: children}, nil
}

func (p *parser) parseUnary(field string) (Node, error) {
	if tok := p.peek(); tok.kind == tokNot {
		p.next()
		if !startsClause(p.peek()) {
			return nil, p.errorf(tok, "NOT must be followed by a clause")
		}
		child, err := p.parseUnary(field)
		if err != nil {
			return nil, err
		}
		if inner, ok := child.(*NotNode); ok {
			return inner.Child, nil
		}
		return &NotNode{Child: child}, nil
	}
	return p.parsePrimary(field)
}

func (p *parser) parsePrimary(field string) (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokWord:
		return &TermNode{Field: field, Text: tok.text}, nil
	case tokPhrase:
		if strings.TrimSpace(tok.text) == "" {
			return nil, p.errorf(tok, "empty phrase")
		}
		return &PhraseNode{Field: field, Text: tok.text}, nil
	case tokLParen:
		return p.parseGroup(tok, field)
	case tokField:
		target := p.peek()
		switch target.kind {
		case tokWord, tokPhrase, tokLParen:
			return p.parsePrimary(tok.text)
		default:
			return nil, p.errorf(tok, "field %q has no value", tok.text)
		}
	default:
		return nil, p.errorf(tok, "unexpected %s", tok)
	}
}

func (p *parser) parseGroup(open token, field string) (Node, error) {
	if p.peek().kind == tokRParen {
		return nil, p.errorf(open, "empty group")
	}
	if p.peek().kind == tokEOF {
		return nil, p.errorf(open, "unbalanced '('")
	}
	node, err := p.parseOr(field)
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokRParen {
		return nil, p.errorf(open, "unbalanced '('")
	}
	p.next()
	return node, nil
}
