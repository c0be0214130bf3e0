package parser

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokPhrase
	tokField
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of query"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	case tokField:
		return fmt.Sprintf("field %q", t.text)
	case tokPhrase:
		return fmt.Sprintf("phrase %q", t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

func lex(query string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(query) {
		r, size := utf8.DecodeRuneInString(query[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, pos: i})
			i++
		case r == '"':
			end := i + 1
			for end < len(query) && query[end] != '"' {
				end++
			}
			if end >= len(query) {
				return nil, &ParseError{Query: query, Position: i, Message: "unterminated quote"}
			}
			tokens = append(tokens, token{kind: tokPhrase, text: query[i+1 : end], pos: i})
			i = end + 1
		default:
			start := i
			for i < len(query) {
				r, size := utf8.DecodeRuneInString(query[i:])
				if unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' {
					break
				}
				if r == ':' && isFieldName(query[start:i]) {
					tokens = append(tokens, token{kind: tokField, text: query[start:i], pos: start})
					i += size
					start = -1
					break
				}
				i += size
			}
			if start >= 0 {
				tokens = append(tokens, wordToken(query[start:i], start))
			}
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(query)}), nil
}

func wordToken(text string, pos int) token {
	switch text {
	case "AND", "&&":
		return token{kind: tokAnd, text: text, pos: pos}
	case "OR", "||":
		return token{kind: tokOr, text: text, pos: pos}
	case "NOT", "!":
		return token{kind: tokNot, text: text, pos: pos}
	}
	return token{kind: tokWord, text: text, pos: pos}
}

func isFieldName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
