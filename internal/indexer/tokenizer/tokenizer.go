// Package tokenizer turns field text into positioned terms. Two analyzers are
// provided: Standard (NFKC normalisation, lower-casing, UAX#29 word
// segmentation) and English (Standard plus stop-word removal, possessive
// stripping and Snowball stemming).
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"
)

// Token represents a single normalised term and its position in the
// original text. Positions count every word, including removed stop-words,
// so that phrase distances survive filtering.
type Token struct {
	Term     string
	Position int
}

// Analyzer converts raw text into tokens. Implementations are stateless and
// safe for concurrent use.
type Analyzer interface {
	Name() string
	Analyze(text string) []Token
}

var englishStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "for": {}, "if": {}, "in": {},
	"into": {}, "is": {}, "it": {}, "no": {}, "not": {}, "of": {},
	"on": {}, "or": {}, "such": {}, "that": {}, "the": {}, "their": {},
	"then": {}, "there": {}, "these": {}, "they": {}, "this": {}, "to": {},
	"was": {}, "will": {}, "with": {},
}

// Standard is the language-neutral analyzer.
type Standard struct{}

func (Standard) Name() string { return "standard" }

func (Standard) Analyze(text string) []Token {
	segments := Words(text)
	tokens := make([]Token, 0, len(segments))
	for i, w := range segments {
		tokens = append(tokens, Token{Term: w, Position: i})
	}
	return tokens
}

// English removes stop-words and reduces words to their Snowball stems.
type English struct{}

func (English) Name() string { return "english" }

func (English) Analyze(text string) []Token {
	segments := Words(text)
	tokens := make([]Token, 0, len(segments))
	for i, w := range segments {
		w = stripPossessive(w)
		if _, isStop := englishStopWords[w]; isStop {
			continue
		}
		stemmed := english.Stem(w, true)
		if stemmed == "" {
			continue
		}
		tokens = append(tokens, Token{Term: stemmed, Position: i})
	}
	return tokens
}

// Normalize applies NFKC normalisation and lower-casing.
func Normalize(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// Words returns the normalised UAX#29 words of s, dropping segments that
// carry no letter or digit (whitespace, punctuation, symbols).
func Words(s string) []string {
	toks := words.FromString(Normalize(s))
	var out []string
	for toks.Next() {
		w := toks.Value()
		if hasAlphanumeric(w) {
			out = append(out, w)
		}
	}
	return out
}

// Terms is a convenience returning only the term strings of tokens.
func Terms(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Term
	}
	return out
}

func hasAlphanumeric(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func stripPossessive(w string) string {
	for _, suffix := range []string{"'s", "’s"} {
		if strings.HasSuffix(w, suffix) && len(w) > len(suffix) {
			return w[:len(w)-len(suffix)]
		}
	}
	return w
}
