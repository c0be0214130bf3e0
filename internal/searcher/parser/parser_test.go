package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"shoe", "catch_all:shoe"},
		{"red shoe", "(catch_all:red OR catch_all:shoe)"},
		{"red OR shoe", "(catch_all:red OR catch_all:shoe)"},
		{"red AND shoe", "(catch_all:red AND catch_all:shoe)"},
		{"red && shoe || boot", "((catch_all:red AND catch_all:shoe) OR catch_all:boot)"},
		{"a b AND c", "(catch_all:a OR (catch_all:b AND catch_all:c))"},
		{"a AND b OR c AND d", "((catch_all:a AND catch_all:b) OR (catch_all:c AND catch_all:d))"},
		{"shoe NOT red", "(catch_all:shoe OR NOT catch_all:red)"},
		{"shoe AND NOT red", "(catch_all:shoe AND NOT catch_all:red)"},
		{"NOT NOT shoe", "catch_all:shoe"},
		{"! shoe", "NOT catch_all:shoe"},
		{`"red shoe"`, `catch_all:"red shoe"`},
		{"title:shoe", "title:shoe"},
		{`merchant:"Trail Co" boot`, `(merchant:"Trail Co" OR catch_all:boot)`},
		{"title:(red OR blue) AND shoe", "((title:red OR title:blue) AND catch_all:shoe)"},
		{"title:(red merchant:acme)", "(title:red OR merchant:acme)"},
		{"(red)", "catch_all:red"},
		{"price:10", "price:10"},
		{"and or not", "(catch_all:and OR catch_all:or OR catch_all:not)"},
		{"12:30", "catch_all:12:30"},
		{"Ünïcode", "catch_all:Ünïcode"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			node, err := Parse(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, node.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		query   string
		message string
	}{
		{"", "query is empty"},
		{"   ", "query is empty"},
		{`"red shoe`, "unterminated quote"},
		{"(red shoe", "unbalanced '('"},
		{"red shoe)", "unbalanced ')'"},
		{"()", "empty group"},
		{`""`, "empty phrase"},
		{"red AND", "AND must be followed by a clause"},
		{"red OR", "OR must be followed by a clause"},
		{"AND red", "AND must follow a clause"},
		{"red OR AND shoe", "OR must be followed by a clause"},
		{"NOT", "NOT must be followed by a clause"},
		{"title:", `field "title" has no value`},
		{"(", "unbalanced '('"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			_, err := Parse(tt.query)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrQueryParse)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.message, perr.Message)
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := Parse(`shoe "red`)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 5, perr.Position)
	assert.Equal(t, "query parse error at position 5: unterminated quote", err.Error())
}
