package query

import (
	"regexp"
	"strings"
)

type Kind uint8

const (
	Column Kind = iota
	And
	Or
	Xor
	Sub
	Not
)

func (k Kind) String() string {
	switch k {
	case Column:
		return "column"
	case And:
		return "&"
	case Or:
		return "|"
	case Xor:
		return "^"
	case Sub:
		return "-"
	case Not:
		return "!"
	default:
		return ""
	}
}

// Token is one element of a parsed RPN expression: either a column
// reference or an operator.
type Token struct {
	Kind   Kind
	Column string
}

var operators = map[string]Kind{
	"&": And,
	"|": Or,
	"^": Xor,
	"-": Sub,
	"!": Not,
}

func arity(k Kind) int {
	if k == Not {
		return 1
	}
	return 2
}

var operatorPattern = regexp.MustCompile(`([&|^!-])`)

// Format pads operator characters with spaces so expressions work
// without explicit whitespace, e.g. "a&b !" tokenizes the same as
// "a & b !".
func Format(expr string) string {
	return strings.Join(strings.Fields(operatorPattern.ReplaceAllString(expr, " $1 ")), " ")
}

// Tokenize parses an expression into a tagged token stream. Words that
// are not operators become column references; whether the column
// exists is the evaluator's concern.
func Tokenize(expr string) []Token {
	words := strings.Fields(Format(expr))

	out := make([]Token, 0, len(words))
	for _, word := range words {
		if kind, isOp := operators[word]; isOp {
			out = append(out, Token{Kind: kind})
		} else {
			out = append(out, Token{Kind: Column, Column: word})
		}
	}

	return out
}
