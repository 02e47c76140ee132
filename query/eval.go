package query

import (
	"errors"
	"fmt"

	"github.com/dot5enko/sparsedb/bits"
)

var (
	ErrMalformedQuery = errors.New("malformed query")
)

// BitsetSource resolves a column name to a presence bitset the
// evaluator may own and mutate, typically a copy of the sparsity
// index's bitset.
type BitsetSource interface {
	BitsetFor(name string) (*bits.Bitset, error)
}

// Evaluate runs an RPN boolean expression over column presence
// bitsets with a stack machine and returns the result bitset.
func Evaluate(expr string, source BitsetSource) (*bits.Bitset, error) {
	tokens := Tokenize(expr)

	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty expression", ErrMalformedQuery)
	}

	stack := make([]*bits.Bitset, 0, len(tokens))

	for _, tok := range tokens {
		if tok.Kind == Column {
			operand, resolveErr := source.BitsetFor(tok.Column)
			if resolveErr != nil {
				return nil, resolveErr
			}

			stack = append(stack, operand)
			continue
		}

		if len(stack) < arity(tok.Kind) {
			return nil, fmt.Errorf("%w: operator '%s' needs %d operands, stack holds %d", ErrMalformedQuery, tok.Kind, arity(tok.Kind), len(stack))
		}

		if tok.Kind == Not {
			stack[len(stack)-1] = stack[len(stack)-1].Not()
			continue
		}

		// rightmost popped first
		right := stack[len(stack)-1]
		left := stack[len(stack)-2]
		stack = stack[:len(stack)-2]

		var result *bits.Bitset
		var opErr error

		switch tok.Kind {
		case And:
			result, opErr = left.And(right)
		case Or:
			result, opErr = left.Or(right)
		case Xor:
			result, opErr = left.Xor(right)
		case Sub:
			result, opErr = left.AndNot(right)
		default:
			panic(fmt.Sprintf("unhandled operator kind %d", tok.Kind))
		}

		if opErr != nil {
			return nil, opErr
		}

		stack = append(stack, result)
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: %d values left on the stack after evaluation", ErrMalformedQuery, len(stack))
	}

	return stack[0], nil
}

// Indices evaluates an expression and materializes the result as
// ascending distinct row indices.
func Indices(expr string, source BitsetSource) ([]uint64, error) {
	result, evalErr := Evaluate(expr, source)
	if evalErr != nil {
		return nil, evalErr
	}

	return result.ToIndices(), nil
}
