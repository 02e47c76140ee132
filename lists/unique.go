package lists

import (
	"slices"

	"golang.org/x/exp/constraints"
)

// SortedUnique returns the distinct values of in, ascending. The input
// is not modified.
func SortedUnique[T constraints.Ordered](in []T) []T {
	if len(in) == 0 {
		return nil
	}

	out := make([]T, len(in))
	copy(out, in)

	slices.Sort(out)

	filled := 1
	for _, v := range out[1:] {
		if v != out[filled-1] {
			out[filled] = v
			filled += 1
		}
	}

	return out[:filled]
}
