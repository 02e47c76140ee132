package manager

import (
	"github.com/dot5enko/sparsedb/bits"
	"github.com/dot5enko/sparsedb/query"
	"github.com/dot5enko/sparsedb/sparsity"
)

// indexSource adapts the sparsity index to the evaluator. BitsetFor
// hands out copies, so evaluation never touches index state.
type indexSource struct {
	index *sparsity.Index
}

func (s indexSource) BitsetFor(name string) (*bits.Bitset, error) {
	return s.index.BitsetFor(name)
}

// Find evaluates an RPN boolean expression over column presence and
// returns the matching row indices, ascending and distinct. An empty
// database yields an empty result for any well-formed expression.
func (m *Manager) Find(expr string) ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.attached {
		return nil, ErrNotAttached
	}

	return query.Indices(expr, indexSource{index: m.index})
}
