package manager

import (
	"github.com/dot5enko/sparsedb/block"
	"github.com/dot5enko/sparsedb/lists"
	"golang.org/x/sync/errgroup"
)

const blockFetchParallelism = 4

// Triple is one nonzero cell of the assembled result.
type Triple struct {
	Row    uint64
	Column string
	Value  float64
}

// SparseResult is the canonical row/column/value form of a retrieval,
// ordered by the caller's row sequence, then by the caller's column
// order. Convertible to any host sparse matrix representation.
type SparseResult struct {
	Triples []Triple
}

func (r *SparseResult) Len() int {
	return len(r.Triples)
}

// GetData assembles the nonzero values of the requested columns at
// the requested row indices. Indices may repeat and arrive in any
// order, the result preserves that order. A row with no nonzero entry
// in any requested column contributes no triples and is not an error.
func (m *Manager) GetData(columns []string, indices []uint64) (*SparseResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.attached {
		return nil, ErrNotAttached
	}

	ordinals := make([]int, len(columns))
	for i, name := range columns {
		ordinal, ordErr := m.cols.Ordinal(name)
		if ordErr != nil {
			return nil, ordErr
		}
		ordinals[i] = ordinal
	}

	blockIds := make([]uint64, len(indices))
	locals := make([]uint32, len(indices))

	for i, row := range indices {
		blockId, local, locateErr := m.store.Locate(row)
		if locateErr != nil {
			return nil, locateErr
		}
		blockIds[i] = blockId
		locals[i] = local
	}

	// one read per distinct block touched, fetched concurrently
	distinct := lists.SortedUnique(blockIds)

	columnsByBlock := make([][]block.ColumnEntries, len(distinct))

	var g errgroup.Group
	g.SetLimit(blockFetchParallelism)

	for i, blockId := range distinct {
		i, blockId := i, blockId
		g.Go(func() error {
			entries, readErr := m.store.ReadColumns(blockId, ordinals)
			if readErr != nil {
				return readErr
			}
			columnsByBlock[i] = entries
			return nil
		})
	}

	if waitErr := g.Wait(); waitErr != nil {
		return nil, waitErr
	}

	blockPos := make(map[uint64]int, len(distinct))
	for i, blockId := range distinct {
		blockPos[blockId] = i
	}

	result := &SparseResult{}

	for k, row := range indices {
		entries := columnsByBlock[blockPos[blockIds[k]]]

		for ci, name := range columns {
			value, present := entries[ci].ValueAt(locals[k])
			if !present {
				continue
			}

			result.Triples = append(result.Triples, Triple{
				Row:    row,
				Column: name,
				Value:  value,
			})
		}
	}

	return result, nil
}
