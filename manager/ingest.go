package manager

import (
	"errors"
	"fmt"

	"github.com/dot5enko/sparsedb/block"
	"github.com/dot5enko/sparsedb/sparsity"
)

// RowBlock is one ingestion unit: blocksize consecutive rows (fewer
// for the final block) in per-column sparse form. BlockId must be the
// next sequential id, blocks arrive strictly in row order.
type RowBlock struct {
	BlockId uint64
	Rows    uint32

	// column name -> that column's entries within this block;
	// columns with no nonzero entries may be omitted
	Columns map[string]block.ColumnEntries
}

// PutDataBlocks appends the given blocks in order. The first call
// pins the instance blocksize; later calls must pass the same value.
// Each block is applied atomically: the block store append and the
// sparsity index update happen under one exclusive critical section,
// and a failed block leaves no partial state (blocks before it stay
// applied).
func (m *Manager) PutDataBlocks(blocksize uint32, blocks []RowBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.attached {
		return ErrNotAttached
	}

	if blocksize == 0 {
		return errors.New("blocksize must be positive")
	}

	if m.meta.Blocksize == 0 {
		if pinErr := m.store.Pin(blocksize); pinErr != nil {
			return pinErr
		}
		m.meta.Blocksize = blocksize
	} else if m.meta.Blocksize != blocksize {
		return fmt.Errorf("%w: got %d, instance uses %d", ErrBlocksizeMismatch, blocksize, m.meta.Blocksize)
	}

	for _, rb := range blocks {
		if ingestErr := m.ingestBlockLocked(rb); ingestErr != nil {
			return ingestErr
		}
	}

	return nil
}

func (m *Manager) ingestBlockLocked(rb RowBlock) error {
	rows := m.index.RowCount()
	blocksize := uint64(m.meta.Blocksize)

	if rows%blocksize != 0 {
		return fmt.Errorf("%w: cannot append after a partial block", sparsity.ErrOutOfOrderIngest)
	}

	expectId := rows / blocksize
	if rb.BlockId != expectId {
		return fmt.Errorf("%w: block id %d, expected %d", sparsity.ErrOutOfOrderIngest, rb.BlockId, expectId)
	}

	data := block.Data{
		StartRow: rows,
		Rows:     rb.Rows,
		Columns:  make([]block.ColumnEntries, m.cols.Len()),
	}

	for name, entries := range rb.Columns {
		ordinal, ordErr := m.cols.Ordinal(name)
		if ordErr != nil {
			return ordErr
		}

		data.Columns[ordinal] = dropZeroValues(entries)
	}

	// the store validates the block fully before writing anything, a
	// failed append changes no state
	nonzero, appendErr := m.store.AppendBlock(&data)
	if appendErr != nil {
		return appendErr
	}

	// the index accepts whatever the store accepted, a failure here
	// would leave the two disagreeing
	if ingestErr := m.index.IngestBlock(rows, rb.Rows, nonzero); ingestErr != nil {
		panic(fmt.Sprintf("index rejected a block the store accepted: %v", ingestErr))
	}

	m.meta.Rows = m.store.RowCount()
	m.meta.Blocks = m.store.BlockCount()

	return nil
}

// dropZeroValues filters explicit zeros out, presence bits are set iff
// the stored value is nonzero.
func dropZeroValues(entries block.ColumnEntries) block.ColumnEntries {
	// mismatched lengths pass through untouched so the store rejects
	// them during validation
	if len(entries.Rows) != len(entries.Values) {
		return entries
	}

	zeros := 0
	for _, v := range entries.Values {
		if v == 0 {
			zeros++
		}
	}

	if zeros == 0 {
		return block.ColumnEntries{
			Rows:   append([]uint32(nil), entries.Rows...),
			Values: append([]float64(nil), entries.Values...),
		}
	}

	out := block.ColumnEntries{
		Rows:   make([]uint32, 0, len(entries.Rows)-zeros),
		Values: make([]float64, 0, len(entries.Values)-zeros),
	}

	for i, v := range entries.Values {
		if v == 0 {
			continue
		}
		out.Rows = append(out.Rows, entries.Rows[i])
		out.Values = append(out.Values, v)
	}

	return out
}
