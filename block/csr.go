package block

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrBlockSizeExceeded = errors.New("block exceeds configured blocksize")
	ErrUnknownBlock      = errors.New("unknown block")
	ErrRowOutOfRange     = errors.New("row index out of range")
)

// ColumnEntries is one column's nonzero entries restricted to a single
// block: local row positions (ascending) and their values, in CSR
// style. Rows and Values run in lockstep.
type ColumnEntries struct {
	Rows   []uint32
	Values []float64
}

func (e ColumnEntries) Len() int {
	return len(e.Rows)
}

// ValueAt looks up the value stored at a local row. The second result
// is false when the row holds no entry in this column.
func (e ColumnEntries) ValueAt(local uint32) (float64, bool) {
	idx, found := slices.BinarySearch(e.Rows, local)
	if !found {
		return 0, false
	}

	return e.Values[idx], true
}

func (e ColumnEntries) validate(rows uint32) error {
	if len(e.Rows) != len(e.Values) {
		return fmt.Errorf("%d local rows vs %d values", len(e.Rows), len(e.Values))
	}

	prev := -1
	for i, local := range e.Rows {
		if local >= rows {
			return fmt.Errorf("local row %d outside block of %d rows", local, rows)
		}
		if int(local) <= prev {
			return fmt.Errorf("local rows not strictly ascending at position %d", i)
		}
		prev = int(local)

		if e.Values[i] == 0 {
			return fmt.Errorf("explicit zero value at local row %d", local)
		}
	}

	return nil
}

// Data is one block's worth of rows in per-column sparse form, columns
// in ordinal order.
type Data struct {
	StartRow uint64
	Rows     uint32
	Columns  []ColumnEntries
}

func (d *Data) Validate(ncols int) error {
	if d.Rows == 0 {
		return errors.New("empty block")
	}

	if len(d.Columns) != ncols {
		return fmt.Errorf("block carries %d columns, instance has %d", len(d.Columns), ncols)
	}

	for ci, entries := range d.Columns {
		if validErr := entries.validate(d.Rows); validErr != nil {
			return fmt.Errorf("column %d: %w", ci, validErr)
		}
	}

	return nil
}

// NonzeroRows reports, per column, the local rows holding a nonzero
// entry. This is the exact input the sparsity index ingests, so index
// and store agree by construction.
func (d *Data) NonzeroRows() [][]uint32 {
	out := make([][]uint32, len(d.Columns))
	for ci, entries := range d.Columns {
		rows := make([]uint32, len(entries.Rows))
		copy(rows, entries.Rows)
		out[ci] = rows
	}

	return out
}
