package sparsity

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dot5enko/sparsedb/bits"
	sio "github.com/dot5enko/sparsedb/io"
	"github.com/dot5enko/sparsedb/schema"
)

var (
	ErrAlreadyInitialized = errors.New("columns already registered")
	ErrOutOfOrderIngest   = errors.New("out of order ingest")
)

// Index keeps one presence bitset per column, all of length
// RowCount(). Bit i of a column's bitset is set iff row i holds a
// nonzero entry in that column.
type Index struct {
	mu sync.RWMutex

	cols *schema.ColumnSet
	sets []*bits.Bitset
	rows uint64
}

func NewIndex() *Index {
	return &Index{}
}

// RegisterColumns fixes the column list. Called once per instance.
func (x *Index) RegisterColumns(names []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.cols != nil {
		return ErrAlreadyInitialized
	}

	cols, colsErr := schema.NewColumnSet(names)
	if colsErr != nil {
		return colsErr
	}

	x.cols = cols
	x.sets = make([]*bits.Bitset, cols.Len())
	for i := range x.sets {
		x.sets[i] = bits.New(0)
	}

	return nil
}

// IngestBlock extends every column bitset by rows zero bits and sets
// the reported nonzero positions. startRow must equal the current row
// count: blocks arrive strictly in order with no gaps.
func (x *Index) IngestBlock(startRow uint64, rows uint32, nonzeroByColumn [][]uint32) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.cols == nil {
		return errors.New("columns not registered")
	}

	if startRow != x.rows {
		return fmt.Errorf("%w: block starts at row %d, current row count is %d", ErrOutOfOrderIngest, startRow, x.rows)
	}

	if len(nonzeroByColumn) != x.cols.Len() {
		return fmt.Errorf("nonzero row sets for %d columns, index has %d", len(nonzeroByColumn), x.cols.Len())
	}

	// validate before touching any bitset, a failed ingest must leave
	// no partial state
	for ci, locals := range nonzeroByColumn {
		prev := -1
		for _, local := range locals {
			if local >= rows {
				return fmt.Errorf("column '%s': local row %d outside block of %d rows", x.cols.Name(ci), local, rows)
			}
			if int(local) <= prev {
				return fmt.Errorf("column '%s': local rows not strictly ascending", x.cols.Name(ci))
			}
			prev = int(local)
		}
	}

	for ci, locals := range nonzeroByColumn {
		set := x.sets[ci]
		set.Extend(uint(rows))

		positions := make([]uint, len(locals))
		for i, local := range locals {
			positions[i] = uint(startRow) + uint(local)
		}

		set.SetSorted(positions)
	}

	x.rows += uint64(rows)

	return nil
}

// BitsetFor returns a copy of the column's presence bitset. The
// index's own bitset is never handed out.
func (x *Index) BitsetFor(name string) (*bits.Bitset, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.cols == nil {
		return nil, fmt.Errorf("%w: '%s'", schema.ErrUnknownColumn, name)
	}

	ordinal, ordErr := x.cols.Ordinal(name)
	if ordErr != nil {
		return nil, ordErr
	}

	return x.sets[ordinal].Clone(), nil
}

func (x *Index) RowCount() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return x.rows
}

func mapFilePath(dir, column string) string {
	return filepath.Join(dir, column+".map")
}

// Dump persists every column bitset as a <name>.map file under dir.
func (x *Index) Dump(dir string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.cols == nil {
		return errors.New("columns not registered")
	}

	for ci, name := range x.cols.Names() {
		set := x.sets[ci]

		dumpErr := sio.WriteAtomic(mapFilePath(dir, name), func(w io.Writer) error {
			_, writeErr := set.WriteTo(w)
			return writeErr
		})

		if dumpErr != nil {
			return fmt.Errorf("unable to dump map for column '%s': %w", name, dumpErr)
		}
	}

	return nil
}

// Load restores the per-column bitsets from dir and verifies every
// one has exactly expectRows bits.
func (x *Index) Load(dir string, names []string, expectRows uint64) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.cols != nil {
		return ErrAlreadyInitialized
	}

	cols, colsErr := schema.NewColumnSet(names)
	if colsErr != nil {
		return colsErr
	}

	sets := make([]*bits.Bitset, cols.Len())

	for ci, name := range cols.Names() {
		fp, openErr := os.Open(mapFilePath(dir, name))
		if openErr != nil {
			return fmt.Errorf("missing map for column '%s': %w", name, openErr)
		}

		set := bits.New(0)
		_, readErr := set.ReadFrom(fp)
		fp.Close()

		if readErr != nil {
			return fmt.Errorf("unable to load map for column '%s': %w", name, readErr)
		}

		if uint64(set.Len()) != expectRows {
			return fmt.Errorf("map for column '%s' covers %d rows, meta says %d", name, set.Len(), expectRows)
		}

		sets[ci] = set
	}

	x.cols = cols
	x.sets = sets
	x.rows = expectRows

	return nil
}
