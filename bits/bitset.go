package bits

import (
	"errors"
	"fmt"
	"io"

	bb "github.com/bits-and-blooms/bitset"
)

var (
	ErrDimensionMismatch = errors.New("bitset dimension mismatch")
)

// Bitset is a word-packed bit vector with an explicit logical length.
// Binary operations require equal-length operands, and Not() flips
// only the bits below the current length, so the length is the row
// universe known so far.
type Bitset struct {
	set    *bb.BitSet
	length uint
}

func New(length uint) *Bitset {
	return &Bitset{
		set:    bb.New(length),
		length: length,
	}
}

func (b *Bitset) Len() uint {
	return b.length
}

func (b *Bitset) Count() uint {
	return b.set.Count()
}

// Set panics on out of range positions, callers validate bounds
// before getting here.
func (b *Bitset) Set(i uint) {
	if i >= b.length {
		panic(fmt.Sprintf("bit %d out of range, bitset length is %d", i, b.length))
	}
	b.set.Set(i)
}

func (b *Bitset) Test(i uint) bool {
	if i >= b.length {
		return false
	}
	return b.set.Test(i)
}

// SetSorted sets the given ascending positions in one pass.
func (b *Bitset) SetSorted(positions []uint) {
	for _, p := range positions {
		b.Set(p)
	}
}

// Extend appends n zero bits.
func (b *Bitset) Extend(n uint) {
	if n == 0 {
		return
	}
	b.length += n

	// set+clear of the top bit grows the backing set to cover
	// the new length exactly
	b.set.Set(b.length - 1)
	b.set.Clear(b.length - 1)
}

func (b *Bitset) checkDims(other *Bitset) error {
	if b.length != other.length {
		return fmt.Errorf("%w: %d vs %d bits", ErrDimensionMismatch, b.length, other.length)
	}
	return nil
}

func (b *Bitset) And(other *Bitset) (*Bitset, error) {
	if err := b.checkDims(other); err != nil {
		return nil, err
	}

	out := b.set.Clone()
	out.InPlaceIntersection(other.set)

	return &Bitset{set: out, length: b.length}, nil
}

func (b *Bitset) Or(other *Bitset) (*Bitset, error) {
	if err := b.checkDims(other); err != nil {
		return nil, err
	}

	out := b.set.Clone()
	out.InPlaceUnion(other.set)

	return &Bitset{set: out, length: b.length}, nil
}

func (b *Bitset) Xor(other *Bitset) (*Bitset, error) {
	if err := b.checkDims(other); err != nil {
		return nil, err
	}

	out := b.set.Clone()
	out.InPlaceSymmetricDifference(other.set)

	return &Bitset{set: out, length: b.length}, nil
}

// AndNot keeps the bits set in b and not in other.
func (b *Bitset) AndNot(other *Bitset) (*Bitset, error) {
	if err := b.checkDims(other); err != nil {
		return nil, err
	}

	out := b.set.Clone()
	out.InPlaceDifference(other.set)

	return &Bitset{set: out, length: b.length}, nil
}

// Not complements every bit below the current length. There is no
// implicit universe beyond it.
func (b *Bitset) Not() *Bitset {
	return &Bitset{
		set:    b.set.Complement(),
		length: b.length,
	}
}

// ToIndices returns the ascending positions of all set bits.
func (b *Bitset) ToIndices() []uint64 {
	out := make([]uint64, 0, b.set.Count())

	buf := make([]uint, 1024)

	last, batch := b.set.NextSetMany(0, buf)
	for len(batch) > 0 {
		for _, v := range batch {
			out = append(out, uint64(v))
		}
		last, batch = b.set.NextSetMany(last+1, buf)
	}

	return out
}

func (b *Bitset) Clone() *Bitset {
	return &Bitset{
		set:    b.set.Clone(),
		length: b.length,
	}
}

func (b *Bitset) Equal(other *Bitset) bool {
	return b.length == other.length && b.set.Equal(other.set)
}

// WriteTo serializes the bitset. The backing stream format carries
// the length itself, so ReadFrom restores it fully.
func (b *Bitset) WriteTo(w io.Writer) (int64, error) {
	return b.set.WriteTo(w)
}

func (b *Bitset) ReadFrom(r io.Reader) (int64, error) {
	loaded := &bb.BitSet{}

	n, err := loaded.ReadFrom(r)
	if err != nil {
		return n, fmt.Errorf("unable to decode bitset: %w", err)
	}

	b.set = loaded
	b.length = loaded.Len()

	return n, nil
}
