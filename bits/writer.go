package bits

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

type BitWriter struct {
	pos   int
	data  []byte
	size  int
	order binary.ByteOrder

	growingEnabled bool
}

func NewEncodeBuffer(buf []byte, order binary.ByteOrder) BitWriter {
	result := BitWriter{}

	result.data = buf
	result.pos = 0
	result.size = len(buf)
	result.order = order

	return result
}

func (w *BitWriter) EnableGrowing() {
	w.growingEnabled = true
}

func (w *BitWriter) Reset() {
	w.pos = 0
}

func (w BitWriter) Position() int {
	return w.pos
}

func (w *BitWriter) grow(atLeast int) {
	newSize := w.size * 2
	if atLeast > newSize {
		newSize += atLeast
	}

	newBuf := make([]byte, newSize)

	copy(newBuf, w.data[:w.pos])
	w.data = newBuf
	w.size = newSize
}

func (w *BitWriter) tryGrow(n int) {
	if (w.pos + n) > w.size {
		if w.growingEnabled {
			w.grow(n)
		} else {
			panic(fmt.Sprintf("bit writer growing is disabled on pos : %d, try grow %d, from size : %d", w.pos, n, w.size))
		}
	}
}

func (w *BitWriter) Write(p []byte) (n int, err error) {
	oldl := len(p)
	w.tryGrow(oldl)

	n = copy(w.data[w.pos:], p)

	if oldl != n {
		return 0, errors.New("not enough space")
	}

	w.pos += n

	return
}

func (w *BitWriter) EmptyBytes(i int) {
	w.tryGrow(i)

	// the skipped range stays zeroed
	for j := w.pos; j < w.pos+i; j++ {
		w.data[j] = 0
	}

	w.pos += i
}

func (w *BitWriter) Bytes() []byte {
	return w.data[:w.pos]
}

func (w *BitWriter) WriteByte(u uint8) {
	w.tryGrow(1)
	w.data[w.pos] = u
	w.pos++
}

func (w *BitWriter) PutUint16(v uint16) {
	w.tryGrow(2)
	w.order.PutUint16(w.data[w.pos:], v)
	w.pos += 2
}

func (w *BitWriter) PutUint32(v uint32) {
	w.tryGrow(4)
	w.order.PutUint32(w.data[w.pos:], v)
	w.pos += 4
}

func (w *BitWriter) PutUint64(v uint64) {
	w.tryGrow(8)
	w.order.PutUint64(w.data[w.pos:], v)
	w.pos += 8
}

func (w *BitWriter) PutFloat64(f float64) {
	w.tryGrow(8)
	w.order.PutUint64(w.data[w.pos:], math.Float64bits(f))
	w.pos += 8
}

// PutUint32Slice writes every value, without a count prefix.
func (w *BitWriter) PutUint32Slice(vals []uint32) {
	for _, v := range vals {
		w.PutUint32(v)
	}
}

// PutFloat64Slice writes every value, without a count prefix.
func (w *BitWriter) PutFloat64Slice(vals []float64) {
	for _, v := range vals {
		w.PutFloat64(v)
	}
}
