package block

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dot5enko/sparsedb/bits"
	"github.com/dot5enko/sparsedb/compression"
)

// payload layout, per column in ordinal order:
//
// *--------------------------------*
// | entry count (u32)              |
// *--------------------------------*
// | local rows    count x u32      |
// *--------------------------------*
// | values        count x f64      |
// *--------------------------------*
//
// the whole payload is then compressed with the instance codec

func payloadSize(d *Data) int {
	size := 0
	for _, entries := range d.Columns {
		size += 4 + len(entries.Rows)*4 + len(entries.Values)*8
	}
	return size
}

// EncodePayload serializes the block's CSR columns and compresses the
// result. Returns the compressed payload and the uncompressed size.
func EncodePayload(d *Data, codec compression.Type) ([]byte, int, error) {
	rawSize := payloadSize(d)

	bw := bits.NewEncodeBuffer(make([]byte, rawSize), binary.LittleEndian)

	for _, entries := range d.Columns {
		bw.PutUint32(uint32(len(entries.Rows)))
		bw.PutUint32Slice(entries.Rows)
		bw.PutFloat64Slice(entries.Values)
	}

	raw := bw.Bytes()

	var compressed bytes.Buffer
	compressed.Grow(len(raw))

	if compressErr := compression.Compress(codec, raw, &compressed); compressErr != nil {
		return nil, 0, fmt.Errorf("unable to compress block payload: %w", compressErr)
	}

	return compressed.Bytes(), rawSize, nil
}

// DecodePayload reverses EncodePayload for a block of cols columns.
func DecodePayload(payload []byte, codec compression.Type, uncompressedSize int, cols int) ([]ColumnEntries, error) {
	raw, decompressErr := compression.Decompress(codec, payload, uncompressedSize)
	if decompressErr != nil {
		return nil, fmt.Errorf("unable to decompress block payload: %w", decompressErr)
	}

	if len(raw) != uncompressedSize {
		return nil, fmt.Errorf("decompressed payload is %d bytes, header says %d", len(raw), uncompressedSize)
	}

	reader := bits.NewReader(bytes.NewReader(raw), binary.LittleEndian)

	out := make([]ColumnEntries, cols)

	for ci := 0; ci < cols; ci++ {
		count, countErr := reader.ReadU32()
		if countErr != nil {
			return nil, fmt.Errorf("unable to decode entry count of column %d: %w", ci, countErr)
		}

		rows, rowsErr := reader.ReadUint32Slice(int(count))
		if rowsErr != nil {
			return nil, fmt.Errorf("unable to decode local rows of column %d: %w", ci, rowsErr)
		}

		values, valuesErr := reader.ReadFloat64Slice(int(count))
		if valuesErr != nil {
			return nil, fmt.Errorf("unable to decode values of column %d: %w", ci, valuesErr)
		}

		out[ci] = ColumnEntries{Rows: rows, Values: values}
	}

	return out, nil
}
