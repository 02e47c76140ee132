package block

import (
	"encoding/binary"
	"testing"

	"github.com/dot5enko/sparsedb/bits"
	"github.com/dot5enko/sparsedb/compression"
	"github.com/google/uuid"
)

func sampleData() *Data {
	return &Data{
		StartRow: 0,
		Rows:     8,
		Columns: []ColumnEntries{
			{Rows: []uint32{0, 2, 4, 6}, Values: []float64{1, 2, 3, 4}},
			{Rows: []uint32{1, 3, 5, 7}, Values: []float64{-1.5, 2.25, 1e9, 0.001}},
			{}, // a column may have no entries at all
		},
	}
}

func TestValidateCatchesBadBlocks(t *testing.T) {
	cases := []struct {
		name string
		d    Data
	}{
		{"empty block", Data{Rows: 0, Columns: []ColumnEntries{{}}}},
		{"wrong column count", Data{Rows: 4, Columns: []ColumnEntries{{}}}},
		{"lockstep violation", Data{Rows: 4, Columns: []ColumnEntries{
			{Rows: []uint32{0, 1}, Values: []float64{1}}, {}, {},
		}}},
		{"local row out of range", Data{Rows: 4, Columns: []ColumnEntries{
			{Rows: []uint32{4}, Values: []float64{1}}, {}, {},
		}}},
		{"not ascending", Data{Rows: 4, Columns: []ColumnEntries{
			{Rows: []uint32{2, 1}, Values: []float64{1, 2}}, {}, {},
		}}},
		{"explicit zero", Data{Rows: 4, Columns: []ColumnEntries{
			{Rows: []uint32{1}, Values: []float64{0}}, {}, {},
		}}},
	}

	for _, tc := range cases {
		if validErr := tc.d.Validate(3); validErr == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}

	if validErr := sampleData().Validate(3); validErr != nil {
		t.Errorf("valid block rejected: %v", validErr)
	}
}

func TestValueAt(t *testing.T) {
	entries := ColumnEntries{Rows: []uint32{1, 5, 9}, Values: []float64{10, 50, 90}}

	if v, ok := entries.ValueAt(5); !ok || v != 50 {
		t.Errorf("expected (50, true) but got (%v, %v)", v, ok)
	}

	if _, ok := entries.ValueAt(4); ok {
		t.Errorf("row 4 holds no entry")
	}
}

func TestPayloadCycle(t *testing.T) {
	for _, codec := range []compression.Type{compression.None, compression.Lz4, compression.Zstd} {
		d := sampleData()

		payload, rawSize, encodeErr := EncodePayload(d, codec)
		if encodeErr != nil {
			t.Fatalf("codec %s: encode failed: %v", codec, encodeErr)
		}

		columns, decodeErr := DecodePayload(payload, codec, rawSize, len(d.Columns))
		if decodeErr != nil {
			t.Fatalf("codec %s: decode failed: %v", codec, decodeErr)
		}

		for ci, want := range d.Columns {
			got := columns[ci]

			if got.Len() != want.Len() {
				t.Fatalf("codec %s: column %d: expected %d entries but got %d", codec, ci, want.Len(), got.Len())
			}

			for i := range want.Rows {
				if got.Rows[i] != want.Rows[i] || got.Values[i] != want.Values[i] {
					t.Errorf("codec %s: column %d entry %d differs", codec, ci, i)
				}
			}
		}
	}
}

func TestDiskHeaderCycle(t *testing.T) {
	header := DiskHeader{
		Version:     CurrentBlockVersion,
		InstanceUid: uuid.New(),

		BlockId:  7,
		StartRow: 7 * 1024,
		Rows:     1024,
		Cols:     5,

		CompressionType:  uint8(compression.Lz4),
		UncompressedSize: 4096,
		CompressedSize:   1234,
	}

	bw := bits.NewEncodeBuffer(make([]byte, TotalHeaderSize), binary.LittleEndian)

	written, writeErr := header.WriteTo(&bw)
	if writeErr != nil {
		t.Fatalf("write failed: %v", writeErr)
	}

	if uint64(written) != TotalHeaderSize {
		t.Fatalf("header occupies %d bytes, expected %d", written, TotalHeaderSize)
	}

	var restored DiskHeader
	if decodeErr := restored.FromBytes(bw.Bytes()); decodeErr != nil {
		t.Fatalf("decode failed: %v", decodeErr)
	}

	if restored.InstanceUid != header.InstanceUid ||
		restored.BlockId != header.BlockId ||
		restored.StartRow != header.StartRow ||
		restored.Rows != header.Rows ||
		restored.Cols != header.Cols ||
		restored.CompressionType != header.CompressionType ||
		restored.UncompressedSize != header.UncompressedSize ||
		restored.CompressedSize != header.CompressedSize {
		t.Errorf("restored header differs:\n%+v\n%+v", restored, header)
	}
}

func TestDiskHeaderRejectsBadInput(t *testing.T) {
	var header DiskHeader

	if decodeErr := header.FromBytes(make([]byte, 10)); decodeErr == nil {
		t.Errorf("expected rejection of a short buffer")
	}

	buf := make([]byte, TotalHeaderSize)
	buf[0] = 99 // unsupported version
	if decodeErr := header.FromBytes(buf); decodeErr == nil {
		t.Errorf("expected rejection of an unsupported version")
	}
}

func testStore(t *testing.T, blocksize uint32) *Store {
	t.Helper()

	s := NewStore(t.TempDir(), uuid.New(), 2, compression.Lz4)
	if pinErr := s.Pin(blocksize); pinErr != nil {
		t.Fatalf("pin failed: %v", pinErr)
	}

	return s
}

func TestStoreAppendAndRead(t *testing.T) {
	s := testStore(t, 4)

	nonzero, appendErr := s.AppendBlock(&Data{
		StartRow: 0,
		Rows:     4,
		Columns: []ColumnEntries{
			{Rows: []uint32{0, 3}, Values: []float64{1.5, 3.5}},
			{Rows: []uint32{2}, Values: []float64{7}},
		},
	})
	if appendErr != nil {
		t.Fatalf("append failed: %v", appendErr)
	}

	if len(nonzero) != 2 || len(nonzero[0]) != 2 || len(nonzero[1]) != 1 {
		t.Fatalf("unexpected nonzero report: %v", nonzero)
	}

	if s.RowCount() != 4 || s.BlockCount() != 1 {
		t.Fatalf("expected 4 rows in 1 block, got %d rows in %d blocks", s.RowCount(), s.BlockCount())
	}

	columns, readErr := s.ReadColumns(0, []int{0, 1})
	if readErr != nil {
		t.Fatalf("read failed: %v", readErr)
	}

	if v, ok := columns[0].ValueAt(3); !ok || v != 3.5 {
		t.Errorf("expected (3.5, true) but got (%v, %v)", v, ok)
	}

	if v, ok := columns[1].ValueAt(2); !ok || v != 7 {
		t.Errorf("expected (7, true) but got (%v, %v)", v, ok)
	}

	if _, ok := columns[1].ValueAt(0); ok {
		t.Errorf("row 0 holds no entry in column 1")
	}

	// column subset, reordered
	subset, readErr := s.ReadColumns(0, []int{1})
	if readErr != nil {
		t.Fatalf("subset read failed: %v", readErr)
	}

	if subset[0].Len() != 1 {
		t.Errorf("subset read returned the wrong column")
	}
}

func TestStoreRejectsOutOfOrderAppend(t *testing.T) {
	s := testStore(t, 4)

	if _, appendErr := s.AppendBlock(&Data{
		StartRow: 4,
		Rows:     4,
		Columns:  []ColumnEntries{{}, {}},
	}); appendErr == nil {
		t.Errorf("expected rejection of a block with a row gap")
	}

	// partial block closes the store for appends
	if _, appendErr := s.AppendBlock(&Data{
		StartRow: 0,
		Rows:     2,
		Columns:  []ColumnEntries{{}, {}},
	}); appendErr != nil {
		t.Fatalf("append failed: %v", appendErr)
	}

	if _, appendErr := s.AppendBlock(&Data{
		StartRow: 2,
		Rows:     2,
		Columns:  []ColumnEntries{{}, {}},
	}); appendErr == nil {
		t.Errorf("expected rejection of an append after a partial block")
	}
}

func TestStoreRejectsOversizedBlock(t *testing.T) {
	s := testStore(t, 4)

	if _, appendErr := s.AppendBlock(&Data{
		StartRow: 0,
		Rows:     5,
		Columns:  []ColumnEntries{{}, {}},
	}); appendErr == nil {
		t.Errorf("expected rejection of a block larger than the blocksize")
	}
}

func TestStoreLocate(t *testing.T) {
	s := testStore(t, 4)

	for _, d := range []*Data{
		{StartRow: 0, Rows: 4, Columns: []ColumnEntries{{}, {}}},
		{StartRow: 4, Rows: 2, Columns: []ColumnEntries{{}, {}}},
	} {
		if _, appendErr := s.AppendBlock(d); appendErr != nil {
			t.Fatalf("append failed: %v", appendErr)
		}
	}

	cases := []struct {
		row     uint64
		blockId uint64
		local   uint32
	}{
		{0, 0, 0},
		{3, 0, 3},
		{4, 1, 0},
		{5, 1, 1},
	}

	for _, tc := range cases {
		blockId, local, locateErr := s.Locate(tc.row)
		if locateErr != nil {
			t.Fatalf("locate(%d) failed: %v", tc.row, locateErr)
		}
		if blockId != tc.blockId || local != tc.local {
			t.Errorf("locate(%d) = (%d, %d), expected (%d, %d)", tc.row, blockId, local, tc.blockId, tc.local)
		}
	}

	if _, _, locateErr := s.Locate(6); locateErr == nil {
		t.Errorf("expected rejection of a row past the row count")
	}
}

func TestStoreUnknownBlock(t *testing.T) {
	s := testStore(t, 4)

	if _, readErr := s.ReadColumns(0, []int{0}); readErr == nil {
		t.Errorf("expected an error for a block that was never written")
	}
}

func TestStoreLoadFromDisk(t *testing.T) {
	dir := t.TempDir()
	uid := uuid.New()

	s := NewStore(dir, uid, 1, compression.Lz4)
	if pinErr := s.Pin(4); pinErr != nil {
		t.Fatalf("pin failed: %v", pinErr)
	}

	for _, d := range []*Data{
		{StartRow: 0, Rows: 4, Columns: []ColumnEntries{{Rows: []uint32{1}, Values: []float64{2}}}},
		{StartRow: 4, Rows: 3, Columns: []ColumnEntries{{Rows: []uint32{0}, Values: []float64{5}}}},
	} {
		if _, appendErr := s.AppendBlock(d); appendErr != nil {
			t.Fatalf("append failed: %v", appendErr)
		}
	}

	reopened := NewStore(dir, uid, 1, compression.Lz4)
	if loadErr := reopened.LoadFromDisk(4, 2, 7); loadErr != nil {
		t.Fatalf("load failed: %v", loadErr)
	}

	if reopened.RowCount() != 7 || reopened.BlockCount() != 2 {
		t.Fatalf("expected 7 rows in 2 blocks, got %d rows in %d blocks", reopened.RowCount(), reopened.BlockCount())
	}

	columns, readErr := reopened.ReadColumns(1, []int{0})
	if readErr != nil {
		t.Fatalf("read after reload failed: %v", readErr)
	}
	if v, ok := columns[0].ValueAt(0); !ok || v != 5 {
		t.Errorf("expected (5, true) but got (%v, %v)", v, ok)
	}

	// row count disagreement with meta
	broken := NewStore(dir, uid, 1, compression.Lz4)
	if loadErr := broken.LoadFromDisk(4, 2, 8); loadErr == nil {
		t.Errorf("expected rejection of a row count mismatch")
	}

	// stray block file past the recorded count
	stray := NewStore(dir, uid, 1, compression.Lz4)
	if loadErr := stray.LoadFromDisk(4, 1, 4); loadErr == nil {
		t.Errorf("expected rejection of a block file past the recorded count")
	}

	// foreign instance uid
	foreign := NewStore(dir, uuid.New(), 1, compression.Lz4)
	if loadErr := foreign.LoadFromDisk(4, 2, 7); loadErr == nil {
		t.Errorf("expected rejection of blocks from another instance")
	}
}
