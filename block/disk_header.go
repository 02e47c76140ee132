package block

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dot5enko/sparsedb/bits"
	"github.com/google/uuid"
)

const CurrentBlockVersion = 1

const TotalHeaderSize uint64 = 128

// version + uuid + block id + start row + rows + cols + codec + uncompressed size + compressed size
const headerSizeUsed uint64 = 2 + 16 + 8 + 8 + 4 + 2 + 1 + 8 + 8
const ReservedSize uint64 = TotalHeaderSize - headerSizeUsed

// DiskHeader is the fixed 128-byte record at the start of every block
// file. The payload follows it immediately.
type DiskHeader struct {
	Version uint16

	// ties the block file to its owning instance
	InstanceUid uuid.UUID

	BlockId  uint64
	StartRow uint64
	Rows     uint32
	Cols     uint16

	CompressionType  uint8
	UncompressedSize uint64
	CompressedSize   uint64

	// reserved for future use
	Reserved [ReservedSize]uint8
}

// FromBytes decodes a header from exactly TotalHeaderSize bytes. The
// Must reads cannot fail on a full-size input buffer.
func (header *DiskHeader) FromBytes(input []byte) (topErr error) {
	if uint64(len(input)) < TotalHeaderSize {
		return fmt.Errorf("block header needs %d bytes, got %d", TotalHeaderSize, len(input))
	}

	reader := bits.NewReader(bytes.NewReader(input), binary.LittleEndian)

	header.Version = reader.MustReadU16()

	if header.Version != CurrentBlockVersion {
		return fmt.Errorf("invalid block version %d. Supported versions: %d", header.Version, CurrentBlockVersion)
	}

	header.InstanceUid, topErr = reader.ReadUUID()
	if topErr != nil {
		return fmt.Errorf("unable to decode block header uid: %w", topErr)
	}

	header.BlockId = reader.MustReadU64()
	header.StartRow = reader.MustReadU64()
	header.Rows = reader.MustReadU32()
	header.Cols = reader.MustReadU16()

	header.CompressionType = reader.MustReadU8()
	header.UncompressedSize = reader.MustReadU64()
	header.CompressedSize = reader.MustReadU64()

	return nil
}

func (header *DiskHeader) WriteTo(bw *bits.BitWriter) (int, error) {
	bw.PutUint16(header.Version)

	n, _ := bw.Write(header.InstanceUid[:])
	if n != 16 {
		return 0, fmt.Errorf("failed to write InstanceUid")
	}

	bw.PutUint64(header.BlockId)
	bw.PutUint64(header.StartRow)
	bw.PutUint32(header.Rows)
	bw.PutUint16(header.Cols)

	bw.WriteByte(header.CompressionType)
	bw.PutUint64(header.UncompressedSize)
	bw.PutUint64(header.CompressedSize)

	bw.EmptyBytes(int(ReservedSize))

	return bw.Position(), nil
}
