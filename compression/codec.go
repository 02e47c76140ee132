package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type Type uint8

// Lz4 is the zero value on purpose: an unconfigured instance
// compresses with lz4.
const (
	Lz4 Type = iota
	None
	Zstd
)

var (
	ErrUnknownCodec = errors.New("unknown compression codec")
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Lz4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return ""
	}
}

func (t Type) Valid() bool {
	return t <= Zstd
}

var zstdEncoder, _ = zstd.NewWriter(nil)
var zstdDecoder, _ = zstd.NewReader(nil)

func CompressLz4(src []byte, output *bytes.Buffer) error {
	zw := lz4.NewWriter(output)

	_, writeErr := zw.Write(src)
	if writeErr != nil {
		return writeErr
	}

	flushErr := zw.Flush()
	if flushErr != nil {
		return flushErr
	}

	return zw.Close()
}

func DecompressLz4(src []byte, expectedSize int) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(src))

	out := make([]byte, 0, expectedSize)
	buf := bytes.NewBuffer(out)

	_, copyErr := io.Copy(buf, zr)
	if copyErr != nil {
		return nil, copyErr
	}

	return buf.Bytes(), nil
}

// Compress encodes src with the given codec into output.
func Compress(t Type, src []byte, output *bytes.Buffer) error {
	switch t {
	case None:
		_, err := output.Write(src)
		return err
	case Lz4:
		return CompressLz4(src, output)
	case Zstd:
		output.Write(zstdEncoder.EncodeAll(src, nil))
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownCodec, t)
	}
}

// Decompress decodes src produced by Compress with the same codec.
// expectedSize is the uncompressed payload size from the block header,
// used to presize buffers.
func Decompress(t Type, src []byte, expectedSize int) ([]byte, error) {
	switch t {
	case None:
		out := make([]byte, len(src))
		copy(out, src)
		return out, nil
	case Lz4:
		return DecompressLz4(src, expectedSize)
	case Zstd:
		return zstdDecoder.DecodeAll(src, make([]byte, 0, expectedSize))
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, t)
	}
}
