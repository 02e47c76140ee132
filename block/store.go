package block

import (
	"encoding/binary"
	"errors"
	"fmt"
	gio "io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dot5enko/sparsedb/bits"
	"github.com/dot5enko/sparsedb/cache"
	"github.com/dot5enko/sparsedb/compression"
	sio "github.com/dot5enko/sparsedb/io"
	"github.com/dot5enko/sparsedb/schema"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const HeaderBufferPoolSize = 32

type BlockMeta struct {
	Id       uint64
	StartRow uint64
	Rows     uint32
}

type cachedBlock struct {
	columns []ColumnEntries

	rtStats *cache.CacheStats
}

// Store is the append-only block store. One <id>.blk file per block
// under dir, global row index maps to (block id, local offset) by
// plain division since every block but the last is full.
type Store struct {
	dir string

	instanceUid uuid.UUID
	codec       compression.Type
	ncols       int

	mu        sync.RWMutex
	blocksize uint32
	blocks    []BlockMeta
	rows      uint64

	// decoded payload cache
	cacheLocker sync.RWMutex
	blockCache  map[uint64]*cachedBlock
	loadGroup   singleflight.Group

	headerBuffers *cache.FixedSizeBufferPool
}

func NewStore(dir string, instanceUid uuid.UUID, ncols int, codec compression.Type) *Store {
	return &Store{
		dir: dir,

		instanceUid: instanceUid,
		codec:       codec,
		ncols:       ncols,

		blockCache:    map[uint64]*cachedBlock{},
		headerBuffers: cache.NewFixedSizeBufferPool(HeaderBufferPoolSize, int(TotalHeaderSize)),
	}
}

// Pin fixes the blocksize. Set once, before the first append.
func (s *Store) Pin(blocksize uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if blocksize == 0 {
		return errors.New("blocksize must be positive")
	}

	if s.blocksize != 0 && s.blocksize != blocksize {
		return fmt.Errorf("blocksize already pinned to %d", s.blocksize)
	}

	s.blocksize = blocksize

	return nil
}

func (s *Store) Blocksize() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.blocksize
}

func (s *Store) RowCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rows
}

func (s *Store) BlockCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.blocks))
}

func (s *Store) blockFilePath(id uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%06d.blk", id))
}

// AppendBlock persists data as the next sequential block and returns
// the per-column nonzero local rows for the sparsity index. The file
// lands via temp+rename, so a failed append leaves no partial state.
func (s *Store) AppendBlock(d *Data) ([][]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blocksize == 0 {
		return nil, errors.New("blocksize not pinned")
	}

	if validErr := d.Validate(s.ncols); validErr != nil {
		return nil, validErr
	}

	if d.Rows > s.blocksize {
		return nil, fmt.Errorf("%w: %d rows, blocksize is %d", ErrBlockSizeExceeded, d.Rows, s.blocksize)
	}

	if d.StartRow != s.rows {
		return nil, fmt.Errorf("block starts at row %d, store holds %d rows", d.StartRow, s.rows)
	}

	if s.rows%uint64(s.blocksize) != 0 {
		return nil, errors.New("cannot append after a partial block")
	}

	blockId := s.rows / uint64(s.blocksize)

	payload, rawSize, encodeErr := EncodePayload(d, s.codec)
	if encodeErr != nil {
		return nil, encodeErr
	}

	header := DiskHeader{
		Version:     CurrentBlockVersion,
		InstanceUid: s.instanceUid,

		BlockId:  blockId,
		StartRow: d.StartRow,
		Rows:     d.Rows,
		Cols:     uint16(s.ncols),

		CompressionType:  uint8(s.codec),
		UncompressedSize: uint64(rawSize),
		CompressedSize:   uint64(len(payload)),
	}

	headerBuf := make([]byte, TotalHeaderSize)
	bw := bits.NewEncodeBuffer(headerBuf, binary.LittleEndian)
	if _, headerErr := header.WriteTo(&bw); headerErr != nil {
		return nil, headerErr
	}

	path := s.blockFilePath(blockId)

	writeErr := sio.WriteAtomic(path, func(w gio.Writer) error {
		if _, err := w.Write(bw.Bytes()); err != nil {
			return err
		}
		_, err := w.Write(payload)
		return err
	})

	if writeErr != nil {
		return nil, fmt.Errorf("unable to write block %d: %w", blockId, writeErr)
	}

	s.blocks = append(s.blocks, BlockMeta{
		Id:       blockId,
		StartRow: d.StartRow,
		Rows:     d.Rows,
	})
	s.rows += uint64(d.Rows)

	log.Printf(" block %d written @ %s (%d rows, %d -> %d bytes)", blockId, path, d.Rows, rawSize, len(payload))

	return d.NonzeroRows(), nil
}

// Locate maps a global row index to its owning block and local offset.
func (s *Store) Locate(row uint64) (uint64, uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if row >= s.rows {
		return 0, 0, fmt.Errorf("%w: %d, row count is %d", ErrRowOutOfRange, row, s.rows)
	}

	blockId := row / uint64(s.blocksize)
	local := uint32(row % uint64(s.blocksize))

	return blockId, local, nil
}

// ReadColumns returns the block's entries restricted to the requested
// column ordinals. The returned slices are shared with the block cache
// and must be treated as read only.
func (s *Store) ReadColumns(blockId uint64, ordinals []int) ([]ColumnEntries, error) {
	s.mu.RLock()
	known := blockId < uint64(len(s.blocks))
	s.mu.RUnlock()

	if !known {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBlock, blockId)
	}

	for _, ordinal := range ordinals {
		if ordinal < 0 || ordinal >= s.ncols {
			return nil, fmt.Errorf("%w: ordinal %d", schema.ErrUnknownColumn, ordinal)
		}
	}

	cached, loadErr := s.loadBlock(blockId)
	if loadErr != nil {
		return nil, loadErr
	}

	out := make([]ColumnEntries, len(ordinals))
	for i, ordinal := range ordinals {
		out[i] = cached.columns[ordinal]
	}

	return out, nil
}

func (s *Store) getBlockFromCache(blockId uint64) *cachedBlock {
	s.cacheLocker.RLock()
	defer s.cacheLocker.RUnlock()

	if item, ok := s.blockCache[blockId]; ok {
		item.rtStats.Reads++
		return item
	}

	return nil
}

// loadBlock reads and decodes a block file, deduplicating concurrent
// loads of the same block.
func (s *Store) loadBlock(blockId uint64) (*cachedBlock, error) {
	if cached := s.getBlockFromCache(blockId); cached != nil {
		return cached, nil
	}

	loaded, loadErr, _ := s.loadGroup.Do(strconv.FormatUint(blockId, 10), func() (any, error) {
		if cached := s.getBlockFromCache(blockId); cached != nil {
			return cached, nil
		}

		header, payload, readErr := s.readBlockFile(blockId)
		if readErr != nil {
			return nil, readErr
		}

		columns, decodeErr := DecodePayload(
			payload,
			compression.Type(header.CompressionType),
			int(header.UncompressedSize),
			int(header.Cols),
		)
		if decodeErr != nil {
			return nil, fmt.Errorf("unable to decode block %d: %w", blockId, decodeErr)
		}

		item := &cachedBlock{
			columns: columns,
			rtStats: &cache.CacheStats{Created: time.Now(), Reads: 1},
		}

		s.cacheLocker.Lock()
		s.blockCache[blockId] = item
		s.cacheLocker.Unlock()

		return item, nil
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return loaded.(*cachedBlock), nil
}

func (s *Store) readBlockFile(blockId uint64) (DiskHeader, []byte, error) {
	var header DiskHeader

	fr := sio.NewFileReader(s.blockFilePath(blockId))
	if openErr := fr.Open(true); openErr != nil {
		return header, nil, fmt.Errorf("unable to open block %d: %w", blockId, openErr)
	}
	defer fr.Close()

	headerBuf, bufId := s.headerBuffers.Get()
	defer s.headerBuffers.Return(bufId)

	if readErr := fr.ReadAt(headerBuf, 0, int(TotalHeaderSize)); readErr != nil {
		return header, nil, fmt.Errorf("unable to read header of block %d: %w", blockId, readErr)
	}

	if decodeErr := header.FromBytes(headerBuf); decodeErr != nil {
		return header, nil, fmt.Errorf("block %d: %w", blockId, decodeErr)
	}

	if err := s.checkHeader(blockId, &header); err != nil {
		return header, nil, err
	}

	payload := make([]byte, header.CompressedSize)
	if readErr := fr.ReadAt(payload, int(TotalHeaderSize), int(header.CompressedSize)); readErr != nil {
		return header, nil, fmt.Errorf("unable to read payload of block %d: %w", blockId, readErr)
	}

	return header, payload, nil
}

func (s *Store) checkHeader(blockId uint64, header *DiskHeader) error {
	if header.InstanceUid != s.instanceUid {
		return fmt.Errorf("block %d belongs to instance %s, expected %s", blockId, header.InstanceUid, s.instanceUid)
	}

	if header.BlockId != blockId {
		return fmt.Errorf("block file %d carries id %d", blockId, header.BlockId)
	}

	if int(header.Cols) != s.ncols {
		return fmt.Errorf("block %d carries %d columns, instance has %d", blockId, header.Cols, s.ncols)
	}

	if !compression.Type(header.CompressionType).Valid() {
		return fmt.Errorf("block %d: %w: %d", blockId, compression.ErrUnknownCodec, header.CompressionType)
	}

	return nil
}

// LoadFromDisk rebuilds the block catalog by scanning headers only,
// never payloads. Every inconsistency between the scan and the
// persisted meta surfaces as an error the caller treats as a corrupt
// index.
func (s *Store) LoadFromDisk(blocksize uint32, expectBlocks, expectRows uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.blocks) != 0 {
		return errors.New("store already loaded")
	}

	if expectBlocks > 0 && blocksize == 0 {
		return errors.New("meta holds blocks but no blocksize")
	}

	blocks := make([]BlockMeta, 0, expectBlocks)
	rows := uint64(0)

	for id := uint64(0); id < expectBlocks; id++ {
		header, headerErr := s.readHeaderOnly(id)
		if headerErr != nil {
			return headerErr
		}

		if header.StartRow != rows {
			return fmt.Errorf("block %d starts at row %d, expected %d", id, header.StartRow, rows)
		}

		if header.Rows == 0 || header.Rows > blocksize {
			return fmt.Errorf("block %d holds %d rows, blocksize is %d", id, header.Rows, blocksize)
		}

		if id != expectBlocks-1 && header.Rows != blocksize {
			return fmt.Errorf("non-final block %d holds %d rows, blocksize is %d", id, header.Rows, blocksize)
		}

		blocks = append(blocks, BlockMeta{
			Id:       id,
			StartRow: header.StartRow,
			Rows:     header.Rows,
		})
		rows += uint64(header.Rows)
	}

	if rows != expectRows {
		return fmt.Errorf("block files hold %d rows, meta says %d", rows, expectRows)
	}

	// a block file past the recorded count means appends that the
	// persisted index never saw
	if _, statErr := os.Stat(s.blockFilePath(expectBlocks)); statErr == nil {
		return fmt.Errorf("found block file %d past the recorded %d blocks", expectBlocks, expectBlocks)
	}

	s.blocksize = blocksize
	s.blocks = blocks
	s.rows = rows

	return nil
}

func (s *Store) readHeaderOnly(blockId uint64) (DiskHeader, error) {
	var header DiskHeader

	fr := sio.NewFileReader(s.blockFilePath(blockId))
	if openErr := fr.Open(true); openErr != nil {
		return header, fmt.Errorf("missing block file %d: %w", blockId, openErr)
	}
	defer fr.Close()

	headerBuf, bufId := s.headerBuffers.Get()
	defer s.headerBuffers.Return(bufId)

	if readErr := fr.ReadAt(headerBuf, 0, int(TotalHeaderSize)); readErr != nil {
		return header, fmt.Errorf("unable to read header of block %d: %w", blockId, readErr)
	}

	if decodeErr := header.FromBytes(headerBuf); decodeErr != nil {
		return header, fmt.Errorf("block %d: %w", blockId, decodeErr)
	}

	if checkErr := s.checkHeader(blockId, &header); checkErr != nil {
		return header, checkErr
	}

	return header, nil
}
