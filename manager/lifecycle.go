package manager

import (
	"fmt"
	gio "io"
	"log"
	"log/slog"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/dot5enko/sparsedb/block"
	"github.com/dot5enko/sparsedb/compression"
	sio "github.com/dot5enko/sparsedb/io"
	"github.com/dot5enko/sparsedb/schema"
	"github.com/dot5enko/sparsedb/sparsity"
	"github.com/fatih/color"
)

// Exists reports whether instance storage is already present at the
// configured location.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.metaFilePath())
	return err == nil
}

// Create initializes a fresh instance with the given ordered column
// list and leaves the manager attached to it.
func (m *Manager) Create(columns []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cols, colsErr := schema.NewColumnSet(columns)
	if colsErr != nil {
		return colsErr
	}

	if m.Exists() {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, m.instanceDir())
	}

	for _, dir := range []string{m.instanceDir(), m.colsDir(), m.blocksDir()} {
		if mkdirErr := os.MkdirAll(dir, 0755); mkdirErr != nil {
			return fmt.Errorf("unable to create instance folder: %w", mkdirErr)
		}
	}

	codec := m.config.Compression
	if !codec.Valid() {
		codec = compression.Lz4
	}

	meta := schema.NewMeta(m.config.Name, cols.Names(), uint8(codec))

	index := sparsity.NewIndex()
	if registerErr := index.RegisterColumns(cols.Names()); registerErr != nil {
		return registerErr
	}

	// empty maps on disk right away, so attach always finds one map
	// file per column
	if dumpErr := index.Dump(m.colsDir()); dumpErr != nil {
		return dumpErr
	}

	if writeErr := m.writeMeta(meta); writeErr != nil {
		return writeErr
	}

	uid, uidErr := meta.InstanceUid()
	if uidErr != nil {
		return uidErr
	}

	m.meta = meta
	m.cols = cols
	m.index = index
	m.store = block.NewStore(m.blocksDir(), uid, cols.Len(), codec)
	m.attached = true

	log.Printf(" created instance '%s' with %d columns @ %s", m.config.Name, cols.Len(), color.GreenString(m.instanceDir()))

	return nil
}

// Attach opens a previously created instance, restoring the sparsity
// index and the block catalog from persisted state. Any disagreement
// between meta, column maps and block files fails with ErrCorruptIndex.
func (m *Manager) Attach() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attached {
		return fmt.Errorf("instance '%s' already attached", m.config.Name)
	}

	if !m.Exists() {
		return fmt.Errorf("%w: %s", ErrNotFound, m.instanceDir())
	}

	fp, openErr := os.Open(m.metaFilePath())
	if openErr != nil {
		return openErr
	}

	meta, metaErr := schema.LoadMeta(fp)
	fp.Close()

	if metaErr != nil {
		return fmt.Errorf("%w: %v", ErrCorruptIndex, metaErr)
	}

	slog.Debug("meta loaded", "dump", spew.Sdump(meta))

	cols, colsErr := schema.NewColumnSet(meta.Columns)
	if colsErr != nil {
		return fmt.Errorf("%w: %v", ErrCorruptIndex, colsErr)
	}

	uid, uidErr := meta.InstanceUid()
	if uidErr != nil {
		return fmt.Errorf("%w: %v", ErrCorruptIndex, uidErr)
	}

	codec := compression.Type(meta.Compression)
	if !codec.Valid() {
		return fmt.Errorf("%w: %v", ErrCorruptIndex, fmt.Errorf("%w: %d", compression.ErrUnknownCodec, meta.Compression))
	}

	index := sparsity.NewIndex()
	if loadErr := index.Load(m.colsDir(), meta.Columns, meta.Rows); loadErr != nil {
		return fmt.Errorf("%w: %v", ErrCorruptIndex, loadErr)
	}

	store := block.NewStore(m.blocksDir(), uid, cols.Len(), codec)
	if loadErr := store.LoadFromDisk(meta.Blocksize, meta.Blocks, meta.Rows); loadErr != nil {
		return fmt.Errorf("%w: %v", ErrCorruptIndex, loadErr)
	}

	m.meta = meta
	m.cols = cols
	m.index = index
	m.store = store
	m.attached = true

	log.Printf(" attached instance '%s': %d rows in %d blocks", m.config.Name, meta.Rows, meta.Blocks)

	return nil
}

// Close persists the instance metadata and the column maps and
// releases the in-memory state. Attaching again restores an instance
// observably identical to the one just closed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.attached {
		return nil
	}

	if dumpErr := m.index.Dump(m.colsDir()); dumpErr != nil {
		return dumpErr
	}

	if writeErr := m.writeMeta(m.meta); writeErr != nil {
		return writeErr
	}

	m.meta = nil
	m.cols = nil
	m.index = nil
	m.store = nil
	m.attached = false

	return nil
}

func (m *Manager) writeMeta(meta *schema.Meta) error {
	return sio.WriteAtomic(m.metaFilePath(), func(w gio.Writer) error {
		return meta.WriteTo(w)
	})
}
