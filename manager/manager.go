package manager

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/dot5enko/sparsedb/block"
	"github.com/dot5enko/sparsedb/compression"
	"github.com/dot5enko/sparsedb/schema"
	"github.com/dot5enko/sparsedb/sparsity"
)

var (
	ErrAlreadyExists     = errors.New("database already exists")
	ErrNotFound          = errors.New("database does not exist")
	ErrCorruptIndex      = errors.New("corrupt index")
	ErrNotAttached       = errors.New("database not attached")
	ErrBlocksizeMismatch = errors.New("blocksize differs from the instance blocksize")
)

type ManagerConfig struct {
	PathToStorage string
	Name          string

	// codec for block payloads, lz4 when left zero
	Compression compression.Type
}

// Manager is the explicit handle to one database instance. Every
// operation goes through it, there is no ambient global state.
type Manager struct {
	config ManagerConfig

	mu sync.RWMutex

	meta  *schema.Meta
	cols  *schema.ColumnSet
	index *sparsity.Index
	store *block.Store

	attached bool
}

func New(config ManagerConfig) *Manager {
	return &Manager{
		config: config,
	}
}

func (m *Manager) instanceDir() string {
	return filepath.Join(m.config.PathToStorage, m.config.Name)
}

func (m *Manager) metaFilePath() string {
	return filepath.Join(m.instanceDir(), "meta.yaml")
}

func (m *Manager) colsDir() string {
	return filepath.Join(m.instanceDir(), "cols")
}

func (m *Manager) blocksDir() string {
	return filepath.Join(m.instanceDir(), "blocks")
}

// Rows reports the current total row count.
func (m *Manager) Rows() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.attached {
		return 0, ErrNotAttached
	}

	return m.index.RowCount(), nil
}

// Columns reports the ordered column list.
func (m *Manager) Columns() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.attached {
		return nil, ErrNotAttached
	}

	return m.cols.Names(), nil
}
