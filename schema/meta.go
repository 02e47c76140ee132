package schema

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const CurrentMetaVersion = 1

// Meta is the persisted instance descriptor, stored as meta.yaml in
// the instance directory. Columns and blocksize are fixed for the
// instance lifetime; rows and blocks advance with every append.
type Meta struct {
	Version int    `yaml:"version"`
	Name    string `yaml:"name"`
	Uid     string `yaml:"uid"`

	Columns   []string `yaml:"columns"`
	Blocksize uint32   `yaml:"blocksize"`

	Rows   uint64 `yaml:"rows"`
	Blocks uint64 `yaml:"blocks"`

	Compression uint8 `yaml:"compression"`
}

func NewMeta(name string, columns []string, compression uint8) *Meta {
	return &Meta{
		Version:     CurrentMetaVersion,
		Name:        name,
		Uid:         uuid.NewString(),
		Columns:     columns,
		Compression: compression,
	}
}

func (m *Meta) InstanceUid() (uuid.UUID, error) {
	uid, parseErr := uuid.Parse(m.Uid)
	if parseErr != nil {
		return uuid.Nil, fmt.Errorf("invalid instance uid '%s': %w", m.Uid, parseErr)
	}

	return uid, nil
}

func (m *Meta) WriteTo(w io.Writer) error {
	data, marshalErr := yaml.Marshal(m)
	if marshalErr != nil {
		return marshalErr
	}

	_, writeErr := w.Write(data)
	return writeErr
}

func LoadMeta(r io.Reader) (*Meta, error) {
	data, readErr := io.ReadAll(r)
	if readErr != nil {
		return nil, readErr
	}

	var m Meta
	if unmarshalErr := yaml.Unmarshal(data, &m); unmarshalErr != nil {
		return nil, fmt.Errorf("unable to decode meta: %w", unmarshalErr)
	}

	if m.Version != CurrentMetaVersion {
		return nil, fmt.Errorf("invalid meta version %d. Supported versions: %d", m.Version, CurrentMetaVersion)
	}

	return &m, nil
}
