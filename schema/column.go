package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownColumn     = errors.New("unknown column")
	ErrDuplicateColumn   = errors.New("repeated column name")
	ErrInvalidColumnName = errors.New("invalid column name")
)

// query operators plus path separators, none of which can appear in a
// column name: names are query tokens and map file names
const reservedNameChars = "&|^-! \t\n\r/\\"

func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidColumnName)
	}

	if strings.ContainsAny(name, reservedNameChars) {
		return fmt.Errorf("%w: '%s' contains a reserved character", ErrInvalidColumnName, name)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("%w: '%s'", ErrInvalidColumnName, name)
	}

	return nil
}

// ColumnSet is the ordered column list of an instance, with ordinal
// lookup by name. Immutable after creation.
type ColumnSet struct {
	names []string
	index map[string]int
}

func NewColumnSet(names []string) (*ColumnSet, error) {
	cs := &ColumnSet{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}

	for i, name := range names {
		if validErr := ValidateName(name); validErr != nil {
			return nil, validErr
		}

		if _, dup := cs.index[name]; dup {
			return nil, fmt.Errorf("%w: '%s'", ErrDuplicateColumn, name)
		}

		cs.names[i] = name
		cs.index[name] = i
	}

	return cs, nil
}

func (cs *ColumnSet) Len() int {
	return len(cs.names)
}

// Names returns a copy of the ordered column list.
func (cs *ColumnSet) Names() []string {
	out := make([]string, len(cs.names))
	copy(out, cs.names)
	return out
}

func (cs *ColumnSet) Name(ordinal int) string {
	return cs.names[ordinal]
}

func (cs *ColumnSet) Ordinal(name string) (int, error) {
	idx, ok := cs.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: '%s'", ErrUnknownColumn, name)
	}

	return idx, nil
}

func (cs *ColumnSet) Has(name string) bool {
	_, ok := cs.index[name]
	return ok
}
