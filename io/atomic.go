package io

import (
	"fmt"
	"io"
	"os"
)

// WriteAtomic writes a file via a temp sibling and rename, so readers
// never observe a half-written file and a failed write leaves the old
// content untouched.
func WriteAtomic(path string, write func(w io.Writer) error) error {
	tmpPath := path + ".tmp"

	fw, openErr := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if openErr != nil {
		return openErr
	}

	writeErr := write(fw)
	if writeErr != nil {
		fw.Close()
		os.Remove(tmpPath)
		return writeErr
	}

	if syncErr := fw.Sync(); syncErr != nil {
		fw.Close()
		os.Remove(tmpPath)
		return syncErr
	}

	if closeErr := fw.Close(); closeErr != nil {
		os.Remove(tmpPath)
		return closeErr
	}

	if renameErr := os.Rename(tmpPath, path); renameErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("unable to finalize %s: %w", path, renameErr)
	}

	return nil
}
