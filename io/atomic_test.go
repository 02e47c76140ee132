package io

import (
	"errors"
	gio "io"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")

	writeErr := WriteAtomic(path, func(w gio.Writer) error {
		_, err := w.Write([]byte("payload"))
		return err
	})
	if writeErr != nil {
		t.Fatalf("write failed: %v", writeErr)
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("read back failed: %v", readErr)
	}
	if string(data) != "payload" {
		t.Errorf("expected 'payload' but got '%s'", data)
	}

	// no temp sibling left behind
	if _, statErr := os.Stat(path + ".tmp"); statErr == nil {
		t.Errorf("temp file survived the rename")
	}
}

func TestWriteAtomicKeepsOldContentOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")

	if writeErr := WriteAtomic(path, func(w gio.Writer) error {
		_, err := w.Write([]byte("original"))
		return err
	}); writeErr != nil {
		t.Fatalf("write failed: %v", writeErr)
	}

	boom := errors.New("boom")
	writeErr := WriteAtomic(path, func(w gio.Writer) error {
		w.Write([]byte("partial"))
		return boom
	})
	if !errors.Is(writeErr, boom) {
		t.Fatalf("expected the callback error but got %v", writeErr)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "original" {
		t.Errorf("failed write clobbered the old content: '%s'", data)
	}

	if _, statErr := os.Stat(path + ".tmp"); statErr == nil {
		t.Errorf("temp file survived the failed write")
	}
}
