package io

import (
	"errors"
	"os"
)

type FileReader struct {
	path   string
	file   *os.File
	opened bool

	exists bool
}

func NewFileReader(path string) *FileReader {
	_, err := os.Stat(path)

	freader := &FileReader{
		path:   path,
		exists: err == nil,
	}

	return freader
}

func (f *FileReader) Exists() bool {
	return f.exists
}

func (f *FileReader) Open(readOnly bool) (topErr error) {
	var perm os.FileMode = 0644

	if readOnly {
		f.file, topErr = os.OpenFile(f.path, os.O_RDONLY, perm)
	} else {
		f.file, topErr = os.OpenFile(f.path, os.O_CREATE|os.O_RDWR, perm)
	}

	if topErr == nil {
		f.opened = true
	}

	return topErr
}

func (f *FileReader) Close() error {
	if !f.opened {
		return nil
	}

	f.opened = false

	return f.file.Close()
}

func (f *FileReader) ReadAt(out []byte, off, length int) (err error) {
	if !f.opened {
		return errors.New("file not opened")
	}

	var readBytes int
	readBytes, err = f.file.ReadAt(out[:length], int64(off))

	if readBytes != length {
		return errors.New("read bytes mismatch")
	}

	return nil
}

func (f *FileReader) WriteAt(in []byte, off int) (err error) {
	if !f.opened {
		return errors.New("file not opened")
	}

	var writtenBytes int
	writtenBytes, err = f.file.WriteAt(in, int64(off))
	if err != nil {
		return err
	}

	if writtenBytes != len(in) {
		return errors.New("written bytes mismatch")
	}

	return nil
}

func (f *FileReader) Sync() error {
	if !f.opened {
		return errors.New("file not opened")
	}

	return f.file.Sync()
}
