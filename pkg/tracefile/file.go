package tracefile

import (
	"errors"
	"fmt"
	"os"
)

// File is a capture opened for reading from disk.
type File struct {
	*Reader
	f *os.File
}

// Open opens the capture at path and reads its header.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{Reader: r, f: f}, nil
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.f.Close()
}

// FileWriter is a capture being written to disk.
type FileWriter struct {
	*Writer
	f *os.File
}

// Create truncates or creates the file at path and writes the header.
func Create(path string, opts WriterOptions) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileWriter{Writer: w, f: f}, nil
}

// Close finalizes the stream and closes the file.
func (w *FileWriter) Close() error {
	return errors.Join(w.Writer.Close(), w.f.Close())
}
