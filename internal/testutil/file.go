// Package testutil contains helpers shared by the package tests.
package testutil

import (
	"bytes"
	"io"
)

// MemoryFile is an in-memory upload source.
type MemoryFile struct {
	FileName string
	Data     []byte
	// UnknownSize makes Size report -1, like a stream without a known length.
	UnknownSize bool
	// OpenErr is returned from Open when set.
	OpenErr error
	// MediaType is reported by ContentType.
	MediaType string
}

// NewMemoryFile ...
func NewMemoryFile(name string, data []byte) *MemoryFile {
	return &MemoryFile{FileName: name, Data: data}
}

// NewSizedFile returns a file of the given size filled with a repeating pattern.
func NewSizedFile(name string, size int) *MemoryFile {
	return NewMemoryFile(name, bytes.Repeat([]byte{'m'}, size))
}

// Name ...
func (f *MemoryFile) Name() string {
	return f.FileName
}

// Size ...
func (f *MemoryFile) Size() int64 {
	if f.UnknownSize {
		return -1
	}
	return int64(len(f.Data))
}

// ContentType ...
func (f *MemoryFile) ContentType() string {
	return f.MediaType
}

// Open ...
func (f *MemoryFile) Open() (io.ReadCloser, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}
