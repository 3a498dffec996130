// Package localfile turns user supplied sources into local files ready for upload.
package localfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

const sniffLength = 512

// File is a regular file on the local disk.
type File struct {
	name string
	path string
	size int64

	contentType string
}

// NewFile stats the file at path.
func NewFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return &File{
		name:        filepath.Base(path),
		path:        path,
		size:        info.Size(),
		contentType: sniffContentType(path),
	}, nil
}

// sniffContentType detects the media type from the leading bytes of the file.
// An empty result leaves the choice to the transfer layer.
func sniffContentType(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() {
		_ = f.Close()
	}()

	buf := make([]byte, sniffLength)
	n, _ := io.ReadFull(f, buf)
	if n == 0 {
		return ""
	}
	return mimetype.Detect(buf[:n]).String()
}

// Name ...
func (f *File) Name() string {
	return f.name
}

// Size ...
func (f *File) Size() int64 {
	return f.size
}

// Path ...
func (f *File) Path() string {
	return f.path
}

// ContentType ...
func (f *File) ContentType() string {
	return f.contentType
}

// Open ...
func (f *File) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}
