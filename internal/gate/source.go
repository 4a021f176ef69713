package gate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ContentSource gives local access to the bytes of a selected file.
// A nil ContentSource means the runtime cannot read file contents.
type ContentSource interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// UploadCandidate describes the file the user selected.
type UploadCandidate struct {
	Filename       string
	SizeBytesKnown bool
	Size           int64
	LeadingBytes   []byte // at most two bytes
}

// FileSource reads a file from the local filesystem.
type FileSource struct {
	Path string
}

// NewFileSource returns a ContentSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Name returns the base name, which is what a file picker reports.
func (f *FileSource) Name() string {
	return filepath.Base(f.Path)
}

// Open opens the file for reading.
func (f *FileSource) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// Size returns the file size when the source can stat it.
func (f *FileSource) Size() (int64, bool) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// Sniff reads the leading bytes of src into a candidate.
// A file shorter than the signature is not an error; it just yields fewer bytes.
func Sniff(src ContentSource) (UploadCandidate, error) {
	cand := UploadCandidate{Filename: src.Name()}
	if sized, ok := src.(interface{ Size() (int64, bool) }); ok {
		cand.Size, cand.SizeBytesKnown = sized.Size()
	}

	rc, err := src.Open()
	if err != nil {
		return cand, fmt.Errorf("open %s: %w", cand.Filename, err)
	}
	defer rc.Close()

	buf := make([]byte, len(PackageSignature))
	n, err := io.ReadFull(rc, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return cand, fmt.Errorf("read %s: %w", cand.Filename, err)
	}
	cand.LeadingBytes = buf[:n]
	return cand, nil
}
