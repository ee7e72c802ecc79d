package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no stored file matches the id.
var ErrNotFound = errors.New("file not found")

// FileInfo describes a stored file.
type FileInfo struct {
	ContentType string
	Size        int64
}

// FileStore resolves a stored file id to its raw bytes. The document metadata
// store that owns titles, authors and the approval workflow lives outside
// this subsystem; only the byte-level lookup is needed here.
type FileStore interface {
	Open(ctx context.Context, fileID string) (io.ReadCloser, FileInfo, error)
}

// FS serves files from a single directory, one file per id. The id is the
// on-disk name including extension.
type FS struct {
	root string
}

// NewFS creates a filesystem-backed store rooted at dir.
func NewFS(dir string) *FS {
	return &FS{root: dir}
}

// Open returns the file's bytes and content type. Ids containing path
// separators or parent references never match anything.
func (s *FS) Open(_ context.Context, fileID string) (io.ReadCloser, FileInfo, error) {
	if fileID == "" || strings.ContainsAny(fileID, `/\`) || strings.Contains(fileID, "..") {
		return nil, FileInfo{}, ErrNotFound
	}
	path := filepath.Join(s.root, fileID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, FileInfo{}, ErrNotFound
		}
		return nil, FileInfo{}, fmt.Errorf("open stored file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, FileInfo{}, fmt.Errorf("stat stored file: %w", err)
	}
	return f, FileInfo{ContentType: contentTypeFor(fileID), Size: st.Size()}, nil
}

func contentTypeFor(fileID string) string {
	if ct := mime.TypeByExtension(filepath.Ext(fileID)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
