package fsx

import (
	"context"
	"errors"
)

// ErrNotExist is returned by readers when the path is absent
var ErrNotExist = errors.New("fsx: file does not exist")

// FileReader provides read-only operations
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// FileWriter provides write operations.
// WriteFile must leave either the old or the new content visible, never a partial file.
type FileWriter interface {
	WriteFile(ctx context.Context, path string, data []byte) error
}

// FileDeleter provides deletion operations
type FileDeleter interface {
	DeleteFile(ctx context.Context, path string) error
}

// FileSystem combines all file operations
type FileSystem interface {
	FileReader
	FileWriter
	FileDeleter
	Join(elem ...string) string
}
