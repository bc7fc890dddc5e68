package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("stored file not found")

// Store keeps uploaded import files and serves them back to the parser.
type Store interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Put(ctx context.Context, path string, r io.Reader, size int64) error
}
