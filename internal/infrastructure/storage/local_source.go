package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalSource stores import files under BaseDir.
type LocalSource struct {
	BaseDir string
}

func NewLocalSource(baseDir string) *LocalSource {
	if baseDir == "" {
		baseDir = "."
	}
	return &LocalSource{BaseDir: baseDir}
}

func (s *LocalSource) Open(ctx context.Context, storagePath string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(storagePath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, storagePath)
	}
	if err != nil {
		return nil, fmt.Errorf("open file %s: %w", path, err)
	}
	return file, nil
}

func (s *LocalSource) Put(ctx context.Context, storagePath string, r io.Reader, _ int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(storagePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file %s: %w", path, err)
	}
	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		return fmt.Errorf("write file %s: %w", path, err)
	}
	return file.Close()
}

// resolve joins storagePath onto BaseDir. Absolute paths and paths
// escaping BaseDir are refused.
func (s *LocalSource) resolve(storagePath string) (string, error) {
	if filepath.IsAbs(storagePath) || strings.HasPrefix(storagePath, "/") {
		return "", fmt.Errorf("storage path %q escapes %s: absolute paths are not allowed", storagePath, s.BaseDir)
	}
	path := filepath.Join(s.BaseDir, storagePath)
	rel, err := filepath.Rel(s.BaseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage path %q escapes %s", storagePath, s.BaseDir)
	}
	return path, nil
}
