// Package upload holds the per-workspace upload collector and the stores that
// keep file bytes alive while a preview is outstanding.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrPreviewNotFound = errors.New("preview not found")

// PreviewStore keeps uploaded bytes for the lifetime of a preview URL.
type PreviewStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// DiskStore writes previews under a base directory.
type DiskStore struct {
	base string
}

func NewDiskStore(base string) (*DiskStore, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve preview dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create preview dir: %w", err)
	}
	return &DiskStore{base: abs}, nil
}

func (s *DiskStore) Put(_ context.Context, key string, r io.Reader, _ string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory failed: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write preview: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close preview: %w", err)
	}
	return nil
}

func (s *DiskStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrPreviewNotFound
	}
	return f, err
}

// Delete removes the preview. Missing previews are not an error.
func (s *DiskStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove preview: %w", err)
	}
	// drop the scope directory once it is empty; fails harmlessly otherwise
	if dir := filepath.Dir(path); dir != s.base {
		_ = os.Remove(dir)
	}
	return nil
}

// path maps a key onto the base directory, refusing anything that escapes it.
func (s *DiskStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if key == "" || clean == "/" {
		return "", fmt.Errorf("invalid preview key %q", key)
	}
	full := filepath.Join(s.base, clean)
	if !strings.HasPrefix(full, s.base+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid preview key %q", key)
	}
	return full, nil
}
