package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore implements Store on the local filesystem. Keys map to
// paths under a base directory; path traversal in keys is rejected.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if needed and returns a
// filesystem-backed Store.
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory %s: %w", basePath, err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Put writes data to the file named by key, creating intermediate
// directories. Existing files are overwritten.
func (f *FileStore) Put(_ context.Context, key string, data []byte) (string, error) {
	path, err := f.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating blob subdirectory for %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing blob %s: %w", key, err)
	}

	return key, nil
}

// SignedURL returns a file URL for the stored object. Local files need
// no expiring signature; cloud-backed implementations substitute a
// presigned URL here.
func (f *FileStore) SignedURL(_ context.Context, key string) (string, error) {
	path, err := f.resolve(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("locating blob %s: %w", key, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving blob path %s: %w", key, err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// resolve maps a storage key onto the base directory, refusing keys
// that would escape it.
func (f *FileStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(f.basePath, clean), nil
}
