package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore saves thumbnails to local disk; development fallback when no
// object storage endpoint is configured.
type FileStore struct {
	basePath   string
	publicBase string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath, publicBase string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{
		basePath:   basePath,
		publicBase: strings.TrimSuffix(publicBase, "/"),
	}, nil
}

// Put writes the object under the base directory and returns its public URL.
func (f *FileStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	target := filepath.Join(f.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return f.publicBase + "/" + key, nil
}

// Delete removes the file behind a public URL.
func (f *FileStore) Delete(_ context.Context, url string) error {
	key, ok := keyFromURL(f.publicBase, url)
	if !ok {
		return nil
	}
	target := filepath.Join(f.basePath, filepath.FromSlash(key))
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(target)
}
