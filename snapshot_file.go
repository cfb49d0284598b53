package homepulse

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSnapshotBackend stores snapshots as files under a root directory.
// Keys with "/" map to subdirectories.
type FileSnapshotBackend struct {
	root string
}

// NewFileSnapshotBackend creates the root directory if needed.
func NewFileSnapshotBackend(root string) (*FileSnapshotBackend, error) {
	if root == "" {
		return nil, errors.New("snapshot root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FileSnapshotBackend{root: root}, nil
}

// path maps a key to a file path, rejecting traversal outside the root.
func (f *FileSnapshotBackend) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", errors.New("invalid snapshot key")
	}
	return filepath.Join(f.root, clean), nil
}

// Read reads a snapshot.
func (f *FileSnapshotBackend) Read(ctx context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrSnapshotNotFound
	}
	return data, err
}

// Write stores a snapshot, creating parent directories as needed.
func (f *FileSnapshotBackend) Write(ctx context.Context, key string, data []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Delete removes a snapshot. Deleting a missing snapshot is not an error.
func (f *FileSnapshotBackend) Delete(ctx context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// List returns all keys matching a prefix, sorted ascending.
func (f *FileSnapshotBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) && !strings.HasSuffix(key, ".tmp") {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op for the file backend.
func (f *FileSnapshotBackend) Close() error { return nil }
