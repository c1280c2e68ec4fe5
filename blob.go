package axisdb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// BlobBackend stores opaque blobs under slash-separated keys. It is the
// lower half of the blob-backed stores: BlobStore turns entities into
// blobs, a backend puts them somewhere durable.
//
// Get returns an error wrapping ErrMissingProperty for an absent key.
// List returns every key with the given prefix, sorted.
type BlobBackend interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
	Delete(key string) error
	List(prefix string) ([]string, error)
	Close() error
}

// MemoryBlobBackend keeps blobs in a map. It exists for tests of the blob
// store machinery without touching a filesystem.
type MemoryBlobBackend struct {
	blobs map[string][]byte
}

var _ BlobBackend = (*MemoryBlobBackend)(nil)

// NewMemoryBlobBackend creates an empty in-memory blob backend.
func NewMemoryBlobBackend() *MemoryBlobBackend {
	return &MemoryBlobBackend{blobs: make(map[string][]byte)}
}

func (b *MemoryBlobBackend) Get(key string) ([]byte, error) {
	data, ok := b.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %q: %w", key, ErrMissingProperty)
	}
	return data, nil
}

func (b *MemoryBlobBackend) Put(key string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	b.blobs[key] = cp
	return nil
}

func (b *MemoryBlobBackend) Delete(key string) error {
	delete(b.blobs, key)
	return nil
}

func (b *MemoryBlobBackend) List(prefix string) ([]string, error) {
	var keys []string
	for key := range b.blobs {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *MemoryBlobBackend) Close() error { return nil }

// FileBlobBackend stores each blob as a file under a root directory. Key
// segments are already escaped by the blob store, so they map directly to
// path elements. Writes go through a temp file and rename so a crash
// never leaves a half-written blob behind.
type FileBlobBackend struct {
	root string
}

var _ BlobBackend = (*FileBlobBackend)(nil)

// NewFileBlobBackend creates the root directory if needed.
func NewFileBlobBackend(root string) (*FileBlobBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FileBlobBackend{root: root}, nil
}

func (b *FileBlobBackend) path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

func (b *FileBlobBackend) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blob %q: %w", key, ErrMissingProperty)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %q: %w", key, err)
	}
	return data, nil
}

func (b *FileBlobBackend) Put(key string, data []byte) error {
	path := b.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	return nil
}

func (b *FileBlobBackend) Delete(key string) error {
	err := os.Remove(b.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	return nil
}

func (b *FileBlobBackend) List(prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *FileBlobBackend) Close() error { return nil }
