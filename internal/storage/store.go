package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store loads and saves values by key. Save is synchronous: when it returns
// nil the value is durable.
type Store[T ValidatingSpec] interface {
	Load(key string) (T, error)
	Save(key string, v T) error
}

// FileStore keeps one JSON file per key under a directory.
type FileStore[T ValidatingSpec] struct {
	path string

	mu sync.Mutex
}

func NewFileStore[T ValidatingSpec](path string) (*FileStore[T], error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening store: %s is not a directory", path)
	}

	return &FileStore[T]{path: path}, nil
}

func (s *FileStore[T]) Load(key string) (T, error) {
	var zero T
	if err := ValidateKey(key); err != nil {
		return zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return zero, fmt.Errorf("reading file: %w", err)
	}

	return decodeAsset[T](key, data)
}

func (s *FileStore[T]) Save(key string, v T) error {
	data, err := encodeAsset(key, v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return atomicWrite(s.filePath(key), data, 0644)
}

// atomicWrite writes data to a temp file then renames it to the target path.
// This prevents partial or empty files if the process is interrupted.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if removeErr := os.Remove(tmp); removeErr != nil {
			slog.Warn("failed to remove temp file after rename failure", "path", tmp, "error", removeErr)
		}
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func (s *FileStore[T]) filePath(key string) string {
	return filepath.Join(s.path, fmt.Sprintf("%s.json", key))
}
