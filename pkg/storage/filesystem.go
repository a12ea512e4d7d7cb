package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
)

// ErrCapacity signals that the quota is exhausted or the disk is full.
var ErrCapacity = errors.New("storage capacity exceeded")

// ErrInvalidPath is returned for keys that escape the base directory.
var ErrInvalidPath = errors.New("invalid storage path")

// LocalStorage persists files on disk under a base directory with an optional byte quota.
type LocalStorage struct {
	baseDir string
	quota   int64

	mu sync.Mutex
}

// NewLocalStorage ensures the base directory exists and returns a handle. A quota <= 0 disables the limit.
func NewLocalStorage(baseDir string, quota int64) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./attachments"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, quota: quota}, nil
}

// Save writes data under the relative key.
func (s *LocalStorage) Save(key string, data []byte) (string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quota > 0 {
		used, err := s.usage()
		if err != nil {
			return "", err
		}
		if used+int64(len(data)) > s.quota {
			return "", ErrCapacity
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare storage directory: %w", mapDiskError(err))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write file: %w", mapDiskError(err))
	}
	return key, nil
}

// SaveStream copies from r into the key, stopping with ErrCapacity once the quota is reached.
func (s *LocalStorage) SaveStream(key string, r io.Reader) (int64, error) {
	path, err := s.resolve(key)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := int64(-1)
	if s.quota > 0 {
		used, err := s.usage()
		if err != nil {
			return 0, err
		}
		remaining = s.quota - used
		if remaining <= 0 {
			return 0, ErrCapacity
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("prepare storage directory: %w", mapDiskError(err))
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", mapDiskError(err))
	}

	src := r
	if remaining > 0 {
		src = io.LimitReader(r, remaining+1)
	}
	written, copyErr := io.Copy(file, src)
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		err = fmt.Errorf("write stream: %w", mapDiskError(copyErr))
	case closeErr != nil:
		err = fmt.Errorf("close file: %w", mapDiskError(closeErr))
	case remaining > 0 && written > remaining:
		err = ErrCapacity
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return written, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(key string) (*os.File, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// Usage returns the number of bytes currently stored.
func (s *LocalStorage) Usage() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage()
}

func (s *LocalStorage) usage() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.baseDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measure storage usage: %w", err)
	}
	return total, nil
}

func (s *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.baseDir, clean), nil
}

func mapDiskError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrCapacity, err)
	}
	return err
}
