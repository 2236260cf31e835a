package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// currentVersion is the current store format version.
	currentVersion = 1

	// tempFileSuffix is appended to the file path for atomic writes.
	tempFileSuffix = ".tmp"

	// backupFileSuffix is appended when backing up corrupted files.
	backupFileSuffix = ".bak"

	// lockFileSuffix names the inter-process lock file.
	lockFileSuffix = ".lock"
)

// storage handles file persistence for the book.
type storage struct {
	path     string
	lockPath string
	mu       sync.Mutex
}

func newStorage(path string) *storage {
	return &storage{
		path:     path,
		lockPath: path + lockFileSuffix,
	}
}

// load reads the document from disk. A missing or empty file yields an
// empty document; a corrupt one is moved aside to path.bak.
func (s *storage) load() (*bookData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockFile, err := s.acquireFileLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for load: %w", err)
	}
	defer s.releaseFileLock(lockFile)

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return emptyData(), nil
		}
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	if len(raw) == 0 {
		return emptyData(), nil
	}

	var data bookData
	if err := json.Unmarshal(raw, &data); err != nil {
		if backupErr := os.Rename(s.path, s.path+backupFileSuffix); backupErr != nil {
			return nil, fmt.Errorf("failed to parse store and backup failed: parse error: %w, backup error: %v", err, backupErr)
		}
		return emptyData(), nil
	}
	if data.Version > currentVersion {
		return nil, fmt.Errorf("store version %d is newer than supported version %d", data.Version, currentVersion)
	}
	data.normalize()
	return &data, nil
}

// save writes the document atomically: temp file, fsync, rename.
func (s *storage) save(data *bookData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockFile, err := s.acquireFileLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock for save: %w", err)
	}
	defer s.releaseFileLock(lockFile)

	if err := ensureDir(s.path); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	tempPath := s.path + tempFileSuffix
	tempFile, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	if _, err := tempFile.Write(raw); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
