// Package storage is the durable ground truth behind the cache: an unbounded
// key/value map mirrored to a plain-text file with one "key,value" record per line.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DefaultPath is the file used when no path is configured.
const DefaultPath = "kvstorage.txt"

// FileStorage is a key/value map that can persist itself to a flat file.
//
// The record format has no escaping: a line is split at its first comma, so
// values may contain commas but keys may not.
type FileStorage struct {
	mu     sync.RWMutex
	path   string
	data   map[string]string
	logger *slog.Logger
}

// New returns an empty storage bound to path. Call Load to read existing records.
func New(path string, logger *slog.Logger) *FileStorage {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStorage{
		path:   path,
		data:   make(map[string]string),
		logger: logger,
	}
}

// Path returns the file the storage persists to.
func (s *FileStorage) Path() string {
	return s.path
}

// Get returns the value stored for key.
func (s *FileStorage) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Contains reports whether key is stored.
func (s *FileStorage) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// Put inserts or replaces key. It does not touch the file.
func (s *FileStorage) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Delete removes key if present. It does not touch the file.
func (s *FileStorage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Len returns the number of stored keys.
func (s *FileStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Clear drops every key. It does not touch the file.
func (s *FileStorage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.data)
}

// Snapshot returns a copy of every stored record.
func (s *FileStorage) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

/*
Load replaces the in-memory map with the records from the file.

- A missing or empty file yields an empty map, not an error
- Malformed lines (no comma, empty key, empty value) are skipped one by one
- A later record for the same key wins

It returns the number of records loaded.
*/
func (s *FileStorage) Load() (int, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.Clear()
			return 0, nil
		}
		return 0, fmt.Errorf("open storage file: %w", err)
	}
	defer file.Close()

	data := make(map[string]string)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ",")
		if !ok || key == "" || value == "" {
			s.logger.Warn("skipping malformed storage record", "path", s.path, "line", lineNum)
			continue
		}
		data[key] = value
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read storage file: %w", err)
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()

	return len(data), nil
}

/*
Persist writes the full map to disk, replacing any previous file.

The records go to a temporary file first, which is synced and then renamed over
the real one, so a reader never observes a half-written file.
*/
func (s *FileStorage) Persist() error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(',')
		b.WriteString(s.data[k])
		b.WriteByte('\n')
	}
	s.mu.RUnlock()

	return writeFileAtomic(s.path, []byte(b.String()))
}

func writeFileAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp storage file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write storage file: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync storage file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close storage file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename storage file: %w", err)
	}

	return nil
}
