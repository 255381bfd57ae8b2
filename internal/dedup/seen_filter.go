package dedup

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Seen filter sizing defaults.
const (
	DefaultSeenCapacity = 1_000_000
	DefaultSeenFPRate   = 0.001
)

// SeenFilter remembers hosts checked by earlier runs. It may report false
// positives at the configured rate, never false negatives.
type SeenFilter struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	path   string
	dirty  bool
}

// LoadSeenFilter reads the filter at path, or creates an empty one sized for
// capacity entries when the file does not exist yet.
func LoadSeenFilter(path string, capacity uint, fpRate float64) (*SeenFilter, error) {
	if capacity == 0 {
		capacity = DefaultSeenCapacity
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = DefaultSeenFPRate
	}
	filter, err := readFilter(path)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = bloom.NewWithEstimates(capacity, fpRate)
	}
	return &SeenFilter{filter: filter, path: path}, nil
}

func readFilter(path string) (*bloom.BloomFilter, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seen filter: %w", err)
	}
	defer func() { _ = f.Close() }()

	filter := &bloom.BloomFilter{}
	if _, err := filter.ReadFrom(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("read seen filter: %w", err)
	}
	return filter, nil
}

// Test reports whether host was probably recorded before.
func (s *SeenFilter) Test(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.TestString(host)
}

// Add records host.
func (s *SeenFilter) Add(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.AddString(host)
	s.dirty = true
}

// Save writes the filter to its path via a temp file and rename. It is a
// no-op when nothing was added since the last save.
func (s *SeenFilter) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create seen filter dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".seen-*")
	if err != nil {
		return fmt.Errorf("create seen filter temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := bufio.NewWriter(tmp)
	if _, err := s.filter.WriteTo(w); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write seen filter: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush seen filter: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close seen filter: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename seen filter: %w", err)
	}
	s.dirty = false
	return nil
}
