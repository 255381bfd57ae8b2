package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/JakeFAU/pwa-discovery/internal/storage/jsonfile"
)

// History is the discover results file: a JSON array of run summaries, each
// pruned to its PWA-positive results. A run appears once; checkpoints are
// replaced by later saves of the same run.
type History struct {
	mu   sync.Mutex
	path string
}

// NewHistory returns nil when path is empty, which disables history.
func NewHistory(path string) *History {
	if path == "" {
		return nil
	}
	return &History{path: path}
}

// Path returns the file location.
func (h *History) Path() string {
	return h.path
}

// Load returns the recorded runs. A missing or unparseable file reads as an
// empty history.
func (h *History) Load() ([]DiscoverSummary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load()
}

func (h *History) load() ([]DiscoverSummary, error) {
	data, err := os.ReadFile(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return []DiscoverSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var runs []DiscoverSummary
	if err := json.Unmarshal(data, &runs); err != nil {
		return []DiscoverSummary{}, nil
	}
	return runs, nil
}

// Save upserts summary by run ID.
func (h *History) Save(summary DiscoverSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	runs, err := h.load()
	if err != nil {
		return err
	}
	pruned := summary
	pruned.Results = make([]DiscoverResult, 0, summary.Found)
	for _, r := range summary.Results {
		if r.IsPwa {
			pruned.Results = append(pruned.Results, r)
		}
	}

	replaced := false
	for i := range runs {
		if runs[i].RunID == pruned.RunID {
			runs[i] = pruned
			replaced = true
			break
		}
	}
	if !replaced {
		runs = append(runs, pruned)
	}

	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := jsonfile.WriteFileAtomic(h.path, append(data, '\n')); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
