package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"releasetest/internal/result"
	"releasetest/pkg/logging"
)

// FileReporter writes the results of every run it has seen as a JSON array,
// sorted by test name and run id. The file is rewritten atomically after each
// report, so it always holds complete results of all runs reported so far.
type FileReporter struct {
	path string

	mu      sync.Mutex
	results map[string]*result.Result // by run id
}

// NewFileReporter writes to path, replacing any existing file.
func NewFileReporter(path string) *FileReporter {
	return &FileReporter{path: path, results: map[string]*result.Result{}}
}

func (r *FileReporter) Name() string { return "file" }

func (r *FileReporter) Report(_ context.Context, res *result.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results[res.RunID] = res.Clone()
	all := make([]*result.Result, 0, len(r.results))
	for _, stored := range r.results {
		all = append(all, stored)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].TestName != all[j].TestName {
			return all[i].TestName < all[j].TestName
		}
		return all[i].RunID < all[j].RunID
	})

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := writeAtomic(r.path, append(data, '\n')); err != nil {
		return err
	}

	logging.Debug("Report", "Wrote result of %s to %s (%d runs)", res.TestName, r.path, len(all))
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".result-*.json")
	if err != nil {
		return fmt.Errorf("failed to create result file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write result file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write result file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write result file %s: %w", path, err)
	}
	return nil
}
