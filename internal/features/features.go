// Package features manages the project's feature checklist. The agent
// rewrites features.json as it works; the orchestrator and dashboard
// read it concurrently, so all file access goes through a cross-process
// advisory lock.
package features

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName is the checklist file name inside the project directory.
const FileName = "features.json"

// Feature is one checklist item. IDs are append-only; only Passing
// flips as the project progresses.
type Feature struct {
	ID          int      `json:"id"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description"`
	Steps       []string `json:"steps,omitempty"`
	Passing     bool     `json:"passing"`
}

// List is the checklist plus the path it was loaded from.
type List struct {
	path     string
	Features []Feature
}

// Path returns the checklist path for a project directory.
func Path(workDir string) string {
	return filepath.Join(workDir, FileName)
}

func lockFor(path string) *flock.Flock {
	return flock.New(path + ".lock")
}

// Load reads the checklist under a shared lock. A missing file returns
// an empty list with no error — a fresh project has no checklist yet.
func Load(workDir string) (*List, error) {
	path := Path(workDir)
	lock := lockFor(path)
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock features file: %w", err)
	}
	defer lock.Unlock() //nolint:errcheck

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &List{path: path}, nil
		}
		return nil, err
	}

	var feats []Feature
	if err := json.Unmarshal(data, &feats); err != nil {
		return nil, fmt.Errorf("parse features file: %w", err)
	}
	return &List{path: path, Features: feats}, nil
}

// Save writes the checklist atomically under an exclusive lock.
func (l *List) Save() error {
	lock := lockFor(l.path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock features file: %w", err)
	}
	defer lock.Unlock() //nolint:errcheck

	data, err := json.MarshalIndent(l.Features, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// Counts returns how many features pass and the total.
func (l *List) Counts() (passing, total int) {
	for _, f := range l.Features {
		if f.Passing {
			passing++
		}
	}
	return passing, len(l.Features)
}

// AllPassing reports whether every feature passes. An empty checklist
// is not passing: the initializer has not produced one yet.
func (l *List) AllPassing() bool {
	if len(l.Features) == 0 {
		return false
	}
	passing, total := l.Counts()
	return passing == total
}

// MarkPassing flips the Passing flag on the feature with the given id.
func (l *List) MarkPassing(id int) error {
	for i := range l.Features {
		if l.Features[i].ID == id {
			l.Features[i].Passing = true
			return nil
		}
	}
	return fmt.Errorf("feature %d not found", id)
}
