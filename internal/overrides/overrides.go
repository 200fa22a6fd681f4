// Package overrides keeps the learned description -> category table.
package overrides

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dwizi/wabot/internal/textnorm"
	"gopkg.in/yaml.v3"
)

// Table is a flat YAML map persisted on every Learn. Keys are folded
// descriptions; values are category names.
type Table struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]string
}

func Open(path string, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.Default()
	}
	table := &Table{
		path:    strings.TrimSpace(path),
		logger:  logger,
		entries: map[string]string{},
	}
	if err := table.Reload(); err != nil {
		return nil, err
	}
	return table, nil
}

func (t *Table) Path() string {
	return t.path
}

// Reload replaces the in-memory table with the file contents. A missing file
// yields an empty table.
func (t *Table) Reload() error {
	if t.path == "" {
		return nil
	}
	raw, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.mu.Lock()
			t.entries = map[string]string{}
			t.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read overrides: %w", err)
	}
	parsed := map[string]string{}
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse overrides: %w", err)
	}
	entries := make(map[string]string, len(parsed))
	for description, category := range parsed {
		key := textnorm.Fold(description)
		category = strings.TrimSpace(category)
		if key == "" || category == "" {
			continue
		}
		entries[key] = category
	}
	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
	t.logger.Info("category overrides loaded", "path", t.path, "entries", len(entries))
	return nil
}

func (t *Table) Lookup(description string) (string, bool) {
	key := textnorm.Fold(description)
	if key == "" {
		return "", false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	category, ok := t.entries[key]
	return category, ok
}

// Learn records description -> category and rewrites the file.
func (t *Table) Learn(description, category string) error {
	key := textnorm.Fold(description)
	category = strings.TrimSpace(category)
	if key == "" || category == "" {
		return fmt.Errorf("description and category are required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	previous, existed := t.entries[key]
	t.entries[key] = category
	if err := t.persistLocked(); err != nil {
		if existed {
			t.entries[key] = previous
		} else {
			delete(t.entries, key)
		}
		return err
	}
	return nil
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Table) persistLocked() error {
	if t.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create overrides dir: %w", err)
	}
	keys := make([]string, 0, len(t.entries))
	for key := range t.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range keys {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: t.entries[key]},
		)
	}
	raw, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write overrides: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("replace overrides: %w", err)
	}
	return nil
}
