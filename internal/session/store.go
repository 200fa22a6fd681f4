// Package session tracks short-lived per-chat conversational state with
// expiry and exactly-once timeout fallbacks.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var ErrNotFound = errors.New("session not found")

type Kind string

const (
	KindBotSelection Kind = "bot_selection"
	KindCategory     Kind = "category"
	KindEdit         Kind = "edit"
)

type Key struct {
	ChatID string
	Kind   Kind
}

type Entry struct {
	Key       Key
	Data      json.RawMessage
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

func (e Entry) Decode(out any) error {
	if len(e.Data) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("decode %s session: %w", e.Key.Kind, err)
	}
	return nil
}

// Store holds session entries. Delete and Expire remove atomically and hand
// back what they removed, so each entry is claimed by exactly one caller.
type Store interface {
	Get(ctx context.Context, key Key) (Entry, error)
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key Key) (Entry, bool, error)
	Expire(ctx context.Context, now time.Time) ([]Entry, error)
}

type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[Key]Entry{}}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

func (s *MemoryStore) Set(_ context.Context, entry Entry) error {
	if entry.Key.ChatID == "" || entry.Key.Kind == "" {
		return fmt.Errorf("session key is required")
	}
	s.mu.Lock()
	s.entries[entry.Key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	return entry, ok, nil
}

func (s *MemoryStore) Expire(_ context.Context, now time.Time) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []Entry
	for key, entry := range s.entries {
		if entry.Expired(now) {
			expired = append(expired, entry)
			delete(s.entries, key)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})
	return expired, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
