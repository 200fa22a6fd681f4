package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Fallback runs once for an entry that timed out before it was resolved.
type Fallback func(ctx context.Context, entry Entry)

type policy struct {
	ttl      time.Duration
	fallback Fallback
}

type Manager struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger

	mu       sync.RWMutex
	policies map[Kind]policy
}

func NewManager(store Store, now func() time.Time, logger *slog.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		now:      now,
		logger:   logger,
		policies: map[Kind]policy{},
	}
}

// Register sets the lifetime and optional timeout fallback for a kind.
func (m *Manager) Register(kind Kind, ttl time.Duration, fallback Fallback) {
	m.mu.Lock()
	m.policies[kind] = policy{ttl: ttl, fallback: fallback}
	m.mu.Unlock()
}

func (m *Manager) TTL(kind Kind) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policies[kind].ttl
}

// Open starts (or replaces) the session for chatID. A replaced entry does not
// fire its fallback.
func (m *Manager) Open(ctx context.Context, chatID string, kind Kind, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s session: %w", kind, err)
	}
	now := m.now()
	entry := Entry{
		Key:       Key{ChatID: chatID, Kind: kind},
		Data:      raw,
		CreatedAt: now,
	}
	if ttl := m.TTL(kind); ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	return m.store.Set(ctx, entry)
}

// Put stores entry back unchanged, keeping its original deadline.
func (m *Manager) Put(ctx context.Context, entry Entry) error {
	return m.store.Set(ctx, entry)
}

// Take claims the live session for chatID. Expired entries are claimed too,
// their fallback runs, and Take reports false.
func (m *Manager) Take(ctx context.Context, chatID string, kind Kind) (Entry, bool, error) {
	entry, ok, err := m.store.Delete(ctx, Key{ChatID: chatID, Kind: kind})
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if entry.Expired(m.now()) {
		m.runFallback(ctx, entry)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Active reports whether chatID has a live session of kind, expiring it
// lazily if its deadline passed.
func (m *Manager) Active(ctx context.Context, chatID string, kind Kind) (bool, error) {
	key := Key{ChatID: chatID, Kind: kind}
	entry, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !entry.Expired(m.now()) {
		return true, nil
	}
	claimed, ok, err := m.store.Delete(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	m.runFallback(ctx, claimed)
	return false, nil
}

// Release ends a claimed entry that cannot be resolved, running its fallback
// as if it had timed out.
func (m *Manager) Release(ctx context.Context, entry Entry) {
	m.runFallback(ctx, entry)
}

// Close discards the session without running its fallback.
func (m *Manager) Close(ctx context.Context, chatID string, kind Kind) (bool, error) {
	_, ok, err := m.store.Delete(ctx, Key{ChatID: chatID, Kind: kind})
	return ok, err
}

// Pending lists the live kinds for chatID without claiming them.
func (m *Manager) Pending(ctx context.Context, chatID string) ([]Entry, error) {
	m.mu.RLock()
	kinds := make([]Kind, 0, len(m.policies))
	for kind := range m.policies {
		kinds = append(kinds, kind)
	}
	m.mu.RUnlock()

	now := m.now()
	var out []Entry
	for _, kind := range []Kind{KindBotSelection, KindCategory, KindEdit} {
		if !containsKind(kinds, kind) {
			continue
		}
		entry, err := m.store.Get(ctx, Key{ChatID: chatID, Kind: kind})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !entry.Expired(now) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Sweep expires every overdue entry and runs its fallback. It returns the
// number of entries expired.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	expired, err := m.store.Expire(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	for _, entry := range expired {
		m.runFallback(ctx, entry)
	}
	return len(expired), nil
}

func (m *Manager) runFallback(ctx context.Context, entry Entry) {
	m.mu.RLock()
	fallback := m.policies[entry.Key.Kind].fallback
	m.mu.RUnlock()
	m.logger.Info("session expired", "chat_id", entry.Key.ChatID, "kind", entry.Key.Kind)
	if fallback == nil {
		return
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			m.logger.Error("session fallback panicked", "chat_id", entry.Key.ChatID, "kind", entry.Key.Kind, "panic", recovered)
		}
	}()
	fallback(ctx, entry)
}

func containsKind(kinds []Kind, kind Kind) bool {
	for _, candidate := range kinds {
		if candidate == kind {
			return true
		}
	}
	return false
}
