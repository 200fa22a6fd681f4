// Package heartbeat tracks the liveness of long-running components such as
// the WhatsApp connector, the dispatcher and the scheduler.
package heartbeat

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	StateStarting = "starting"
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateDisabled = "disabled"
	StateStopped  = "stopped"
	StateStale    = "stale"

	overallIdle    = "idle"
	overallUnknown = "unknown"
)

// Reporter is what components use to publish their state.
type Reporter interface {
	Starting(component, message string)
	Beat(component, message string)
	Degrade(component, message string, err error)
	Disabled(component, message string)
	Stopped(component, message string)
}

type ComponentStatus struct {
	Name           string `json:"name"`
	State          string `json:"state"`
	BaseState      string `json:"base_state"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
	LastBeatAtUnix int64  `json:"last_beat_at_unix,omitempty"`
	UpdatedAtUnix  int64  `json:"updated_at_unix"`
	Stale          bool   `json:"stale,omitempty"`
}

type Snapshot struct {
	GeneratedAtUnix int64             `json:"generated_at_unix"`
	Overall         string            `json:"overall"`
	Components      []ComponentStatus `json:"components"`
}

// Unhealthy lists the degraded or stale components.
func (s Snapshot) Unhealthy() []ComponentStatus {
	var out []ComponentStatus
	for _, item := range s.Components {
		if IsDegradedState(item.State) {
			out = append(out, item)
		}
	}
	return out
}

type component struct {
	state     string
	message   string
	lastError string
	beatAt    time.Time
	updatedAt time.Time
}

type Registry struct {
	now func() time.Time

	mu         sync.RWMutex
	components map[string]component
}

func NewRegistry() *Registry {
	return &Registry{
		now:        func() time.Time { return time.Now().UTC() },
		components: map[string]component{},
	}
}

func (r *Registry) Starting(name, message string) {
	r.set(name, StateStarting, message, nil, false)
}

// Beat marks the component healthy and refreshes its liveness timestamp.
func (r *Registry) Beat(name, message string) {
	r.set(name, StateHealthy, message, nil, true)
}

func (r *Registry) Degrade(name, message string, err error) {
	r.set(name, StateDegraded, message, err, false)
}

func (r *Registry) Disabled(name, message string) {
	r.set(name, StateDisabled, message, nil, false)
}

func (r *Registry) Stopped(name, message string) {
	r.set(name, StateStopped, message, nil, false)
}

func (r *Registry) set(name, state, message string, err error, beat bool) {
	name = normalizeComponent(name)
	if name == "" {
		return
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	record := r.components[name]
	record.state = state
	record.message = strings.TrimSpace(message)
	record.lastError = ""
	if err != nil {
		record.lastError = strings.TrimSpace(err.Error())
	}
	record.updatedAt = now
	if beat || record.beatAt.IsZero() {
		record.beatAt = now
	}
	r.components[name] = record
}

// Snapshot reports every component. Healthy or starting components that have
// not beaten within staleAfter are reported stale; zero disables the check.
func (r *Registry) Snapshot(staleAfter time.Duration) Snapshot {
	now := r.now()
	r.mu.RLock()
	results := make([]ComponentStatus, 0, len(r.components))
	for name, record := range r.components {
		status := ComponentStatus{
			Name:          name,
			State:         record.state,
			BaseState:     record.state,
			Message:       record.message,
			Error:         record.lastError,
			UpdatedAtUnix: record.updatedAt.Unix(),
		}
		if !record.beatAt.IsZero() {
			status.LastBeatAtUnix = record.beatAt.Unix()
		}
		if staleAfter > 0 && canBecomeStale(record.state) && now.Sub(record.beatAt) > staleAfter {
			status.State = StateStale
			status.Stale = true
		}
		results = append(results, status)
	}
	r.mu.RUnlock()

	sort.Slice(results, func(left, right int) bool {
		return results[left].Name < results[right].Name
	})
	return Snapshot{
		GeneratedAtUnix: now.Unix(),
		Overall:         computeOverall(results),
		Components:      results,
	}
}

func IsDegradedState(state string) bool {
	return state == StateDegraded || state == StateStale
}

func normalizeComponent(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func canBecomeStale(state string) bool {
	return state == StateHealthy || state == StateStarting
}

func computeOverall(items []ComponentStatus) string {
	if len(items) == 0 {
		return overallUnknown
	}
	var starting, active bool
	for _, item := range items {
		switch item.State {
		case StateDegraded, StateStale:
			return StateDegraded
		case StateStarting:
			starting = true
			active = true
		case StateHealthy:
			active = true
		}
	}
	switch {
	case starting:
		return StateStarting
	case active:
		return StateHealthy
	default:
		return overallIdle
	}
}
