package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Preferences is stored as JSON and always decoded on top of the defaults,
// so keys missing from older rows keep their default value.
type Preferences struct {
	Times      []string `json:"times"`
	Crypto     []string `json:"crypto"`
	Fiat       []string `json:"fiat"`
	NewsTopics []string `json:"news_topics"`
	NewsCount  int      `json:"news_count"`
	Weather    bool     `json:"weather"`
	Rates      bool     `json:"rates"`
	Briefing   bool     `json:"briefing"`
	Voice      bool     `json:"voice"`
	Role       string   `json:"role"`
	Model      string   `json:"model"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		Times:      []string{"07:00"},
		Crypto:     []string{"bitcoin", "ethereum"},
		Fiat:       []string{"USD", "EUR"},
		NewsTopics: []string{"colombia"},
		NewsCount:  5,
		Weather:    true,
		Rates:      true,
		Role:       "assistant",
	}
}

// SetPreferenceDefaults replaces the defaults used for contacts that never
// stored a value.
func (s *Store) SetPreferenceDefaults(defaults Preferences) {
	s.mu.Lock()
	s.defaults = defaults
	s.mu.Unlock()
}

func (s *Store) preferenceDefaults() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.defaults
	out.Times = append([]string(nil), s.defaults.Times...)
	out.Crypto = append([]string(nil), s.defaults.Crypto...)
	out.Fiat = append([]string(nil), s.defaults.Fiat...)
	out.NewsTopics = append([]string(nil), s.defaults.NewsTopics...)
	return out
}

func (s *Store) decodePreferences(raw string) (Preferences, error) {
	prefs := s.preferenceDefaults()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return prefs, nil
	}
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return Preferences{}, fmt.Errorf("decode preferences: %w", err)
	}
	return prefs, nil
}

// BotConfig is the per-contact sub-bot configuration bag.
type BotConfig struct {
	Gastos GastosConfig `json:"gastos"`
}

const (
	GastosStepSheet  = "sheet"
	GastosStepBudget = "budget"
)

type GastosConfig struct {
	Onboarded     bool   `json:"onboarded"`
	Step          string `json:"step,omitempty"`
	StartedAtUnix int64  `json:"started_at_unix,omitempty"`
	SheetID       string `json:"sheet_id,omitempty"`
	Budget        int64  `json:"budget,omitempty"`
}

// LocalLedger reports whether expenses go to the local table instead of a
// spreadsheet.
func (g GastosConfig) LocalLedger() bool {
	return strings.TrimSpace(g.SheetID) == "" || strings.EqualFold(strings.TrimSpace(g.SheetID), "local")
}

func decodeBotConfig(raw string) (BotConfig, error) {
	var config BotConfig
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return config, nil
	}
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		return BotConfig{}, fmt.Errorf("decode bot config: %w", err)
	}
	return config, nil
}

// ParseClockTimes validates a comma separated list of HH:MM values and
// returns them normalized and de-duplicated.
func ParseClockTimes(raw string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := time.Parse("15:04", part)
		if err != nil {
			if parsed, err = time.Parse("15", part); err != nil {
				return nil, fmt.Errorf("invalid time %q, use HH:MM", part)
			}
		}
		value := parsed.Format("15:04")
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one time is required")
	}
	return out, nil
}
