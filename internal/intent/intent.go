// Package intent maps free text onto a small set of assistant intents using
// an ordered rule table.
package intent

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Kind string

const (
	KindReminder      Kind = "reminder"
	KindVoiceOn       Kind = "voice_on"
	KindVoiceOff      Kind = "voice_off"
	KindListReminders Kind = "list_reminders"
	KindRole          Kind = "role"
	KindModel         Kind = "model"
	KindGIF           Kind = "gif"
	KindPDF           Kind = "pdf"
	KindQR            Kind = "qr"
)

const minInputLength = 4

// Match is the result of a successful rule. Only the fields relevant to the
// intent are populated.
type Match struct {
	Intent Kind
	Rule   string
	// Delay and Payload are set for reminders.
	Delay   time.Duration
	Payload string
	// Value is the canonical role or model name.
	Value string
}

type rule struct {
	name   string
	intent Kind
	match  func(text string) (Match, bool)
}

// Matcher evaluates a fixed rule table; first match wins.
type Matcher struct {
	commandPrefix string
	rules         []rule
}

func NewMatcher(commandPrefix string) *Matcher {
	if strings.TrimSpace(commandPrefix) == "" {
		commandPrefix = "/"
	}
	return &Matcher{
		commandPrefix: commandPrefix,
		rules:         defaultRules(),
	}
}

// Match returns the first rule match for text, or false.
func (m *Matcher) Match(text string) (Match, bool) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minInputLength {
		return Match{}, false
	}
	if strings.HasPrefix(text, m.commandPrefix) {
		return Match{}, false
	}
	return firstMatch(m.rules, text)
}

// Rules lists rule names in evaluation order.
func (m *Matcher) Rules() []string {
	names := make([]string, 0, len(m.rules))
	for _, item := range m.rules {
		names = append(names, item.name)
	}
	return names
}

func firstMatch(rules []rule, text string) (Match, bool) {
	for _, item := range rules {
		result, ok := item.match(text)
		if !ok {
			continue
		}
		result.Intent = item.intent
		result.Rule = item.name
		return result, true
	}
	return Match{}, false
}
