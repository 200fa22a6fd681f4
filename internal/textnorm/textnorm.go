// Package textnorm folds user text for keyword matching.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s, strips diacritics and collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Words folds s and splits it on anything that is not a letter or digit.
func Words(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ContainsPhrase reports whether phrase appears in s on word boundaries,
// after folding both.
func ContainsPhrase(s, phrase string) bool {
	words := Words(phrase)
	if len(words) == 0 {
		return false
	}
	padded := " " + strings.Join(Words(s), " ") + " "
	return strings.Contains(padded, " "+strings.Join(words, " ")+" ")
}

// ContainsAnyPhrase returns the first phrase found in s.
func ContainsAnyPhrase(s string, phrases []string) (string, bool) {
	for _, phrase := range phrases {
		if ContainsPhrase(s, phrase) {
			return phrase, true
		}
	}
	return "", false
}
