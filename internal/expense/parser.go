package expense

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// fieldPunctuation is trimmed from both ends of every word before matching,
// so "25k." and "Almuerzo:" read as "25k" and "Almuerzo".
const fieldPunctuation = ".,;:!?¡¿\"'()"

type Expense struct {
	Amount       int64
	Description  string
	CategoryHint string
	Tag          string
}

// ParseExpense extracts an expense from text like "Almuerzo 25k #trabajo".
// The first token that parses as an amount wins; the first remaining word is
// the description and the rest is a lower-cased category hint.
func ParseExpense(text string) (Expense, bool) {
	fields := splitFields(text)
	amountIndex := -1
	var amount int64
	for index, field := range fields {
		if !amountTokenPattern.MatchString(field) {
			continue
		}
		if parsed, ok := ParseAmount(field); ok {
			amount = parsed
			amountIndex = index
			break
		}
	}
	if amountIndex < 0 {
		return Expense{}, false
	}

	tag := ""
	rest := make([]string, 0, len(fields))
	for index, field := range fields {
		if index == amountIndex {
			continue
		}
		if strings.HasPrefix(field, "#") {
			if tag == "" && len(field) > 1 {
				tag = strings.ToLower(strings.TrimPrefix(field, "#"))
			}
			continue
		}
		rest = append(rest, field)
	}
	if len(rest) == 0 {
		return Expense{}, false
	}
	return Expense{
		Amount:       amount,
		Description:  capitalize(rest[0]),
		CategoryHint: strings.ToLower(strings.Join(rest[1:], " ")),
		Tag:          tag,
	}, true
}

func splitFields(text string) []string {
	raw := strings.Fields(text)
	fields := make([]string, 0, len(raw))
	for _, field := range raw {
		if field = strings.Trim(field, fieldPunctuation); field != "" {
			fields = append(fields, field)
		}
	}
	return fields
}

func capitalize(word string) string {
	first, size := utf8.DecodeRuneInString(word)
	if first == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(first)) + strings.ToLower(word[size:])
}
