package expense

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	suffixAmountPattern = regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)([km])$`)
	amountTokenPattern  = regexp.MustCompile(`(?i)^\$?-?\d[\d.,]*[km]?$`)
	thousandsReplacer   = strings.NewReplacer(".", "", ",", "")
)

// ParseAmount parses "25k", "1.5m", "$15.000", "15,000" or "15000" into whole
// currency units. Non-positive and unparseable values report false.
func ParseAmount(raw string) (int64, bool) {
	value := strings.TrimSpace(raw)
	value = strings.TrimSpace(strings.TrimPrefix(value, "$"))
	if value == "" {
		return 0, false
	}
	if groups := suffixAmountPattern.FindStringSubmatch(value); groups != nil {
		number, err := strconv.ParseFloat(strings.Replace(groups[1], ",", ".", 1), 64)
		if err != nil {
			return 0, false
		}
		multiplier := 1e3
		if strings.EqualFold(groups[2], "m") {
			multiplier = 1e6
		}
		amount := int64(math.Round(number * multiplier))
		if amount <= 0 {
			return 0, false
		}
		return amount, true
	}
	amount, err := strconv.ParseInt(thousandsReplacer.Replace(value), 10, 64)
	if err != nil || amount <= 0 {
		return 0, false
	}
	return amount, true
}

// FormatAmount renders 25000 as "$25.000".
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var builder strings.Builder
	for index, r := range digits {
		if index > 0 && (len(digits)-index)%3 == 0 {
			builder.WriteByte('.')
		}
		builder.WriteRune(r)
	}
	return sign + "$" + builder.String()
}
