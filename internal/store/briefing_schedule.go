package store

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
)

var briefingCronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

const briefingDefaultTimezone = "UTC"

// DailyCronExpr turns "07:30" into "30 7 * * *".
func DailyCronExpr(clock string) (string, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(clock))
	if err != nil {
		return "", fmt.Errorf("invalid time %q: %w", clock, err)
	}
	return fmt.Sprintf("%d %d * * *", parsed.Minute(), parsed.Hour()), nil
}

// ComputeNextBriefing returns the earliest run after from across the daily
// HH:MM times, evaluated in timezone.
func ComputeNextBriefing(times []string, timezone string, from time.Time) (time.Time, error) {
	base := from
	if base.IsZero() {
		base = time.Now().UTC()
	}
	location, err := loadBriefingLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}
	var next time.Time
	for _, clock := range times {
		expr, err := DailyCronExpr(clock)
		if err != nil {
			return time.Time{}, err
		}
		spec, err := briefingCronParser.Parse(expr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
		}
		candidate := spec.Next(base.In(location)).UTC()
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	return next, nil
}

func loadBriefingLocation(raw string) (*time.Location, error) {
	timezone := strings.TrimSpace(raw)
	if timezone == "" {
		timezone = briefingDefaultTimezone
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	return location, nil
}
