package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseHHMM parses a "HH:MM" string into hour/minute, as used by
// timers_config.yaml's daily_reset.time and session_hours.start/end.
func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid HH:MM value %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid HH:MM value %q: %w", s, err)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid HH:MM value %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid HH:MM value %q", s)
	}
	return hour, minute, nil
}

// nextDailyOccurrence returns the next time hour:minute occurs at or after
// now, in loc. If now is already past today's occurrence, it rolls to
// tomorrow. Used by rules 003/013's "lockout until next daily reset".
func nextDailyOccurrence(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// nextSessionStart: if now is before today's session start on a weekday,
// today's start; otherwise roll forward a day and skip Saturday/Sunday.
func nextSessionStart(now time.Time, hour, minute int, loc *time.Location, skipWeekends bool) time.Time {
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)

	isWeekday := local.Weekday() != time.Saturday && local.Weekday() != time.Sunday
	if local.Before(candidate) && isWeekday {
		return candidate
	}

	candidate = candidate.AddDate(0, 0, 1)
	if skipWeekends {
		for candidate.Weekday() == time.Saturday || candidate.Weekday() == time.Sunday {
			candidate = candidate.AddDate(0, 0, 1)
		}
	}
	return candidate
}
