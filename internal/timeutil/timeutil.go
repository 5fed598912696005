package timeutil

import (
	"log"
	"strings"
	"time"
)

// Location is the business timezone used for dates shown to operators.
// Defaults to UTC until SetLocation is called from config.
var Location = time.UTC

// SetLocation switches the business timezone (e.g. "Europe/London").
// An unknown name keeps the current location.
func SetLocation(name string) {
	if name == "" {
		return
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("[Time] Unknown timezone %q, keeping %s", name, Location)
		return
	}
	Location = loc
}

// Now returns the current time in the business timezone
func Now() time.Time {
	return time.Now().In(Location)
}

// StartOfDay returns 00:00:00 of t's calendar day in the business timezone
func StartOfDay(t time.Time) time.Time {
	l := t.In(Location)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, Location)
}

// ParseDate accepts a plain ISO date or a full RFC 3339 timestamp and
// returns the calendar day it names
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.ParseInLocation(DateLayout, value, Location); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return StartOfDay(t), nil
}

// FormatDate formats t as an ISO date in the business timezone
func FormatDate(t time.Time) string {
	return t.In(Location).Format(DateLayout)
}

// Common layouts
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
	DisplayLayout  = "02 Jan 2006"
)
