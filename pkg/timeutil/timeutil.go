// Package timeutil provides clock, time-of-day and timezone helpers used by
// the matching service.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Clock abstracts the current time so queue decay and expiry are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ManualClock is a Clock whose time only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a ManualClock starting at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// ParseClock parses an "HH:MM" time of day into minutes after midnight.
// "24:00" is accepted as end of day.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("time of day %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("time of day %q: bad hour: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("time of day %q: bad minute: %w", s, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time of day %q: out of range", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes after midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// IntervalOverlap returns the overlap in units of two half-open intervals.
// Touching intervals overlap by zero.
func IntervalOverlap(startA, endA, startB, endB int) int {
	lo := max(startA, startB)
	hi := min(endA, endB)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// ResolveLocation accepts an IANA zone name ("America/New_York") or a fixed
// offset of the form "UTC+05:30", "UTC-3", "GMT+1".
func ResolveLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty timezone")
	}
	upper := strings.ToUpper(name)
	for _, prefix := range []string{"UTC", "GMT"} {
		if rest, ok := strings.CutPrefix(upper, prefix); ok && rest != "" {
			offset, err := parseOffset(rest)
			if err != nil {
				return nil, fmt.Errorf("timezone %q: %w", name, err)
			}
			return time.FixedZone(name, offset), nil
		}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

func parseOffset(s string) (int, error) {
	sign := 1
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("offset must start with + or -")
	}
	s = s[1:]
	hh, mm, hasMinutes := strings.Cut(s, ":")
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 14 {
		return 0, fmt.Errorf("bad offset hours %q", hh)
	}
	m := 0
	if hasMinutes {
		m, err = strconv.Atoi(mm)
		if err != nil || m < 0 || m > 59 {
			return 0, fmt.Errorf("bad offset minutes %q", mm)
		}
	}
	return sign * (h*3600 + m*60), nil
}

// OffsetHours returns the UTC offset of loc at instant t, in hours.
func OffsetHours(loc *time.Location, t time.Time) float64 {
	_, secs := t.In(loc).Zone()
	return float64(secs) / 3600
}

// MinutesBetween returns the fractional minutes from a to b, never negative.
func MinutesBetween(a, b time.Time) float64 {
	d := b.Sub(a)
	if d < 0 {
		return 0
	}
	return d.Minutes()
}

// HourOfDayUTC returns the UTC hour (0-23) of t.
func HourOfDayUTC(t time.Time) int {
	return t.UTC().Hour()
}

// FormatRelative returns a human-readable duration such as "3 min" or "1 h 5 min".
func FormatRelative(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Minute:
		return "less than a minute"
	case d < time.Hour:
		return fmt.Sprintf("%d min", int(d.Minutes()))
	default:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m == 0 {
			return fmt.Sprintf("%d h", h)
		}
		return fmt.Sprintf("%d h %d min", h, m)
	}
}
