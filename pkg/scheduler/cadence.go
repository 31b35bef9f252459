package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// Cadence describes when a recurring job fires. Three forms are accepted:
//
//	@every <duration>      e.g. "@every 30m"
//	@daily HH:MM           e.g. "@daily 08:00"
//	@weekly <Day> HH:MM    e.g. "@weekly Mon 07:00"
type Cadence struct {
	kind    cadenceKind
	every   time.Duration
	weekday time.Weekday
	hour    int
	minute  int
	text    string
}

type cadenceKind int

const (
	cadenceEvery cadenceKind = iota
	cadenceDaily
	cadenceWeekly
)

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// ParseCadence parses a cadence string.
func ParseCadence(s string) (Cadence, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return Cadence{}, fmt.Errorf("invalid cadence %q", s)
	}
	switch fields[0] {
	case "@every":
		d, err := time.ParseDuration(fields[1])
		if err != nil || d <= 0 {
			return Cadence{}, fmt.Errorf("invalid cadence %q: bad duration", s)
		}
		return Cadence{kind: cadenceEvery, every: d, text: s}, nil
	case "@daily":
		hour, minute, err := parseClock(fields[1])
		if err != nil {
			return Cadence{}, fmt.Errorf("invalid cadence %q: %v", s, err)
		}
		return Cadence{kind: cadenceDaily, hour: hour, minute: minute, text: s}, nil
	case "@weekly":
		if len(fields) < 3 {
			return Cadence{}, fmt.Errorf("invalid cadence %q: want @weekly <Day> HH:MM", s)
		}
		name := strings.ToLower(fields[1])
		if len(name) > 3 {
			name = name[:3]
		}
		day, ok := weekdays[name]
		if !ok {
			return Cadence{}, fmt.Errorf("invalid cadence %q: unknown weekday %q", s, fields[1])
		}
		hour, minute, err := parseClock(fields[2])
		if err != nil {
			return Cadence{}, fmt.Errorf("invalid cadence %q: %v", s, err)
		}
		return Cadence{kind: cadenceWeekly, weekday: day, hour: hour, minute: minute, text: s}, nil
	}
	return Cadence{}, fmt.Errorf("invalid cadence %q: unknown form %s", s, fields[0])
}

// MustCadence parses a cadence known at compile time.
func MustCadence(s string) Cadence {
	c, err := ParseCadence(s)
	if err != nil {
		panic(err)
	}
	return c
}

func parseClock(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("bad time %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", s)
	}
	return hour, minute, nil
}

// Next returns the first firing instant strictly after t.
func (c Cadence) Next(t time.Time) time.Time {
	switch c.kind {
	case cadenceEvery:
		return t.Add(c.every)
	case cadenceDaily:
		next := time.Date(t.Year(), t.Month(), t.Day(), c.hour, c.minute, 0, 0, t.Location())
		if !next.After(t) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	case cadenceWeekly:
		next := time.Date(t.Year(), t.Month(), t.Day(), c.hour, c.minute, 0, 0, t.Location())
		for next.Weekday() != c.weekday || !next.After(t) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
	return t
}

func (c Cadence) String() string { return c.text }
