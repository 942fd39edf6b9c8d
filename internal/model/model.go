package model

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidAlarm = errors.New("invalid alarm")

// Station is a playable radio stream.
type Station struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// URL is either a direct stream or an .m3u playlist pointing at one.
	URL string `yaml:"url" json:"url"`
}

// Alarm is one wake-up slot.
type Alarm struct {
	// Time is the local wall clock time as "HH:MM". Empty means unset.
	Time    string `yaml:"time" json:"time"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
	// Days restricts the alarm to these weekdays ("mon".."sun").
	// Empty means every day.
	Days []string `yaml:"days,omitempty" json:"days,omitempty"`
}

// Active reports whether the alarm should ring at all.
func (a Alarm) Active() bool {
	return a.Enabled && a.Time != ""
}

// Clock returns the alarm's hour and minute.
func (a Alarm) Clock() (hour, minute int, err error) {
	return ParseClock(a.Time)
}

// Validate checks Time and Days. An unset time is valid.
func (a Alarm) Validate() error {
	if a.Time != "" {
		if _, _, err := a.Clock(); err != nil {
			return err
		}
	}
	if a.Enabled && a.Time == "" {
		return fmt.Errorf("%w: enabled without a time", ErrInvalidAlarm)
	}
	_, err := ParseDays(a.Days)
	return err
}

// Weekdays returns the days the alarm rings on, Sunday first. Invalid names
// are skipped; use Validate to catch them.
func (a Alarm) Weekdays() []time.Weekday {
	days, _ := ParseDays(a.Days)
	if len(days) == 0 {
		return allDays()
	}
	return days
}

// ParseClock parses "HH:MM" (24 hour, H or HH).
func ParseClock(s string) (hour, minute int, err error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(ms) != 2 || hs == "" || len(hs) > 2 {
		return 0, 0, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidAlarm, s)
	}
	hour, herr := strconv.Atoi(hs)
	minute, merr := strconv.Atoi(ms)
	if herr != nil || merr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidAlarm, s)
	}
	return hour, minute, nil
}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

func allDays() []time.Weekday {
	return []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}
}

// ParseDays maps day names (first three letters, any case) to weekdays,
// sorted and de-duplicated.
func ParseDays(names []string) ([]time.Weekday, error) {
	set := make(map[time.Weekday]bool, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := dayNames[key]
		if !ok {
			return nil, fmt.Errorf("%w: unknown day %q", ErrInvalidAlarm, n)
		}
		set[d] = true
	}
	days := make([]time.Weekday, 0, len(set))
	for d := range set {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

// NormalizeDays rewrites names to their short lower-case form. A list naming
// every day becomes nil. Invalid input is returned unchanged.
func NormalizeDays(names []string) []string {
	days, err := ParseDays(names)
	if err != nil {
		return names
	}
	if len(days) == 0 || len(days) == 7 {
		return nil
	}
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = strings.ToLower(d.String()[:3])
	}
	return out
}
