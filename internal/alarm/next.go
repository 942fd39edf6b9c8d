package alarm

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"projclock/internal/model"
)

// Next is the next alarm to ring.
type Next struct {
	Slot int       `json:"slot"`
	Time string    `json:"time"`
	At   time.Time `json:"at"`
}

var rruleDays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// recurrence returns a's weekly rule starting on from's date in loc.
func recurrence(a model.Alarm, from time.Time, loc *time.Location) (*rrule.RRule, error) {
	h, m, err := a.Clock()
	if err != nil {
		return nil, err
	}
	from = from.In(loc)
	var days []rrule.Weekday
	for _, d := range a.Weekdays() {
		days = append(days, rruleDays[d])
	}
	return rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc),
		Byweekday: days,
		Byhour:    []int{h},
		Byminute:  []int{m},
		Bysecond:  []int{0},
	})
}

// NextAlarm returns the earliest ring strictly after now over all active
// slots. Equal times go to the lower slot.
func (s *Scheduler) NextAlarm(now time.Time) (Next, bool) {
	var (
		best  Next
		found bool
	)
	for i, a := range s.Alarms() {
		if !a.Active() {
			continue
		}
		r, err := recurrence(a, now, s.loc)
		if err != nil {
			continue
		}
		at := r.After(now, false)
		if at.IsZero() {
			continue
		}
		if !found || at.Before(best.At) {
			best = Next{Slot: i, Time: a.Time, At: at}
			found = true
		}
	}
	return best, found
}

// Calendar renders the active alarms as an iCalendar feed, one recurring
// event per slot, so they show up next to other calendars.
func (s *Scheduler) Calendar(now time.Time) (string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//projclock//alarms//EN")

	length := s.autoStop
	if length < time.Minute {
		length = time.Minute
	}
	tzid := ical.KeyValues{Key: "TZID", Value: []string{s.loc.String()}}
	const local = "20060102T150405"

	for i, a := range s.Alarms() {
		if !a.Active() {
			continue
		}
		r, err := recurrence(a, now, s.loc)
		if err != nil {
			return "", fmt.Errorf("alarm: slot %d: %w", i, err)
		}
		first := r.After(now, false)
		if first.IsZero() {
			continue
		}

		ev := cal.AddEvent(fmt.Sprintf("alarm-%d@projclock", i))
		ev.SetDtStampTime(now)
		ev.SetSummary(fmt.Sprintf("Alarm %d", i+1))
		ev.SetProperty(ical.ComponentPropertyDtStart, first.Format(local), &tzid)
		ev.SetProperty(ical.ComponentPropertyDtEnd, first.Add(length).Format(local), &tzid)
		ev.AddProperty(ical.ComponentPropertyRrule, r.OrigOptions.RRuleString())
	}
	return cal.Serialize(), nil
}
