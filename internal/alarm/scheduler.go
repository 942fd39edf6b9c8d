// Package alarm runs the clock: a once-a-second display refresh and the
// wake-up alarms, both on one cron scheduler.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "projclock/internal/log"
	"projclock/internal/model"
)

var ErrNoSuchSlot = errors.New("alarm: no such slot")

// Display shows a time of day.
type Display interface {
	SendTime(hours, minutes int) error
}

// Waker is started when an alarm goes off and should stop by itself after d.
type Waker interface {
	Wake(ctx context.Context, d time.Duration) error
}

type Options struct {
	// Location is the zone the clock shows and alarms ring in. Nil means local.
	Location *time.Location
	// AutoStop is passed to Waker.Wake.
	AutoStop time.Duration
	// Now replaces time.Now for the display refresh.
	Now func() time.Time
}

// Scheduler owns the cron instance. Alarm slots are fixed at construction.
type Scheduler struct {
	cron     *cron.Cron
	display  Display
	waker    Waker
	loc      *time.Location
	autoStop time.Duration
	now      func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	alarms  []model.Alarm
	entries []cron.EntryID
	tick    cron.EntryID
}

// New builds a stopped scheduler with one slot per element of alarms.
func New(display Display, waker Waker, alarms []model.Alarm, opts Options) (*Scheduler, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	l := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l)),
		),
		display:  display,
		waker:    waker,
		loc:      loc,
		autoStop: opts.AutoStop,
		now:      now,
		ctx:      context.Background(),
		alarms:   make([]model.Alarm, len(alarms)),
		entries:  make([]cron.EntryID, len(alarms)),
	}

	// Refresh on every wall-clock second so minute changes show at :00.
	// A slow transfer must not pile up refreshes behind the driver lock.
	tick := cron.NewChain(cron.SkipIfStillRunning(l)).Then(cron.FuncJob(s.Tick))
	id, err := s.cron.AddJob("* * * * * *", tick)
	if err != nil {
		return nil, fmt.Errorf("alarm: schedule display refresh: %w", err)
	}
	s.tick = id
	for i, a := range alarms {
		if err := s.SetAlarm(i, a); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start runs the scheduler until Stop. ctx is handed to the Waker.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	appLog.Info("scheduler started", "zone", s.loc.String())
}

// Stop stops scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Tick shows the current time. A failed transfer is logged and left to the
// next tick.
func (s *Scheduler) Tick() {
	t := s.now().In(s.loc)
	if err := s.display.SendTime(t.Hour(), t.Minute()); err != nil {
		appLog.Error("display refresh failed", err, "time", t.Format("15:04"))
	}
}

// SetAlarm replaces slot idx and reschedules it. Inactive alarms are kept but
// never ring.
func (s *Scheduler) SetAlarm(idx int, a model.Alarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.alarms) {
		return fmt.Errorf("%w: %d", ErrNoSuchSlot, idx)
	}
	if err := a.Validate(); err != nil {
		return err
	}
	a.Days = model.NormalizeDays(a.Days)

	if s.entries[idx] != 0 {
		s.cron.Remove(s.entries[idx])
		s.entries[idx] = 0
	}
	if a.Active() {
		spec, err := cronSpec(a)
		if err != nil {
			return err
		}
		id, err := s.cron.AddFunc(spec, func() { s.fire(idx) })
		if err != nil {
			return fmt.Errorf("alarm: schedule slot %d: %w", idx, err)
		}
		s.entries[idx] = id
	}
	s.alarms[idx] = a
	appLog.Info("alarm set", "slot", idx, "time", a.Time, "enabled", a.Enabled, "days", strings.Join(a.Days, ","))
	return nil
}

// Alarms returns a copy of all slots.
func (s *Scheduler) Alarms() []model.Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Alarm, len(s.alarms))
	copy(out, s.alarms)
	return out
}

// Location is the zone alarms ring in.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

func (s *Scheduler) fire(idx int) {
	s.mu.Lock()
	ctx := s.ctx
	a := s.alarms[idx]
	s.mu.Unlock()

	appLog.Info("alarm", "slot", idx, "time", a.Time)
	if err := s.waker.Wake(ctx, s.autoStop); err != nil {
		appLog.Error("alarm wake failed", err, "slot", idx)
	}
}

// cronSpec turns an alarm into "sec min hour dom month dow".
func cronSpec(a model.Alarm) (string, error) {
	h, m, err := a.Clock()
	if err != nil {
		return "", err
	}
	dow := "*"
	if days, _ := model.ParseDays(a.Days); len(days) > 0 && len(days) < 7 {
		parts := make([]string, len(days))
		for i, d := range days {
			parts[i] = strconv.Itoa(int(d))
		}
		dow = strings.Join(parts, ",")
	}
	return fmt.Sprintf("0 %d %d * * %s", m, h, dow), nil
}

// cronLogger routes cron's own messages to the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
