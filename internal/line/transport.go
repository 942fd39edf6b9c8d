package line

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"

	"projclock/internal/protocol"
)

// spinLimit is the longest delay served by busy-waiting. The scheduler cannot
// honour sub-microsecond sleeps, so short delays spin on the monotonic clock.
const spinLimit = 100 * time.Microsecond

// Delay blocks the calling goroutine for d. It never yields early.
func Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	if d >= spinLimit {
		time.Sleep(d)
		return
	}
	start := time.Now()
	for time.Since(start) < d {
		// spin
	}
}

// Transport shifts bit sequences out over Lines.
//
// A transfer runs Idle -> Asserting -> Shifting -> Deasserting -> Idle and
// always ends with every line high. Transport holds no state between
// transfers; identical calls produce identical line sequences. It does not
// lock: callers serialize access to the lines.
type Transport struct {
	lines Lines
	sleep func(time.Duration)
}

// NewTransport returns a Transport that delays with Delay.
func NewTransport(l Lines) *Transport {
	return &Transport{lines: l, sleep: Delay}
}

// WithSleep replaces the delay function, mostly for tests.
func (t *Transport) WithSleep(sleep func(time.Duration)) *Transport {
	t.sleep = sleep
	return t
}

// Lines returns the underlying line capability.
func (t *Transport) Lines() Lines {
	return t.lines
}

func fault(phase string, err error) error {
	return fmt.Errorf("%w while %s: %w", ErrTransportFault, phase, err)
}

// Idle drives all three lines to their idle level.
func (t *Transport) Idle() error {
	for _, id := range All {
		if err := t.lines.SetLine(id, Idle); err != nil {
			return fault("idling", err)
		}
	}
	return nil
}

// Send shifts bits out MSB first with the given timing. On a line fault the
// transfer is abandoned, an attempt is made to return the lines to idle and
// the fault is returned; nothing is retried.
func (t *Transport) Send(bits []bool, tm protocol.Timing) error {
	if err := t.send(bits, tm); err != nil {
		if ierr := t.Idle(); ierr != nil {
			return errors.Join(err, ierr)
		}
		return err
	}
	return nil
}

func (t *Transport) send(bits []bool, tm protocol.Timing) error {
	// Asserting.
	if err := t.lines.SetLine(Enable, EnableAsserted); err != nil {
		return fault("asserting enable", err)
	}
	t.sleep(tm.Settle)

	// Shifting.
	for i, b := range bits {
		if err := t.shift(gpio.Level(b), tm); err != nil {
			return fault(fmt.Sprintf("shifting bit %d", i), err)
		}
	}

	// Deasserting.
	if err := t.lines.SetLine(Data, Idle); err != nil {
		return fault("releasing data", err)
	}
	t.sleep(tm.Settle)
	if err := t.lines.SetLine(Enable, Idle); err != nil {
		return fault("releasing enable", err)
	}
	t.sleep(tm.Settle)
	return nil
}

// shift presents one bit on the data line and pulses the clock low, then
// high.
func (t *Transport) shift(bit gpio.Level, tm protocol.Timing) error {
	if err := t.lines.SetLine(Data, bit); err != nil {
		return err
	}
	if err := t.lines.SetLine(Clock, gpio.Low); err != nil {
		return err
	}
	t.sleep(tm.ClockLow)
	if err := t.lines.SetLine(Clock, gpio.High); err != nil {
		return err
	}
	t.sleep(tm.ClockHigh)
	return nil
}
