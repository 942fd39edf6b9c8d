package line

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"projclock/internal/protocol"
)

type change struct {
	ID    ID
	Level gpio.Level
}

// recorder is a Lines that remembers every write. A non-zero failAt makes the
// failAt'th write (1-based) fail.
type recorder struct {
	changes []change
	levels  [3]gpio.Level
	failAt  int
	trace   string
}

var errPin = errors.New("pin exploded")

func (r *recorder) SetLine(id ID, level gpio.Level) error {
	if r.failAt > 0 && len(r.changes)+1 == r.failAt {
		r.failAt = 0
		return errPin
	}
	r.changes = append(r.changes, change{id, level})
	r.levels[id] = level
	return nil
}

func (r *recorder) TraceAsset() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(r.trace)), nil
}

type sleepLog []time.Duration

func (s *sleepLog) sleep(d time.Duration) { *s = append(*s, d) }

func TestSendSequence(t *testing.T) {
	rec := &recorder{}
	var slept sleepLog
	tm := protocol.Timing{Settle: 500, ClockLow: 200, ClockHigh: 700}

	if err := NewTransport(rec).WithSleep(slept.sleep).Send([]bool{true, false}, tm); err != nil {
		t.Fatal(err)
	}

	want := []change{
		{Enable, gpio.Low},
		{Data, gpio.High}, {Clock, gpio.Low}, {Clock, gpio.High},
		{Data, gpio.Low}, {Clock, gpio.Low}, {Clock, gpio.High},
		{Data, gpio.High},
		{Enable, gpio.High},
	}
	if diff := cmp.Diff(want, rec.changes); diff != "" {
		t.Errorf("line changes (-want +got):\n%s", diff)
	}
	wantSleeps := sleepLog{500, 200, 700, 200, 700, 500, 500}
	if diff := cmp.Diff(wantSleeps, slept); diff != "" {
		t.Errorf("delays (-want +got):\n%s", diff)
	}
}

func TestSendFrames(t *testing.T) {
	for _, name := range protocol.ProfileNames() {
		t.Run(name, func(t *testing.T) {
			p, err := protocol.ProfileByName(name)
			if err != nil {
				t.Fatal(err)
			}
			f, err := protocol.Encode(p, 21, 31)
			if err != nil {
				t.Fatal(err)
			}
			bits := protocol.Expand(p, f)

			rec := &recorder{levels: [3]gpio.Level{gpio.Low, gpio.Low, gpio.Low}}
			tr := NewTransport(rec).WithSleep(func(time.Duration) {})
			if err := tr.Send(bits, p.Timing); err != nil {
				t.Fatal(err)
			}

			var shifted []bool
			for i, c := range rec.changes {
				if c.ID == Clock && c.Level == gpio.Low {
					shifted = append(shifted, bool(rec.changes[i-1].Level))
				}
			}
			if len(shifted) != p.FrameBits {
				t.Errorf("shifted %d bits, want %d", len(shifted), p.FrameBits)
			}
			if diff := cmp.Diff(bits, shifted); diff != "" {
				t.Errorf("shifted bits (-want +got):\n%s", diff)
			}
			if p.FrameBits == 41 && !shifted[0] {
				t.Error("first bit of a 41-bit transfer must be 1")
			}
			if rec.levels != [3]gpio.Level{gpio.High, gpio.High, gpio.High} {
				t.Errorf("lines after transfer = %v, want all high", rec.levels)
			}

			// A second identical transfer produces the identical sequence.
			first := append([]change(nil), rec.changes...)
			rec.changes = nil
			if err := tr.Send(bits, p.Timing); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(first, rec.changes); diff != "" {
				t.Errorf("repeated transfer differs (-first +second):\n%s", diff)
			}
		})
	}
}

func TestSendFault(t *testing.T) {
	for _, failAt := range []int{1, 5, 9} {
		rec := &recorder{failAt: failAt}
		err := NewTransport(rec).WithSleep(func(time.Duration) {}).Send([]bool{true, false}, protocol.Timing{})
		if !errors.Is(err, ErrTransportFault) {
			t.Errorf("failAt %d: error = %v, want ErrTransportFault", failAt, err)
		}
		if !errors.Is(err, errPin) {
			t.Errorf("failAt %d: error = %v, want wrapped pin error", failAt, err)
		}
		if rec.levels != [3]gpio.Level{gpio.High, gpio.High, gpio.High} {
			t.Errorf("failAt %d: lines after fault = %v, want all high", failAt, rec.levels)
		}
	}
}

func TestGPIOLines(t *testing.T) {
	data := &gpiotest.Pin{N: "GPIO10", Num: 10}
	clock := &gpiotest.Pin{N: "GPIO11", Num: 11}
	enable := &gpiotest.Pin{N: "GPIO8", Num: 8}
	g := NewGPIO(data, clock, enable, "")

	events, err := LoadTrace(g)
	if err != nil {
		t.Fatalf("LoadTrace: %v", err)
	}
	tr := NewTransport(g).WithSleep(func(time.Duration) {})
	if err := Replay(g, events, func(time.Duration) {}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if err := tr.Idle(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Send([]bool{false, true, false}, protocol.Timing{}); err != nil {
		t.Fatal(err)
	}
	for _, p := range []*gpiotest.Pin{data, clock, enable} {
		if p.Read() != gpio.High {
			t.Errorf("%s = %s after transfer, want High", p, p.Read())
		}
	}
	if err := g.SetLine(ID(7), gpio.High); err == nil {
		t.Error("SetLine on unknown line should fail")
	}
}

func TestParseTrace(t *testing.T) {
	events, err := ParseTrace(strings.NewReader("# comment\nrelative_delay_seconds,data,clock,enable\n0,1,0,1\n0.5, 0, 1, 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	want := []ReplayEvent{
		{Delay: 0, Data: gpio.High, Clock: gpio.Low, Enable: gpio.High},
		{Delay: 500 * time.Millisecond, Data: gpio.Low, Clock: gpio.High, Enable: gpio.Low},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}

	if _, err := ParseTrace(strings.NewReader("0.1,1,1,1\n")); err != nil {
		t.Errorf("headerless trace: %v", err)
	}

	for name, body := range map[string]string{
		"empty":               "",
		"header only":         "relative_delay_seconds,data,clock,enable\n",
		"bad level":           "0,1,2,1\n",
		"bad delay":           "soon,1,1,1\n",
		"nan delay":           "NaN,1,1,1\n",
		"huge delay":          "1e20,1,1,1\n",
		"huge negative delay": "-1e20,1,1,1\n",
		"short row":           "0,1,1\n",
	} {
		if _, err := ParseTrace(strings.NewReader(body)); !errors.Is(err, ErrTraceMalformed) {
			t.Errorf("%s: error = %v, want ErrTraceMalformed", name, err)
		}
	}
}

func TestDefaultTrace(t *testing.T) {
	events, err := LoadTrace(NewLogLines(""))
	if err != nil {
		t.Fatalf("built-in trace: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("built-in trace is empty")
	}
}

func TestLoadTraceMissing(t *testing.T) {
	_, err := LoadTrace(NewLogLines("/nonexistent/startup.csv"))
	if !errors.Is(err, ErrTraceMissing) {
		t.Errorf("error = %v, want ErrTraceMissing", err)
	}
}

func TestReplay(t *testing.T) {
	rec := &recorder{}
	var slept sleepLog
	events := []ReplayEvent{
		{Delay: 0, Data: gpio.Low, Clock: gpio.Low, Enable: gpio.Low},
		{Delay: -time.Second, Data: gpio.High, Clock: gpio.Low, Enable: gpio.Low},
		{Delay: 3 * time.Millisecond, Data: gpio.High, Clock: gpio.High, Enable: gpio.Low},
	}
	if err := Replay(rec, events, slept.sleep); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(sleepLog{3 * time.Millisecond}, slept); diff != "" {
		t.Errorf("delays (-want +got):\n%s", diff)
	}
	want := []change{
		{Data, gpio.Low}, {Clock, gpio.Low}, {Enable, gpio.Low},
		{Data, gpio.High}, {Clock, gpio.Low}, {Enable, gpio.Low},
		{Data, gpio.High}, {Clock, gpio.High}, {Enable, gpio.Low},
	}
	if diff := cmp.Diff(want, rec.changes); diff != "" {
		t.Errorf("line changes (-want +got):\n%s", diff)
	}

	rec = &recorder{failAt: 2}
	if err := Replay(rec, events, slept.sleep); !errors.Is(err, ErrTransportFault) {
		t.Errorf("error = %v, want ErrTransportFault", err)
	}
}

func TestDelay(t *testing.T) {
	start := time.Now()
	Delay(20 * time.Microsecond)
	if el := time.Since(start); el < 20*time.Microsecond {
		t.Errorf("Delay(20µs) returned after %s", el)
	}
	Delay(-time.Second)
}
