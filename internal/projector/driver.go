// Package projector ties the frame encoder to the line transport. A Driver is
// the only thing the rest of the program talks to when it wants digits on the
// wall.
package projector

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"projclock/internal/line"
	appLog "projclock/internal/log"
	"projclock/internal/protocol"
)

var ErrNotInitialized = errors.New("projector: driver not initialized")

// Options tunes a Driver. The zero value is ready to use.
type Options struct {
	// Sleep replaces real-time delays; nil means line.Delay.
	Sleep func(time.Duration)
}

// Status is a snapshot of the driver for diagnostics.
type Status struct {
	Profile     string    `json:"profile"`
	FrameBits   int       `json:"frame_bits"`
	Lines       string    `json:"lines"`
	Initialized bool      `json:"initialized"`
	LastBits    string    `json:"last_bits,omitempty"`
	LastSent    time.Time `json:"last_sent"`
	Sent        uint64    `json:"sent"`
	Faults      uint64    `json:"faults"`
}

// Driver owns one display: its profile and its three lines.
//
// All transfers, and the startup replay, run under a single lock. A transfer
// is never interrupted once started.
type Driver struct {
	profile   *protocol.Profile
	lines     line.Lines
	transport *line.Transport
	sleep     func(time.Duration)

	mu          sync.Mutex
	initialized bool
	lastBits    []bool
	lastSent    time.Time
	sent        uint64
	faults      uint64
}

// New validates the profile and returns a Driver that is not yet initialized.
func New(p *protocol.Profile, l line.Lines, opts Options) (*Driver, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		return nil, errors.New("projector: no lines")
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = line.Delay
	}
	return &Driver{
		profile:   p,
		lines:     l,
		transport: line.NewTransport(l).WithSleep(sleep),
		sleep:     sleep,
	}, nil
}

// Profile returns the driver's hardware profile.
func (d *Driver) Profile() *protocol.Profile {
	return d.profile
}

// Init replays the startup trace and leaves all lines idle high. It must
// succeed before anything can be sent; a missing or malformed trace is fatal.
// Calling Init again is a no-op.
func (d *Driver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return nil
	}

	events, err := line.LoadTrace(d.lines)
	if err != nil {
		return fmt.Errorf("projector: load startup trace: %w", err)
	}
	start := time.Now()
	if err := line.Replay(d.lines, events, d.sleep); err != nil {
		transportFaults.Inc()
		return fmt.Errorf("projector: startup replay: %w", err)
	}
	if err := d.transport.Idle(); err != nil {
		transportFaults.Inc()
		return fmt.Errorf("projector: idle after replay: %w", err)
	}
	d.initialized = true
	appLog.Info("projector initialized",
		"profile", d.profile.Name,
		"frame_bits", d.profile.FrameBits,
		"replay_events", len(events),
		"replay_took", time.Since(start).String(),
	)
	return nil
}

// SendTime shows hours:minutes.
func (d *Driver) SendTime(hours, minutes int) error {
	f, err := protocol.Encode(d.profile, hours, minutes)
	if err != nil {
		return err
	}
	if appLog.Enabled(appLog.LevelDebug) {
		appLog.Debug("sending time", "time", fmt.Sprintf("%02d:%02d", hours, minutes), "frame", f.String())
	}
	return d.transmit("time", protocol.Expand(d.profile, f))
}

// SendFrame sends an already encoded frame, applying the profile's framing.
func (d *Driver) SendFrame(f protocol.Frame) error {
	return d.transmit("frame", protocol.Expand(d.profile, f))
}

// SendRawFrame sends bits exactly as given. The string must hold exactly
// FrameBits '0'/'1' characters (spaces are ignored); framing bits, if the
// profile has one, are part of the string and must be 1.
func (d *Driver) SendRawFrame(bits string) error {
	parsed, err := protocol.ParseBits(d.profile, bits)
	if err != nil {
		return err
	}
	appLog.Info("sending raw frame", "bits", protocol.FormatBits(parsed))
	return d.transmit("raw", parsed)
}

func (d *Driver) transmit(kind string, bits []bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}

	start := time.Now()
	err := d.transport.Send(bits, d.profile.Timing)
	transferSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		d.faults++
		transportFaults.Inc()
		appLog.Error("projector transfer failed", err, "kind", kind)
		return err
	}
	d.sent++
	d.lastBits = bits
	d.lastSent = start
	framesSent.WithLabelValues(kind).Inc()
	return nil
}

// Status returns a snapshot for diagnostics.
func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := Status{
		Profile:     d.profile.Name,
		FrameBits:   d.profile.FrameBits,
		Lines:       fmt.Sprint(d.lines),
		Initialized: d.initialized,
		LastSent:    d.lastSent,
		Sent:        d.sent,
		Faults:      d.faults,
	}
	if d.lastBits != nil {
		st.LastBits = protocol.FormatBits(d.lastBits)
	}
	return st
}
