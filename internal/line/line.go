// Package line drives the three output lines of the projector (data, clock,
// enable): the bit-banged transfer of one frame, and the replay of the
// recorded power-up sequence.
//
// Hardware access goes through the Lines capability so that the same code runs
// against real GPIO pins (periph.io) or against a logging stand-in when no
// display is attached.
package line

import (
	"errors"
	"fmt"
	"io"

	"periph.io/x/conn/v3/gpio"
)

// ID identifies one of the three protocol lines.
type ID int

const (
	Data ID = iota
	Clock
	Enable
)

// All lists the lines in the order they are written when several change.
var All = [3]ID{Data, Clock, Enable}

func (id ID) String() string {
	switch id {
	case Data:
		return "data"
	case Clock:
		return "clock"
	case Enable:
		return "enable"
	default:
		return fmt.Sprintf("line(%d)", int(id))
	}
}

// Idle is the resting level of every line between transfers.
const Idle = gpio.High

// EnableAsserted is the enable level for the duration of a transfer.
const EnableAsserted = gpio.Low

// Lines is the hardware capability used by Transport and Replay.
type Lines interface {
	// SetLine drives one line to level.
	SetLine(id ID, level gpio.Level) error
	// TraceAsset opens the recorded startup sequence for this device.
	TraceAsset() (io.ReadCloser, error)
}

var (
	// ErrTransportFault wraps any failure to drive a line.
	ErrTransportFault = errors.New("line: transport fault")
	// ErrTraceMissing is returned when the startup trace cannot be opened.
	ErrTraceMissing = errors.New("line: startup trace unavailable")
	// ErrTraceMalformed is returned for a trace that cannot be parsed.
	ErrTraceMalformed = errors.New("line: malformed startup trace")
)
