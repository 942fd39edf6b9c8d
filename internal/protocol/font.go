// Package protocol builds the 5-byte frames understood by the projector clock
// display. It knows nothing about lines or timing; see internal/line for the
// wire side.
package protocol

import (
	"errors"
	"fmt"
)

// Segment names one element of a 7-segment digit.
type Segment int

const (
	SegA Segment = iota // top
	SegB                // top right
	SegC                // bottom right
	SegD                // bottom
	SegE                // bottom left
	SegF                // top left
	SegG                // middle
)

// AllSegments lists the segments in A..G order.
var AllSegments = [7]Segment{SegA, SegB, SegC, SegD, SegE, SegF, SegG}

func (s Segment) String() string {
	if s < SegA || s > SegG {
		return fmt.Sprintf("Segment(%d)", int(s))
	}
	return string(rune('A' + int(s)))
}

var ErrInvalidDigit = errors.New("protocol: digit must be between 0 and 9")

// digitGlyphs is the standard 7-segment font.
var digitGlyphs = [10][]Segment{
	0: {SegA, SegB, SegC, SegD, SegE, SegF},
	1: {SegB, SegC},
	2: {SegA, SegB, SegD, SegE, SegG},
	3: {SegA, SegB, SegC, SegD, SegG},
	4: {SegB, SegC, SegF, SegG},
	5: {SegA, SegC, SegD, SegF, SegG},
	6: {SegA, SegC, SegD, SegE, SegF, SegG},
	7: {SegA, SegB, SegC},
	8: {SegA, SegB, SegC, SegD, SegE, SegF, SegG},
	9: {SegA, SegB, SegC, SegD, SegF, SegG},
}

// SegmentsFor returns the segments lit for digit. The returned slice is a
// copy and may be modified by the caller.
func SegmentsFor(digit int) ([]Segment, error) {
	if digit < 0 || digit > 9 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDigit, digit)
	}
	out := make([]Segment, len(digitGlyphs[digit]))
	copy(out, digitGlyphs[digit])
	return out, nil
}
