package protocol

import (
	"errors"
	"fmt"
	"time"
)

// FrameSize is the number of data bytes in every frame.
const FrameSize = 5

// DigitPosition is one of the three digits rendered through a SegmentMap.
// The tens-of-hours digit is not a glyph; see Profile.HourTens.
type DigitPosition int

const (
	HourOnes DigitPosition = iota
	MinuteTens
	MinuteOnes
)

// DigitPositions lists the addressable positions in display order.
var DigitPositions = [3]DigitPosition{HourOnes, MinuteTens, MinuteOnes}

func (p DigitPosition) String() string {
	switch p {
	case HourOnes:
		return "hour-ones"
	case MinuteTens:
		return "minute-tens"
	case MinuteOnes:
		return "minute-ones"
	default:
		return fmt.Sprintf("DigitPosition(%d)", int(p))
	}
}

// Location is a single bit inside a frame. Bit 7 is the most significant.
type Location struct {
	Byte int
	Bit  int
}

func (l Location) valid() bool {
	return l.Byte >= 0 && l.Byte < FrameSize && l.Bit >= 0 && l.Bit <= 7
}

func (l Location) mask() byte {
	return 1 << uint(l.Bit)
}

func (l Location) String() string {
	return fmt.Sprintf("byte %d bit %d", l.Byte, l.Bit)
}

// SegmentMap places the seven segments of one digit position.
type SegmentMap map[Segment]Location

// Timing holds the per-revision line delays used while shifting a frame.
type Timing struct {
	// Settle elapses after enable is asserted and around deassertion.
	Settle time.Duration
	// ClockLow and ClockHigh are the two phases of every clock pulse.
	ClockLow  time.Duration
	ClockHigh time.Duration
}

// Profile describes one hardware revision of the display. Profiles are
// values; Encode never mutates them.
type Profile struct {
	Name string

	// BaseFrame holds the bits that are always set, including the header
	// byte and the filler bits whose meaning is unknown.
	BaseFrame Frame

	// HourTens maps the tens-of-hours value (0, 1 or 2) to extra bits.
	HourTens map[int][]Location

	Digits map[DigitPosition]SegmentMap

	// FrameBits is 40 (frame only) or 41 (FramingBit, then the frame).
	FrameBits  int
	FramingBit bool

	Timing Timing
}

var ErrBadProfile = errors.New("protocol: invalid profile")

// LocationOf returns where segment s of digit position pos lives in the frame.
func (p *Profile) LocationOf(pos DigitPosition, s Segment) (Location, error) {
	m, ok := p.Digits[pos]
	if !ok {
		return Location{}, fmt.Errorf("%w %q: no segment map for %s", ErrBadProfile, p.Name, pos)
	}
	loc, ok := m[s]
	if !ok {
		return Location{}, fmt.Errorf("%w %q: %s has no location for segment %s", ErrBadProfile, p.Name, pos, s)
	}
	return loc, nil
}

// Validate checks that the profile is complete and that no two bits overlap.
// A profile that fails validation must not be used.
func (p *Profile) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil profile", ErrBadProfile)
	}
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w %q: %s", ErrBadProfile, p.Name, fmt.Sprintf(format, args...))
	}

	switch p.FrameBits {
	case FrameSize * 8:
	case FrameSize*8 + 1:
	default:
		return bad("frame bits must be %d or %d, got %d", FrameSize*8, FrameSize*8+1, p.FrameBits)
	}
	if p.Timing.Settle < 0 || p.Timing.ClockLow < 0 || p.Timing.ClockHigh < 0 {
		return bad("negative timing %+v", p.Timing)
	}

	// owner records which element claims each bit.
	owner := make(map[Location]string)
	for _, pos := range DigitPositions {
		if _, ok := p.Digits[pos]; !ok {
			return bad("missing segment map for %s", pos)
		}
		if n := len(p.Digits[pos]); n != len(AllSegments) {
			return bad("%s has %d segments, want %d", pos, n, len(AllSegments))
		}
		for _, s := range AllSegments {
			loc, err := p.LocationOf(pos, s)
			if err != nil {
				return err
			}
			if !loc.valid() {
				return bad("%s segment %s out of range (%s)", pos, s, loc)
			}
			name := pos.String() + "/" + s.String()
			if prev, dup := owner[loc]; dup {
				return bad("%s and %s share %s", prev, name, loc)
			}
			if p.BaseFrame[loc.Byte]&loc.mask() != 0 {
				return bad("%s lands on constant bit %s", name, loc)
			}
			owner[loc] = name
		}
	}
	if len(p.Digits) != len(DigitPositions) {
		return bad("unexpected digit positions: %d maps", len(p.Digits))
	}

	for tens, locs := range p.HourTens {
		if tens < 0 || tens > 2 {
			return bad("hour tens value %d not in 0..2", tens)
		}
		for _, loc := range locs {
			if !loc.valid() {
				return bad("hour tens %d out of range (%s)", tens, loc)
			}
			if prev, dup := owner[loc]; dup {
				return bad("hour tens %d collides with %s at %s", tens, prev, loc)
			}
		}
	}
	return nil
}
