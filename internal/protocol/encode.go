package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput     = errors.New("protocol: time out of range")
	ErrInvalidLength    = errors.New("protocol: wrong number of bits")
	ErrInvalidCharacter = errors.New("protocol: bit string may only contain '0' and '1'")
	ErrInvalidFraming   = errors.New("protocol: framing bit must be 1")
)

// Frame is one complete clock event, as sent on the wire (MSB first).
type Frame [FrameSize]byte

// String renders the frame as space separated binary bytes,
// e.g. "10101100 00110100 00110100 00110100 00000000".
func (f Frame) String() string {
	var b strings.Builder
	for i, v := range f {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%08b", v)
	}
	return b.String()
}

func (f *Frame) set(loc Location) {
	f[loc.Byte] |= loc.mask()
}

// Encode builds the frame showing hours:minutes on the given profile.
func Encode(p *Profile, hours, minutes int) (Frame, error) {
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return Frame{}, fmt.Errorf("%w: %d:%d", ErrInvalidInput, hours, minutes)
	}

	f := p.BaseFrame

	for _, loc := range p.HourTens[hours/10] {
		f.set(loc)
	}

	digits := map[DigitPosition]int{
		HourOnes:   hours % 10,
		MinuteTens: minutes / 10,
		MinuteOnes: minutes % 10,
	}
	for _, pos := range DigitPositions {
		segs, err := SegmentsFor(digits[pos])
		if err != nil {
			return Frame{}, err
		}
		for _, s := range segs {
			loc, err := p.LocationOf(pos, s)
			if err != nil {
				return Frame{}, err
			}
			f.set(loc)
		}
	}
	return f, nil
}

// Expand turns a frame into the bit sequence shifted onto the data line,
// prefixing the framing bit when the profile uses one.
func Expand(p *Profile, f Frame) []bool {
	bits := make([]bool, 0, p.FrameBits)
	if p.FrameBits > FrameSize*8 {
		bits = append(bits, p.FramingBit)
	}
	for _, v := range f {
		for i := 7; i >= 0; i-- {
			bits = append(bits, v&(1<<uint(i)) != 0)
		}
	}
	return bits
}

// ParseBits validates a raw diagnostic bit string for profile p. Spaces are
// ignored so that the output of Frame.String can be pasted back.
func ParseBits(p *Profile, s string) ([]bool, error) {
	bits := make([]bool, 0, p.FrameBits)
	for i, r := range s {
		switch r {
		case ' ':
		case '0':
			bits = append(bits, false)
		case '1':
			bits = append(bits, true)
		default:
			return nil, fmt.Errorf("%w: %q at offset %d", ErrInvalidCharacter, r, i)
		}
	}
	if len(bits) != p.FrameBits {
		return nil, fmt.Errorf("%w: got %d, profile %q needs %d", ErrInvalidLength, len(bits), p.Name, p.FrameBits)
	}
	if p.FramingBit && !bits[0] {
		return nil, fmt.Errorf("%w: profile %q", ErrInvalidFraming, p.Name)
	}
	return bits, nil
}

// FormatBits is the inverse of ParseBits.
func FormatBits(bits []bool) string {
	b := make([]byte, len(bits))
	for i, v := range bits {
		b[i] = '0'
		if v {
			b[i] = '1'
		}
	}
	return string(b)
}
