package line

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
)

//go:embed traces/startup.csv
var defaultTrace []byte

// ReplayEvent is one recorded line state, applied after Delay has elapsed
// since the previous event.
type ReplayEvent struct {
	Delay  time.Duration
	Data   gpio.Level
	Clock  gpio.Level
	Enable gpio.Level
}

// openTrace opens the trace at path, or the built-in trace when path is empty.
func openTrace(path string) (io.ReadCloser, error) {
	if path == "" {
		return io.NopCloser(bytes.NewReader(defaultTrace)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTraceMissing, err)
	}
	return f, nil
}

// LoadTrace opens and parses the trace asset of l.
func LoadTrace(l Lines) ([]ReplayEvent, error) {
	rc, err := l.TraceAsset()
	if err != nil {
		if errors.Is(err, ErrTraceMissing) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTraceMissing, err)
	}
	defer rc.Close()
	return ParseTrace(rc)
}

// ParseTrace reads a trace in CSV form:
//
//	relative_delay_seconds,data,clock,enable
//	0.000012,1,0,1
//
// The header row is optional and lines starting with '#' are ignored. Levels
// are 0 or 1. A trace without events is malformed.
func ParseTrace(r io.Reader) ([]ReplayEvent, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 4
	cr.TrimLeadingSpace = true

	var events []ReplayEvent
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTraceMalformed, err)
		}
		if row == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "relative_delay_seconds") {
			continue
		}
		ev, err := parseEvent(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d: %w", ErrTraceMalformed, line, err)
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: no events", ErrTraceMalformed)
	}
	return events, nil
}

func parseEvent(rec []string) (ReplayEvent, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
	if err != nil {
		return ReplayEvent{}, fmt.Errorf("delay %q: %w", rec[0], err)
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return ReplayEvent{}, fmt.Errorf("delay %q is not finite", rec[0])
	}
	ns := secs * float64(time.Second)
	if ns >= math.MaxInt64 || ns <= math.MinInt64 {
		return ReplayEvent{}, fmt.Errorf("delay %q is out of range", rec[0])
	}

	var levels [3]gpio.Level
	for i, f := range rec[1:] {
		switch strings.TrimSpace(f) {
		case "0":
			levels[i] = gpio.Low
		case "1":
			levels[i] = gpio.High
		default:
			return ReplayEvent{}, fmt.Errorf("%s level %q must be 0 or 1", ID(i), f)
		}
	}
	return ReplayEvent{
		Delay:  time.Duration(ns),
		Data:   levels[Data],
		Clock:  levels[Clock],
		Enable: levels[Enable],
	}, nil
}
