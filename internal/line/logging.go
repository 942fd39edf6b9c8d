package line

import (
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/gpio"

	appLog "projclock/internal/log"
)

// LogLines stands in for the hardware when no display is attached. Every
// level change is logged at debug level and the last level of each line is
// kept so callers can inspect it.
type LogLines struct {
	tracePath string

	mu      sync.Mutex
	levels  [3]gpio.Level
	changes int
}

// NewLogLines returns a LogLines with all lines low, like freshly configured
// pins. tracePath may be empty to use the built-in trace.
func NewLogLines(tracePath string) *LogLines {
	return &LogLines{tracePath: tracePath}
}

// SetLine implements Lines.
func (l *LogLines) SetLine(id ID, level gpio.Level) error {
	if id < Data || id > Enable {
		return fmt.Errorf("line: unknown line %d", int(id))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.levels[id] != level {
		appLog.Debug("line change", "line", id.String(), "level", level.String())
	}
	l.levels[id] = level
	l.changes++
	return nil
}

// TraceAsset implements Lines.
func (l *LogLines) TraceAsset() (io.ReadCloser, error) {
	return openTrace(l.tracePath)
}

// Levels returns the current data, clock and enable levels.
func (l *LogLines) Levels() [3]gpio.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.levels
}

// Writes returns how many SetLine calls have been made.
func (l *LogLines) Writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changes
}

func (l *LogLines) String() string {
	return "log"
}
