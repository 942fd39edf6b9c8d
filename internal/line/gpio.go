package line

import (
	"fmt"
	"io"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PinNames are periph.io pin names (e.g. "GPIO10") for the three lines.
type PinNames struct {
	Data   string `yaml:"data" json:"data"`
	Clock  string `yaml:"clock" json:"clock"`
	Enable string `yaml:"enable" json:"enable"`
}

// GPIOLines drives real output pins.
type GPIOLines struct {
	pins      [3]gpio.PinOut
	tracePath string
}

// OpenGPIO initializes periph.io and resolves the three pins by name.
//
// Pins are configured as outputs driven low: the display expects the startup
// replay, not the idle-high state, right after power up. tracePath may be
// empty to use the built-in trace.
func OpenGPIO(names PinNames, tracePath string) (*GPIOLines, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("line: periph host init failed: %w", err)
	}

	resolve := func(id ID, name string) (gpio.PinOut, error) {
		if name == "" {
			return nil, fmt.Errorf("line: no pin configured for %s", id)
		}
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("line: gpio %s (%s) not found", name, id)
		}
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("line: gpio %s (%s) Out failed: %w", name, id, err)
		}
		return p, nil
	}

	var pins [3]gpio.PinOut
	for id, name := range map[ID]string{Data: names.Data, Clock: names.Clock, Enable: names.Enable} {
		p, err := resolve(id, name)
		if err != nil {
			return nil, err
		}
		pins[id] = p
	}
	return NewGPIO(pins[Data], pins[Clock], pins[Enable], tracePath), nil
}

// NewGPIO wraps already configured pins.
func NewGPIO(data, clock, enable gpio.PinOut, tracePath string) *GPIOLines {
	return &GPIOLines{
		pins:      [3]gpio.PinOut{Data: data, Clock: clock, Enable: enable},
		tracePath: tracePath,
	}
}

// SetLine implements Lines.
func (g *GPIOLines) SetLine(id ID, level gpio.Level) error {
	if id < Data || id > Enable {
		return fmt.Errorf("line: unknown line %d", int(id))
	}
	if err := g.pins[id].Out(level); err != nil {
		return fmt.Errorf("line: %s (%s) Out(%s): %w", id, g.pins[id], level, err)
	}
	return nil
}

// TraceAsset implements Lines.
func (g *GPIOLines) TraceAsset() (io.ReadCloser, error) {
	return openTrace(g.tracePath)
}

func (g *GPIOLines) String() string {
	return fmt.Sprintf("gpio(data=%s clock=%s enable=%s)", g.pins[Data], g.pins[Clock], g.pins[Enable])
}
