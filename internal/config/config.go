package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"projclock/internal/line"
	"projclock/internal/model"
	"projclock/internal/protocol"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// TimingConfig overrides a profile's line delays. Zero keeps the profile value.
type TimingConfig struct {
	Settle    time.Duration `yaml:"settle,omitempty" json:"settle,omitempty"`
	ClockLow  time.Duration `yaml:"clock_low,omitempty" json:"clock_low,omitempty"`
	ClockHigh time.Duration `yaml:"clock_high,omitempty" json:"clock_high,omitempty"`
}

// ProjectorConfig selects the display hardware and how to reach it.
type ProjectorConfig struct {
	// Profile is a built-in hardware profile name ("rev1", "rev2").
	Profile string `yaml:"profile" json:"profile"`

	// Backend is "gpio" for real pins or "log" to only log line changes.
	Backend string `yaml:"backend" json:"backend"`

	// Pins are periph pin names, e.g. "GPIO10".
	Pins line.PinNames `yaml:"pins" json:"pins"`

	// TracePath points at a startup trace CSV. Empty uses the built-in trace.
	TracePath string `yaml:"trace_path,omitempty" json:"trace_path,omitempty"`

	Timing TimingConfig `yaml:"timing,omitempty" json:"timing,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone the clock shows (e.g. "Europe/Zurich").
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Projector ProjectorConfig `yaml:"projector" json:"projector"`

	// Alarms always has exactly two slots after Normalize.
	Alarms []model.Alarm `yaml:"alarms" json:"alarms"`

	Stations []model.Station `yaml:"stations" json:"stations"`

	// DefaultStation is the station ID selected at startup and played on alarm.
	DefaultStation string `yaml:"default_station" json:"default_station"`

	// AutoStop stops playback this long after an alarm started it.
	// Zero disables the automatic stop.
	AutoStop time.Duration `yaml:"auto_stop" json:"auto_stop"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// AlarmSlots is the number of alarms the clock keeps.
const AlarmSlots = 2

func defaultStations() []model.Station {
	return []model.Station{
		{ID: "srf2", Name: "SRF 2", URL: "https://stream.srg-ssr.ch/drs2/aacp_96.m3u"},
		{ID: "fm4", Name: "FM4", URL: "https://orf-live.ors-shoutcast.at/fm4-q2a"},
		{ID: "br", Name: "BR Klassik", URL: "https://dispatcher.rndfnk.com/br/brklassik/live/mp3/mid"},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "Europe/Zurich",
		LogLevel: "info",
		Projector: ProjectorConfig{
			Profile: protocol.Rev1,
			Backend: "gpio",
			// MOSI, SCLK and CE0 on the Raspberry Pi header.
			Pins: line.PinNames{Data: "GPIO10", Clock: "GPIO11", Enable: "GPIO8"},
		},
		Alarms:         make([]model.Alarm, AlarmSlots),
		Stations:       defaultStations(),
		DefaultStation: "srf2",
		AutoStop:       10 * time.Minute,
		BasicAuth:      nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Projector.Profile == "" {
		c.Projector.Profile = def.Projector.Profile
	}
	c.Projector.Backend = strings.ToLower(strings.TrimSpace(c.Projector.Backend))
	if c.Projector.Backend == "" {
		c.Projector.Backend = def.Projector.Backend
	}
	if c.Projector.Pins == (line.PinNames{}) {
		c.Projector.Pins = def.Projector.Pins
	}

	// Pad or cut to exactly two slots; extra entries are dropped.
	if len(c.Alarms) > AlarmSlots {
		c.Alarms = c.Alarms[:AlarmSlots]
	}
	for len(c.Alarms) < AlarmSlots {
		c.Alarms = append(c.Alarms, model.Alarm{})
	}
	for i := range c.Alarms {
		c.Alarms[i].Days = model.NormalizeDays(c.Alarms[i].Days)
	}

	if c.Stations == nil {
		c.Stations = def.Stations
	}
	if c.DefaultStation == "" && len(c.Stations) > 0 {
		c.DefaultStation = c.Stations[0].ID
	}
	if c.AutoStop < 0 {
		c.AutoStop = 0
	}
}

// Validate reports every problem found in c. It does not modify c; call
// Normalize first.
func (c *Config) Validate() error {
	var errs []error

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel))
	}

	if _, err := protocol.ProfileByName(c.Projector.Profile); err != nil {
		errs = append(errs, fmt.Errorf("projector.profile: %w", err))
	}
	switch c.Projector.Backend {
	case "log":
	case "gpio":
		p := c.Projector.Pins
		if p.Data == "" || p.Clock == "" || p.Enable == "" {
			errs = append(errs, errors.New("projector.pins: data, clock and enable are required for the gpio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("projector.backend %q: want gpio or log", c.Projector.Backend))
	}
	t := c.Projector.Timing
	if t.Settle < 0 || t.ClockLow < 0 || t.ClockHigh < 0 {
		errs = append(errs, errors.New("projector.timing: delays must not be negative"))
	}

	if len(c.Alarms) != AlarmSlots {
		errs = append(errs, fmt.Errorf("alarms: want %d slots, got %d", AlarmSlots, len(c.Alarms)))
	}
	for i, a := range c.Alarms {
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("alarms[%d]: %w", i, err))
		}
	}

	seen := make(map[string]bool, len(c.Stations))
	for i, s := range c.Stations {
		switch {
		case s.ID == "":
			errs = append(errs, fmt.Errorf("stations[%d]: id is required", i))
		case seen[s.ID]:
			errs = append(errs, fmt.Errorf("stations[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("stations[%d]: url is required", i))
		}
	}
	if c.DefaultStation != "" && !seen[c.DefaultStation] {
		errs = append(errs, fmt.Errorf("default_station %q: no such station", c.DefaultStation))
	}

	return errors.Join(errs...)
}

// ProjectorProfile returns the configured built-in profile with any timing
// overrides applied.
func (c *Config) ProjectorProfile() (*protocol.Profile, error) {
	p, err := protocol.ProfileByName(c.Projector.Profile)
	if err != nil {
		return nil, err
	}
	t := c.Projector.Timing
	if t.Settle > 0 {
		p.Timing.Settle = t.Settle
	}
	if t.ClockLow > 0 {
		p.Timing.ClockLow = t.ClockLow
	}
	if t.ClockHigh > 0 {
		p.Timing.ClockHigh = t.ClockHigh
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Location returns the configured time zone, falling back to local time.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration atomically (temp file + rename) with
// 0600 permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".projclock-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
