package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"projclock/internal/model"
	"projclock/internal/protocol"
)

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("first-run config (-want +got):\n%s", diff)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perms = %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cfg, again); diff != "" {
		t.Errorf("reload (-first +second):\n%s", diff)
	}
}

func TestLoadNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
timezone: UTC
projector:
  profile: rev2
  backend: " LOG "
  timing:
    settle: 2us
alarms:
  - time: "06:45"
    enabled: true
    days: [Monday, tue, wed, thu, fri, sat, sun]
stations:
  - id: fm4
    name: FM4
    url: https://example.invalid/fm4
auto_stop: 15m
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Projector.Backend != "log" {
		t.Errorf("backend = %q, want log", cfg.Projector.Backend)
	}
	want := []model.Alarm{{Time: "06:45", Enabled: true}, {}}
	if diff := cmp.Diff(want, cfg.Alarms); diff != "" {
		t.Errorf("alarms (-want +got):\n%s", diff)
	}
	if cfg.DefaultStation != "fm4" {
		t.Errorf("default station = %q, want first station", cfg.DefaultStation)
	}
	if cfg.AutoStop != 15*time.Minute {
		t.Errorf("auto_stop = %v", cfg.AutoStop)
	}

	p, err := cfg.ProjectorProfile()
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != protocol.Rev2 || p.Timing.Settle != 2*time.Microsecond {
		t.Errorf("profile %s timing %+v", p.Name, p.Timing)
	}
	ref, _ := protocol.ProfileByName(protocol.Rev2)
	if p.Timing.ClockLow != ref.Timing.ClockLow {
		t.Errorf("unset override changed clock_low to %v", p.Timing.ClockLow)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad zone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad profile", func(c *Config) { c.Projector.Profile = "rev9" }, "projector.profile"},
		{"bad backend", func(c *Config) { c.Projector.Backend = "spi" }, "projector.backend"},
		{"missing pin", func(c *Config) { c.Projector.Pins.Clock = "" }, "projector.pins"},
		{"negative timing", func(c *Config) { c.Projector.Timing.ClockHigh = -1 }, "projector.timing"},
		{"bad alarm", func(c *Config) { c.Alarms[1] = model.Alarm{Time: "25:00"} }, "alarms[1]"},
		{"duplicate station", func(c *Config) { c.Stations = append(c.Stations, c.Stations[0]) }, "duplicate id"},
		{"unknown default", func(c *Config) { c.DefaultStation = "nope" }, "default_station"},
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLogBackendNeedsNoPins(t *testing.T) {
	c := DefaultConfig()
	c.Projector.Backend = "log"
	c.Projector.Pins.Data = ""
	if err := c.Validate(); err != nil {
		t.Errorf("log backend with missing pins: %v", err)
	}
}
