package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"projclock/internal/alarm"
	"projclock/internal/config"
	"projclock/internal/line"
	appLog "projclock/internal/log"
	"projclock/internal/model"
	"projclock/internal/projector"
	"projclock/internal/radio"
	"projclock/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	backend    string
	sendTime   string
	raw        string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.backend != "" {
		conf.Projector.Backend = strings.ToLower(flags.backend)
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	level, _ := appLog.ParseLevel(conf.LogLevel)
	appLog.SetLevel(level)

	appLog.Info("projclock starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"profile", conf.Projector.Profile,
		"backend", conf.Projector.Backend,
		"stations", len(conf.Stations),
	)

	driver, err := openDriver(conf)
	if err != nil {
		appLog.Error("projector unavailable", err)
		os.Exit(1)
	}
	if err := driver.Init(); err != nil {
		appLog.Error("projector init failed", err)
		os.Exit(1)
	}

	// One-shot modes: send and exit.
	if flags.sendTime != "" || flags.raw != "" {
		os.Exit(oneShot(driver, flags))
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rad, err := radio.New(conf.Stations, conf.DefaultStation, &radio.LogPlayer{})
	if err != nil {
		appLog.Error("radio setup failed", err)
		os.Exit(1)
	}
	sched, err := alarm.New(driver, rad, conf.Alarms, alarm.Options{
		Location: conf.Location(),
		AutoStop: conf.AutoStop,
	})
	if err != nil {
		appLog.Error("scheduler setup failed", err)
		os.Exit(1)
	}
	sched.Start(ctx)
	if next, ok := sched.NextAlarm(time.Now()); ok {
		appLog.Info("next alarm", "slot", next.Slot, "at", next.At.Format(time.RFC3339))
	}

	err = web.StartServer(ctx, conf, web.Deps{
		Display:    driver,
		Scheduler:  sched,
		Radio:      rad,
		ConfigPath: flags.configPath,
	})
	cancel()
	sched.Stop()
	if _, stopErr := rad.Stop(); stopErr != nil {
		appLog.Error("failed to stop playback", stopErr)
	}
	if err != nil {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}
	appLog.Info("projclock exiting")
}

func openDriver(conf *config.Config) (*projector.Driver, error) {
	profile, err := conf.ProjectorProfile()
	if err != nil {
		return nil, err
	}
	var lines line.Lines
	switch conf.Projector.Backend {
	case "log":
		lines = line.NewLogLines(conf.Projector.TracePath)
	default:
		g, err := line.OpenGPIO(conf.Projector.Pins, conf.Projector.TracePath)
		if err != nil {
			return nil, err
		}
		lines = g
	}
	return projector.New(profile, lines, projector.Options{})
}

func oneShot(d *projector.Driver, flags flagConfig) int {
	if flags.raw != "" {
		if err := d.SendRawFrame(flags.raw); err != nil {
			appLog.Error("raw frame failed", err)
			return 1
		}
		return 0
	}
	h, m, err := model.ParseClock(flags.sendTime)
	if err != nil {
		appLog.Error("bad -time value", err, "time", flags.sendTime)
		return 2
	}
	if err := d.SendTime(h, m); err != nil {
		appLog.Error("send time failed", err)
		return 1
	}
	appLog.Info("time sent", "time", flags.sendTime, "bits", d.Status().LastBits)
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/projclock/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.backend, "backend", "", "Line backend: gpio or log (overrides config if set)")
	flag.StringVar(&cfg.sendTime, "time", "", "Show HH:MM once and exit")
	flag.StringVar(&cfg.raw, "raw", "", "Send a raw bit string once and exit")

	flag.Parse()

	return cfg
}
