package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"freeslotd/internal/config"
	"freeslotd/internal/freeslot"
	appLog "freeslotd/internal/log"
	"freeslotd/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"feeds", len(conf.CalendarURLs),
		"window", fmt.Sprintf("%02d:00-%02d:00", conf.StartOfDay, conf.EndOfDay),
		"lookahead_days", conf.LookaheadDays,
		"refresh", conf.RefreshCron,
		"exclude_weekends", conf.ExcludeWeekends,
		"ignore_all_day", conf.IgnoreAllDayEvents,
		"once", flags.once,
	)

	updater := freeslot.NewUpdater(conf)
	if err := updater.SeedFromCache(); err != nil {
		appLog.Error("cache load failed, starting empty", err, "path", conf.CacheFile)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if flags.once {
		if _, err := updater.TryRefresh(ctx, time.Now()); err != nil {
			appLog.Error("refresh failed", err)
			os.Exit(1)
		}
		fmt.Println(updater.FormattedText())
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	// Periodic refresh. A tick landing while a pass is still running is
	// dropped by the updater's guard.
	sched := cron.New()
	if _, err := sched.AddFunc(conf.RefreshCron, func() {
		if _, err := updater.TryRefresh(context.Background(), time.Now()); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	// One pass right away so the first tick is not minutes out.
	go func() {
		if _, err := updater.TryRefresh(ctx, time.Now()); err != nil {
			appLog.Error("initial refresh failed", err)
		}
	}()

	go func() {
		if err := web.StartServer(ctx, conf, updater); err != nil {
			appLog.Error("HTTP server stopped", err)
			cancel()
		}
	}()

	<-ctx.Done()
	appLog.Info("freeslotd exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/freeslotd/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh pass, print the free-slot text and exit")

	flag.Parse()

	return cfg
}
