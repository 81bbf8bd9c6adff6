package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"roomcal/internal/airbnb"
	"roomcal/internal/config"
	"roomcal/internal/firestore"
	appLog "roomcal/internal/log"
	"roomcal/internal/scrape"
	"roomcal/internal/store"
	"roomcal/internal/web"
)

const version = "0.3.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	logLevel   string
	once       bool
	daemon     bool
	initConfig bool
}

func main() {
	flags := parseFlags()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Warn("failed to load .env", "error", err.Error())
	}

	if flags.initConfig {
		if err := writeDefaultConfig(flags.configPath); err != nil {
			appLog.Error("failed to write default config", err, "config_path", flags.configPath)
			os.Exit(1)
		}
		appLog.Info("wrote default config", "config_path", flags.configPath)
		return
	}

	conf, err := loadConfig(flags)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("roomcal starting",
		"version", version,
		"listings", len(conf.ListingIDs),
		"months_ahead", conf.MonthsAhead,
		"data_dir", conf.DataDir,
		"timezone", conf.Timezone,
		"daemon", flags.daemon && !flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	runner, snapshots, closeFn, err := buildRunner(ctx, conf)
	if err != nil {
		appLog.Error("failed to set up scraper", err)
		os.Exit(1)
	}
	defer closeFn()

	tracker := scrape.NewTracker(runner, conf)

	if flags.once || !flags.daemon {
		res, err := tracker.Run(ctx)
		if err != nil {
			closeFn()
			os.Exit(1)
		}
		appLog.Info("run finished", "run_id", res.RunID, "rows", res.Rows, "path", res.Path)
		return
	}

	if err := runDaemon(ctx, flags, tracker, snapshots); err != nil {
		appLog.Error("daemon stopped", err)
		closeFn()
		os.Exit(1)
	}
	appLog.Info("roomcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.json", "Path to config file (JSON or YAML)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address for the status server (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN or ERROR (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one scrape and exit, even with -daemon")
	flag.BoolVar(&cfg.daemon, "daemon", false, "Run scrapes on the configured cron schedule until stopped")
	flag.BoolVar(&cfg.initConfig, "init", false, "Write a default config to -config and exit")

	flag.Parse()

	return cfg
}

// loadConfig reads the config file and applies env and flag overrides.
// It also sets the log level, so it is reused on reload.
func loadConfig(flags flagConfig) (*config.Config, error) {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	conf.ApplyEnv()

	// CLI flags override config file values if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}

	if conf.LogLevel != "" {
		lvl, ok := appLog.ParseLevel(conf.LogLevel)
		if !ok {
			appLog.Warn("unknown log level, keeping current", "log_level", conf.LogLevel)
		} else {
			appLog.SetLevel(lvl)
		}
	}
	return conf, nil
}

func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.New("config file already exists")
	}
	return config.DefaultConfig().Save(path)
}

// buildRunner wires the calendar client and the sinks enabled in conf. The
// Firestore client, when configured, is also returned for snapshot reads.
// Client and sink settings are read once; a reload only changes what each
// run scrapes.
func buildRunner(ctx context.Context, conf *config.Config) (*scrape.Runner, web.SnapshotReader, func(), error) {
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				appLog.Warn("close failed", "error", err.Error())
			}
		}
		closers = nil
	}

	opts := airbnb.Options{
		Locale:   conf.Locale,
		Currency: conf.Currency,
		Months:   conf.CalendarMonths,
		ProxyURL: conf.ProxyURL,
		Timeout:  conf.HTTPTimeout(),
	}
	switch {
	case conf.APIKey != "":
		opts.Keys = airbnb.StaticKey(conf.APIKey)
	case conf.BrowserKey:
		opts.Keys = airbnb.BrowserKeySource{}
	}
	client, err := airbnb.NewClient(opts)
	if err != nil {
		return nil, nil, closeAll, err
	}

	runner := &scrape.Runner{Source: client}

	if conf.ICSDir != "" {
		runner.Sinks = append(runner.Sinks, scrape.ICSSink{Dir: conf.ICSDir})
		appLog.Info("ics sink enabled", "dir", conf.ICSDir)
	}

	if conf.GCSBucket != "" {
		gcs, err := store.NewGCS(ctx, conf.GCSBucket)
		if err != nil {
			closeAll()
			return nil, nil, closeAll, err
		}
		closers = append(closers, gcs.Close)
		runner.Sinks = append(runner.Sinks, scrape.StoreSink{Store: gcs, Prefix: conf.GCSPrefix})
		appLog.Info("gcs sink enabled", "bucket", gcs.Bucket(), "prefix", conf.GCSPrefix)
	}

	var reader web.SnapshotReader
	if conf.FirestoreProject != "" {
		snapshots, err := firestore.New(ctx, conf.FirestoreProject, conf.FirestoreCollection)
		if err != nil {
			closeAll()
			return nil, nil, closeAll, err
		}
		closers = append(closers, snapshots.Close)
		runner.Sinks = append(runner.Sinks, scrape.SnapshotSink{Writer: snapshots})
		reader = snapshots
		appLog.Info("firestore sink enabled", "project", conf.FirestoreProject, "collection", conf.FirestoreCollection)
	}

	return runner, reader, closeAll, nil
}
