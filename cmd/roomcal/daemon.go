package main

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"roomcal/internal/config"
	appLog "roomcal/internal/log"
	"roomcal/internal/scrape"
	"roomcal/internal/web"
)

const reloadSettle = 300 * time.Millisecond

// scheduler owns the cron job and re-registers it when the schedule or the
// timezone changes on reload.
type scheduler struct {
	ctx     context.Context
	tracker *scrape.Tracker

	mu       sync.Mutex
	cron     *cron.Cron
	schedule string
	timezone string
}

func newScheduler(ctx context.Context, tracker *scrape.Tracker) *scheduler {
	return &scheduler{ctx: ctx, tracker: tracker}
}

// apply starts a cron for conf, replacing the current one when the
// schedule or timezone differs.
func (s *scheduler) apply(conf *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && conf.Schedule == s.schedule && conf.Timezone == s.timezone {
		return nil
	}

	loc, err := conf.Location()
	if err != nil {
		return err
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(conf.Schedule, s.runJob); err != nil {
		return err
	}

	if s.cron != nil {
		// A job already running finishes on its own.
		s.cron.Stop()
	}
	c.Start()
	s.cron = c
	s.schedule = conf.Schedule
	s.timezone = conf.Timezone

	appLog.Info("schedule active", "schedule", conf.Schedule, "timezone", loc.String())
	return nil
}

func (s *scheduler) runJob() {
	if s.ctx.Err() != nil {
		return
	}
	res, err := s.tracker.Run(s.ctx)
	if err != nil {
		// Already logged by the tracker; the next tick tries again.
		return
	}
	appLog.Info("scheduled run finished", "run_id", res.RunID, "rows", res.Rows)
}

// stop halts the cron and waits for a running job to return.
func (s *scheduler) stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// runDaemon schedules runs, reloads the config file when it changes and
// serves the status API when a listen address is configured. snapshots may
// be nil. It returns after ctx is canceled and all of them have stopped.
func runDaemon(ctx context.Context, flags flagConfig, tracker *scrape.Tracker, snapshots web.SnapshotReader) error {
	conf := tracker.Config()

	sched := newScheduler(ctx, tracker)
	if err := sched.apply(conf); err != nil {
		return err
	}
	defer sched.stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := watchConfig(ctx, flags.configPath, func() {
			reloadConfig(flags, tracker, sched)
		})
		if err != nil {
			appLog.Error("config watcher stopped", err, "config_path", flags.configPath)
		}
	}()

	if conf.Listen != "" {
		srv := web.NewServer(tracker, snapshots)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx, conf.Listen); err != nil {
				appLog.Error("HTTP server error", err, "listen", conf.Listen)
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// reloadConfig swaps in the config file's new contents. An invalid file is
// logged and the previous config stays active.
func reloadConfig(flags flagConfig, tracker *scrape.Tracker, sched *scheduler) {
	conf, err := loadConfig(flags)
	if err != nil {
		appLog.Error("config reload failed, keeping previous config", err, "config_path", flags.configPath)
		return
	}
	if err := sched.apply(conf); err != nil {
		appLog.Error("invalid schedule, keeping previous config", err, "schedule", conf.Schedule)
		return
	}
	tracker.SetConfig(conf)
	appLog.Info("config reloaded",
		"listings", len(conf.ListingIDs),
		"months_ahead", conf.MonthsAhead,
		"data_dir", conf.DataDir,
	)
}

// watchConfig calls onChange once writes to path have settled. The parent
// directory is watched so editors that replace the file by rename (and
// config.Save itself) are seen too.
func watchConfig(ctx context.Context, path string, onChange func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	appLog.Info("watching config", "config_path", abs)

	var pending time.Time
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.Now()
			}
		case <-ticker.C:
			if !pending.IsZero() && time.Since(pending) > reloadSettle {
				pending = time.Time{}
				onChange()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			appLog.Warn("config watch error", "error", err.Error())
		}
	}
}
