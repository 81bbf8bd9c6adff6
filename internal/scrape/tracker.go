package scrape

import (
	"context"
	"sync"

	"roomcal/internal/config"
	appLog "roomcal/internal/log"
)

// Tracker serializes runs and remembers the latest result. In daemon mode
// the cron job, the status server and config reloads all go through it.
type Tracker struct {
	runner *Runner

	runMu sync.Mutex // held for the duration of a run

	mu   sync.RWMutex
	cfg  *config.Config
	last *Result
}

// NewTracker wraps runner with the initial configuration.
func NewTracker(runner *Runner, cfg *config.Config) *Tracker {
	return &Tracker{runner: runner, cfg: cfg}
}

// SetConfig swaps the configuration used by the next run.
func (t *Tracker) SetConfig(cfg *config.Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
}

// Config returns the configuration the next run will use.
func (t *Tracker) Config() *config.Config {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg
}

// Run executes one scrape, waiting for any run already in progress.
func (t *Tracker) Run(ctx context.Context) (Result, error) {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	return t.runLocked(ctx)
}

// TryRun is Run that gives up immediately when a run is in progress.
func (t *Tracker) TryRun(ctx context.Context) (Result, bool, error) {
	if !t.runMu.TryLock() {
		return Result{}, false, nil
	}
	defer t.runMu.Unlock()
	res, err := t.runLocked(ctx)
	return res, true, err
}

func (t *Tracker) runLocked(ctx context.Context) (Result, error) {
	cfg := t.Config()
	res, err := t.runner.Run(ctx, cfg)
	if err != nil {
		appLog.Error("scrape run failed", err, "run_id", res.RunID, "scrape_date", res.ScrapeDate)
	}

	t.mu.Lock()
	t.last = &res
	t.mu.Unlock()

	return res, err
}

// Last returns the most recent result, if any run has finished.
func (t *Tracker) Last() (Result, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return Result{}, false
	}
	return *t.last, true
}
