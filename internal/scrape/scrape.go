// Package scrape runs one availability scrape: fetch every configured
// listing's calendar, keep the wanted months and write the day's CSV.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"roomcal/internal/config"
	appLog "roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/output"
	"roomcal/internal/window"
)

// CalendarSource is the external calendar API. *airbnb.Client implements it.
type CalendarSource interface {
	APIKey(ctx context.Context) (string, error)
	Calendar(ctx context.Context, apiKey, roomID string, from window.MonthKey) ([]model.CalendarMonth, error)
}

// Sink receives the rows of a run after the CSV has been written.
type Sink interface {
	Name() string
	Write(ctx context.Context, res Result, days []model.CalendarDay) error
}

// Result summarizes one run.
type Result struct {
	RunID      string    `json:"run_id"`
	ScrapeDate string    `json:"scrape_date"`
	Path       string    `json:"path,omitempty"`
	Rows       int       `json:"rows"`
	Listings   int       `json:"listings"`
	ListingIDs []string  `json:"listing_ids,omitempty"`
	Months     []string  `json:"months"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// Runner executes the scrape procedure.
type Runner struct {
	Source CalendarSource
	Sinks  []Sink

	// Now defaults to time.Now.
	Now func() time.Time
}

// Run performs one scrape with cfg. Listings are fetched one after another;
// the first fetch error aborts the run before anything is written. Sink
// errors are reported after the CSV is in place, joined together.
func (r *Runner) Run(ctx context.Context, cfg *config.Config) (Result, error) {
	nowFn := r.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	res := Result{RunID: uuid.NewString(), StartedAt: nowFn()}
	days, err := r.run(ctx, cfg, &res)
	if err == nil {
		err = r.runSinks(ctx, res, days)
	}
	res.FinishedAt = nowFn()
	if err != nil {
		res.Error = err.Error()
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, cfg *config.Config, res *Result) ([]model.CalendarDay, error) {
	if r.Source == nil {
		return nil, errors.New("scrape: no calendar source")
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}
	now := res.StartedAt.In(loc)
	res.ScrapeDate = now.Format("2006-01-02")
	res.ListingIDs = cfg.ListingIDs

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	wanted := window.WantedMonths(now, cfg.MonthsAhead)
	keys := wanted.Keys()
	for _, k := range keys {
		res.Months = append(res.Months, k.String())
	}

	// The query starts where the window does, in the configured timezone,
	// not at the host clock's month.
	from := window.MonthOf(now)
	if len(keys) > 0 {
		from = keys[0]
	}

	apiKey, err := r.Source.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting api key: %w", err)
	}

	var days []model.CalendarDay
	for _, id := range cfg.ListingIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		appLog.Info("fetching calendar", "scrape_date", res.ScrapeDate, "listing_id", id)
		months, err := r.Source.Calendar(ctx, apiKey, id, from)
		if err != nil {
			return nil, fmt.Errorf("fetching calendar for listing %s: %w", id, err)
		}

		rows := window.Filter(id, months, wanted)
		appLog.Debug("calendar filtered", "listing_id", id, "months", len(months), "rows", len(rows))
		days = append(days, rows...)
		res.Listings++
	}

	path := filepath.Join(cfg.DataDir, output.FileName(now))
	if err := output.WriteCSV(path, days); err != nil {
		return nil, err
	}
	res.Path = path
	res.Rows = len(days)

	appLog.Info("wrote rows", "scrape_date", res.ScrapeDate, "rows", len(days), "path", path)
	return days, nil
}

func (r *Runner) runSinks(ctx context.Context, res Result, days []model.CalendarDay) error {
	var errs []error
	for _, s := range r.Sinks {
		if err := s.Write(ctx, res, days); err != nil {
			appLog.Error("sink failed", err, "sink", s.Name(), "run_id", res.RunID)
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
			continue
		}
		appLog.Info("sink done", "sink", s.Name(), "run_id", res.RunID)
	}
	return errors.Join(errs...)
}
