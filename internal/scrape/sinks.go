package scrape

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"roomcal/internal/model"
	"roomcal/internal/output"
	"roomcal/internal/store"
)

// ICSSink writes one .ics file per listing with its blocked days.
type ICSSink struct {
	Dir string
}

func (s ICSSink) Name() string { return "ics" }

func (s ICSSink) Write(_ context.Context, res Result, days []model.CalendarDay) error {
	_, err := output.WriteICS(s.Dir, days, res.StartedAt)
	return err
}

// StoreSink mirrors the day's CSV into a Store, typically a GCS bucket.
type StoreSink struct {
	Store  store.Store
	Prefix string
}

func (s StoreSink) Name() string { return "store" }

func (s StoreSink) Write(ctx context.Context, res Result, _ []model.CalendarDay) error {
	data, err := os.ReadFile(res.Path)
	if err != nil {
		return err
	}
	key := s.Prefix + filepath.Base(res.Path)
	if err := s.Store.Put(ctx, key, "text/csv; charset=utf-8", data); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// SnapshotWriter replaces the stored snapshot of one listing.
// *firestore.Client implements it.
type SnapshotWriter interface {
	ReplaceDaysForListing(ctx context.Context, listingID string, days []model.CalendarDay, runID string, scrapedAt time.Time) error
}

// SnapshotSink keeps the latest rows of every listing in a document store.
// Every listing of the run is written, in config order; a listing with no
// rows in the window still has its old snapshot cleared.
type SnapshotSink struct {
	Writer SnapshotWriter
}

func (s SnapshotSink) Name() string { return "firestore" }

func (s SnapshotSink) Write(ctx context.Context, res Result, days []model.CalendarDay) error {
	byListing := make(map[string][]model.CalendarDay, len(res.ListingIDs))
	for _, d := range days {
		byListing[d.ListingID] = append(byListing[d.ListingID], d)
	}
	for _, id := range res.ListingIDs {
		if err := s.Writer.ReplaceDaysForListing(ctx, id, byListing[id], res.RunID, res.StartedAt); err != nil {
			return err
		}
	}
	return nil
}
