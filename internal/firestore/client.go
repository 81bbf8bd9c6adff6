package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"roomcal/internal/model"
)

const batchSize = 250 // Stay well under Firestore's 500 operation limit

// Client wraps the Firestore client for calendar snapshot operations.
// Each document is one (listing, date) pair from the latest run.
type Client struct {
	client     *firestore.Client
	collection string
}

// New creates a new Firestore client.
func New(ctx context.Context, projectID, collection string) (*Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &Client{
		client:     client,
		collection: collection,
	}, nil
}

// Close closes the Firestore client.
func (c *Client) Close() error {
	return c.client.Close()
}

// ReplaceDaysForListing replaces the stored snapshot of a listing with
// days. Existing documents for the listing are deleted first, then the new
// ones are written in batches.
func (c *Client) ReplaceDaysForListing(ctx context.Context, listingID string, days []model.CalendarDay, runID string, scrapedAt time.Time) error {
	coll := c.client.Collection(c.collection)

	if err := c.deleteDaysForListing(ctx, listingID); err != nil {
		return fmt.Errorf("deleting existing days for %s: %w", listingID, err)
	}

	for i := 0; i < len(days); i += batchSize {
		end := min(i+batchSize, len(days))
		batch := c.client.Batch()

		for _, d := range days[i:end] {
			batch.Set(coll.Doc(DocID(d)), dayToMap(d, runID, scrapedAt))
		}

		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("committing batch for %s: %w", listingID, err)
		}
	}

	return nil
}

func (c *Client) deleteDaysForListing(ctx context.Context, listingID string) error {
	query := c.client.Collection(c.collection).Where("listing_id", "==", listingID)

	for {
		iter := query.Limit(batchSize).Documents(ctx)
		batch := c.client.Batch()
		numDeleted := 0

		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				iter.Stop()
				return fmt.Errorf("iterating documents: %w", err)
			}
			batch.Delete(doc.Ref)
			numDeleted++
		}
		iter.Stop()

		if numDeleted == 0 {
			return nil
		}

		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("committing delete batch: %w", err)
		}

		if numDeleted < batchSize {
			return nil
		}
	}
}

// GetDays returns the stored snapshot of one listing.
func (c *Client) GetDays(ctx context.Context, listingID string) ([]model.CalendarDay, error) {
	var days []model.CalendarDay

	iter := c.client.Collection(c.collection).Where("listing_id", "==", listingID).OrderBy("date", firestore.Asc).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating documents: %w", err)
		}
		days = append(days, mapToDay(doc.Data()))
	}

	return days, nil
}

// DocID derives a stable document ID from listing and date, so a rerun on
// the same day overwrites rather than duplicates.
func DocID(d model.CalendarDay) string {
	hash := sha256.Sum256([]byte(d.ListingID + "|" + d.Date))
	return hex.EncodeToString(hash[:16])
}

func dayToMap(d model.CalendarDay, runID string, scrapedAt time.Time) map[string]interface{} {
	m := map[string]interface{}{
		"listing_id": d.ListingID,
		"date":       d.Date,
		"available":  d.Available,
		"run_id":     runID,
		"scraped_at": scrapedAt,
	}
	if d.MinNights > 0 {
		m["min_nights"] = d.MinNights
	}
	if d.MaxNights > 0 {
		m["max_nights"] = d.MaxNights
	}
	if d.Price != "" {
		m["price"] = d.Price
	}
	return m
}

func mapToDay(m map[string]interface{}) model.CalendarDay {
	var d model.CalendarDay
	if v, ok := m["listing_id"].(string); ok {
		d.ListingID = v
	}
	if v, ok := m["date"].(string); ok {
		d.Date = v
	}
	if v, ok := m["available"].(bool); ok {
		d.Available = v
	}
	// Firestore returns integers as int64.
	if v, ok := m["min_nights"].(int64); ok {
		d.MinNights = int(v)
	}
	if v, ok := m["max_nights"].(int64); ok {
		d.MaxNights = int(v)
	}
	if v, ok := m["price"].(string); ok {
		d.Price = v
	}
	return d
}
