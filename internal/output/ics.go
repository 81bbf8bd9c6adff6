package output

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	ics "github.com/arran4/golang-ical"

	"roomcal/internal/atomicfile"
	"roomcal/internal/model"
)

const icsProductID = "-//roomcal//availability//EN"

// CalendarICS renders one listing's unavailable days as all-day events,
// one VEVENT per blocked date. Available days produce no event.
func CalendarICS(listingID string, days []model.CalendarDay, now time.Time) (string, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)
	cal.SetName("Listing " + listingID)

	for _, d := range days {
		if d.Available {
			continue
		}
		date, err := time.Parse("2006-01-02", d.Date)
		if err != nil {
			return "", fmt.Errorf("listing %s: bad date %q: %w", listingID, d.Date, err)
		}

		event := cal.AddEvent(fmt.Sprintf("%s-%s@roomcal", listingID, d.Date))
		event.SetDtStampTime(now)
		event.SetCreatedTime(now)
		event.SetModifiedAt(now)
		event.SetAllDayStartAt(date)
		event.SetAllDayEndAt(date.AddDate(0, 0, 1))
		event.SetSummary("Unavailable")
		if d.MinNights > 0 {
			event.SetDescription(fmt.Sprintf("Listing %s, min nights %d", listingID, d.MinNights))
		} else {
			event.SetDescription("Listing " + listingID)
		}
	}

	return cal.Serialize(), nil
}

// WriteICS writes <dir>/<listingID>.ics for every listing present in days
// and returns the paths written.
func WriteICS(dir string, days []model.CalendarDay, now time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var order []string
	byListing := make(map[string][]model.CalendarDay)
	for _, d := range days {
		if _, seen := byListing[d.ListingID]; !seen {
			order = append(order, d.ListingID)
		}
		byListing[d.ListingID] = append(byListing[d.ListingID], d)
	}

	paths := make([]string, 0, len(order))
	for _, id := range order {
		body, err := CalendarICS(id, byListing[id], now)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, safeName(id)+".ics")
		if err := atomicfile.Write(path, []byte(body), 0o644); err != nil {
			return paths, fmt.Errorf("writing %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// safeName maps a listing ID onto a file-system safe base name.
func safeName(id string) string {
	out := []rune(id)
	for i, r := range out {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			continue
		}
		out[i] = '_'
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}
