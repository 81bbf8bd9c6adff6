package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"roomcal/internal/atomicfile"
	"roomcal/internal/model"
)

// Header is the first CSV line of every output file.
var Header = []string{"room_id", "date", "available"}

// FileName returns the per-day output file name for date.
func FileName(date time.Time) string {
	return "airbnb_" + date.Format("2006-01-02") + ".csv"
}

// formatAvailable keeps the True/False spelling of files written by
// earlier versions of the scraper, so a day's file reads the same as the
// ones already in data/.
func formatAvailable(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// EncodeCSV renders days as CSV, header first. The header is present even
// when days is empty.
func EncodeCSV(days []model.CalendarDay) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	for _, d := range days {
		if err := w.Write([]string{d.ListingID, d.Date, formatAvailable(d.Available)}); err != nil {
			return nil, fmt.Errorf("writing CSV row for %s %s: %w", d.ListingID, d.Date, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteCSV writes days to path, replacing any file already there. The
// write goes through a temp file, so a failure leaves the previous
// contents (or nothing) in place.
func WriteCSV(path string, days []model.CalendarDay) error {
	data, err := EncodeCSV(days)
	if err != nil {
		return err
	}
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
