package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"roomcal/internal/model"
)

func TestFileName(t *testing.T) {
	got := FileName(time.Date(2026, time.March, 7, 23, 0, 0, 0, time.UTC))
	if got != "airbnb_2026-03-07.csv" {
		t.Errorf("FileName = %q", got)
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "airbnb_2026-10-18.csv")
	days := []model.CalendarDay{
		{ListingID: "123", Date: "2026-10-18", Available: true, Price: "$99"},
		{ListingID: "123", Date: "2026-10-19", Available: false},
		{ListingID: "456", Date: "2026-10-18", Available: true},
	}

	if err := WriteCSV(path, days); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "room_id,date,available\n" +
		"123,2026-10-18,True\n" +
		"123,2026-10-19,False\n" +
		"456,2026-10-18,True\n"
	if string(data) != want {
		t.Errorf("CSV mismatch:\n got %q\nwant %q", data, want)
	}
}

func TestWriteCSVHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := WriteCSV(path, nil); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "room_id,date,available\n" {
		t.Errorf("got %q, want header only", data)
	}
}

func TestWriteCSVReplacesSameDayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airbnb_2026-10-18.csv")
	if err := WriteCSV(path, []model.CalendarDay{{ListingID: "1", Date: "2026-10-18"}, {ListingID: "1", Date: "2026-10-19"}}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteCSV(path, []model.CalendarDay{{ListingID: "2", Date: "2026-10-18", Available: true}}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, _ := os.ReadFile(path)
	if got := strings.Count(string(data), "\n"); got != 2 {
		t.Errorf("expected header + 1 row after rewrite, got %d lines:\n%s", got, data)
	}
	if strings.Contains(string(data), "1,2026-10-19") {
		t.Error("rows from the earlier run survived the rewrite")
	}
}

func TestEncodeCSVQuotesFields(t *testing.T) {
	data, err := EncodeCSV([]model.CalendarDay{{ListingID: "a,b", Date: "2026-10-18"}})
	if err != nil {
		t.Fatalf("EncodeCSV: %v", err)
	}
	if !strings.Contains(string(data), `"a,b",2026-10-18,False`) {
		t.Errorf("listing id with comma not quoted: %q", data)
	}
}

func TestCalendarICS(t *testing.T) {
	now := time.Date(2026, time.October, 18, 6, 0, 0, 0, time.UTC)
	days := []model.CalendarDay{
		{ListingID: "123", Date: "2026-10-18", Available: true},
		{ListingID: "123", Date: "2026-10-19", Available: false, MinNights: 2},
		{ListingID: "123", Date: "2026-10-31", Available: false},
	}

	body, err := CalendarICS("123", days, now)
	if err != nil {
		t.Fatalf("CalendarICS: %v", err)
	}

	for _, field := range []string{
		"BEGIN:VCALENDAR",
		"PRODID:" + icsProductID,
		"UID:123-2026-10-19@roomcal",
		"DTSTART;VALUE=DATE:20261019",
		"DTEND;VALUE=DATE:20261020",
		"DTSTART;VALUE=DATE:20261031",
		"DTEND;VALUE=DATE:20261101",
		"SUMMARY:Unavailable",
		"END:VCALENDAR",
	} {
		if !strings.Contains(body, field) {
			t.Errorf("ICS output missing %q", field)
		}
	}
	if n := strings.Count(body, "BEGIN:VEVENT"); n != 2 {
		t.Errorf("expected 2 events for blocked days, got %d", n)
	}
}

func TestCalendarICSBadDate(t *testing.T) {
	_, err := CalendarICS("1", []model.CalendarDay{{Date: "18/10/2026"}}, time.Now())
	if err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestWriteICS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ics")
	days := []model.CalendarDay{
		{ListingID: "123", Date: "2026-10-18"},
		{ListingID: "../456", Date: "2026-10-18"},
		{ListingID: "123", Date: "2026-10-19", Available: true},
	}

	paths, err := WriteICS(dir, days, time.Now())
	if err != nil {
		t.Fatalf("WriteICS: %v", err)
	}
	want := []string{filepath.Join(dir, "123.ics"), filepath.Join(dir, "___456.ics")}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %s, want %s", i, paths[i], want[i])
		}
		if _, err := os.Stat(want[i]); err != nil {
			t.Errorf("stat %s: %v", want[i], err)
		}
	}
}
