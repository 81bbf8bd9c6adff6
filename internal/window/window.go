// Package window decides which calendar months a run keeps.
package window

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"roomcal/internal/model"
)

// MonthKey identifies a calendar month.
type MonthKey struct {
	Year  int
	Month int
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
}

// MonthOf returns the month t falls in, in t's own location.
func MonthOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: int(t.Month())}
}

// MonthSet is a membership set of months.
type MonthSet map[MonthKey]struct{}

// Contains reports whether (year, month) is in the set.
func (s MonthSet) Contains(year, month int) bool {
	_, ok := s[MonthKey{Year: year, Month: month}]
	return ok
}

// Keys returns the months in chronological order.
func (s MonthSet) Keys() []MonthKey {
	keys := make([]MonthKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Year != keys[j].Year {
			return keys[i].Year < keys[j].Year
		}
		return keys[i].Month < keys[j].Month
	})
	return keys
}

// WantedMonths returns the monthsAhead consecutive months starting with
// the month of now. Months past December carry into the following year.
// monthsAhead <= 0 yields an empty set.
func WantedMonths(now time.Time, monthsAhead int) MonthSet {
	set := make(MonthSet, max(monthsAhead, 0))
	if monthsAhead <= 0 {
		return set
	}

	// Anchor on the first of the month so BYMONTHDAY never skips short
	// months (a rule started on the 31st would drop February).
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.MONTHLY,
		Count:   monthsAhead,
		Dtstart: first,
	})
	if err != nil {
		// ROption above is always valid; fall back to plain arithmetic.
		for i := 0; i < monthsAhead; i++ {
			t := first.AddDate(0, i, 0)
			set[MonthKey{Year: t.Year(), Month: int(t.Month())}] = struct{}{}
		}
		return set
	}

	for _, t := range r.All() {
		set[MonthKey{Year: t.Year(), Month: int(t.Month())}] = struct{}{}
	}
	return set
}

// Filter flattens the wanted months of one listing's calendar into rows,
// stamping each day with listingID. API order is preserved.
func Filter(listingID string, months []model.CalendarMonth, wanted MonthSet) []model.CalendarDay {
	var days []model.CalendarDay
	for _, m := range months {
		if !wanted.Contains(m.Year, m.Month) {
			continue
		}
		for _, d := range m.Days {
			d.ListingID = listingID
			days = append(days, d)
		}
	}
	return days
}
