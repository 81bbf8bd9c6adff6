package window

import (
	"reflect"
	"testing"
	"time"

	"roomcal/internal/model"
)

func TestWantedMonths(t *testing.T) {
	tests := []struct {
		name  string
		now   time.Time
		ahead int
		want  []MonthKey
	}{
		{
			name:  "november wraps into next year",
			now:   time.Date(2026, time.November, 18, 9, 0, 0, 0, time.Local),
			ahead: 3,
			want:  []MonthKey{{2026, 11}, {2026, 12}, {2027, 1}},
		},
		{
			name:  "end of month start does not skip february",
			now:   time.Date(2027, time.January, 31, 23, 59, 0, 0, time.UTC),
			ahead: 3,
			want:  []MonthKey{{2027, 1}, {2027, 2}, {2027, 3}},
		},
		{
			name:  "single month",
			now:   time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC),
			ahead: 1,
			want:  []MonthKey{{2026, 10}},
		},
		{
			name:  "more than two years",
			now:   time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC),
			ahead: 26,
			want: func() []MonthKey {
				var keys []MonthKey
				for i := 0; i < 26; i++ {
					t := time.Date(2026, time.December+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
					keys = append(keys, MonthKey{t.Year(), int(t.Month())})
				}
				return keys
			}(),
		},
		{
			name:  "zero months",
			now:   time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC),
			ahead: 0,
			want:  []MonthKey{},
		},
		{
			name:  "negative months",
			now:   time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC),
			ahead: -2,
			want:  []MonthKey{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WantedMonths(tt.now, tt.ahead).Keys()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("WantedMonths(%s, %d) = %v, want %v", tt.now.Format("2006-01-02"), tt.ahead, got, tt.want)
			}
		})
	}
}

func TestMonthSetContains(t *testing.T) {
	set := WantedMonths(time.Date(2026, time.November, 5, 0, 0, 0, 0, time.UTC), 3)

	if !set.Contains(2027, 1) {
		t.Error("expected 2027-01 in set")
	}
	if set.Contains(2026, 1) {
		t.Error("2026-01 must not be in set: month without the carried year")
	}
	if set.Contains(2027, 2) {
		t.Error("2027-02 is outside the window")
	}
}

func TestFilter(t *testing.T) {
	months := []model.CalendarMonth{
		{Year: 2026, Month: 10, Days: []model.CalendarDay{
			{Date: "2026-10-01", Available: true},
			{Date: "2026-10-02", Available: false},
		}},
		{Year: 2026, Month: 11, Days: []model.CalendarDay{
			{Date: "2026-11-01", Available: true},
		}},
		{Year: 2026, Month: 12, Days: []model.CalendarDay{
			{Date: "2026-12-01", Available: false},
		}},
	}
	wanted := MonthSet{{2026, 10}: {}, {2026, 12}: {}}

	got := Filter("555", months, wanted)
	want := []model.CalendarDay{
		{ListingID: "555", Date: "2026-10-01", Available: true},
		{ListingID: "555", Date: "2026-10-02", Available: false},
		{ListingID: "555", Date: "2026-12-01", Available: false},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Filter = %+v\nwant %+v", got, want)
	}

	// The input must not be modified.
	if months[0].Days[0].ListingID != "" {
		t.Error("Filter mutated the input months")
	}
}

func TestFilterNothingWanted(t *testing.T) {
	months := []model.CalendarMonth{{Year: 2026, Month: 10, Days: []model.CalendarDay{{Date: "2026-10-01"}}}}
	if got := Filter("1", months, MonthSet{}); len(got) != 0 {
		t.Errorf("expected no rows, got %v", got)
	}
}

func TestMonthKeyString(t *testing.T) {
	if s := (MonthKey{2027, 1}).String(); s != "2027-01" {
		t.Errorf("String() = %q", s)
	}
}

func TestMonthOfUsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	utc := time.Date(2026, time.November, 1, 2, 0, 0, 0, time.UTC)

	if got := MonthOf(utc); got != (MonthKey{Year: 2026, Month: 11}) {
		t.Errorf("MonthOf(UTC) = %v", got)
	}
	if got := MonthOf(utc.In(ny)); got != (MonthKey{Year: 2026, Month: 10}) {
		t.Errorf("MonthOf(New York) = %v", got)
	}
}
