package model

// CalendarDay is the availability of one listing on one calendar date.
// It is the only entity persisted by a run; the CSV output carries
// ListingID, Date and Available, the remaining fields are kept for the
// optional sinks.
type CalendarDay struct {
	ListingID string `json:"listing_id"`
	Date      string `json:"date"` // YYYY-MM-DD
	Available bool   `json:"available"`

	MinNights            int    `json:"min_nights,omitempty"`
	MaxNights            int    `json:"max_nights,omitempty"`
	AvailableForCheckin  bool   `json:"available_for_checkin,omitempty"`
	AvailableForCheckout bool   `json:"available_for_checkout,omitempty"`
	Bookable             bool   `json:"bookable,omitempty"`
	Price                string `json:"price,omitempty"`
}

// CalendarMonth is one month of a listing calendar as returned by the
// platform. Days carry no ListingID until they are filtered into rows.
type CalendarMonth struct {
	Year  int           `json:"year"`
	Month int           `json:"month"`
	Days  []CalendarDay `json:"days"`
}
