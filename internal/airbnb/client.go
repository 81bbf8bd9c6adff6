// Package airbnb is a small client for the public Airbnb web API: API key
// discovery and the per-listing availability calendar.
package airbnb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/window"
)

const (
	DefaultBaseURL = "https://www.airbnb.com"

	// calendarQueryHash identifies the persisted PdpAvailabilityCalendar
	// GraphQL query served by the web frontend.
	calendarQueryHash = "8f08e03c7bd16fcad3c92a3592c19a8b559a0d0855a84028d1163d4733ed9ade"
	calendarOperation = "PdpAvailabilityCalendar"

	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	defaultTimeout   = 60 * time.Second
	defaultMonths    = 12

	// maxErrorBody bounds how much of a failed response ends up in errors.
	maxErrorBody = 512
)

// KeySource supplies the X-Airbnb-Api-Key value.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// Options configures a Client. Zero values select defaults.
type Options struct {
	BaseURL   string
	Locale    string
	Currency  string
	Months    int // months requested per calendar query
	ProxyURL  string
	UserAgent string
	Timeout   time.Duration

	// Keys overrides API key discovery (static key, headless browser).
	Keys KeySource
}

// Client talks to the Airbnb web API.
type Client struct {
	http *http.Client
	opts Options
}

// NewClient builds a Client. It fails only on an unparsable proxy URL.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Locale == "" {
		opts.Locale = "en"
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.Months <= 0 {
		opts.Months = defaultMonths
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.ProxyURL != "" {
		u, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts: opts,
	}, nil
}

// APIKey returns the key for calendar requests, discovering it from the
// home page unless a KeySource was configured.
func (c *Client) APIKey(ctx context.Context) (string, error) {
	if c.opts.Keys != nil {
		return c.opts.Keys.APIKey(ctx)
	}
	return c.discoverKey(ctx)
}

func (c *Client) discoverKey(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	c.setCommonHeaders(req)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	appLog.Debug("api key discovery start", "url", c.opts.BaseURL)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching home page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("home page", resp)
	}

	key, err := ExtractAPIKey(resp.Body)
	if err != nil {
		return "", err
	}
	appLog.Info("api key discovered", "source", "home page")
	return key, nil
}

type calendarRequest struct {
	OperationName string             `json:"operationName"`
	Variables     calendarVariables  `json:"variables"`
	Extensions    persistedExtension `json:"extensions"`
}

type calendarVariables struct {
	Request calendarRequestVars `json:"request"`
}

type calendarRequestVars struct {
	Count     int    `json:"count"`
	ListingID string `json:"listingId"`
	Month     int    `json:"month"`
	Year      int    `json:"year"`
}

type persistedExtension struct {
	PersistedQuery struct {
		Version    int    `json:"version"`
		Sha256Hash string `json:"sha256Hash"`
	} `json:"persistedQuery"`
}

type calendarResponse struct {
	Data struct {
		Merlin struct {
			PdpAvailabilityCalendar *struct {
				CalendarMonths []calendarMonth `json:"calendarMonths"`
			} `json:"pdpAvailabilityCalendar"`
		} `json:"merlin"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type calendarMonth struct {
	Month int           `json:"month"`
	Year  int           `json:"year"`
	Days  []calendarDay `json:"days"`
}

type calendarDay struct {
	CalendarDate         string `json:"calendarDate"`
	Available            bool   `json:"available"`
	MinNights            int    `json:"minNights"`
	MaxNights            int    `json:"maxNights"`
	AvailableForCheckin  bool   `json:"availableForCheckin"`
	AvailableForCheckout bool   `json:"availableForCheckout"`
	Bookable             *bool  `json:"bookable"`
	Price                *struct {
		LocalPriceFormatted string `json:"localPriceFormatted"`
	} `json:"price"`
}

// Calendar fetches the month-grouped availability of roomID, starting at
// month from and covering Options.Months months.
func (c *Client) Calendar(ctx context.Context, apiKey, roomID string, from window.MonthKey) ([]model.CalendarMonth, error) {
	if apiKey == "" {
		return nil, errors.New("api key is empty")
	}

	body := calendarRequest{
		OperationName: calendarOperation,
		Variables: calendarVariables{Request: calendarRequestVars{
			Count:     c.opts.Months,
			ListingID: roomID,
			Month:     from.Month,
			Year:      from.Year,
		}},
	}
	body.Extensions.PersistedQuery.Version = 1
	body.Extensions.PersistedQuery.Sha256Hash = calendarQueryHash

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding calendar request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.calendarURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setCommonHeaders(req)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Airbnb-Api-Key", apiKey)

	appLog.Debug("calendar fetch start", "room_id", roomID, "months", c.opts.Months)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching calendar for %s: %w", roomID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("calendar "+roomID, resp)
	}

	var decoded calendarResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding calendar for %s: %w", roomID, err)
	}
	if len(decoded.Errors) > 0 {
		msgs := make([]string, 0, len(decoded.Errors))
		for _, e := range decoded.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("calendar for %s: api errors: %s", roomID, strings.Join(msgs, "; "))
	}
	cal := decoded.Data.Merlin.PdpAvailabilityCalendar
	if cal == nil {
		return nil, fmt.Errorf("calendar for %s: response has no pdpAvailabilityCalendar", roomID)
	}

	months := make([]model.CalendarMonth, 0, len(cal.CalendarMonths))
	for _, m := range cal.CalendarMonths {
		months = append(months, m.toModel())
	}

	appLog.Debug("calendar fetch success", "room_id", roomID, "months", len(months))
	return months, nil
}

func (m calendarMonth) toModel() model.CalendarMonth {
	out := model.CalendarMonth{
		Year:  m.Year,
		Month: m.Month,
		Days:  make([]model.CalendarDay, 0, len(m.Days)),
	}
	for _, d := range m.Days {
		day := model.CalendarDay{
			Date:                 d.CalendarDate,
			Available:            d.Available,
			MinNights:            d.MinNights,
			MaxNights:            d.MaxNights,
			AvailableForCheckin:  d.AvailableForCheckin,
			AvailableForCheckout: d.AvailableForCheckout,
		}
		if d.Bookable != nil {
			day.Bookable = *d.Bookable
		}
		if d.Price != nil {
			day.Price = d.Price.LocalPriceFormatted
		}
		out.Days = append(out.Days, day)
	}
	return out
}

func (c *Client) calendarURL() string {
	q := url.Values{}
	q.Set("operationName", calendarOperation)
	q.Set("locale", c.opts.Locale)
	q.Set("currency", c.opts.Currency)
	return c.opts.BaseURL + "/api/v3/" + calendarOperation + "/" + calendarQueryHash + "?" + q.Encode()
}

func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept-Language", c.opts.Locale)
}

func statusError(what string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return fmt.Errorf("%s: unexpected status %s", what, resp.Status)
	}
	return fmt.Errorf("%s: unexpected status %s: %s", what, resp.Status, msg)
}
