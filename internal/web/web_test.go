package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"roomcal/internal/config"
	"roomcal/internal/model"
	"roomcal/internal/scrape"
)

type fakeRunner struct {
	cfg     *config.Config
	last    *scrape.Result
	busy    bool
	err     error
	runs    int
	ctxDone bool
}

func (f *fakeRunner) TryRun(ctx context.Context) (scrape.Result, bool, error) {
	if f.busy {
		return scrape.Result{}, false, nil
	}
	f.runs++
	f.ctxDone = ctx.Err() != nil
	res := scrape.Result{RunID: "run-1", ScrapeDate: "2026-10-18", Rows: 92}
	if f.err != nil {
		res.Error = f.err.Error()
	}
	f.last = &res
	return res, true, f.err
}

func (f *fakeRunner) Last() (scrape.Result, bool) {
	if f.last == nil {
		return scrape.Result{}, false
	}
	return *f.last, true
}

func (f *fakeRunner) Config() *config.Config { return f.cfg }

func newRunner(t *testing.T) *fakeRunner {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ListingIDs = []string{"1", "2", "3"}
	cfg.DataDir = t.TempDir()
	return &fakeRunner{cfg: cfg}
}

func TestHealth(t *testing.T) {
	s := NewServer(newRunner(t), nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("health = %d %q", w.Code, w.Body.String())
	}
}

func TestStatus(t *testing.T) {
	runner := newRunner(t)
	s := NewServer(runner, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Listings != 3 || resp.MonthsAhead != 3 || resp.Schedule != config.DefaultSchedule {
		t.Errorf("resp = %+v", resp)
	}
	if resp.LastRun != nil {
		t.Error("last_run should be null before any run")
	}

	runner.last = &scrape.Result{RunID: "abc", Rows: 10}
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/status", nil))
	if !strings.Contains(w.Body.String(), `"run_id":"abc"`) {
		t.Errorf("body missing last run: %s", w.Body.String())
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		busy     bool
		err      error
		wantCode int
		wantRuns int
	}{
		{"ok", "POST", false, nil, http.StatusOK, 1},
		{"wrong method", "GET", false, nil, http.StatusMethodNotAllowed, 0},
		{"busy", "POST", true, nil, http.StatusConflict, 0},
		{"run failed", "POST", false, errors.New("listing 1: 403"), http.StatusBadGateway, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newRunner(t)
			runner.busy = tt.busy
			runner.err = tt.err
			s := NewServer(runner, nil)

			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(tt.method, "/api/run", nil))

			if w.Code != tt.wantCode {
				t.Errorf("code = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if runner.runs != tt.wantRuns {
				t.Errorf("runs = %d, want %d", runner.runs, tt.wantRuns)
			}
		})
	}
}

func TestRunOutlivesRequestContext(t *testing.T) {
	runner := newRunner(t)
	s := NewServer(runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest("POST", "/api/run", nil).WithContext(ctx)
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	if runner.ctxDone {
		t.Error("run context must not inherit request cancellation")
	}
}

func TestDataFiles(t *testing.T) {
	runner := newRunner(t)
	path := filepath.Join(runner.cfg.DataDir, "airbnb_2026-10-18.csv")
	if err := os.WriteFile(path, []byte("room_id,date,available\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewServer(runner, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/data/airbnb_2026-10-18.csv", nil))
	if w.Code != http.StatusOK || w.Body.String() != "room_id,date,available\n" {
		t.Errorf("data = %d %q", w.Code, w.Body.String())
	}
}

func TestBasicAuth(t *testing.T) {
	runner := newRunner(t)
	runner.cfg.BasicAuth = &config.BasicAuthConfig{Username: "ops", Password: "hunter2"}
	h := NewServer(runner, nil).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no credentials: code = %d", w.Code)
	}

	req := httptest.NewRequest("GET", "/api/status", nil)
	req.SetBasicAuth("ops", "wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: code = %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/status", nil)
	req.SetBasicAuth("ops", "hunter2")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid credentials: code = %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health must stay open: code = %d", w.Code)
	}
}

func TestStartShutsDownOnCancel(t *testing.T) {
	s := NewServer(newRunner(t), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

type fakeSnapshots struct {
	days map[string][]model.CalendarDay
	err  error
}

func (f *fakeSnapshots) GetDays(_ context.Context, listingID string) ([]model.CalendarDay, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.days[listingID], nil
}

func TestSnapshot(t *testing.T) {
	snaps := &fakeSnapshots{days: map[string][]model.CalendarDay{
		"42": {{ListingID: "42", Date: "2026-10-18", Available: true}},
	}}
	h := NewServer(newRunner(t), snaps).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/snapshot/42", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d (body %s)", w.Code, w.Body.String())
	}
	var resp snapshotResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ListingID != "42" || len(resp.Days) != 1 || resp.Days[0].Date != "2026-10-18" {
		t.Errorf("resp = %+v", resp)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/snapshot/7", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown listing: code = %d", w.Code)
	}

	snaps.err = errors.New("deadline exceeded")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/snapshot/42", nil))
	if w.Code != http.StatusBadGateway {
		t.Errorf("store error: code = %d", w.Code)
	}
}

func TestSnapshotRouteNeedsStore(t *testing.T) {
	h := NewServer(newRunner(t), nil).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/snapshot/42", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404 without a snapshot store", w.Code)
	}
}
