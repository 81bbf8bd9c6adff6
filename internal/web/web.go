package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"roomcal/internal/config"
	appLog "roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/scrape"
)

// Runner is the part of scrape.Tracker the server needs.
type Runner interface {
	TryRun(ctx context.Context) (scrape.Result, bool, error)
	Last() (scrape.Result, bool)
	Config() *config.Config
}

// SnapshotReader returns the stored days of one listing.
// *firestore.Client implements it.
type SnapshotReader interface {
	GetDays(ctx context.Context, listingID string) ([]model.CalendarDay, error)
}

// Server exposes run status and the CSV directory over HTTP.
type Server struct {
	runner    Runner
	snapshots SnapshotReader
	auth      *config.BasicAuthConfig
	mux       *http.ServeMux

	// runTimeout bounds runs started through /api/run; they outlive the
	// HTTP request that triggered them.
	runTimeout time.Duration
}

// NewServer constructs a new Server. Basic auth and the data directory are
// read from the runner's config at construction time. snapshots may be nil,
// which leaves /api/snapshot/ unregistered.
func NewServer(runner Runner, snapshots SnapshotReader) *Server {
	cfg := runner.Config()
	s := &Server{
		runner:     runner,
		snapshots:  snapshots,
		mux:        http.NewServeMux(),
		runTimeout: 30 * time.Minute,
	}
	if cfg != nil {
		s.auth = cfg.BasicAuth
	}
	s.registerRoutes(cfg)
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled")
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	// Empty username or password counts as disabled.
	return s.auth != nil && s.auth.Username != "" && s.auth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.auth.Username
	password := s.auth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="roomcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Start serves on listen until ctx is canceled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes(cfg *config.Config) {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/run", s.handleRun)
	if s.snapshots != nil {
		s.mux.HandleFunc("GET /api/snapshot/{listing}", s.handleSnapshot)
	}
	if cfg != nil && cfg.DataDir != "" {
		s.mux.Handle("/data/", http.StripPrefix("/data/", http.FileServer(http.Dir(cfg.DataDir))))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type statusResponse struct {
	Listings    int            `json:"listings"`
	MonthsAhead int            `json:"months_ahead"`
	Schedule    string         `json:"schedule"`
	LastRun     *scrape.Result `json:"last_run"`
}

// handleStatus reports the active config summary and the latest run.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var resp statusResponse
	if cfg := s.runner.Config(); cfg != nil {
		resp.Listings = len(cfg.ListingIDs)
		resp.MonthsAhead = cfg.MonthsAhead
		resp.Schedule = cfg.Schedule
	}
	if last, ok := s.runner.Last(); ok {
		resp.LastRun = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRun triggers a run and waits for it. A run already in progress
// yields 409 instead of queueing a second one.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.runTimeout)
	defer cancel()

	appLog.Info("api run requested", "remote", r.RemoteAddr)
	res, started, err := s.runner.TryRun(ctx)
	if !started {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type snapshotResponse struct {
	ListingID string              `json:"listing_id"`
	Days      []model.CalendarDay `json:"days"`
}

// handleSnapshot returns the stored days of one listing from the
// document store, as left by the latest run.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("listing")
	if id == "" {
		writeError(w, http.StatusBadRequest, "listing id is required")
		return
	}

	days, err := s.snapshots.GetDays(r.Context(), id)
	if err != nil {
		appLog.Error("snapshot read failed", err, "listing_id", id)
		writeError(w, http.StatusBadGateway, "snapshot read failed")
		return
	}
	if len(days) == 0 {
		writeError(w, http.StatusNotFound, "no snapshot for listing")
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{ListingID: id, Days: days})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
