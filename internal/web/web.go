// Package web is the companion HTTP server: a health probe, the session
// snapshot, the event list, the subscribable calendar feed and metrics.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"bandcal/internal/auth"
	"bandcal/internal/config"
	"bandcal/internal/events"
	"bandcal/internal/ics"
	appLog "bandcal/internal/log"
	"bandcal/internal/metrics"
	"bandcal/internal/model"
	"bandcal/internal/router"
)

// EventLister is the read side of events.Service.
type EventLister interface {
	FetchAll(ctx context.Context) ([]model.Event, error)
	FetchByMonth(ctx context.Context, year int, month time.Month) ([]model.Event, error)
	Upcoming(ctx context.Context, now time.Time) ([]model.Event, error)
}

// Deps wires the server to the rest of the application.
type Deps struct {
	Config *config.Config
	Store  *auth.Store
	Guard  router.Checker
	Events EventLister
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Now      func() time.Time
}

type Server struct {
	cfg    *config.Config
	store  *auth.Store
	guard  router.Checker
	events EventLister
	gather prometheus.Gatherer
	now    func() time.Time
	loc    *time.Location
}

func NewServer(d Deps) *Server {
	cfg := d.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		cfg:    cfg,
		store:  d.Store,
		guard:  d.Guard,
		events: d.Events,
		gather: d.Gatherer,
		now:    now,
		loc:    cfg.Location(),
	}
}

// Handler returns the routed handler, wrapped in Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.basicAuthEnabled() {
		r.Use(s.basicAuth)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/api/session", s.handleSession)

	r.Group(func(r chi.Router) {
		r.Use(s.requireRoute("events"))
		r.Get("/api/events", s.handleEvents)
		r.Get("/calendar.ics", s.handleCalendar)
	})

	if s.gather != nil {
		r.Handle("/metrics", metrics.Handler(s.gather))
	}
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) basicAuthEnabled() bool {
	return s.cfg.BasicAuth != nil && s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuth guards everything except /health.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="bandcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requireRoute runs the navigation guard as if the request were a
// navigation to the named route.
func (s *Server) requireRoute(name string) func(http.Handler) http.Handler {
	var target router.Route
	for _, rt := range router.Routes {
		if rt.Name == name {
			target = rt
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.guard == nil {
				next.ServeHTTP(w, r)
				return
			}
			d := s.guard.Check(r.Context(), target)
			if d.Allow {
				next.ServeHTTP(w, r)
				return
			}
			status := http.StatusForbidden
			if d.Redirect == auth.LoginPath {
				status = http.StatusUnauthorized
			}
			writeJSON(w, status, map[string]string{"error": http.StatusText(status), "redirect": d.Redirect})
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		evs []model.Event
		err error
	)
	switch month := r.URL.Query().Get("month"); {
	case month != "":
		year, mon, perr := parseMonth(month)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		evs, err = s.events.FetchByMonth(ctx, year, mon)
	case r.URL.Query().Get("upcoming") == "1":
		evs, err = s.events.Upcoming(ctx, s.now())
	default:
		evs, err = s.events.FetchAll(ctx)
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if evs == nil {
		evs = []model.Event{}
	}
	writeJSON(w, http.StatusOK, evs)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	evs, err := s.events.Upcoming(r.Context(), now)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	body, err := ics.Export(evs, ics.ExportOptions{
		ProdID:    s.cfg.Export.ProdID,
		UIDDomain: s.cfg.Export.UIDDomain,
		Duration:  s.cfg.Export.EventDuration,
		Location:  s.loc,
		Now:       func() time.Time { return now },
	})
	if errors.Is(err, ics.ErrNoEvents) {
		writeError(w, http.StatusNotFound, "no upcoming events")
		return
	}
	if err != nil {
		appLog.Error("calendar export failed", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", ics.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.cfg.Export.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, events.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case auth.IsSessionOrJWT(err):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		appLog.Error("events request failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// parseMonth reads YYYY-MM.
func parseMonth(v string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(v))
	if err != nil {
		return 0, 0, fmt.Errorf("month %q: expected YYYY-MM", v)
	}
	return t.Year(), t.Month(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
