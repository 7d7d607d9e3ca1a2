package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"bandcal/internal/auth"
	"bandcal/internal/config"
	"bandcal/internal/events"
	appLog "bandcal/internal/log"
	"bandcal/internal/metrics"
	"bandcal/internal/router"
	"bandcal/internal/supabase"
	"bandcal/internal/users"
)

// app is the wired object graph every command works against.
type app struct {
	cfg      *config.Config
	client   *supabase.Client
	store    *auth.Store
	router   *router.Router
	guard    *router.Guard
	ctrl     *auth.Controller
	events   *events.Service
	users    *users.Service
	registry *prometheus.Registry
}

func newApp() (*app, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	appLog.Setup(appLog.Config{Env: cfg.Log.Env, Level: cfg.Log.Level})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w (edit %s)", err, path)
	}

	client, err := supabase.NewClient(cfg.Backend.URL, cfg.Backend.AnonKey,
		supabase.WithTimeout(cfg.Backend.Timeout),
		supabase.WithRateLimit(cfg.Backend.RequestsPerSecond),
		supabase.WithStorage(supabase.NewFileStorage(cfg.Session.File)),
	)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	store := auth.NewStore()
	r := router.New(router.Routes)
	ctrl := auth.NewController(client, store,
		auth.WithNavigator(r),
		auth.WithMetrics(collector),
		auth.WithRefreshSchedule(cfg.Session.Refresh),
		auth.WithRefreshThreshold(cfg.Session.RefreshThreshold),
	)
	guard := router.NewGuard(client, ctrl)
	r.Use(guard)

	return &app{
		cfg:      cfg,
		client:   client,
		store:    store,
		router:   r,
		guard:    guard,
		ctrl:     ctrl,
		events:   events.NewService(client, store, events.WithLocation(cfg.Location())),
		users:    users.NewService(client, store),
		registry: reg,
	}, nil
}

// restore loads the stored session into the store. Commands that need a
// signed-in user call it first.
func (a *app) restore(ctx context.Context) error {
	a.ctrl.Initialize(ctx)
	if !a.store.IsAuthenticated() {
		return errNotSignedIn
	}
	return nil
}

var errNotSignedIn = errors.New(`not signed in (run "bandcal login")`)

// lastError turns a failed controller action into an error.
func (a *app) lastError(action string) error {
	if msg := a.store.LastError(); msg != "" {
		return fmt.Errorf("%s: %s", action, msg)
	}
	return fmt.Errorf("%s failed", action)
}
