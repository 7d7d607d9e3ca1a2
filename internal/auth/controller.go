package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "bandcal/internal/log"
	"bandcal/internal/model"
)

// Route names and paths the controller navigates between.
const (
	LoginPath       = "/login"
	LoginRouteName  = "login"
	SignupRouteName = "signup"

	DefaultRefreshSchedule  = "@every 5m"
	DefaultRefreshThreshold = 300 * time.Second
)

// Controller drives the session lifecycle: initialization, user actions,
// provider notifications and the periodic refresh check. It is the only
// writer of its Store.
type Controller struct {
	gw      Gateway
	store   *Store
	nav     Navigator
	metrics Metrics

	now       func() time.Time
	threshold time.Duration
	schedule  string

	mu   sync.Mutex
	ctx  context.Context
	sub  Subscription
	cron *cron.Cron
}

// Option configures a Controller.
type Option func(*Controller)

func WithNavigator(n Navigator) Option {
	return func(c *Controller) {
		if n != nil {
			c.nav = n
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func WithRefreshThreshold(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.threshold = d
		}
	}
}

// WithRefreshSchedule sets the cron spec of the periodic refresh check.
func WithRefreshSchedule(spec string) Option {
	return func(c *Controller) {
		if spec != "" {
			c.schedule = spec
		}
	}
}

func NewController(gw Gateway, store *Store, opts ...Option) *Controller {
	c := &Controller{
		gw:        gw,
		store:     store,
		nav:       nopNavigator{},
		metrics:   NopMetrics{},
		now:       time.Now,
		threshold: DefaultRefreshThreshold,
		schedule:  DefaultRefreshSchedule,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Store() *Store { return c.store }

// Start initializes the store, subscribes to provider notifications and
// starts the periodic refresh check. Calling Start twice is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	started := c.sub != nil
	c.mu.Unlock()
	if started {
		return nil
	}

	c.Initialize(ctx)

	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := sched.AddFunc(c.schedule, func() { c.CheckAndRefresh(c.context()) }); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", c.schedule, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return nil
	}
	c.ctx = ctx
	c.sub = c.gw.Subscribe(c.handleNotification)
	c.cron = sched
	sched.Start()

	appLog.Info("auth lifecycle started", "refresh", c.schedule, "threshold", c.threshold.String())
	return nil
}

// Teardown cancels the notification subscription and stops the refresh
// schedule. Requests already in flight are not cancelled. Idempotent.
func (c *Controller) Teardown() {
	c.mu.Lock()
	sub, sched := c.sub, c.cron
	c.sub, c.cron = nil, nil
	c.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if sched != nil {
		sched.Stop()
		appLog.Info("auth lifecycle stopped")
	}
}

func (c *Controller) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Initialize restores an existing session, if any. A session whose profile
// cannot be fetched is treated as invalid and dropped without navigating.
func (c *Controller) Initialize(ctx context.Context) {
	prev := c.store.State()
	c.store.setLoading(true)
	c.store.setState(StateInitializing)
	defer c.store.setLoading(false)

	gen := c.store.Generation()

	session, err := c.gw.FetchSession(ctx)
	if err != nil {
		if IsSessionOrJWT(err) {
			appLog.Warn("invalid session detected, clearing auth state", "err", err)
			c.store.clearIf(gen)
			return
		}
		appLog.Error("auth initialization failed", err)
		c.store.setStateIf(StateInitializing, prev)
		return
	}

	if session == nil || session.Identity == nil {
		if !c.store.clearIf(gen) {
			c.stale("initialize")
		}
		return
	}

	profile, err := c.gw.FetchProfile(ctx, session.Identity.ID)
	if err != nil || profile == nil {
		if err == nil {
			err = fmt.Errorf("no profile for user %s", session.Identity.ID)
		}
		appLog.Warn("invalid session, clearing auth state", "err", err, "user_id", session.Identity.ID)
		if !c.store.clearIf(gen) {
			c.stale("initialize")
		}
		return
	}

	if _, ok := c.store.populateIf(gen, session.Identity, session, profile); !ok {
		c.stale("initialize")
		return
	}
	appLog.Info("session restored", "user_id", session.Identity.ID, "role", string(profile.Role))
}

// SignIn authenticates with email and password. On a provider error the
// message is kept in the store's LastError.
func (c *Controller) SignIn(ctx context.Context, email, password string) bool {
	c.store.beginAction()
	res, err := c.gw.SignIn(ctx, email, password)
	return c.completeAuth(ctx, "sign_in", res, err)
}

// SignUp registers a new identity and signs it in when the provider
// returns a session right away.
func (c *Controller) SignUp(ctx context.Context, p SignUpParams) bool {
	if p.Role == "" {
		p.Role = model.RoleMember
	}
	c.store.beginAction()
	res, err := c.gw.SignUp(ctx, p)
	return c.completeAuth(ctx, "sign_up", res, err)
}

func (c *Controller) completeAuth(ctx context.Context, op string, res AuthResult, err error) bool {
	if err != nil {
		c.store.failAction(err.Error())
		c.metrics.RecordSignIn("error")
		appLog.Info("authentication rejected", "op", op, "err", err)
		return false
	}

	if res.Identity == nil || res.Session == nil {
		c.store.setLoading(false)
		c.metrics.RecordSignIn("unexpected")
		appLog.Error("authentication returned no session", ErrUnexpectedResponse, "op", op, "has_identity", res.Identity != nil)
		return false
	}

	gen := c.store.populate(res.Identity, res.Session, nil)
	c.loadProfile(ctx, gen, res.Identity.ID)
	c.store.setLoading(false)
	c.metrics.RecordSignIn("success")
	appLog.Info("signed in", "op", op, "user_id", res.Identity.ID)
	return true
}

// SignOut clears local state before asking the provider to end the session
// and always ends on the login page. It cannot fail from the caller's view.
func (c *Controller) SignOut(ctx context.Context) bool {
	c.store.beginAction()
	c.store.clear()

	func() {
		defer func() {
			if r := recover(); r != nil {
				appLog.Warn("sign-out fault ignored", "panic", fmt.Sprint(r))
			}
		}()
		if err := c.gw.SignOut(ctx); err != nil {
			appLog.Warn("sign-out error ignored", "err", err)
		}
	}()

	c.store.setLoading(false)
	c.metrics.RecordSignOut()
	// The SIGNED_OUT notification may already have taken us there.
	if c.nav.CurrentRouteName() != LoginRouteName {
		c.nav.NavigateTo(ctx, LoginPath)
	}
	return true
}

// loadProfile fetches the profile for id and attaches it if the store has
// not moved on in the meantime. Failures leave the profile empty, even when
// the same identity had one before.
func (c *Controller) loadProfile(ctx context.Context, gen uint64, id string) {
	profile, err := c.gw.FetchProfile(ctx, id)
	if err != nil {
		appLog.Error("error loading user profile", err, "user_id", id)
		profile = nil
	}
	if !c.store.setProfileIf(gen, profile) {
		c.stale("load_profile")
	}
}

// handleNotification applies a provider push. It never panics.
func (c *Controller) handleNotification(event Event, session *model.Session) {
	defer func() {
		if r := recover(); r != nil {
			appLog.Warn("notification handler fault ignored", "event", string(event), "panic", fmt.Sprint(r))
		}
	}()

	ctx := c.context()
	c.metrics.RecordNotification(string(event))
	appLog.Debug("auth notification", "event", string(event), "has_session", session != nil)

	switch event {
	case EventSignedIn:
		if session == nil || session.Identity == nil {
			return
		}
		gen := c.store.populate(session.Identity, session, nil)
		c.loadProfile(ctx, gen, session.Identity.ID)

	case EventSignedOut:
		c.store.clear()
		switch c.nav.CurrentRouteName() {
		case LoginRouteName, SignupRouteName:
		default:
			c.nav.NavigateTo(ctx, LoginPath)
		}

	case EventTokenRefreshed, EventUserUpdated:
		if session == nil {
			return
		}
		if !c.store.updateSession(session) {
			appLog.Debug("session update ignored", "event", string(event))
		}
	}
}

// CheckAndRefresh renews the session when it is about to expire. A failed
// renewal signs the user out; a failed lookup changes nothing.
func (c *Controller) CheckAndRefresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			appLog.Warn("refresh check fault ignored", "panic", fmt.Sprint(r))
		}
	}()

	gen := c.store.Generation()

	session, err := c.gw.FetchSession(ctx)
	if err != nil {
		appLog.Error("error checking session", err)
		return
	}
	if session == nil || session.ExpiresAt == 0 {
		return
	}
	expiresIn := session.ExpiresIn(c.now())
	if expiresIn >= c.threshold {
		return
	}

	refreshing := c.store.setStateIf(StateAuthenticated, StateRefreshing)
	defer func() {
		if refreshing {
			c.store.setStateIf(StateRefreshing, StateAuthenticated)
		}
	}()

	appLog.Info("session close to expiry, refreshing", "expires_in", expiresIn.String())
	refreshed, err := c.gw.RefreshSession(ctx)
	if err != nil {
		c.metrics.RecordRefresh("error")
		if c.store.Generation() != gen {
			c.stale("refresh")
			return
		}
		appLog.Error("failed to refresh session", err)
		refreshing = false
		c.SignOut(ctx)
		return
	}
	if refreshed == nil {
		c.metrics.RecordRefresh("empty")
		return
	}
	if !c.store.updateSessionIf(gen, refreshed) {
		c.stale("refresh")
		return
	}
	c.metrics.RecordRefresh("success")
}

func (c *Controller) stale(handler string) {
	c.metrics.RecordStaleWrite(handler)
	appLog.Debug("discarding stale auth result", "handler", handler)
}

type nopNavigator struct{}

func (nopNavigator) NavigateTo(context.Context, string) {}
func (nopNavigator) CurrentRouteName() string           { return "" }
