// Package router holds the application's route table, the navigation
// guard, and an in-process Router that the auth controller navigates with.
package router

import (
	"context"
	"errors"
	"strings"
	"sync"

	appLog "bandcal/internal/log"
)

// Route is a named destination with its access requirements.
type Route struct {
	Name          string
	Path          string
	RequiresAuth  bool
	RequiresAdmin bool
}

// Routes is the application's route table.
var Routes = []Route{
	{Name: "login", Path: "/login"},
	{Name: "signup", Path: "/signup"},
	{Name: "calendar", Path: "/", RequiresAuth: true},
	{Name: "events", Path: "/events", RequiresAuth: true},
	{Name: "users", Path: "/users", RequiresAuth: true, RequiresAdmin: true},
	{Name: "dashboard", Path: "/dashboard", RequiresAuth: true},
}

// HomePath is where unknown paths and already-signed-in visitors land.
const HomePath = "/"

const maxRedirects = 5

// ErrRedirectLoop is returned when guard redirects do not settle.
var ErrRedirectLoop = errors.New("router: too many redirects")

// Checker decides whether a navigation may proceed.
type Checker interface {
	Check(ctx context.Context, to Route) Decision
}

// Router tracks the current route and runs every navigation through the
// guard. It satisfies auth.Navigator.
type Router struct {
	mu      sync.RWMutex
	routes  map[string]Route
	byName  map[string]Route
	guard   Checker
	current Route
	history []string
}

func New(routes []Route) *Router {
	r := &Router{
		routes: make(map[string]Route, len(routes)),
		byName: make(map[string]Route, len(routes)),
	}
	for _, rt := range routes {
		r.routes[rt.Path] = rt
		r.byName[rt.Name] = rt
	}
	return r
}

// Use installs the navigation guard. Without one every navigation is allowed.
func (r *Router) Use(g Checker) {
	r.mu.Lock()
	r.guard = g
	r.mu.Unlock()
}

// Resolve maps a path onto a route. Unknown paths resolve to home.
func (r *Router) Resolve(path string) Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := normalizePath(path)
	if rt, ok := r.routes[p]; ok {
		return rt
	}
	return r.routes[HomePath]
}

// Lookup returns the route registered under name.
func (r *Router) Lookup(name string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.byName[name]
	return rt, ok
}

// Push navigates to path, following guard redirects, and returns the
// route it settled on.
func (r *Router) Push(ctx context.Context, path string) (Route, error) {
	target := r.Resolve(path)
	for i := 0; i < maxRedirects; i++ {
		r.mu.RLock()
		g := r.guard
		r.mu.RUnlock()

		if g == nil {
			r.settle(target)
			return target, nil
		}
		d := g.Check(ctx, target)
		if d.Allow {
			r.settle(target)
			return target, nil
		}
		appLog.Debug("navigation redirected", "from", target.Path, "to", d.Redirect)
		target = r.Resolve(d.Redirect)
	}
	return r.Current(), ErrRedirectLoop
}

// NavigateTo is Push without the result, for callers that only care about
// ending up somewhere sensible.
func (r *Router) NavigateTo(ctx context.Context, path string) {
	if _, err := r.Push(ctx, path); err != nil {
		appLog.Error("navigation failed", err, "path", path)
	}
}

// CurrentRouteName is the name of the route last settled on.
func (r *Router) CurrentRouteName() string {
	return r.Current().Name
}

func (r *Router) Current() Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// History lists the paths settled on, oldest first.
func (r *Router) History() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.history...)
}

func (r *Router) settle(rt Route) {
	r.mu.Lock()
	r.current = rt
	r.history = append(r.history, rt.Path)
	r.mu.Unlock()
}

func normalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return HomePath
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
