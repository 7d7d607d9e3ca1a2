package auth

import (
	"context"

	"bandcal/internal/model"
)

// Event is a change notification pushed by the identity provider.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// AuthResult is what sign-in and sign-up hand back. Either field may be nil
// (sign-up with email confirmation pending returns an identity only).
type AuthResult struct {
	Identity *model.Identity
	Session  *model.Session
}

// SignUpParams seeds the profile the provider creates for a new identity.
type SignUpParams struct {
	Email    string
	Password string
	Username string
	FullName string
	Role     model.Role
}

// Subscription is a handle on a notification listener.
type Subscription interface {
	// Cancel stops future callbacks. Safe to call more than once.
	Cancel()
}

// Listener receives provider notifications.
type Listener func(event Event, session *model.Session)

// Gateway is the adapter over the remote identity provider.
type Gateway interface {
	SignIn(ctx context.Context, email, password string) (AuthResult, error)
	SignUp(ctx context.Context, p SignUpParams) (AuthResult, error)
	// SignOut treats invalid-session failures as success.
	SignOut(ctx context.Context) error
	// FetchSession returns nil, nil when no session exists.
	FetchSession(ctx context.Context) (*model.Session, error)
	RefreshSession(ctx context.Context) (*model.Session, error)
	// FetchProfile returns nil, nil when no profile row is visible.
	FetchProfile(ctx context.Context, id string) (*model.Profile, error)
	Subscribe(fn Listener) Subscription
}

// Navigator is the navigation boundary the controller drives.
type Navigator interface {
	NavigateTo(ctx context.Context, path string)
	CurrentRouteName() string
}

// Metrics receives lifecycle counters.
type Metrics interface {
	RecordSignIn(result string)
	RecordSignOut()
	RecordRefresh(result string)
	RecordNotification(event string)
	RecordStaleWrite(handler string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordSignIn(string)       {}
func (NopMetrics) RecordSignOut()            {}
func (NopMetrics) RecordRefresh(string)      {}
func (NopMetrics) RecordNotification(string) {}
func (NopMetrics) RecordStaleWrite(string)   {}
