package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bandcal/internal/auth"
	appLog "bandcal/internal/log"
	"bandcal/internal/model"
)

// tokenResponse is GoTrue's session payload. Sign-up with email
// confirmation pending returns the bare user object instead, which is why
// id/email also appear at the top level.
type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         *userResponse `json:"user"`

	ID    string `json:"id"`
	Email string `json:"email"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// claims reads the access token without verifying it. The provider signed
// it; the client only needs exp/sub/email as a fallback.
func claims(token string) (*accessClaims, bool) {
	if token == "" {
		return nil, false
	}
	var c accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		appLog.Debug("access token claims unreadable", "err", err)
		return nil, false
	}
	return &c, true
}

func (t tokenResponse) identity() *model.Identity {
	switch {
	case t.User != nil && t.User.ID != "":
		return &model.Identity{ID: t.User.ID, Email: t.User.Email}
	case t.ID != "":
		return &model.Identity{ID: t.ID, Email: t.Email}
	}
	if c, ok := claims(t.AccessToken); ok && c.Subject != "" {
		return &model.Identity{ID: c.Subject, Email: c.Email}
	}
	return nil
}

func (t tokenResponse) session(now time.Time) *model.Session {
	if t.AccessToken == "" {
		return nil
	}
	s := &model.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresAt:    t.ExpiresAt,
		Identity:     t.identity(),
	}
	if s.ExpiresAt == 0 && t.ExpiresIn > 0 {
		s.ExpiresAt = now.Unix() + t.ExpiresIn
	}
	if s.ExpiresAt == 0 {
		if c, ok := claims(t.AccessToken); ok && c.ExpiresAt != nil {
			s.ExpiresAt = c.ExpiresAt.Unix()
		}
	}
	return s
}

func (c *Client) token(ctx context.Context, grant string, body any) (tokenResponse, error) {
	var tr tokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   authPrefix + "/token",
		query:  url.Values{"grant_type": {grant}},
		body:   body,
		bearer: c.anonKey,
	}, &tr)
	return tr, err
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (auth.AuthResult, error) {
	tr, err := c.token(ctx, "password", map[string]string{"email": email, "password": password})
	if err != nil {
		return auth.AuthResult{}, err
	}
	return c.adopt(ctx, tr)
}

type signUpBody struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

func signUpRequest(p auth.SignUpParams) request {
	role := p.Role
	if role == "" {
		role = model.RoleMember
	}
	return request{
		method: http.MethodPost,
		path:   authPrefix + "/signup",
		body: signUpBody{
			Email:    p.Email,
			Password: p.Password,
			Data: map[string]any{
				"username":  p.Username,
				"full_name": p.FullName,
				"role":      string(role),
			},
		},
	}
}

// SignUp registers an identity and, when the project auto-confirms, signs
// it in.
func (c *Client) SignUp(ctx context.Context, p auth.SignUpParams) (auth.AuthResult, error) {
	r := signUpRequest(p)
	r.bearer = c.anonKey
	var tr tokenResponse
	if err := c.do(ctx, r, &tr); err != nil {
		return auth.AuthResult{}, err
	}
	return c.adopt(ctx, tr)
}

// Register creates an identity on someone else's behalf. Unlike SignUp it
// never replaces the caller's stored session.
func (c *Client) Register(ctx context.Context, p auth.SignUpParams) (*model.Identity, error) {
	r := signUpRequest(p)
	r.bearer = c.anonKey
	var tr tokenResponse
	if err := c.do(ctx, r, &tr); err != nil {
		return nil, err
	}
	id := tr.identity()
	if id == nil {
		return nil, fmt.Errorf("signup %s: %w", p.Email, auth.ErrUnexpectedResponse)
	}
	return id, nil
}

// adopt persists a fresh session and announces it.
func (c *Client) adopt(ctx context.Context, tr tokenResponse) (auth.AuthResult, error) {
	res := auth.AuthResult{Identity: tr.identity(), Session: tr.session(c.now())}
	if res.Session == nil {
		return res, nil
	}
	if err := c.storage.Save(ctx, res.Session); err != nil {
		return auth.AuthResult{}, fmt.Errorf("persist session: %w", err)
	}
	c.notify.emit(auth.EventSignedIn, res.Session)
	return res, nil
}

// SignOut revokes the stored session. Local state is always dropped and
// SIGNED_OUT always announced; a remote failure that only says the
// session is already gone is not an error.
func (c *Client) SignOut(ctx context.Context) error {
	s, err := c.storage.Load(ctx)
	if err != nil {
		appLog.Warn("sign-out: stored session unreadable", "err", err)
	}

	var remoteErr error
	if s != nil && s.AccessToken != "" {
		remoteErr = c.do(ctx, request{
			method: http.MethodPost,
			path:   authPrefix + "/logout",
			query:  url.Values{"scope": {"local"}},
			bearer: s.AccessToken,
		}, nil)
	}

	if err := c.storage.Remove(ctx); err != nil {
		appLog.Error("sign-out: failed to remove stored session", err)
	}
	c.notify.emit(auth.EventSignedOut, nil)

	if remoteErr != nil && !auth.IsInvalidSession(remoteErr) {
		return remoteErr
	}
	return nil
}

// FetchSession returns the stored session, refreshing it first when it has
// already expired.
func (c *Client) FetchSession(ctx context.Context) (*model.Session, error) {
	s, err := c.storage.Load(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	if !s.Expired(c.now()) {
		return s, nil
	}
	fresh, err := c.RefreshSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh expired session: %w", err)
	}
	return fresh, nil
}

// RefreshSession trades the stored refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context) (*model.Session, error) {
	s, err := c.storage.Load(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil || s.RefreshToken == "" {
		return nil, auth.ErrNoSession
	}

	tr, err := c.token(ctx, "refresh_token", map[string]string{"refresh_token": s.RefreshToken})
	if err != nil {
		if auth.IsInvalidSession(err) {
			if rmErr := c.storage.Remove(ctx); rmErr != nil {
				appLog.Error("refresh: failed to remove stored session", rmErr)
			}
		}
		return nil, err
	}

	fresh := tr.session(c.now())
	if fresh == nil {
		return nil, fmt.Errorf("refresh: %w", auth.ErrUnexpectedResponse)
	}
	if fresh.Identity == nil {
		fresh.Identity = s.Identity
	}
	if err := c.storage.Save(ctx, fresh); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	c.notify.emit(auth.EventTokenRefreshed, fresh)
	return fresh.Clone(), nil
}

// FetchProfile reads the user_profiles row for id.
func (c *Client) FetchProfile(ctx context.Context, id string) (*model.Profile, error) {
	var p model.Profile
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   restPrefix + "/user_profiles",
		query:  url.Values{"select": {"*"}, "id": {"eq." + id}},
		accept: mediaSingleObject,
	}, &p)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	if p.ID == "" {
		return nil, nil
	}
	return &p, nil
}

// Subscribe registers fn for auth notifications.
func (c *Client) Subscribe(fn auth.Listener) auth.Subscription {
	return c.notify.subscribe(fn)
}

var _ auth.Gateway = (*Client)(nil)
