package auth

import (
	"errors"
	"strings"
)

// ErrNoSession is returned when an operation needs a session and none is stored.
var ErrNoSession = errors.New("auth session missing")

// ErrUnexpectedResponse is returned when the provider answered without an
// error but also without the identity/session pair the caller needs.
var ErrUnexpectedResponse = errors.New("unexpected response from identity provider")

// Provider error codes that identify a session which is already gone.
const (
	CodeSessionNotFound         = "session_not_found"
	CodeSessionExpired          = "session_expired"
	CodeRefreshTokenNotFound    = "refresh_token_not_found"
	CodeRefreshTokenAlreadyUsed = "refresh_token_already_used"
	CodeBadJWT                  = "bad_jwt"
	CodeNoAuthorization         = "no_authorization"
)

var invalidSessionCodes = map[string]struct{}{
	CodeSessionNotFound:         {},
	CodeSessionExpired:          {},
	CodeRefreshTokenNotFound:    {},
	CodeRefreshTokenAlreadyUsed: {},
	CodeBadJWT:                  {},
	CodeNoAuthorization:         {},
}

// ProviderError is an error reported by the identity provider or table
// storage. Message is what gets shown to the user on sign-in/sign-up.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "identity provider error"
}

// IsInvalidSession reports whether err means the session was already gone
// (expired, revoked, malformed). Structured codes win; otherwise the message
// is matched against session/jwt/expired/invalid.
func IsInvalidSession(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoSession) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Code != "" {
		if _, ok := invalidSessionCodes[pe.Code]; ok {
			return true
		}
	}
	return containsAny(strings.ToLower(cause(err)), "session", "jwt", "expired", "invalid")
}

// IsSessionOrJWT is the narrower test used while initializing: only messages
// mentioning the session or the JWT clear local state.
func IsSessionOrJWT(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoSession) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.Code {
		case CodeSessionNotFound, CodeSessionExpired, CodeBadJWT:
			return true
		}
	}
	msg := cause(err)
	return strings.Contains(msg, "session") || strings.Contains(msg, "JWT")
}

// cause is the message the heuristics look at: the provider's own text when
// there is one, else the innermost wrapped error. Wrapping context added on
// the way up never counts.
func cause(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
