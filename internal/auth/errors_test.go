package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsInvalidSession(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrNoSession, true},
		{"wrapped sentinel", fmt.Errorf("logout: %w", ErrNoSession), true},
		{"structured code", &ProviderError{Code: CodeSessionNotFound, Message: "gone"}, true},
		{"jwt message", errors.New("JWT expired"), true},
		{"invalid message", errors.New("Invalid Refresh Token"), true},
		{"auth session message", errors.New("Auth session missing!"), true},
		{"network", errors.New("dial tcp 10.0.0.1:443: connection refused"), false},
		{"unrelated code", &ProviderError{Code: "over_request_rate_limit", Message: "rate limited"}, false},
		{"wrapping text is not the cause", fmt.Errorf("refresh expired session: %w", &ProviderError{Status: 502, Message: "upstream unavailable"}), false},
		{"wrapped transport failure", fmt.Errorf("refresh expired session: %w", errors.New("connection reset by peer")), false},
		{"wrapped provider message", fmt.Errorf("refresh: %w", &ProviderError{Status: 400, Message: "Invalid Refresh Token"}), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsInvalidSession(tc.err))
		})
	}
}

func TestIsSessionOrJWT_IsCaseSensitiveOnMessage(t *testing.T) {
	assert.True(t, IsSessionOrJWT(errors.New("invalid JWT")))
	assert.True(t, IsSessionOrJWT(errors.New("session not found")))
	assert.False(t, IsSessionOrJWT(errors.New("jwt malformed")))
	assert.False(t, IsSessionOrJWT(errors.New("Invalid Refresh Token")))
	assert.True(t, IsSessionOrJWT(&ProviderError{Code: CodeBadJWT}))
	assert.False(t, IsSessionOrJWT(fmt.Errorf("refresh expired session: %w", errors.New("dial tcp: i/o timeout"))))
	assert.True(t, IsSessionOrJWT(fmt.Errorf("fetch: %w", &ProviderError{Status: 401, Message: "invalid JWT: token is expired"})))
}

func TestProviderError_Message(t *testing.T) {
	assert.Equal(t, "Invalid login credentials", (&ProviderError{Message: "Invalid login credentials"}).Error())
	assert.Equal(t, "email_not_confirmed", (&ProviderError{Code: "email_not_confirmed"}).Error())
	assert.Equal(t, "identity provider error", (&ProviderError{}).Error())
}
