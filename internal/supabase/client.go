// Package supabase talks to a hosted Supabase project: GoTrue for
// authentication under /auth/v1 and PostgREST for table storage under
// /rest/v1. Client implements auth.Gateway and the events/users
// repositories.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"bandcal/internal/auth"
	appLog "bandcal/internal/log"
)

const (
	authPrefix = "/auth/v1"
	restPrefix = "/rest/v1"

	mediaJSON         = "application/json"
	mediaSingleObject = "application/vnd.pgrst.object+json"

	// PostgREST code for "singular response requested, zero rows".
	codeNoRows = "PGRST116"

	maxErrorBody = 64 << 10
)

// Client is a minimal Supabase client.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	limiter *rate.Limiter
	storage SessionStorage
	now     func() time.Time

	notify *emitter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit throttles outgoing requests. rps <= 0 disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithStorage sets where the session is persisted. Defaults to memory.
func WithStorage(s SessionStorage) ClientOption {
	return func(c *Client) {
		if s != nil {
			c.storage = s
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient creates a client for the project at baseURL.
func NewClient(baseURL, anonKey string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("supabase: invalid base url %q", baseURL)
	}
	if anonKey == "" {
		return nil, errors.New("supabase: anon key is empty")
	}
	c := &Client{
		baseURL: strings.TrimSuffix(u.String(), "/"),
		anonKey: anonKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		storage: NewMemoryStorage(),
		now:     time.Now,
		notify:  newEmitter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// request describes one HTTP call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// bearer overrides the Authorization token. Empty means "current
	// session's access token, else the anon key".
	bearer string
	accept string
	prefer string
}

// do performs the request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		buf, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", r.method, r.path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer(ctx, r.bearer))
	if r.body != nil {
		req.Header.Set("Content-Type", mediaJSON)
	}
	accept := r.accept
	if accept == "" {
		accept = mediaJSON
	}
	req.Header.Set("Accept", accept)
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	appLog.Debug("supabase request", "method", r.method, "path", r.path, "status", resp.StatusCode, "elapsed", time.Since(start).String())

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}

func (c *Client) bearer(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	s, err := c.storage.Load(ctx)
	if err == nil && s != nil && s.AccessToken != "" {
		return s.AccessToken
	}
	return c.anonKey
}

// errorBody covers the GoTrue (old and new) and PostgREST error shapes.
type errorBody struct {
	ErrorCode        string          `json:"error_code"`
	Code             json.RawMessage `json:"code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	pe := &auth.ProviderError{Status: resp.StatusCode}

	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		pe.Code = eb.ErrorCode
		if pe.Code == "" {
			var s string
			if json.Unmarshal(eb.Code, &s) == nil {
				pe.Code = s
			}
		}
		if pe.Code == "" {
			pe.Code = eb.Error
		}
		for _, m := range []string{eb.Msg, eb.ErrorDescription, eb.Message, eb.Error} {
			if m != "" {
				pe.Message = m
				break
			}
		}
	}
	if pe.Message == "" {
		pe.Message = strings.TrimSpace(string(raw))
	}
	if pe.Message == "" {
		pe.Message = resp.Status
	}
	return pe
}

// isNoRows reports whether err is PostgREST's "zero rows for a single object".
func isNoRows(err error) bool {
	var pe *auth.ProviderError
	return errors.As(err, &pe) && pe.Code == codeNoRows
}
