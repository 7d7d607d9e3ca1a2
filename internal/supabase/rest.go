package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"bandcal/internal/model"
)

const (
	tableEvents   = "/events"
	tableProfiles = "/user_profiles"

	preferRepresentation = "return=representation"
)

func eqID(id string) url.Values {
	return url.Values{"id": {"eq." + id}}
}

// ListEvents returns events ordered by date then time.
func (c *Client) ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	q := url.Values{
		"select": {"*"},
		"order":  {"event_date.asc,event_time.asc"},
	}
	if f.From != "" {
		q.Add("event_date", "gte."+f.From)
	}
	if f.To != "" {
		q.Add("event_date", "lte."+f.To)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	var out []model.Event
	if err := c.do(ctx, request{method: http.MethodGet, path: restPrefix + tableEvents, query: q}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateEvent(ctx context.Context, d model.CreateEventData) (*model.Event, error) {
	var ev model.Event
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   restPrefix + tableEvents,
		query:  url.Values{"select": {"*"}},
		body:   d,
		accept: mediaSingleObject,
		prefer: preferRepresentation,
	}, &ev)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *Client) UpdateEvent(ctx context.Context, id string, u model.UpdateEventData) (*model.Event, error) {
	q := eqID(id)
	q.Set("select", "*")
	var ev model.Event
	err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   restPrefix + tableEvents,
		query:  q,
		body:   u,
		accept: mediaSingleObject,
		prefer: preferRepresentation,
	}, &ev)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("event %s: %w", id, model.ErrNotFound)
		}
		return nil, err
	}
	return &ev, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: restPrefix + tableEvents, query: eqID(id)}, nil)
}

// ListProfiles returns every visible profile, newest first.
func (c *Client) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	q := url.Values{"select": {"*"}, "order": {"created_at.desc"}}
	var out []model.Profile
	if err := c.do(ctx, request{method: http.MethodGet, path: restPrefix + tableProfiles, query: q}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, id string, u model.ProfileUpdate) (*model.Profile, error) {
	q := eqID(id)
	q.Set("select", "*")
	var p model.Profile
	err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   restPrefix + tableProfiles,
		query:  q,
		body:   u,
		accept: mediaSingleObject,
		prefer: preferRepresentation,
	}, &p)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("profile %s: %w", id, model.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// DeleteProfile removes the profile row only; the identity itself can only
// be deleted with a service-role key.
func (c *Client) DeleteProfile(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: restPrefix + tableProfiles, query: eqID(id)}, nil)
}
