// Package events reads and edits the band's gig calendar. Reads are open to
// any signed-in member; mutations require the admin role.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	appLog "bandcal/internal/log"
	"bandcal/internal/model"
)

const (
	dateLayout = "2006-01-02"

	defaultTTL = time.Minute
)

var (
	ErrForbidden = errors.New("permission denied")
	ErrNoChanges = errors.New("no fields to update")
)

// Repository is the table-level storage for events.
type Repository interface {
	ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error)
	CreateEvent(ctx context.Context, d model.CreateEventData) (*model.Event, error)
	UpdateEvent(ctx context.Context, id string, u model.UpdateEventData) (*model.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// Permissions answers who is acting. *auth.Store satisfies it.
type Permissions interface {
	Identity() *model.Identity
	IsAdmin() bool
}

type Service struct {
	repo  Repository
	perms Permissions
	loc   *time.Location
	cache *gocache.Cache
}

type Option func(*Service)

// WithLocation sets the timezone that decides what "today" and month
// boundaries mean. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithCacheTTL sets how long listings are reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = gocache.New(ttl, 2*ttl)
	}
}

func NewService(repo Repository, perms Permissions, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		perms: perms,
		loc:   time.Local,
		cache: gocache.New(defaultTTL, 2*defaultTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchAll lists every event ordered by date then time.
func (s *Service) FetchAll(ctx context.Context) ([]model.Event, error) {
	return s.list(ctx, "all", model.EventFilter{})
}

// FetchByMonth lists the events between the first and last day of the
// month, inclusive.
func (s *Service) FetchByMonth(ctx context.Context, year int, month time.Month) ([]model.Event, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("month %d out of range", month)
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	last := first.AddDate(0, 1, -1)
	f := model.EventFilter{From: first.Format(dateLayout), To: last.Format(dateLayout)}
	return s.list(ctx, first.Format("2006-01"), f)
}

// Upcoming lists events from today on, today's already-started ones
// included.
func (s *Service) Upcoming(ctx context.Context, now time.Time) ([]model.Event, error) {
	today := now.In(s.loc).Format(dateLayout)
	return s.list(ctx, "from:"+today, model.EventFilter{From: today})
}

// Next returns the earliest event dated today or later, or nil.
func (s *Service) Next(ctx context.Context, now time.Time) (*model.Event, error) {
	f := model.EventFilter{From: now.In(s.loc).Format(dateLayout), Limit: 1}
	evs, err := s.repo.ListEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return nil, nil
	}
	ev := evs[0]
	return &ev, nil
}

func (s *Service) Create(ctx context.Context, d model.CreateEventData) (*model.Event, error) {
	id := s.perms.Identity()
	if id == nil || !s.perms.IsAdmin() {
		return nil, fmt.Errorf("create event: %w", ErrForbidden)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	by := id.ID
	d.CreatedBy = &by

	ev, err := s.repo.CreateEvent(ctx, d)
	if err != nil {
		return nil, err
	}
	s.invalidate()
	appLog.Info("event created", "event_id", ev.ID, "date", ev.EventDate, "by", by)
	return ev, nil
}

func (s *Service) Update(ctx context.Context, id string, u model.UpdateEventData) (*model.Event, error) {
	if !s.perms.IsAdmin() {
		return nil, fmt.Errorf("update event: %w", ErrForbidden)
	}
	if u.Empty() {
		return nil, ErrNoChanges
	}
	if u.Type != nil && !u.Type.IsValid() {
		return nil, fmt.Errorf("unknown event type %q", *u.Type)
	}

	ev, err := s.repo.UpdateEvent(ctx, id, u)
	if err != nil {
		return nil, err
	}
	s.invalidate()
	appLog.Info("event updated", "event_id", id)
	return ev, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if !s.perms.IsAdmin() {
		return fmt.Errorf("delete event: %w", ErrForbidden)
	}
	if err := s.repo.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.invalidate()
	appLog.Info("event deleted", "event_id", id)
	return nil
}

// list serves listings from the cache. Entries are keyed per identity so a
// different user signing in never sees the previous user's results.
func (s *Service) list(ctx context.Context, key string, f model.EventFilter) ([]model.Event, error) {
	key = s.owner() + "|" + key
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return append([]model.Event(nil), v.([]model.Event)...), nil
		}
	}
	evs, err := s.repo.ListEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetDefault(key, append([]model.Event(nil), evs...))
	}
	return evs, nil
}

func (s *Service) owner() string {
	if id := s.perms.Identity(); id != nil {
		return id.ID
	}
	return "anon"
}

func (s *Service) invalidate() {
	if s.cache != nil {
		s.cache.Flush()
	}
}
