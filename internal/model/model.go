package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a row addressed by id does not exist or is
// not visible to the caller.
var ErrNotFound = errors.New("not found")

// Identity is the authenticated principal as assigned by the identity
// provider. Immutable from the client's point of view.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a time-bounded credential for an Identity.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	// ExpiresAt is the expiry as epoch seconds. Zero means unknown.
	ExpiresAt int64     `json:"expires_at"`
	Identity  *Identity `json:"user,omitempty"`
}

// ExpiresIn returns the time left before the session expires.
func (s *Session) ExpiresIn(now time.Time) time.Duration {
	if s == nil || s.ExpiresAt == 0 {
		return 0
	}
	return time.Duration(s.ExpiresAt-now.Unix()) * time.Second
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return s != nil && s.ExpiresAt != 0 && now.Unix() >= s.ExpiresAt
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	return &out
}

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	return r == RoleMember || r == RoleAdmin
}

// ParseRole maps user input onto a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r == "" {
		return RoleMember, nil
	}
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Profile is the application-level record attached one-to-one to an
// Identity (table user_profiles).
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	FullName  *string   `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileUpdate carries the editable profile columns. Nil fields are left
// untouched.
type ProfileUpdate struct {
	Username *string `json:"username,omitempty"`
	FullName *string `json:"full_name,omitempty"`
	Role     *Role   `json:"role,omitempty"`
}

// EventType is the kind of gig.
type EventType string

const (
	EventCununie EventType = "cununie"
	EventBotez   EventType = "botez"
	EventMajorat EventType = "majorat"
	EventNunta   EventType = "nunta"
	EventAltu    EventType = "altu"
)

var eventTypeLabels = map[EventType]string{
	EventCununie: "Cununie",
	EventBotez:   "Botez",
	EventMajorat: "Majorat",
	EventNunta:   "Nuntă",
	EventAltu:    "Altul",
}

// Label is the human-readable name, or the raw value for unknown types.
func (t EventType) Label() string {
	if l, ok := eventTypeLabels[t]; ok {
		return l
	}
	return string(t)
}

func (t EventType) IsValid() bool {
	_, ok := eventTypeLabels[t]
	return ok
}

// Event is a row of the events table. EventDate is YYYY-MM-DD and
// EventTime is HH:MM or HH:MM:SS, both in the band's local timezone.
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Type      EventType `json:"type"`
	Location  string    `json:"location"`
	EventDate string    `json:"event_date"`
	EventTime string    `json:"event_time"`
	CreatedBy *string   `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StartIn combines EventDate and EventTime in loc.
func (e Event) StartIn(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation("2006-01-02", e.EventDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("event %s: bad date %q: %w", e.ID, e.EventDate, err)
	}
	h, m, sec, err := parseClock(e.EventTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("event %s: bad time %q: %w", e.ID, e.EventTime, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, sec, 0, loc), nil
}

func parseClock(v string) (int, int, int, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
			return t.Hour(), t.Minute(), t.Second(), nil
		}
	}
	return 0, 0, 0, fmt.Errorf("expected HH:MM or HH:MM:SS")
}

// CreateEventData is the payload for inserting an event.
type CreateEventData struct {
	Title     string    `json:"title"`
	Type      EventType `json:"type"`
	Location  string    `json:"location"`
	EventDate string    `json:"event_date"`
	EventTime string    `json:"event_time"`
	CreatedBy *string   `json:"created_by,omitempty"`
}

// Validate checks the fields the table constrains.
func (d CreateEventData) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if !d.Type.IsValid() {
		return fmt.Errorf("unknown event type %q", d.Type)
	}
	if _, err := time.Parse("2006-01-02", d.EventDate); err != nil {
		return fmt.Errorf("event_date %q: expected YYYY-MM-DD", d.EventDate)
	}
	if _, _, _, err := parseClock(d.EventTime); err != nil {
		return fmt.Errorf("event_time %q: %w", d.EventTime, err)
	}
	return nil
}

// UpdateEventData is a partial event update. Nil fields are left untouched.
type UpdateEventData struct {
	Title     *string    `json:"title,omitempty"`
	Type      *EventType `json:"type,omitempty"`
	Location  *string    `json:"location,omitempty"`
	EventDate *string    `json:"event_date,omitempty"`
	EventTime *string    `json:"event_time,omitempty"`
}

// Empty reports whether no field is set.
func (u UpdateEventData) Empty() bool {
	return u.Title == nil && u.Type == nil && u.Location == nil && u.EventDate == nil && u.EventTime == nil
}

// Occurrence represents a single concrete instance of an imported calendar
// event, after recurrence expansion and timezone normalization.
type Occurrence struct {
	SourceID string
	UID      string

	// InstanceKey uniquely identifies one occurrence of a recurring event.
	InstanceKey string

	Summary     string
	Description string
	Location    string

	AllDay bool

	// Start / End are in the display timezone.
	Start time.Time
	End   time.Time
}

// EventFilter narrows an events listing by event_date (inclusive,
// YYYY-MM-DD). Zero values leave that side unbounded.
type EventFilter struct {
	From  string
	To    string
	Limit int
}
