package auth

import (
	"sync"

	"bandcal/internal/model"
)

// State is the lifecycle controller's position.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateAuthenticated
	StateAnonymous
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitializing:
		return "INITIALIZING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateAnonymous:
		return "ANONYMOUS"
	case StateRefreshing:
		return "REFRESHING"
	default:
		return "UNKNOWN"
	}
}

// Snapshot is a consistent copy of the store at one instant.
type Snapshot struct {
	Identity   *model.Identity `json:"identity"`
	Session    *model.Session  `json:"-"`
	Profile    *model.Profile  `json:"profile"`
	Loading    bool            `json:"loading"`
	LastError  string          `json:"last_error,omitempty"`
	State      string          `json:"state"`
	Generation uint64          `json:"generation"`
	ExpiresAt  int64           `json:"expires_at,omitempty"`
}

func (s Snapshot) IsAuthenticated() bool { return s.Identity != nil && s.Session != nil }
func (s Snapshot) IsAdmin() bool         { return s.Profile != nil && s.Profile.Role == model.RoleAdmin }
func (s Snapshot) IsMember() bool        { return s.Profile != nil && s.Profile.Role == model.RoleMember }

// Store holds the current identity, session and profile. Only the
// Controller writes to it; everyone else reads.
//
// generation advances on every identity-changing write (populate or clear).
// Handlers that suspend on a remote call capture it first and commit only if
// it is unchanged, so a slow response never overwrites a newer transition.
type Store struct {
	mu sync.RWMutex

	identity  *model.Identity
	session   *model.Session
	profile   *model.Profile
	loading   bool
	lastError string
	state     State

	generation uint64
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Loading:    s.loading,
		LastError:  s.lastError,
		State:      s.state.String(),
		Generation: s.generation,
	}
	if s.identity != nil {
		id := *s.identity
		snap.Identity = &id
	}
	if s.session != nil {
		snap.Session = s.session.Clone()
		snap.ExpiresAt = s.session.ExpiresAt
	}
	if s.profile != nil {
		p := *s.profile
		snap.Profile = &p
	}
	return snap
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil && s.session != nil
}

func (s *Store) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile != nil && s.profile.Role == model.RoleAdmin
}

func (s *Store) IsMember() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile != nil && s.profile.Role == model.RoleMember
}

func (s *Store) Identity() *model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

func (s *Store) Session() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

func (s *Store) Profile() *model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// beginAction marks a user-initiated call in flight.
func (s *Store) beginAction() {
	s.mu.Lock()
	s.loading = true
	s.lastError = ""
	s.mu.Unlock()
}

func (s *Store) failAction(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.loading = false
	s.mu.Unlock()
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *Store) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// setStateIf moves from one state to another only if the store is still in
// from, and reports whether it did.
func (s *Store) setStateIf(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// populate installs identity and session unconditionally. The profile is
// kept only if it belongs to the same identity. Returns the new generation.
func (s *Store) populate(identity *model.Identity, session *model.Session, profile *model.Profile) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTripleLocked(identity, session, profile)
	return s.generation
}

// populateIf is populate guarded by the generation captured before the
// caller's remote call.
func (s *Store) populateIf(gen uint64, identity *model.Identity, session *model.Session, profile *model.Profile) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return s.generation, false
	}
	s.setTripleLocked(identity, session, profile)
	return s.generation, true
}

func (s *Store) setTripleLocked(identity *model.Identity, session *model.Session, profile *model.Profile) {
	if profile == nil && s.profile != nil && identity != nil && s.profile.ID == identity.ID {
		profile = s.profile
	}
	s.identity = nil
	if identity != nil {
		id := *identity
		s.identity = &id
	}
	s.session = session.Clone()
	s.profile = profile
	s.state = StateAuthenticated
	s.generation++
}

// clear empties the triple unconditionally and returns the new generation.
func (s *Store) clear() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	return s.generation
}

func (s *Store) clearIf(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.clearLocked()
	return true
}

func (s *Store) clearLocked() {
	s.identity = nil
	s.session = nil
	s.profile = nil
	s.state = StateAnonymous
	s.generation++
}

// setProfileIf attaches a freshly fetched profile to the current identity.
func (s *Store) setProfileIf(gen uint64, profile *model.Profile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.identity == nil {
		return false
	}
	s.profile = profile
	return true
}

// updateSession replaces the session (and identity, if the new session
// carries one) in place. The profile and generation are untouched. It is a
// no-op when nobody is signed in or the session belongs to someone else.
func (s *Store) updateSession(session *model.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSessionLocked(session)
}

func (s *Store) updateSessionIf(gen uint64, session *model.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	return s.updateSessionLocked(session)
}

func (s *Store) updateSessionLocked(session *model.Session) bool {
	if session == nil || s.identity == nil {
		return false
	}
	if session.Identity != nil && session.Identity.ID != s.identity.ID {
		return false
	}
	s.session = session.Clone()
	if session.Identity != nil {
		id := *session.Identity
		s.identity = &id
	}
	return true
}
