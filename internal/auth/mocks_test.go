package auth

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"bandcal/internal/model"
)

type MockGateway struct {
	mock.Mock

	mu       sync.Mutex
	listener Listener
	subs     []*fakeSubscription
}

func (m *MockGateway) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(AuthResult), args.Error(1)
}

func (m *MockGateway) SignUp(ctx context.Context, p SignUpParams) (AuthResult, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(AuthResult), args.Error(1)
}

func (m *MockGateway) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockGateway) FetchSession(ctx context.Context) (*model.Session, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*model.Session)
	return s, args.Error(1)
}

func (m *MockGateway) RefreshSession(ctx context.Context) (*model.Session, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*model.Session)
	return s, args.Error(1)
}

func (m *MockGateway) FetchProfile(ctx context.Context, id string) (*model.Profile, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*model.Profile)
	return p, args.Error(1)
}

func (m *MockGateway) Subscribe(fn Listener) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
	sub := &fakeSubscription{gw: m}
	m.subs = append(m.subs, sub)
	return sub
}

// emit delivers a notification the way the provider would.
func (m *MockGateway) emit(event Event, session *model.Session) {
	m.mu.Lock()
	fn := m.listener
	m.mu.Unlock()
	if fn != nil {
		fn(event, session)
	}
}

type fakeSubscription struct {
	gw        *MockGateway
	cancelled int
}

func (s *fakeSubscription) Cancel() {
	s.gw.mu.Lock()
	defer s.gw.mu.Unlock()
	s.cancelled++
	s.gw.listener = nil
}

type recordingNavigator struct {
	mu      sync.Mutex
	current string
	paths   []string
}

func (n *recordingNavigator) NavigateTo(_ context.Context, path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
	if path == LoginPath {
		n.current = LoginRouteName
	}
}

func (n *recordingNavigator) CurrentRouteName() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *recordingNavigator) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}
