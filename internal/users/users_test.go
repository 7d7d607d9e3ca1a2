package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bandcal/internal/auth"
	"bandcal/internal/model"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Register(ctx context.Context, p auth.SignUpParams) (*model.Identity, error) {
	args := m.Called(ctx, p)
	id, _ := args.Get(0).(*model.Identity)
	return id, args.Error(1)
}

func (m *MockRepository) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	args := m.Called(ctx)
	ps, _ := args.Get(0).([]model.Profile)
	return ps, args.Error(1)
}

func (m *MockRepository) UpdateProfile(ctx context.Context, id string, u model.ProfileUpdate) (*model.Profile, error) {
	args := m.Called(ctx, id, u)
	p, _ := args.Get(0).(*model.Profile)
	return p, args.Error(1)
}

func (m *MockRepository) DeleteProfile(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type adminFlag bool

func (a adminFlag) IsAdmin() bool { return bool(a) }

func TestCreate_RegistersWaitsThenPatches(t *testing.T) {
	repo := &MockRepository{}
	params := auth.SignUpParams{Email: "vio@example.ro", Password: "pw", Username: "vio", FullName: "Vio Pop", Role: model.RoleAdmin}
	repo.On("Register", mock.Anything, params).Return(&model.Identity{ID: "u5", Email: "vio@example.ro"}, nil).Once()
	repo.On("UpdateProfile", mock.Anything, "u5", mock.MatchedBy(func(u model.ProfileUpdate) bool {
		return *u.Role == model.RoleAdmin && *u.Username == "vio" && *u.FullName == "Vio Pop"
	})).Return(&model.Profile{ID: "u5"}, nil).Once()

	svc := NewService(repo, adminFlag(true))
	var waited time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error { waited = d; return nil }

	id, err := svc.Create(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, "u5", id.ID)
	assert.Equal(t, DefaultProfileWait, waited)
	repo.AssertExpectations(t)
}

func TestCreate_PatchFailureIsNotFatal(t *testing.T) {
	repo := &MockRepository{}
	repo.On("Register", mock.Anything, mock.Anything).Return(&model.Identity{ID: "u6"}, nil)
	repo.On("UpdateProfile", mock.Anything, "u6", mock.Anything).Return(nil, errors.New("row not yet visible"))

	id, err := NewService(repo, adminFlag(true), WithProfileWait(0)).Create(context.Background(),
		auth.SignUpParams{Email: "a@b.ro", Password: "pw", Username: "a"})
	require.NoError(t, err)
	assert.Equal(t, "u6", id.ID)
}

func TestCreate_DefaultsRoleAndValidates(t *testing.T) {
	repo := &MockRepository{}
	repo.On("Register", mock.Anything, mock.MatchedBy(func(p auth.SignUpParams) bool { return p.Role == model.RoleMember })).
		Return(&model.Identity{ID: "u7"}, nil).Once()
	repo.On("UpdateProfile", mock.Anything, "u7", mock.Anything).Return(&model.Profile{ID: "u7"}, nil).Once()

	svc := NewService(repo, adminFlag(true), WithProfileWait(0))
	_, err := svc.Create(context.Background(), auth.SignUpParams{Email: "m@b.ro", Password: "pw", Username: "m"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), auth.SignUpParams{Email: "m@b.ro", Password: "pw"})
	assert.Error(t, err)
	_, err = svc.Create(context.Background(), auth.SignUpParams{Email: "m@b.ro", Password: "pw", Username: "m", Role: "owner"})
	assert.Error(t, err)
	repo.AssertExpectations(t)
}

func TestCreate_RegisterErrorIsReturned(t *testing.T) {
	repo := &MockRepository{}
	repo.On("Register", mock.Anything, mock.Anything).Return(nil, &auth.ProviderError{Code: "user_already_exists", Message: "User already registered"})

	_, err := NewService(repo, adminFlag(true), WithProfileWait(0)).Create(context.Background(),
		auth.SignUpParams{Email: "a@b.ro", Password: "pw", Username: "a"})
	assert.EqualError(t, err, "User already registered")
	repo.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_CancelledWhileWaiting(t *testing.T) {
	repo := &MockRepository{}
	repo.On("Register", mock.Anything, mock.Anything).Return(&model.Identity{ID: "u8"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	id, err := NewService(repo, adminFlag(true), WithProfileWait(time.Hour)).Create(ctx,
		auth.SignUpParams{Email: "a@b.ro", Password: "pw", Username: "a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "u8", id.ID)
}

func TestAdminOnly(t *testing.T) {
	repo := &MockRepository{}
	svc := NewService(repo, adminFlag(false))
	ctx := context.Background()

	_, err := svc.Create(ctx, auth.SignUpParams{Email: "a@b.ro", Password: "pw", Username: "a"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.List(ctx)
	assert.ErrorIs(t, err, ErrForbidden)
	role := model.RoleAdmin
	_, err = svc.Update(ctx, "u1", model.ProfileUpdate{Role: &role})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, "u1"), ErrForbidden)
	repo.AssertExpectations(t)
}

func TestUpdateAndDelete(t *testing.T) {
	repo := &MockRepository{}
	role := model.RoleAdmin
	repo.On("UpdateProfile", mock.Anything, "u1", model.ProfileUpdate{Role: &role}).Return(&model.Profile{ID: "u1", Role: role}, nil).Once()
	repo.On("DeleteProfile", mock.Anything, "u1").Return(nil).Once()
	repo.On("ListProfiles", mock.Anything).Return([]model.Profile{{ID: "u2"}, {ID: "u1"}}, nil).Once()

	svc := NewService(repo, adminFlag(true))
	ctx := context.Background()

	p, err := svc.Update(ctx, "u1", model.ProfileUpdate{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, p.Role)

	_, err = svc.Update(ctx, "u1", model.ProfileUpdate{})
	assert.Error(t, err)

	ps, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ps, 2)

	require.NoError(t, svc.Delete(ctx, "u1"))
	repo.AssertExpectations(t)
}
