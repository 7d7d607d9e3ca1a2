package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bandcal/internal/model"
)

var testNow = time.Unix(1_760_000_000, 0)

func newTestController(gw *MockGateway, nav *recordingNavigator) *Controller {
	return NewController(gw, NewStore(),
		WithNavigator(nav),
		WithClock(func() time.Time { return testNow }),
	)
}

func testSession(id string, expiresIn time.Duration) *model.Session {
	return &model.Session{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    testNow.Add(expiresIn).Unix(),
		Identity:     &model.Identity{ID: id, Email: id + "@band.ro"},
	}
}

func testProfile(id string, role model.Role) *model.Profile {
	return &model.Profile{ID: id, Username: "user-" + id, Role: role}
}

func TestSignIn_ProviderErrorSetsLastError(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	gw.On("SignIn", mock.Anything, "ana@band.ro", "wrong").
		Return(AuthResult{}, &ProviderError{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"})

	c := newTestController(gw, &recordingNavigator{})
	ok := c.SignIn(ctx, "ana@band.ro", "wrong")

	assert.False(t, ok)
	assert.Equal(t, "Invalid login credentials", c.Store().LastError())
	assert.False(t, c.Store().IsAuthenticated())
	assert.False(t, c.Store().Loading())
	gw.AssertNotCalled(t, "FetchProfile", mock.Anything, mock.Anything)
}

func TestSignIn_SuccessFetchesProfile(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	s := testSession("u1", time.Hour)
	gw.On("SignIn", mock.Anything, "ana@band.ro", "secret").
		Return(AuthResult{Identity: s.Identity, Session: s}, nil)
	gw.On("FetchProfile", mock.Anything, "u1").Return(testProfile("u1", model.RoleMember), nil)

	c := newTestController(gw, &recordingNavigator{})
	require.True(t, c.SignIn(ctx, "ana@band.ro", "secret"))

	store := c.Store()
	assert.True(t, store.IsAuthenticated())
	assert.True(t, store.IsMember())
	assert.False(t, store.IsAdmin())
	assert.Empty(t, store.LastError())
	assert.False(t, store.Loading())
	assert.Equal(t, StateAuthenticated, store.State())
	gw.AssertCalled(t, "FetchProfile", mock.Anything, "u1")
}

func TestSignIn_UnexpectedShapeFailsWithoutMessage(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	gw.On("SignIn", mock.Anything, mock.Anything, mock.Anything).
		Return(AuthResult{Identity: &model.Identity{ID: "u1"}}, nil)

	c := newTestController(gw, &recordingNavigator{})
	assert.False(t, c.SignIn(ctx, "ana@band.ro", "secret"))
	assert.Empty(t, c.Store().LastError())
	assert.False(t, c.Store().IsAuthenticated())
	assert.False(t, c.Store().Loading())
}

func TestSignUp_AdminRoleYieldsAdmin(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	s := testSession("u2", time.Hour)
	params := SignUpParams{Email: "boss@band.ro", Password: "pw", Username: "boss", Role: model.RoleAdmin}
	gw.On("SignUp", mock.Anything, params).Return(AuthResult{Identity: s.Identity, Session: s}, nil)
	gw.On("FetchProfile", mock.Anything, "u2").Return(testProfile("u2", model.RoleAdmin), nil)

	c := newTestController(gw, &recordingNavigator{})
	require.True(t, c.SignUp(ctx, params))
	assert.True(t, c.Store().IsAdmin())
}

func TestSignUp_DefaultsToMemberRole(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	gw.On("SignUp", mock.Anything, mock.MatchedBy(func(p SignUpParams) bool {
		return p.Role == model.RoleMember
	})).Return(AuthResult{}, errors.New("User already registered"))

	c := newTestController(gw, &recordingNavigator{})
	assert.False(t, c.SignUp(ctx, SignUpParams{Email: "x@band.ro", Password: "pw", Username: "x"}))
	assert.Equal(t, "User already registered", c.Store().LastError())
	gw.AssertExpectations(t)
}

func TestSignOut_ClearsAndNavigatesEvenWhenGatewayFails(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	gw.On("SignOut", mock.Anything).Return(errors.New("network unreachable"))

	nav := &recordingNavigator{current: "calendar"}
	c := newTestController(gw, nav)
	s := testSession("u1", time.Hour)
	c.Store().populate(s.Identity, s, testProfile("u1", model.RoleAdmin))

	assert.True(t, c.SignOut(ctx))
	assert.False(t, c.Store().IsAuthenticated())
	assert.Nil(t, c.Store().Profile())
	assert.Equal(t, []string{LoginPath}, nav.visited())
}

func TestSignOut_SurvivesGatewayPanic(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	gw.On("SignOut", mock.Anything).Run(func(mock.Arguments) { panic("socket closed") }).Return(nil)

	nav := &recordingNavigator{}
	c := newTestController(gw, nav)
	s := testSession("u1", time.Hour)
	c.Store().populate(s.Identity, s, nil)

	assert.True(t, c.SignOut(ctx))
	assert.False(t, c.Store().IsAuthenticated())
	assert.False(t, c.Store().Loading())
	assert.Equal(t, []string{LoginPath}, nav.visited())
}

func TestSignOut_NavigatesOnceWhenNotificationArrivesFirst(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	nav := &recordingNavigator{current: "calendar"}
	c := newTestController(gw, nav)
	gw.On("SignOut", mock.Anything).Run(func(mock.Arguments) {
		c.handleNotification(EventSignedOut, nil)
	}).Return(nil)
	s := testSession("u1", time.Hour)
	c.Store().populate(s.Identity, s, nil)

	assert.True(t, c.SignOut(ctx))
	assert.Equal(t, []string{LoginPath}, nav.visited())
	assert.Equal(t, LoginRouteName, nav.CurrentRouteName())
}

func TestInitialize_RestoresSession(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	s := testSession("u1", time.Hour)
	gw.On("FetchSession", mock.Anything).Return(s, nil)
	gw.On("FetchProfile", mock.Anything, "u1").Return(testProfile("u1", model.RoleAdmin), nil)

	c := newTestController(gw, &recordingNavigator{})
	c.Initialize(ctx)

	snap := c.Store().Snapshot()
	assert.True(t, snap.IsAuthenticated())
	assert.True(t, snap.IsAdmin())
	assert.False(t, snap.Loading)
	assert.Equal(t, StateAuthenticated.String(), snap.State)
}

func TestInitialize_ProfileFailureRollsBackToAnonymous(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	gw.On("FetchSession", mock.Anything).Return(testSession("u1", time.Hour), nil)
	gw.On("FetchProfile", mock.Anything, "u1").Return(nil, errors.New("permission denied"))

	nav := &recordingNavigator{}
	c := newTestController(gw, nav)
	c.Initialize(ctx)

	snap := c.Store().Snapshot()
	assert.Nil(t, snap.Identity)
	assert.Nil(t, snap.Session)
	assert.Nil(t, snap.Profile)
	assert.False(t, snap.Loading)
	assert.Equal(t, StateAnonymous.String(), snap.State)
	assert.Empty(t, nav.visited())
	gw.AssertNotCalled(t, "SignOut", mock.Anything)
}

func TestInitialize_MissingProfileRollsBack(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	gw.On("FetchSession", mock.Anything).Return(testSession("u1", time.Hour), nil)
	gw.On("FetchProfile", mock.Anything, "u1").Return(nil, nil)

	c := newTestController(gw, &recordingNavigator{})
	c.Initialize(ctx)
	assert.False(t, c.Store().IsAuthenticated())
}

func TestInitialize_SessionErrorClearsWithoutNavigating(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	gw.On("FetchSession", mock.Anything).Return(nil, errors.New("invalid JWT: token is expired"))

	nav := &recordingNavigator{}
	c := newTestController(gw, nav)
	s := testSession("u1", time.Hour)
	c.Store().populate(s.Identity, s, nil)

	c.Initialize(ctx)
	assert.False(t, c.Store().IsAuthenticated())
	assert.Empty(t, nav.visited())
	assert.False(t, c.Store().Loading())
}

func TestInitialize_OtherErrorLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	gw.On("FetchSession", mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))

	c := newTestController(gw, &recordingNavigator{})
	s := testSession("u1", time.Hour)
	c.Store().populate(s.Identity, s, testProfile("u1", model.RoleMember))

	c.Initialize(ctx)
	assert.True(t, c.Store().IsAuthenticated())
	assert.Equal(t, StateAuthenticated, c.Store().State())
	assert.False(t, c.Store().Loading())
}

func TestInitialize_RefreshOutageLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	outage := &ProviderError{Status: 502, Message: "upstream unavailable"}
	gw.On("FetchSession", mock.Anything).Return(nil, fmt.Errorf("refresh expired session: %w", outage))

	c := newTestController(gw, &recordingNavigator{})
	s := testSession("u1", time.Hour)
	c.Store().populate(s.Identity, s, testProfile("u1", model.RoleAdmin))

	c.Initialize(ctx)
	assert.True(t, c.Store().IsAuthenticated())
	assert.True(t, c.Store().IsAdmin())
	assert.Equal(t, StateAuthenticated, c.Store().State())
}

func TestInitialize_NoSessionDropsEarlierState(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchSession", mock.Anything).Return(&model.Session{AccessToken: "orphan"}, nil)

	c := newTestController(gw, &recordingNavigator{})
	s := testSession("u1", time.Hour)
	c.Store().populate(s.Identity, s, testProfile("u1", model.RoleMember))

	c.Initialize(context.Background())
	assert.Equal(t, StateAnonymous, c.Store().State())
	assert.False(t, c.Store().IsAuthenticated())
	assert.Nil(t, c.Store().Session())
	assert.Nil(t, c.Store().Profile())
}

func TestInitialize_NoSessionIsAnonymous(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchSession", mock.Anything).Return(nil, nil)

	c := newTestController(gw, &recordingNavigator{})
	c.Initialize(context.Background())
	assert.Equal(t, StateAnonymous, c.Store().State())
	gw.AssertNotCalled(t, "FetchProfile", mock.Anything, mock.Anything)
}

func TestNotification_TokenRefreshedKeepsProfile(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchSession", mock.Anything).Return(nil, nil)
	c := newTestController(gw, &recordingNavigator{})
	require.NoError(t, c.Start(context.Background()))
	defer c.Teardown()

	s := testSession("u1", time.Hour)
	profile := testProfile("u1", model.RoleAdmin)
	c.Store().populate(s.Identity, s, profile)

	renewed := testSession("u1", 2*time.Hour)
	renewed.AccessToken = "renewed"
	gw.emit(EventTokenRefreshed, renewed)

	assert.Equal(t, "renewed", c.Store().Session().AccessToken)
	assert.Equal(t, profile, c.Store().Profile())
}

func TestNotification_UserUpdatedWithoutIdentityKeepsIdentity(t *testing.T) {
	c := newTestController(new(MockGateway), &recordingNavigator{})
	s := testSession("u1", time.Hour)
	c.Store().populate(s.Identity, s, nil)

	c.handleNotification(EventUserUpdated, &model.Session{AccessToken: "bare", ExpiresAt: s.ExpiresAt})
	assert.Equal(t, "bare", c.Store().Session().AccessToken)
	assert.Equal(t, "u1", c.Store().Identity().ID)
}

func TestNotification_SignedInLoadsProfile(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchProfile", mock.Anything, "u3").Return(testProfile("u3", model.RoleMember), nil)
	c := newTestController(gw, &recordingNavigator{})

	c.handleNotification(EventSignedIn, testSession("u3", time.Hour))
	assert.True(t, c.Store().IsAuthenticated())
	assert.True(t, c.Store().IsMember())
}

func TestNotification_SignedInProfileFailureKeepsSession(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchProfile", mock.Anything, "u3").Return(nil, errors.New("timeout"))
	c := newTestController(gw, &recordingNavigator{})

	c.handleNotification(EventSignedIn, testSession("u3", time.Hour))
	assert.True(t, c.Store().IsAuthenticated())
	assert.Nil(t, c.Store().Profile())
}

func TestNotification_SignedInProfileFailureDropsEarlierProfile(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchProfile", mock.Anything, "u1").Return(nil, errors.New("network down"))
	c := newTestController(gw, &recordingNavigator{})
	s := testSession("u1", time.Hour)
	c.Store().populate(s.Identity, s, testProfile("u1", model.RoleAdmin))
	require.True(t, c.Store().IsAdmin())

	c.handleNotification(EventSignedIn, testSession("u1", 2*time.Hour))
	assert.True(t, c.Store().IsAuthenticated())
	assert.Nil(t, c.Store().Profile())
	assert.False(t, c.Store().IsAdmin())
}

func TestNotification_SignedOutNavigatesUnlessOnLoginOrSignup(t *testing.T) {
	for _, tc := range []struct {
		route string
		want  []string
	}{
		{route: "calendar", want: []string{LoginPath}},
		{route: LoginRouteName, want: nil},
		{route: SignupRouteName, want: nil},
	} {
		t.Run(tc.route, func(t *testing.T) {
			nav := &recordingNavigator{current: tc.route}
			c := newTestController(new(MockGateway), nav)
			s := testSession("u1", time.Hour)
			c.Store().populate(s.Identity, s, nil)

			c.handleNotification(EventSignedOut, nil)
			assert.False(t, c.Store().IsAuthenticated())
			assert.Equal(t, tc.want, nav.visited())
		})
	}
}

func TestCheckAndRefresh_RefreshesInsideThreshold(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	current := testSession("u1", 200*time.Second)
	renewed := testSession("u1", time.Hour)
	renewed.AccessToken = "renewed"
	gw.On("FetchSession", mock.Anything).Return(current, nil)
	gw.On("RefreshSession", mock.Anything).Return(renewed, nil).Once()

	c := newTestController(gw, &recordingNavigator{})
	c.Store().populate(current.Identity, current, testProfile("u1", model.RoleMember))

	c.CheckAndRefresh(ctx)
	gw.AssertNumberOfCalls(t, "RefreshSession", 1)
	assert.Equal(t, "renewed", c.Store().Session().AccessToken)
	assert.Equal(t, StateAuthenticated, c.Store().State())
	assert.NotNil(t, c.Store().Profile())
}

func TestCheckAndRefresh_SkipsOutsideThreshold(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchSession", mock.Anything).Return(testSession("u1", 400*time.Second), nil)

	c := newTestController(gw, &recordingNavigator{})
	c.CheckAndRefresh(context.Background())
	gw.AssertNotCalled(t, "RefreshSession", mock.Anything)
}

func TestCheckAndRefresh_FailureSignsOut(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	current := testSession("u1", 30*time.Second)
	gw.On("FetchSession", mock.Anything).Return(current, nil)
	gw.On("RefreshSession", mock.Anything).Return(nil, &ProviderError{Code: CodeRefreshTokenNotFound, Message: "Invalid Refresh Token"})
	gw.On("SignOut", mock.Anything).Return(nil)

	nav := &recordingNavigator{current: "events"}
	c := newTestController(gw, nav)
	c.Store().populate(current.Identity, current, nil)

	c.CheckAndRefresh(ctx)
	assert.False(t, c.Store().IsAuthenticated())
	assert.Equal(t, []string{LoginPath}, nav.visited())
	gw.AssertCalled(t, "SignOut", mock.Anything)
}

func TestCheckAndRefresh_LookupErrorChangesNothing(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchSession", mock.Anything).Return(nil, errors.New("i/o timeout"))

	c := newTestController(gw, &recordingNavigator{})
	s := testSession("u1", time.Hour)
	c.Store().populate(s.Identity, s, nil)
	gen := c.Store().Generation()

	c.CheckAndRefresh(context.Background())
	assert.True(t, c.Store().IsAuthenticated())
	assert.Equal(t, gen, c.Store().Generation())
}

func TestCheckAndRefresh_StaleResultDoesNotResurrectSession(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	current := testSession("u1", 10*time.Second)
	nav := &recordingNavigator{}
	c := newTestController(gw, nav)
	c.Store().populate(current.Identity, current, nil)

	gw.On("FetchSession", mock.Anything).Return(current, nil)
	gw.On("SignOut", mock.Anything).Return(nil)
	gw.On("RefreshSession", mock.Anything).
		Run(func(mock.Arguments) { c.SignOut(ctx) }).
		Return(testSession("u1", time.Hour), nil)

	c.CheckAndRefresh(ctx)
	assert.False(t, c.Store().IsAuthenticated())
	assert.Nil(t, c.Store().Session())
}

func TestStartTeardown_Idempotent(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchSession", mock.Anything).Return(nil, nil)

	c := newTestController(gw, &recordingNavigator{})
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background()))
	require.Len(t, gw.subs, 1)

	c.Teardown()
	c.Teardown()
	assert.Equal(t, 1, gw.subs[0].cancelled)

	// Notifications after teardown are not delivered.
	gw.emit(EventSignedIn, testSession("u9", time.Hour))
	assert.False(t, c.Store().IsAuthenticated())
}

func TestStart_InvalidScheduleFails(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchSession", mock.Anything).Return(nil, nil)

	c := NewController(gw, NewStore(), WithRefreshSchedule("every now and then"))
	assert.Error(t, c.Start(context.Background()))
	assert.Empty(t, gw.subs)
}

func TestStores_AreIndependent(t *testing.T) {
	gw := new(MockGateway)
	a := newTestController(gw, &recordingNavigator{})
	b := newTestController(gw, &recordingNavigator{})

	s := testSession("u1", time.Hour)
	a.Store().populate(s.Identity, s, nil)
	assert.True(t, a.Store().IsAuthenticated())
	assert.False(t, b.Store().IsAuthenticated())
}
