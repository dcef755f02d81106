package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/riskibarqy/studio-profile/internal/domain/profile"
	"github.com/riskibarqy/studio-profile/internal/domain/telemetry"
	profilemock "github.com/riskibarqy/studio-profile/internal/mocks/domain/profile"
	telemetrymock "github.com/riskibarqy/studio-profile/internal/mocks/domain/telemetry"
	"github.com/riskibarqy/studio-profile/internal/platform/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testPage = telemetry.Page{
		Route: telemetry.Route{Location: "/projects", Title: "Dashboard"},
		Props: telemetry.Properties{ScreenResolution: "1920x1080", Language: "en-US"},
	}
	testProfile = profile.Profile{
		ID:               42,
		Auth0ID:          "auth0|42",
		GotrueID:         "6a1f0a1e-0000-4000-8000-000000000042",
		PrimaryEmail:     "ada@example.com",
		Username:         "ada",
		FirstName:        "Ada",
		LastName:         "Lovelace",
		IsAlphaUser:      true,
		FreeProjectLimit: 2,
	}
)

type upstreamError struct {
	code int
}

func (e *upstreamError) Error() string { return fmt.Sprintf("upstream status %d", e.code) }

func (e *upstreamError) Is(target error) bool {
	return e.code == 404 && target == ErrNotFound
}

func newTestProfileService(t *testing.T, gateway profile.Gateway, sender telemetry.Sender) *ProfileService {
	t.Helper()

	store, err := cache.NewStore(cache.StoreConfig{RefreshWorkers: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(time.Second) })

	return NewProfileService(gateway, sender, store, 0, nil)
}

func TestProfileService_GetProfile_ReturnsExistingProfile(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	sender := telemetrymock.NewSender(t)
	service := newTestProfileService(t, gateway, sender)

	gateway.On("Get", mock.Anything).Return(testProfile, nil).Once()

	got, err := service.GetProfile(context.Background(), testPage)
	require.NoError(t, err)
	assert.Equal(t, testProfile, got)
	gateway.AssertNotCalled(t, "Create", mock.Anything)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestProfileService_GetProfile_NotFoundProvisionsAndSendsSignUp(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	sender := telemetrymock.NewSender(t)
	service := newTestProfileService(t, gateway, sender)

	created := testProfile
	created.ID = 43

	gateway.On("Get", mock.Anything).Return(profile.Profile{}, &upstreamError{code: 404}).Once()
	gateway.On("Create", mock.Anything).Return(created, nil).Once()
	sender.On("Send", mock.Anything, telemetry.Event{Category: "conversion", Action: "sign_up", Label: ""}, testPage).Return().Once()

	got, err := service.GetProfile(context.Background(), testPage)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestProfileService_GetProfile_OtherErrorIsReturnedUnchanged(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	sender := telemetrymock.NewSender(t)
	service := newTestProfileService(t, gateway, sender)

	upstream := &upstreamError{code: 500}
	gateway.On("Get", mock.Anything).Return(profile.Profile{}, upstream).Once()

	_, err := service.GetProfile(context.Background(), testPage)
	require.Error(t, err)
	assert.Same(t, upstream, err)
	gateway.AssertNotCalled(t, "Create", mock.Anything)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestProfileService_GetProfile_CreateFailureSendsNoTelemetry(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	sender := telemetrymock.NewSender(t)
	service := newTestProfileService(t, gateway, sender)

	createErr := &upstreamError{code: 500}
	gateway.On("Get", mock.Anything).Return(profile.Profile{}, &upstreamError{code: 404}).Once()
	gateway.On("Create", mock.Anything).Return(profile.Profile{}, createErr).Once()

	_, err := service.GetProfile(context.Background(), testPage)
	require.Error(t, err)
	assert.Same(t, createErr, err)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestProfileService_CreateProfile_WithoutSender(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	service := newTestProfileService(t, gateway, nil)

	gateway.On("Create", mock.Anything).Return(testProfile, nil).Once()

	got, err := service.CreateProfile(context.Background(), testPage)
	require.NoError(t, err)
	assert.Equal(t, testProfile.ID, got.ID)
}

func TestProfileService_CreateProfile_IgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	sender := telemetrymock.NewSender(t)
	service := newTestProfileService(t, gateway, sender)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	liveContext := mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })
	gateway.On("Create", liveContext).Return(testProfile, nil).Once()
	sender.On("Send", liveContext, telemetry.SignUp(), testPage).Return().Once()

	got, err := service.CreateProfile(ctx, testPage)
	require.NoError(t, err)
	assert.Equal(t, testProfile, got)
}

func TestProfileService_Prefetch_WarmsCacheAndSwallowsErrors(t *testing.T) {
	t.Parallel()

	t.Run("warms cache", func(t *testing.T) {
		gateway := profilemock.NewGateway(t)
		service := newTestProfileService(t, gateway, nil)
		gateway.On("Get", mock.Anything).Return(testProfile, nil).Once()

		service.Prefetch(context.Background(), testPage)
		service.Prefetch(context.Background(), testPage)

		got, err := QueryProfile(context.Background(), service, testPage, QueryOptions[profile.Profile]{})
		require.NoError(t, err)
		assert.Equal(t, testProfile, got)
	})

	t.Run("swallows errors", func(t *testing.T) {
		gateway := profilemock.NewGateway(t)
		service := newTestProfileService(t, gateway, nil)
		gateway.On("Get", mock.Anything).Return(profile.Profile{}, errors.New("network down")).Once()

		service.Prefetch(context.Background(), testPage)

		_, err := QueryProfile(context.Background(), service, testPage, QueryOptions[profile.Profile]{Disabled: true})
		require.ErrorIs(t, err, ErrQueryDisabled)
	})
}

func TestProfileService_ResetSupersedesInFlightFetch(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	service := newTestProfileService(t, gateway, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	gateway.On("Get", mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(testProfile, nil).
		Once()

	done := make(chan error, 1)
	go func() {
		_, err := QueryProfile(context.Background(), service, testPage, QueryOptions[profile.Profile]{})
		done <- err
	}()

	<-started
	service.Reset(context.Background())
	close(release)
	require.NoError(t, <-done)

	_, err := QueryProfile(context.Background(), service, testPage, QueryOptions[profile.Profile]{Disabled: true})
	require.ErrorIs(t, err, ErrQueryDisabled)
}

func TestProfileService_InvalidateKeepsValueButMarksStale(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	service := newTestProfileService(t, gateway, nil)
	gateway.On("Get", mock.Anything).Return(testProfile, nil).Once()

	_, err := QueryProfile(context.Background(), service, testPage, QueryOptions[profile.Profile]{})
	require.NoError(t, err)

	service.Invalidate(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := WatchProfile(ctx, service, testPage, QueryOptions[profile.Profile]{Disabled: true})
	first := receive(t, updates)
	require.NoError(t, first.Err)
	assert.Equal(t, testProfile, first.Data)
	assert.True(t, first.Stale)
}
