package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/riskibarqy/studio-profile/internal/domain/profile"
	profilemock "github.com/riskibarqy/studio-profile/internal/mocks/domain/profile"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestQueryProfile_ConcurrentSubscribersShareOneFetch(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	service := newTestProfileService(t, gateway, nil)

	gateway.On("Get", mock.Anything).
		After(30*time.Millisecond).
		Return(testProfile, nil).
		Once()

	const subscribers = 8
	start := make(chan struct{})
	results := make([]profile.Profile, subscribers)
	errs := make([]error, subscribers)

	var wg conc.WaitGroup
	for i := 0; i < subscribers; i++ {
		wg.Go(func() {
			<-start
			results[i], errs[i] = QueryProfile(context.Background(), service, testPage, QueryOptions[profile.Profile]{})
		})
	}
	close(start)
	wg.Wait()

	for i := 0; i < subscribers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, testProfile, results[i])
	}
	gateway.AssertNumberOfCalls(t, "Get", 1)
}

func TestQueryProfile_SelectReturnsDerivedView(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	service := newTestProfileService(t, gateway, nil)
	gateway.On("Get", mock.Anything).Return(testProfile, nil).Once()

	email, err := QueryProfile(context.Background(), service, testPage, QueryOptions[string]{
		Select: func(p profile.Profile) string { return p.PrimaryEmail },
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", email)

	name, err := QueryProfile(context.Background(), service, testPage, QueryOptions[string]{
		Select: profile.Profile.DisplayName,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", name)
}

func TestQueryProfile_NonProfileTypeWithoutSelectIsInvalid(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	service := newTestProfileService(t, gateway, nil)
	gateway.On("Get", mock.Anything).Return(testProfile, nil).Once()

	_, err := QueryProfile(context.Background(), service, testPage, QueryOptions[string]{})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestQueryProfile_DisabledReadsCacheOnly(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	service := newTestProfileService(t, gateway, nil)

	_, err := QueryProfile(context.Background(), service, testPage, QueryOptions[profile.Profile]{Disabled: true})
	require.ErrorIs(t, err, ErrQueryDisabled)
	gateway.AssertNotCalled(t, "Get", mock.Anything)
}

func TestQueryProfile_CancelledBeforeResponseIsNotCached(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	service := newTestProfileService(t, gateway, nil)

	started := make(chan struct{})
	gateway.On("Get", mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(testProfile, nil).
		Once()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := QueryProfile(ctx, service, testPage, QueryOptions[profile.Profile]{})
		errCh <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	// The gateway returned a value after cancellation; it must not be cached.
	time.Sleep(20 * time.Millisecond)
	_, err := QueryProfile(context.Background(), service, testPage, QueryOptions[profile.Profile]{Disabled: true})
	require.ErrorIs(t, err, ErrQueryDisabled)
}

func TestWatchProfile_EmitsOneStatePerCacheChange(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	service := newTestProfileService(t, gateway, nil)

	renamed := testProfile
	renamed.Username = "countess"

	gateway.On("Get", mock.Anything).Return(testProfile, nil).Once()
	gateway.On("Get", mock.Anything).Return(renamed, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := WatchProfile(ctx, service, testPage, QueryOptions[string]{
		Select: func(p profile.Profile) string { return p.Username },
	})

	first := receive(t, updates)
	require.NoError(t, first.Err)
	assert.Equal(t, "ada", first.Data)
	assert.False(t, first.Stale)
	expectQuiet(t, updates)

	service.Invalidate(ctx)
	invalidated := receive(t, updates)
	assert.Equal(t, "ada", invalidated.Data)
	assert.True(t, invalidated.Stale)
	expectQuiet(t, updates)

	// The stale value is served and the background refresh publishes the
	// new one.
	_, err := QueryProfile(ctx, service, testPage, QueryOptions[profile.Profile]{})
	require.NoError(t, err)

	refreshed := receive(t, updates)
	require.NoError(t, refreshed.Err)
	assert.Equal(t, "countess", refreshed.Data)
	assert.False(t, refreshed.Stale)
	expectQuiet(t, updates)
}

func TestWatchProfile_RefetchIntervalPublishesNewValue(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	service := newTestProfileService(t, gateway, nil)

	renamed := testProfile
	renamed.Username = "countess"

	gateway.On("Get", mock.Anything).Return(testProfile, nil).Once()
	gateway.On("Get", mock.Anything).Return(renamed, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := WatchProfile(ctx, service, testPage, QueryOptions[string]{
		Select:          func(p profile.Profile) string { return p.Username },
		RefetchInterval: 20 * time.Millisecond,
	})

	assert.Equal(t, "ada", receive(t, updates).Data)

	next := receive(t, updates)
	require.NoError(t, next.Err)
	assert.Equal(t, "countess", next.Data)
}

func TestWatchProfile_FailedRefetchEmitsError(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	service := newTestProfileService(t, gateway, nil)

	upstream := &upstreamError{code: 503}
	gateway.On("Get", mock.Anything).Return(testProfile, nil).Once()
	gateway.On("Get", mock.Anything).Return(profile.Profile{}, upstream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := WatchProfile(ctx, service, testPage, QueryOptions[profile.Profile]{
		RefetchInterval: 20 * time.Millisecond,
	})

	first := receive(t, updates)
	require.NoError(t, first.Err)
	assert.Equal(t, testProfile, first.Data)

	failed := receive(t, updates)
	require.ErrorIs(t, failed.Err, upstream)
	assert.Equal(t, profile.Profile{}, failed.Data)

	// A failed refetch leaves the cached profile in place.
	cached, err := QueryProfile(ctx, service, testPage, QueryOptions[profile.Profile]{Disabled: true})
	require.NoError(t, err)
	assert.Equal(t, testProfile, cached)
}

func TestQueryProfile_StaleTimeOverridesServiceDefault(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	service := newTestProfileService(t, gateway, nil)

	renamed := testProfile
	renamed.Username = "countess"

	gateway.On("Get", mock.Anything).Return(testProfile, nil).Once()
	gateway.On("Get", mock.Anything).Return(renamed, nil).Once()

	_, err := QueryProfile(context.Background(), service, testPage, QueryOptions[profile.Profile]{})
	require.NoError(t, err)

	// Within the 30 minute default the entry is fresh.
	got, err := QueryProfile(context.Background(), service, testPage, QueryOptions[profile.Profile]{})
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Username)
	gateway.AssertNumberOfCalls(t, "Get", 1)

	time.Sleep(5 * time.Millisecond)
	got, err = QueryProfile(context.Background(), service, testPage, QueryOptions[profile.Profile]{StaleTime: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Username, "stale value is served while refreshing")

	require.Eventually(t, func() bool {
		current, err := QueryProfile(context.Background(), service, testPage, QueryOptions[profile.Profile]{Disabled: true})
		return err == nil && current.Username == "countess"
	}, time.Second, 5*time.Millisecond)
	gateway.AssertNumberOfCalls(t, "Get", 2)
}

func TestWatchProfile_ClosesWhenContextEnds(t *testing.T) {
	t.Parallel()

	gateway := profilemock.NewGateway(t)
	service := newTestProfileService(t, gateway, nil)
	gateway.On("Get", mock.Anything).Return(testProfile, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	updates := WatchProfile(ctx, service, testPage, QueryOptions[profile.Profile]{})
	receive(t, updates)
	cancel()

	select {
	case _, ok := <-updates:
		for ok {
			_, ok = <-updates
		}
	case <-time.After(time.Second):
		t.Fatalf("watch channel not closed after cancel")
	}
}

func expectQuiet[T any](t *testing.T, ch <-chan QueryResult[T]) {
	t.Helper()

	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("unexpected query result without a cache change: %+v", v)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func receive[T any](t *testing.T, ch <-chan QueryResult[T]) QueryResult[T] {
	t.Helper()

	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for query result")
	}
	return QueryResult[T]{}
}
