package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/riskibarqy/studio-profile/internal/domain/profile"
	"github.com/riskibarqy/studio-profile/internal/domain/telemetry"
	"github.com/riskibarqy/studio-profile/internal/platform/cache"
	"github.com/riskibarqy/studio-profile/internal/platform/logging"
)

// DefaultProfileStaleTime is how long a fetched profile is served without
// revalidation.
const DefaultProfileStaleTime = 30 * time.Minute

type ProfileService struct {
	gateway   profile.Gateway
	events    telemetry.Sender
	cache     *cache.Store
	staleTime time.Duration
	logger    *logging.Logger
}

func NewProfileService(
	gateway profile.Gateway,
	events telemetry.Sender,
	store *cache.Store,
	staleTime time.Duration,
	logger *logging.Logger,
) *ProfileService {
	if logger == nil {
		logger = logging.Default()
	}
	if staleTime <= 0 {
		staleTime = DefaultProfileStaleTime
	}

	return &ProfileService{
		gateway:   gateway,
		events:    events,
		cache:     store,
		staleTime: staleTime,
		logger:    logger,
	}
}

// GetProfile reads the current user's profile and provisions one when the
// backend has none yet. Errors other than not-found are returned as-is.
func (s *ProfileService) GetProfile(ctx context.Context, page telemetry.Page) (profile.Profile, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ProfileService.GetProfile")
	defer span.End()

	item, err := s.gateway.Get(ctx)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return profile.Profile{}, err
	}

	s.logger.InfoContext(ctx, "profile not found, provisioning", "page_location", page.Route.Location)
	return s.CreateProfile(ctx, page)
}

// CreateProfile provisions a profile and records the sign-up conversion.
// Create and the sign-up event run to completion even if ctx is cancelled.
func (s *ProfileService) CreateProfile(ctx context.Context, page telemetry.Page) (profile.Profile, error) {
	ctx, span := startUsecaseSpan(context.WithoutCancel(ctx), "usecase.ProfileService.CreateProfile")
	defer span.End()

	created, err := s.gateway.Create(ctx)
	if err != nil {
		return profile.Profile{}, err
	}

	if s.events != nil {
		s.events.Send(ctx, telemetry.SignUp(), page)
	}

	return created, nil
}

// Prefetch warms the cache. Failures are logged, never returned.
func (s *ProfileService) Prefetch(ctx context.Context, page telemetry.Page) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ProfileService.Prefetch")
	defer span.End()

	if err := s.cache.Prefetch(ctx, profile.CacheKey, s.staleTime, s.loader(page)); err != nil {
		s.logger.WarnContext(ctx, "prefetch profile failed", "error", err)
	}
}

// Invalidate marks the cached profile stale so the next read revalidates it.
func (s *ProfileService) Invalidate(ctx context.Context) {
	_, span := startUsecaseSpan(ctx, "usecase.ProfileService.Invalidate")
	defer span.End()

	s.cache.Invalidate(profile.CacheKey)
}

// Reset drops the cached profile. A fetch still in flight is not committed.
func (s *ProfileService) Reset(ctx context.Context) {
	_, span := startUsecaseSpan(ctx, "usecase.ProfileService.Reset")
	defer span.End()

	s.cache.Remove(profile.CacheKey)
}

func (s *ProfileService) loader(page telemetry.Page) cache.Loader {
	return func(ctx context.Context) (any, error) {
		return s.GetProfile(ctx, page)
	}
}
