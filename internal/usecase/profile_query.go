package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/riskibarqy/studio-profile/internal/domain/profile"
	"github.com/riskibarqy/studio-profile/internal/domain/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// QueryOptions tune a single profile query. The zero value fetches the raw
// profile with the service's stale time.
type QueryOptions[T any] struct {
	// Disabled skips the network and only reads the cache.
	Disabled bool
	// StaleTime overrides the service default when > 0.
	StaleTime time.Duration
	// Select derives the returned view from the profile. Required unless T
	// is profile.Profile.
	Select func(profile.Profile) T
	// RefetchInterval makes WatchProfile refetch periodically when > 0.
	RefetchInterval time.Duration
}

// QueryResult is one state of a watched query.
type QueryResult[T any] struct {
	Data      T
	Err       error
	UpdatedAt time.Time
	Stale     bool
}

// QueryProfile reads the profile through the cache and applies opts.Select.
func QueryProfile[T any](ctx context.Context, s *ProfileService, page telemetry.Page, opts QueryOptions[T]) (T, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.QueryProfile",
		attribute.String("cache.key", profile.CacheKey),
		attribute.Bool("query.disabled", opts.Disabled),
	)
	defer span.End()

	var zero T
	if opts.Disabled {
		snap, ok := s.cache.Peek(profile.CacheKey, s.queryStaleTime(opts.StaleTime))
		if !ok {
			return zero, ErrQueryDisabled
		}
		return project(snap.Value, opts.Select)
	}

	value, err := s.cache.Fetch(ctx, profile.CacheKey, s.queryStaleTime(opts.StaleTime), s.loader(page))
	if err != nil {
		return zero, err
	}

	return project(value, opts.Select)
}

// WatchProfile emits the current query state and then a new state after
// every change to the cached profile. The channel is closed when ctx ends.
func WatchProfile[T any](ctx context.Context, s *ProfileService, page telemetry.Page, opts QueryOptions[T]) <-chan QueryResult[T] {
	out := make(chan QueryResult[T], 1)
	changed, unsubscribe := s.cache.Subscribe(profile.CacheKey)
	staleTime := s.queryStaleTime(opts.StaleTime)

	go func() {
		defer close(out)
		defer unsubscribe()

		var tick <-chan time.Time
		if opts.RefetchInterval > 0 && !opts.Disabled {
			ticker := time.NewTicker(opts.RefetchInterval)
			defer ticker.Stop()
			tick = ticker.C
		}

		emit := func(result QueryResult[T]) bool {
			select {
			case out <- result:
				return true
			case <-ctx.Done():
				return false
			}
		}

		data, err := QueryProfile(ctx, s, page, opts)
		if ctx.Err() != nil {
			return
		}
		// The initial load's own commit is already reflected below.
		select {
		case <-changed:
		default:
		}
		result := QueryResult[T]{Data: data, Err: err}
		if snap, ok := s.cache.Peek(profile.CacheKey, staleTime); ok {
			result.UpdatedAt = snap.UpdatedAt
			result.Stale = snap.Stale
		}
		if !emit(result) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-tick:
				if _, err := s.cache.Refetch(ctx, profile.CacheKey, s.loader(page)); err != nil {
					if ctx.Err() != nil {
						return
					}
					var zero T
					if !emit(QueryResult[T]{Data: zero, Err: err}) {
						return
					}
				}
			case <-changed:
				snap, ok := s.cache.Peek(profile.CacheKey, staleTime)
				if !ok {
					continue
				}
				data, err := project(snap.Value, opts.Select)
				if !emit(QueryResult[T]{Data: data, Err: err, UpdatedAt: snap.UpdatedAt, Stale: snap.Stale}) {
					return
				}
			}
		}
	}()

	return out
}

func (s *ProfileService) queryStaleTime(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return s.staleTime
}

func project[T any](value any, selectFn func(profile.Profile) T) (T, error) {
	var zero T
	item, ok := value.(profile.Profile)
	if !ok {
		return zero, fmt.Errorf("unexpected cached profile type %T", value)
	}
	if selectFn != nil {
		return selectFn(item), nil
	}

	view, ok := any(item).(T)
	if !ok {
		return zero, fmt.Errorf("%w: select is required for %T", ErrInvalidInput, zero)
	}
	return view, nil
}
