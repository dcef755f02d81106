package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/studio-profile/internal/platform/logging"
	"github.com/riskibarqy/studio-profile/internal/platform/resilience"
)

// Loader fetches the value for a key. It must honour ctx cancellation.
type Loader func(ctx context.Context) (any, error)

type entry struct {
	value     any
	updatedAt time.Time
	// invalidated forces the next read to treat the entry as stale.
	invalidated bool
}

// Snapshot is a point-in-time view of a cached key.
type Snapshot struct {
	Value     any
	UpdatedAt time.Time
	Stale     bool
}

type StoreConfig struct {
	// RefreshWorkers bounds concurrent background revalidations.
	RefreshWorkers int
	Logger         *logging.Logger
}

// Store is a keyed query cache. Reads of a fresh entry are served from
// memory, reads of a stale entry are served from memory while a background
// refresh runs, and misses load synchronously. Concurrent loads of the same
// key share a single call.
type Store struct {
	mu          sync.RWMutex
	entries     map[string]entry
	generations map[string]uint64
	subscribers map[string]map[uint64]chan struct{}
	nextSubID   uint64
	refreshing  map[string]struct{}

	flight resilience.SingleFlight
	pool   *ants.Pool
	submit func(task func()) error
	logger *logging.Logger
	now    func() time.Time
}

func NewStore(cfg StoreConfig) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	workers := cfg.RefreshWorkers
	if workers < 1 {
		workers = 1
	}

	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create refresh pool: %w", err)
	}

	return &Store{
		entries:     make(map[string]entry),
		generations: make(map[string]uint64),
		subscribers: make(map[string]map[uint64]chan struct{}),
		refreshing:  make(map[string]struct{}),
		pool:        pool,
		submit:      pool.Submit,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Close stops accepting background refreshes and waits up to timeout for the
// running ones.
func (s *Store) Close(timeout time.Duration) error {
	if timeout <= 0 {
		s.pool.Release()
		return nil
	}
	return s.pool.ReleaseTimeout(timeout)
}

// Peek returns the cached entry for key without loading.
func (s *Store) Peek(key string, staleTime time.Duration) (Snapshot, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	return Snapshot{
		Value:     e.value,
		UpdatedAt: e.updatedAt,
		Stale:     s.isStale(e, staleTime),
	}, true
}

// Fetch returns the value for key, loading it when absent and refreshing it
// in the background when older than staleTime.
func (s *Store) Fetch(ctx context.Context, key string, staleTime time.Duration, loader Loader) (any, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if key == "" {
		return loader(ctx)
	}

	if snap, ok := s.Peek(key, staleTime); ok {
		if snap.Stale {
			s.refreshInBackground(ctx, key, loader)
		}
		return snap.Value, nil
	}

	return s.load(ctx, key, loader)
}

// Prefetch loads key unless a fresh entry already exists. The result is
// only written to the cache.
func (s *Store) Prefetch(ctx context.Context, key string, staleTime time.Duration, loader Loader) error {
	if loader == nil {
		return fmt.Errorf("loader is required")
	}
	if snap, ok := s.Peek(key, staleTime); ok && !snap.Stale {
		return nil
	}

	_, err := s.load(ctx, key, loader)
	return err
}

// Refetch loads key now regardless of freshness.
func (s *Store) Refetch(ctx context.Context, key string, loader Loader) (any, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	return s.load(ctx, key, loader)
}

// Set writes value under key and supersedes any in-flight load.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	s.generations[key]++
	s.entries[key] = entry{value: value, updatedAt: s.now()}
	s.mu.Unlock()

	s.flight.Forget(key)
	s.notify(key)
}

// Invalidate marks key stale; the next Fetch serves it and refreshes.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		e.invalidated = true
		s.entries[key] = e
	}
	s.mu.Unlock()

	if ok {
		s.notify(key)
	}
}

// Remove drops key and supersedes any in-flight load so its result is
// discarded.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	s.generations[key]++
	_, existed := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()

	s.flight.Forget(key)
	if existed {
		s.notify(key)
	}
}

// Subscribe returns a channel that receives a signal after every change to
// key. Signals coalesce; the receiver should re-read with Peek. The returned
// func unsubscribes and must be called.
func (s *Store) Subscribe(key string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	subs, ok := s.subscribers[key]
	if !ok {
		subs = make(map[uint64]chan struct{})
		s.subscribers[key] = subs
	}
	subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers[key], id)
			if len(s.subscribers[key]) == 0 {
				delete(s.subscribers, key)
			}
			s.mu.Unlock()
		})
	}
}

func (s *Store) load(ctx context.Context, key string, loader Loader) (any, error) {
	value, err, _ := s.flight.Do(ctx, key, func(callCtx context.Context) (any, error) {
		s.mu.RLock()
		generation := s.generations[key]
		s.mu.RUnlock()

		loaded, loadErr := loader(callCtx)
		if loadErr != nil {
			return nil, loadErr
		}
		if !s.commit(callCtx, key, generation, loaded) {
			if err := callCtx.Err(); err != nil {
				return nil, err
			}
			// Superseded by Set/Remove: not cached, still returned.
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

func (s *Store) commit(ctx context.Context, key string, generation uint64, value any) bool {
	s.mu.Lock()
	if ctx.Err() != nil || s.generations[key] != generation {
		s.mu.Unlock()
		return false
	}
	s.entries[key] = entry{value: value, updatedAt: s.now()}
	s.mu.Unlock()

	s.notify(key)
	return true
}

// refreshInBackground schedules at most one refresh per key at a time.
func (s *Store) refreshInBackground(ctx context.Context, key string, loader Loader) {
	s.mu.Lock()
	if _, running := s.refreshing[key]; running {
		s.mu.Unlock()
		return
	}
	s.refreshing[key] = struct{}{}
	s.mu.Unlock()

	refreshCtx := context.WithoutCancel(ctx)
	err := s.submit(func() {
		defer s.endRefresh(key)
		if _, err := s.load(refreshCtx, key, loader); err != nil {
			s.logger.WarnContext(refreshCtx, "background refresh failed", "key", key, "error", err)
		}
	})
	if err != nil {
		s.endRefresh(key)
		if !errors.Is(err, ants.ErrPoolOverload) {
			s.logger.WarnContext(ctx, "schedule background refresh failed", "key", key, "error", err)
		}
	}
}

func (s *Store) endRefresh(key string) {
	s.mu.Lock()
	delete(s.refreshing, key)
	s.mu.Unlock()
}

func (s *Store) notify(key string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subscribers[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) isStale(e entry, staleTime time.Duration) bool {
	if e.invalidated {
		return true
	}
	if staleTime <= 0 {
		return true
	}
	return !s.now().Before(e.updatedAt.Add(staleTime))
}
