package resilience

import (
	"context"
	"sync"
)

// SingleFlight deduplicates concurrent calls for the same key.
//
// The shared call runs on its own context which is cancelled once every
// caller waiting on it has given up, so an abandoned call stops early and
// its callers never see its result.
type SingleFlight struct {
	mu    sync.Mutex
	calls map[string]*call
}

type call struct {
	done    chan struct{}
	val     any
	err     error
	waiters int
	cancel  context.CancelFunc
}

// Do runs fn once per key among concurrent callers. The returned bool reports
// whether the result was shared with a call started by another caller.
func (g *SingleFlight) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*call)
	}

	if c, ok := g.calls[key]; ok {
		c.waiters++
		g.mu.Unlock()
		return g.wait(ctx, key, c, true)
	}

	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &call{
		done:    make(chan struct{}),
		waiters: 1,
		cancel:  cancel,
	}
	g.calls[key] = c
	g.mu.Unlock()

	go func() {
		defer cancel()
		c.val, c.err = fn(callCtx)

		g.mu.Lock()
		if g.calls[key] == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()
		close(c.done)
	}()

	return g.wait(ctx, key, c, false)
}

// Forget drops the in-flight call for key so the next caller starts a new one.
// Callers already waiting keep waiting on the old call.
func (g *SingleFlight) Forget(key string) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
}

func (g *SingleFlight) wait(ctx context.Context, key string, c *call, shared bool) (any, error, bool) {
	select {
	case <-c.done:
		return c.val, c.err, shared
	case <-ctx.Done():
	}

	g.mu.Lock()
	c.waiters--
	if c.waiters == 0 {
		c.cancel()
		if g.calls[key] == c {
			delete(g.calls, key)
		}
	}
	g.mu.Unlock()

	return nil, ctx.Err(), shared
}
