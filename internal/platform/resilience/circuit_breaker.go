package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitState string

const (
	CircuitStateClosed   CircuitState = "closed"
	CircuitStateOpen     CircuitState = "open"
	CircuitStateHalfOpen CircuitState = "half_open"
)

// StateChangeFunc observes breaker transitions. It runs outside the lock.
type StateChangeFunc func(from, to CircuitState)

// CircuitBreaker guards calls to the backend API. A nil *CircuitBreaker is
// valid and always closed.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	openTimeout      time.Duration
	probeLimit       int
	onChange         StateChangeFunc

	state    CircuitState
	failures int
	openedAt time.Time
	probes   int
	probesOK int
	now      func() time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig, onChange StateChangeFunc) *CircuitBreaker {
	cfg = NormalizeCircuitBreakerConfig(cfg)

	return &CircuitBreaker{
		failureThreshold: cfg.FailureThreshold,
		openTimeout:      cfg.OpenTimeout,
		probeLimit:       cfg.HalfOpenMaxReq,
		onChange:         onChange,
		state:            CircuitStateClosed,
		now:              time.Now,
	}
}

// Execute runs fn when the breaker admits it and records the outcome with
// isFailure. Outcomes of calls whose ctx was cancelled are not recorded.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error, isFailure func(error) bool) error {
	if err := b.Allow(); err != nil {
		return err
	}

	err := fn(ctx)
	if ctx.Err() != nil {
		b.release()
		return err
	}
	b.Record(err, isFailure)
	return err
}

func (b *CircuitBreaker) Allow() error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	from := b.state
	if b.state == CircuitStateOpen {
		if b.now().Sub(b.openedAt) < b.openTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.setState(CircuitStateHalfOpen)
	}
	if b.state == CircuitStateHalfOpen {
		if b.probes >= b.probeLimit {
			b.mu.Unlock()
			b.notify(from, CircuitStateHalfOpen)
			return ErrCircuitOpen
		}
		b.probes++
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return nil
}

// Record classifies err with isFailure. Errors that are not failures, such as
// a 404 for a profile that does not exist yet, count as a healthy round trip.
func (b *CircuitBreaker) Record(err error, isFailure func(error) bool) {
	if err != nil && isFailure != nil && isFailure(err) {
		b.RecordFailure()
		return
	}
	b.RecordSuccess()
}

func (b *CircuitBreaker) RecordSuccess() {
	if b == nil {
		return
	}

	b.mu.Lock()
	from := b.state
	switch b.state {
	case CircuitStateClosed:
		b.failures = 0
	case CircuitStateHalfOpen:
		b.dropProbe()
		b.probesOK++
		if b.probesOK >= b.probeLimit && b.probes == 0 {
			b.setState(CircuitStateClosed)
		}
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

func (b *CircuitBreaker) RecordFailure() {
	if b == nil {
		return
	}

	b.mu.Lock()
	from := b.state
	switch b.state {
	case CircuitStateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.setState(CircuitStateOpen)
		}
	case CircuitStateHalfOpen:
		b.dropProbe()
		b.setState(CircuitStateOpen)
	case CircuitStateOpen:
		b.openedAt = b.now()
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

func (b *CircuitBreaker) State() CircuitState {
	if b == nil {
		return CircuitStateClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitStateOpen && b.now().Sub(b.openedAt) >= b.openTimeout {
		return CircuitStateHalfOpen
	}
	return b.state
}

// release frees a half-open probe slot without recording an outcome.
func (b *CircuitBreaker) release() {
	if b == nil {
		return
	}

	b.mu.Lock()
	if b.state == CircuitStateHalfOpen {
		b.dropProbe()
	}
	b.mu.Unlock()
}

func (b *CircuitBreaker) dropProbe() {
	if b.probes > 0 {
		b.probes--
	}
}

// setState must be called with mu held.
func (b *CircuitBreaker) setState(state CircuitState) {
	b.state = state
	b.probes = 0
	b.probesOK = 0
	switch state {
	case CircuitStateClosed:
		b.failures = 0
		b.openedAt = time.Time{}
	case CircuitStateOpen:
		b.openedAt = b.now()
	}
}

func (b *CircuitBreaker) notify(from, to CircuitState) {
	if from != to && b.onChange != nil {
		b.onChange(from, to)
	}
}
