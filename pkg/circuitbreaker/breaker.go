package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("circuit breaker trial call already in flight")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Defaults to 5.
	FailureThreshold uint32
	// Timeout is how long the breaker stays open before one trial call is
	// let through. Defaults to 60s.
	Timeout time.Duration
	// IsFailure decides whether an error trips the breaker. Defaults to any
	// non-nil error except context cancellation by the caller.
	IsFailure     func(err error) bool
	OnStateChange func(name string, from State, to State)
	Logger        *zap.Logger
}

// Counts are reset on every state change.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreaker short-circuits calls to an upstream that keeps failing.
// While half-open exactly one trial call runs; its result closes or reopens
// the breaker.
type CircuitBreaker struct {
	name          string
	threshold     uint32
	openFor       time.Duration
	isFailure     func(err error) bool
	onStateChange func(name string, from State, to State)
	logger        *zap.Logger
	now           func() time.Time

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	trialOut bool
}

func NewCircuitBreaker(name string, cfg Config) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:          name,
		threshold:     cfg.FailureThreshold,
		openFor:       cfg.Timeout,
		isFailure:     cfg.IsFailure,
		onStateChange: cfg.OnStateChange,
		logger:        cfg.Logger,
		now:           time.Now,
	}

	if cb.threshold == 0 {
		cb.threshold = 5
	}
	if cb.openFor == 0 {
		cb.openFor = 60 * time.Second
	}
	if cb.isFailure == nil {
		cb.isFailure = defaultIsFailure
	}
	if cb.logger == nil {
		cb.logger = zap.NewNop()
	}

	return cb
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn unless the breaker is open. Rejections are returned as
// ErrCircuitOpen or ErrTooManyRequests without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	trial, err := cb.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.record(trial, false)
			panic(r)
		}
	}()

	err = fn()
	cb.record(trial, !cb.isFailure(err))
	return err
}

func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.stateAt(cb.now()) {
	case StateOpen:
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if cb.trialOut {
			return false, ErrTooManyRequests
		}
		cb.trialOut = true
		trial = true
	}

	cb.counts.Requests++
	return trial, nil
}

func (cb *CircuitBreaker) record(trial, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	if trial {
		cb.trialOut = false
	} else if cb.stateAt(now) != StateClosed {
		// Late result of a call admitted before the breaker opened.
		return
	}

	if success {
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveSuccesses++
		cb.counts.ConsecutiveFailures = 0
		if trial {
			cb.transition(StateClosed, now)
		}
		return
	}

	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0
	if trial || cb.counts.ConsecutiveFailures >= cb.threshold {
		cb.transition(StateOpen, now)
	}
}

func (cb *CircuitBreaker) stateAt(now time.Time) State {
	if cb.state == StateOpen && !now.Before(cb.openedAt.Add(cb.openFor)) {
		cb.transition(StateHalfOpen, now)
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	if cb.state == to {
		return
	}

	from := cb.state
	failures := cb.counts.ConsecutiveFailures
	cb.state = to
	cb.counts = Counts{}
	cb.trialOut = false
	if to == StateOpen {
		cb.openedAt = now
	}

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}

	cb.logger.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Uint32("failures", failures),
	)
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.stateAt(cb.now())
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.counts
}
