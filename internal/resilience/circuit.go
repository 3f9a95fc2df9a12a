package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the cooldown passes.
	CircuitOpen
	// CircuitHalfOpen lets one trial call through to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is the cause of a TransportError returned while the engine
// is considered unreachable.
var ErrCircuitOpen = eris.New("decision engine unreachable; circuit breaker is open")

// CircuitBreaker stops calling the engine after a run of consecutive
// transport failures. Engine responses, however negative, prove the engine is
// reachable and reset the count. A nil *CircuitBreaker allows everything.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu            sync.Mutex
	state         CircuitState
	failures      int
	openedAt      time.Time
	trialInFlight bool

	nowFunc func() time.Time
}

// NewCircuitBreaker returns a breaker that opens after threshold consecutive
// transport failures and tries again after cooldown. A threshold <= 0
// disables it (nil).
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		return nil
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		nowFunc:   time.Now,
	}
}

// Allow reports whether a call may proceed. It returns a TransportError
// wrapping ErrCircuitOpen when it may not.
func (cb *CircuitBreaker) Allow() error {
	if cb == nil {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.nowFunc().Sub(cb.openedAt) < cb.cooldown {
			return &TransportError{Op: cb.name, Err: ErrCircuitOpen}
		}
		cb.transition(CircuitHalfOpen)
		cb.trialInFlight = true
		return nil
	case CircuitHalfOpen:
		if cb.trialInFlight {
			return &TransportError{Op: cb.name, Err: ErrCircuitOpen}
		}
		cb.trialInFlight = true
	}
	return nil
}

// Record feeds the outcome of an allowed call back into the breaker.
func (cb *CircuitBreaker) Record(err error) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trialInFlight = false

	if KindOf(err) != KindTransport {
		cb.failures = 0
		if cb.state != CircuitClosed {
			cb.transition(CircuitClosed)
		}
		return
	}

	cb.failures++
	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.threshold {
			cb.openedAt = cb.nowFunc()
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.openedAt = cb.nowFunc()
		cb.transition(CircuitOpen)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.openedAt) >= cb.cooldown {
		return CircuitHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	zap.L().Warn("resilience: circuit state change",
		zap.String("name", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("consecutive_failures", cb.failures),
	)
}
