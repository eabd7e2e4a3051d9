package resilience

import (
	"sync"
	"time"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// State is one of the three classic circuit-breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrorClassifier decides whether err should count toward the breaker's
// failure budget. Configuration and not-found errors are user/programmer
// mistakes, not dependency outages, and should never trip the breaker.
type ErrorClassifier func(error) bool

// DefaultErrorClassifier excludes configuration and not-found errors from
// the failure count, per the teacher's resilience.DefaultErrorClassifier.
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if core.IsConfigurationError(err) || core.IsNotFound(err) {
		return false
	}
	return true
}

// Config configures a CircuitBreaker. Unlike the teacher's sliding-window
// implementation, this trims to a simple consecutive-failure counter:
// the model scoring call this module wraps is made once per lead (plus
// its retries), so a bucketed error-rate window adds complexity this
// module's call volume never needs.
type Config struct {
	Name             string
	FailureThreshold int
	SleepWindow      time.Duration
	HalfOpenRequests int
	ErrorClassifier  ErrorClassifier
	Logger           core.Logger
}

// DefaultConfig returns a production-ready default: five consecutive
// failures open the breaker, with a thirty-second cooldown.
func DefaultConfig() *Config {
	return &Config{
		Name:             "default",
		FailureThreshold: 5,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 2,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
	}
}

// CircuitBreaker is a consecutive-failure circuit breaker: Closed allows
// every call, Open rejects every call until SleepWindow elapses, and
// HalfOpen allows a small number of trial calls to decide whether to
// close again or reopen.
type CircuitBreaker struct {
	mu   sync.Mutex
	cfg  *Config
	state State

	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
	halfOpenSuccesses   int
}

// New builds a CircuitBreaker. A nil cfg uses DefaultConfig.
func New(cfg *Config) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ErrorClassifier == nil {
		cfg.ErrorClassifier = DefaultErrorClassifier
	}
	if cfg.Logger == nil {
		cfg.Logger = &core.NoOpLogger{}
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a call should proceed, transitioning Open to
// HalfOpen once SleepWindow has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.cfg.SleepWindow {
			cb.transition(StateHalfOpen)
			cb.halfOpenInFlight = 1
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenInFlight < cb.cfg.HalfOpenRequests {
			cb.halfOpenInFlight++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess notes a successful call, closing the breaker from
// HalfOpen once every trial request has succeeded.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	if cb.state == StateHalfOpen {
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.cfg.HalfOpenRequests {
			cb.transition(StateClosed)
		}
	}
}

// RecordFailure notes a failed call. Only errors the configured
// ErrorClassifier counts trip the breaker; a trial failure in HalfOpen
// reopens it immediately.
func (cb *CircuitBreaker) RecordFailure(err error) {
	if !cb.cfg.ErrorClassifier(err) {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.transition(StateOpen)
		return
	}

	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
		cb.transition(StateOpen)
	}
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	switch to {
	case StateOpen:
		cb.openedAt = time.Now()
	case StateHalfOpen:
		cb.halfOpenSuccesses = 0
	case StateClosed:
		cb.consecutiveFailures = 0
		cb.halfOpenInFlight = 0
		cb.halfOpenSuccesses = 0
	}
	if from != to {
		cb.cfg.Logger.Info("circuit breaker state change", map[string]interface{}{
			"operation": "resilience.CircuitBreaker", "name": cb.cfg.Name, "from": from.String(), "to": to.String(),
		})
	}
}
