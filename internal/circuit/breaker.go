// Package circuit guards a failing dependency so callers stop hitting it for a
// cooldown period. The cache uses it to skip file tier writes while the disk
// keeps rejecting them.
package circuit

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed - requests pass through
	StateClosed State = iota
	// StateOpen - requests are rejected until the cooldown elapses
	StateOpen
	// StateHalfOpen - one trial request is let through
	StateHalfOpen
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config contains circuit breaker configuration
type Config struct {
	// Consecutive failures that open the breaker
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// Period of the open state after which a trial request is allowed
	Cooldown time.Duration `yaml:"cooldown"`

	// Function to determine if an error should be counted as a failure
	IsFailure func(err error) bool `yaml:"-"`

	// Function called when state changes
	OnStateChange func(name string, from State, to State) `yaml:"-"`

	// Clock, time.Now when nil
	Now func() time.Time `yaml:"-"`
}

// Counts holds the numbers of requests and their outcomes
type Counts struct {
	Requests            uint32 `json:"requests"`
	TotalFailures       uint32 `json:"total_failures"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	Rejected            uint64 `json:"rejected"`
}

// ErrOpenState is returned when the circuit breaker rejects a request
var ErrOpenState = errors.New("circuit breaker is open")

// Breaker implements the circuit breaker pattern
type Breaker struct {
	name   string
	config Config

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	trialInFlight  bool
}

// New creates a breaker. A zero threshold means 5, a zero cooldown 30s.
func New(name string, config Config) *Breaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
	}
}

// Execute runs fn if the breaker allows it
func (b *Breaker) Execute(fn func() error) error {
	if err := b.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	b.afterRequest(err)
	return err
}

func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case StateOpen:
		b.counts.Rejected++
		return ErrOpenState
	case StateHalfOpen:
		if b.trialInFlight {
			b.counts.Rejected++
			return ErrOpenState
		}
		b.trialInFlight = true
	}

	b.counts.Requests++
	return nil
}

func (b *Breaker) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentState()
	b.trialInFlight = false

	if !b.config.IsFailure(err) {
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen {
			b.setState(StateClosed)
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++

	switch state {
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.config.FailureThreshold {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
	}
}

// currentState must be called with mu held
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.config.Now().Sub(b.openedAt) >= b.config.Cooldown {
		b.setState(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) setState(state State) {
	prev := b.state
	if prev == state {
		return
	}

	b.state = state
	switch state {
	case StateOpen:
		b.openedAt = b.config.Now()
	case StateClosed:
		b.counts.ConsecutiveFailures = 0
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, prev, state)
	}
}

// State returns the current state of the breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.currentState()
}

// Counts returns a copy of the current counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Reset closes the breaker and clears its counts
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts = Counts{}
	b.trialInFlight = false
	b.setState(StateClosed)
}
