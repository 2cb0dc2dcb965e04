package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mozilla-releng/balrogagent/internal/apperrors"
	"github.com/mozilla-releng/balrogagent/pkg/logger"
)

// ErrCircuitOpen is returned by Execute when the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
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

// MetricsCollector receives circuit breaker lifecycle events for export to
// whatever metrics backend the caller wires in (see metrics_otel.go).
type MetricsCollector interface {
	RecordSuccess(name string)
	RecordFailure(name string, errorType string)
	RecordStateChange(name string, from, to string)
	RecordRejection(name string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSuccess(string)                     {}
func (noopMetrics) RecordFailure(string, string)             {}
func (noopMetrics) RecordStateChange(string, string, string) {}
func (noopMetrics) RecordRejection(string)                   {}

// ErrorClassifier decides whether an error counts toward the circuit's error
// rate. Errors a caller can't do anything about by retrying (bad config,
// cancellation) shouldn't trip the breaker.
type ErrorClassifier func(error) bool

// DefaultErrorClassifier counts everything except fatal configuration errors
// and context cancellation as a circuit-breaker failure.
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.IsFatalConfig(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Config configures a CircuitBreaker.
type Config struct {
	Name             string
	ErrorThreshold   float64
	VolumeThreshold  int
	SleepWindow      time.Duration
	HalfOpenRequests int
	SuccessThreshold float64
	WindowSize       time.Duration
	BucketCount      int
	ErrorClassifier  ErrorClassifier
	Logger           logger.Logger
	Metrics          MetricsCollector
}

// DefaultConfig returns production-ready defaults for a named breaker.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		ErrorThreshold:   0.5,
		VolumeThreshold:  10,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 5,
		SuccessThreshold: 0.6,
		WindowSize:       60 * time.Second,
		BucketCount:      10,
		ErrorClassifier:  DefaultErrorClassifier,
		Metrics:          noopMetrics{},
	}
}

func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("circuit breaker name is required")
	}
	if c.ErrorThreshold < 0 || c.ErrorThreshold > 1 {
		return fmt.Errorf("error threshold must be between 0 and 1, got %f", c.ErrorThreshold)
	}
	if c.VolumeThreshold < 0 {
		return fmt.Errorf("volume threshold must be non-negative, got %d", c.VolumeThreshold)
	}
	if c.HalfOpenRequests < 1 {
		return fmt.Errorf("half-open requests must be at least 1, got %d", c.HalfOpenRequests)
	}
	return nil
}

// CircuitBreaker guards a single downstream dependency (the admin service)
// against cascading failures within one polling cycle.
type CircuitBreaker struct {
	config *Config

	state          atomic.Value // CircuitState
	stateChangedAt atomic.Value // time.Time

	window *slidingWindow

	halfOpenTotal     atomic.Int32
	halfOpenSuccesses atomic.Int32
	halfOpenFailures  atomic.Int32

	mu sync.Mutex
}

// New creates a circuit breaker, applying defaults for a zero WindowSize,
// BucketCount, ErrorClassifier, Metrics or SuccessThreshold.
func New(config *Config) (*CircuitBreaker, error) {
	if config == nil {
		return nil, errors.New("circuit breaker config must not be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	if config.WindowSize == 0 {
		config.WindowSize = 60 * time.Second
	}
	if config.BucketCount == 0 {
		config.BucketCount = 10
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier
	}
	if config.Metrics == nil {
		config.Metrics = noopMetrics{}
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 0.6
	}

	cb := &CircuitBreaker{
		config: config,
		window: newSlidingWindow(config.WindowSize, config.BucketCount),
	}
	cb.state.Store(StateClosed)
	cb.stateChangedAt.Store(time.Now())
	return cb, nil
}

// Execute runs fn if the circuit allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.allow() {
		cb.config.Metrics.RecordRejection(cb.config.Name)
		return fmt.Errorf("circuit breaker %q is open: %w", cb.config.Name, ErrCircuitOpen)
	}

	isHalfOpen := cb.State() == StateHalfOpen
	err := fn()
	cb.complete(isHalfOpen, err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	switch cb.State() {
	case StateClosed:
		return true
	case StateOpen:
		changedAt := cb.stateChangedAt.Load().(time.Time)
		if time.Since(changedAt) <= cb.config.SleepWindow {
			return false
		}
		cb.mu.Lock()
		if cb.State() == StateOpen {
			cb.transition(StateHalfOpen)
		}
		cb.mu.Unlock()
		return cb.allow()
	case StateHalfOpen:
		for {
			current := cb.halfOpenTotal.Load()
			if int(current) >= cb.config.HalfOpenRequests {
				return false
			}
			if cb.halfOpenTotal.CompareAndSwap(current, current+1) {
				return true
			}
		}
	default:
		return false
	}
}

func (cb *CircuitBreaker) complete(wasHalfOpen bool, err error) {
	if err == nil {
		cb.window.recordSuccess()
		cb.config.Metrics.RecordSuccess(cb.config.Name)
		if wasHalfOpen {
			cb.halfOpenSuccesses.Add(1)
		}
	} else if cb.config.ErrorClassifier(err) {
		cb.window.recordFailure()
		cb.config.Metrics.RecordFailure(cb.config.Name, fmt.Sprintf("%T", err))
		if wasHalfOpen {
			cb.halfOpenFailures.Add(1)
		}
	}
	cb.evaluate()
}

func (cb *CircuitBreaker) evaluate() {
	switch cb.State() {
	case StateClosed:
		total := cb.window.total()
		if cb.config.VolumeThreshold > 0 && total >= uint64(cb.config.VolumeThreshold) &&
			cb.window.errorRate() >= cb.config.ErrorThreshold {
			cb.mu.Lock()
			cb.transition(StateOpen)
			cb.mu.Unlock()
		}
	case StateHalfOpen:
		successes := cb.halfOpenSuccesses.Load()
		failures := cb.halfOpenFailures.Load()
		total := successes + failures
		if total >= int32(cb.config.HalfOpenRequests) {
			cb.mu.Lock()
			if float64(successes)/float64(total) >= cb.config.SuccessThreshold {
				cb.transition(StateClosed)
			} else {
				cb.transition(StateOpen)
			}
			cb.mu.Unlock()
		}
	}
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(newState CircuitState) {
	oldState := cb.State()
	if oldState == newState {
		return
	}
	cb.state.Store(newState)
	cb.stateChangedAt.Store(time.Now())
	if newState == StateHalfOpen {
		cb.halfOpenTotal.Store(0)
		cb.halfOpenSuccesses.Store(0)
		cb.halfOpenFailures.Store(0)
	}
	if cb.config.Logger != nil {
		cb.config.Logger.Info("circuit breaker state change", map[string]interface{}{
			"name": cb.config.Name,
			"from": oldState.String(),
			"to":   newState.String(),
		})
	}
	cb.config.Metrics.RecordStateChange(cb.config.Name, oldState.String(), newState.String())
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	return cb.state.Load().(CircuitState)
}

type bucket struct {
	timestamp time.Time
	success   uint64
	failure   uint64
}

// slidingWindow tracks success/failure counts over a rolling time window,
// bucketed for approximate expiry without per-event cleanup.
type slidingWindow struct {
	mu         sync.RWMutex
	buckets    []bucket
	windowSize time.Duration
	bucketSize time.Duration
	currentIdx int
	lastRotate time.Time
}

func newSlidingWindow(windowSize time.Duration, bucketCount int) *slidingWindow {
	if bucketCount <= 0 {
		bucketCount = 10
	}
	now := time.Now()
	buckets := make([]bucket, bucketCount)
	for i := range buckets {
		buckets[i].timestamp = now
	}
	return &slidingWindow{
		buckets:    buckets,
		windowSize: windowSize,
		bucketSize: windowSize / time.Duration(bucketCount),
		lastRotate: now,
	}
}

func (sw *slidingWindow) rotate() {
	now := time.Now()
	elapsed := now.Sub(sw.lastRotate)
	if elapsed < sw.bucketSize {
		return
	}
	steps := int(elapsed / sw.bucketSize)
	if steps > len(sw.buckets) {
		steps = len(sw.buckets)
	}
	for i := 0; i < steps; i++ {
		sw.currentIdx = (sw.currentIdx + 1) % len(sw.buckets)
		sw.buckets[sw.currentIdx] = bucket{timestamp: now}
	}
	sw.lastRotate = now
}

func (sw *slidingWindow) recordSuccess() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.rotate()
	sw.buckets[sw.currentIdx].success++
}

func (sw *slidingWindow) recordFailure() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.rotate()
	sw.buckets[sw.currentIdx].failure++
}

func (sw *slidingWindow) counts() (success, failure uint64) {
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	cutoff := time.Now().Add(-sw.windowSize)
	for _, b := range sw.buckets {
		if b.timestamp.After(cutoff) {
			success += b.success
			failure += b.failure
		}
	}
	return success, failure
}

func (sw *slidingWindow) total() uint64 {
	s, f := sw.counts()
	return s + f
}

func (sw *slidingWindow) errorRate() float64 {
	s, f := sw.counts()
	total := s + f
	if total == 0 {
		return 0
	}
	return float64(f) / float64(total)
}
