// Package errors provides error classification, bounded retry, and circuit
// breaking for the pair trader. Errors are mapped onto a small taxonomy
// (input, data gap, insufficient capital, persistence, transport, and
// unrecoverable failures) so callers can decide between retrying, skipping
// a tick, and halting the engine.
package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/johnayoung/go-pair-trader/internal/config"
)

// ErrorType represents the classification of an error.
type ErrorType string

const (
	// Retryable error types
	ErrorTypeNetwork     ErrorType = "network"      // Network connectivity issues
	ErrorTypeTimeout     ErrorType = "timeout"      // Request or tick deadline exceeded
	ErrorTypeRateLimit   ErrorType = "rate_limit"   // Rate limiting from the exchange
	ErrorTypeServerError ErrorType = "server_error" // HTTP 5xx errors
	ErrorTypePersistence ErrorType = "persistence"  // Snapshot or storage write failures
	ErrorTypeCircuitOpen ErrorType = "circuit_open" // Circuit breaker is open

	// Non-retryable error types
	ErrorTypeInput               ErrorType = "input"                // Invalid caller-supplied parameters
	ErrorTypeDataGap             ErrorType = "data_gap"             // Required bar missing from storage
	ErrorTypeInsufficientCapital ErrorType = "insufficient_capital" // Trade rejected by the ledger
	ErrorTypeValidation          ErrorType = "validation"           // Data validation errors
	ErrorTypeConfiguration       ErrorType = "configuration"        // Configuration errors

	// Special error types
	ErrorTypeUnknown       ErrorType = "unknown"       // Unclassified errors
	ErrorTypeUnrecoverable ErrorType = "unrecoverable" // Fatal errors that move the engine to failed
)

// Sentinel errors for the conditions callers branch on with errors.Is.
var (
	// ErrInsufficientCapital is returned when a trade would drive cash
	// negative. The ledger state is unchanged when this is returned.
	ErrInsufficientCapital = errors.New("insufficient capital for trade")

	// ErrDataGap is returned when a required bar is missing from storage.
	ErrDataGap = errors.New("bar missing from storage")
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ClassifiedError represents an error with metadata for handling decisions.
type ClassifiedError struct {
	Err         error                  `json:"error"`
	Type        ErrorType              `json:"type"`
	Severity    Severity               `json:"severity"`
	Retryable   bool                   `json:"retryable"`
	Component   string                 `json:"component"`
	Operation   string                 `json:"operation"`
	Context     map[string]interface{} `json:"context"`
	Timestamp   time.Time              `json:"timestamp"`
	Attempts    int                    `json:"attempts"`
	LastAttempt time.Time              `json:"last_attempt"`
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	return fmt.Sprintf("[%s/%s] %s: %v", ce.Component, ce.Type, ce.Operation, ce.Err)
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Is checks classified errors by type and falls through to the wrapped chain.
func (ce *ClassifiedError) Is(target error) bool {
	if t, ok := target.(*ClassifiedError); ok {
		return ce.Type == t.Type
	}
	return errors.Is(ce.Err, target)
}

// Classifier handles error classification and retry logic.
type Classifier struct {
	config config.ErrorHandlingConfig
	logger *slog.Logger
	mu     sync.RWMutex
	stats  map[ErrorType]ErrorStats
}

// ErrorStats tracks error occurrences for monitoring.
type ErrorStats struct {
	Count     int64     `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// NewClassifier creates an error classifier with the given configuration.
func NewClassifier(cfg config.ErrorHandlingConfig, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}

	return &Classifier{
		config: cfg,
		logger: logger,
		stats:  make(map[ErrorType]ErrorStats),
	}
}

// Classify analyzes an error and returns a ClassifiedError with retry metadata.
func (c *Classifier) Classify(err error, component, operation string) *ClassifiedError {
	if err == nil {
		return nil
	}

	if ce, ok := err.(*ClassifiedError); ok {
		return ce
	}

	errorType := classifyErrorType(err)
	severity := determineSeverity(errorType)
	retryable := c.isRetryable(errorType)

	classified := &ClassifiedError{
		Err:       err,
		Type:      errorType,
		Severity:  severity,
		Retryable: retryable,
		Component: component,
		Operation: operation,
		Context:   make(map[string]interface{}),
		Timestamp: time.Now(),
	}

	c.updateStats(errorType)

	c.logger.Debug("error classified",
		"type", errorType,
		"severity", severity.String(),
		"retryable", retryable,
		"component", component,
		"operation", operation,
		"error", err.Error())

	return classified
}

// classifyErrorType determines the error type from sentinels and content.
func classifyErrorType(err error) ErrorType {
	if errors.Is(err, ErrInsufficientCapital) {
		return ErrorTypeInsufficientCapital
	}
	if errors.Is(err, ErrDataGap) {
		return ErrorTypeDataGap
	}

	errStr := strings.ToLower(err.Error())

	// Timeouts first: a deadline error also satisfies net.Error, so the
	// network check would otherwise swallow it.
	if isTimeoutError(err) {
		return ErrorTypeTimeout
	}

	if isNetworkError(err) {
		return ErrorTypeNetwork
	}

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") {
		return ErrorTypeRateLimit
	}

	if strings.Contains(errStr, "snapshot") ||
		strings.Contains(errStr, "persist") {
		return ErrorTypePersistence
	}

	if strings.Contains(errStr, "validation") ||
		strings.Contains(errStr, "malformed") ||
		strings.Contains(errStr, "parse") {
		return ErrorTypeValidation
	}

	if strings.Contains(errStr, "invalid") ||
		strings.Contains(errStr, "must be") ||
		strings.Contains(errStr, "out of range") {
		return ErrorTypeInput
	}

	if strings.Contains(errStr, "config") ||
		strings.Contains(errStr, "missing required") ||
		strings.Contains(errStr, "not configured") {
		return ErrorTypeConfiguration
	}

	if strings.Contains(errStr, "server error") ||
		strings.Contains(errStr, "internal server") ||
		strings.Contains(errStr, "service unavailable") {
		return ErrorTypeServerError
	}

	if strings.Contains(errStr, "panic") ||
		strings.Contains(errStr, "runtime error") {
		return ErrorTypeUnrecoverable
	}

	return ErrorTypeUnknown
}

// isNetworkError checks if the error is network-related.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"connection aborted",
		"no route to host",
		"host unreachable",
		"network unreachable",
		"dns",
		"resolve",
	}

	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// isTimeoutError checks if the error is timeout-related.
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// determineSeverity assigns a severity level based on error type.
func determineSeverity(errorType ErrorType) Severity {
	switch errorType {
	case ErrorTypeUnrecoverable:
		return SeverityCritical
	case ErrorTypePersistence, ErrorTypeConfiguration:
		return SeverityHigh
	case ErrorTypeInput, ErrorTypeValidation, ErrorTypeDataGap, ErrorTypeInsufficientCapital:
		return SeverityMedium
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// isRetryable determines if an error type should be retried.
func (c *Classifier) isRetryable(errorType ErrorType) bool {
	for _, retryableType := range c.config.GlobalRetryPolicy.RetryableErrors {
		if string(errorType) == retryableType {
			return true
		}
	}

	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit,
		ErrorTypeServerError, ErrorTypePersistence:
		return true
	case ErrorTypeInput, ErrorTypeDataGap, ErrorTypeInsufficientCapital,
		ErrorTypeValidation, ErrorTypeConfiguration, ErrorTypeUnrecoverable:
		return false
	default:
		// Unknown errors are retried with caution.
		return true
	}
}

// updateStats updates error statistics.
func (c *Classifier) updateStats(errorType ErrorType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats[errorType]
	stats.Count++
	stats.LastSeen = time.Now()
	if stats.FirstSeen.IsZero() {
		stats.FirstSeen = stats.LastSeen
	}
	c.stats[errorType] = stats
}

// Retry executes fn with bounded retries. Non-retryable errors return
// immediately; retryable errors back off between attempts until the policy's
// attempt budget is exhausted or the context is canceled.
func (c *Classifier) Retry(ctx context.Context, component, operation string, fn func() error) error {
	policy := c.getRetryPolicy(component)
	strategy := createBackoffStrategy(policy)

	var lastErr error
	attempts := 0
	maxAttempts := policy.MaxAttempts

	for {
		attempts++

		err := fn()
		if err == nil {
			if attempts > 1 {
				c.logger.Debug("operation succeeded after retry",
					"component", component,
					"operation", operation,
					"attempts", attempts)
			}
			return nil
		}

		classified := c.Classify(err, component, operation)
		classified.Attempts = attempts
		classified.LastAttempt = time.Now()
		lastErr = classified

		c.logger.Warn("operation failed",
			"component", component,
			"operation", operation,
			"attempt", attempts,
			"max_attempts", maxAttempts,
			"error_type", classified.Type,
			"retryable", classified.Retryable,
			"error", err.Error())

		if !classified.Retryable || attempts >= maxAttempts {
			break
		}

		if ctx.Err() != nil {
			return fmt.Errorf("context canceled during retry: %w", ctx.Err())
		}

		next := strategy.NextBackOff()
		if next == backoff.Stop {
			break
		}

		select {
		case <-time.After(next):
		case <-ctx.Done():
			return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}

// getRetryPolicy returns the retry policy for a component.
func (c *Classifier) getRetryPolicy(component string) config.RetryPolicyConfig {
	if policy, exists := c.config.ComponentPolicies[component]; exists {
		return policy
	}
	return c.config.GlobalRetryPolicy
}

// createBackoffStrategy creates a backoff strategy from the policy.
func createBackoffStrategy(policy config.RetryPolicyConfig) backoff.BackOff {
	initialDelay, _ := time.ParseDuration(policy.InitialDelay)
	maxDelay, _ := time.ParseDuration(policy.MaxDelay)

	var strategy backoff.BackOff

	switch policy.BackoffStrategy {
	case "fixed":
		strategy = backoff.NewConstantBackOff(initialDelay)
	case "linear":
		strategy = &LinearBackoff{
			interval: initialDelay,
			max:      maxDelay,
		}
	case "exponential":
		fallthrough
	default:
		exponential := backoff.NewExponentialBackOff()
		exponential.InitialInterval = initialDelay
		exponential.MaxInterval = maxDelay
		exponential.MaxElapsedTime = 0
		strategy = exponential
	}

	if policy.Jitter {
		strategy = &JitteredBackoff{BackOff: strategy}
	}

	return backoff.WithMaxRetries(strategy, uint64(policy.MaxAttempts-1))
}

// GetStats returns a copy of the per-type error statistics.
func (c *Classifier) GetStats() map[ErrorType]ErrorStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make(map[ErrorType]ErrorStats, len(c.stats))
	for k, v := range c.stats {
		stats[k] = v
	}
	return stats
}

// CircuitBreaker implements the circuit breaker pattern. The live engine
// wraps exchange calls with one so a failing exchange degrades to skipped
// ticks instead of a retry storm.
type CircuitBreaker struct {
	name         string
	config       config.CircuitBreakerConfig
	state        CircuitState
	failures     int
	lastFailure  time.Time
	nextRetry    time.Time
	testRequests int
	mu           sync.RWMutex
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (cs CircuitState) String() string {
	switch cs {
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

// NewCircuitBreaker creates a circuit breaker with the given configuration.
func NewCircuitBreaker(name string, cfg config.CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: cfg,
		state:  CircuitClosed,
	}
}

// Call executes fn through the circuit breaker.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allowRequest() {
		return &ClassifiedError{
			Err:       fmt.Errorf("circuit breaker is open for %s", cb.name),
			Type:      ErrorTypeCircuitOpen,
			Severity:  SeverityMedium,
			Retryable: true,
			Component: "circuit_breaker",
			Operation: cb.name,
			Timestamp: time.Now(),
		}
	}

	err := fn()
	cb.recordResult(err)
	return err
}

// allowRequest checks if a request should be allowed through.
func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		return time.Now().After(cb.nextRetry)
	case CircuitHalfOpen:
		return cb.testRequests < cb.config.HalfOpenRequests
	default:
		return false
	}
}

// recordResult records the result of a request.
func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case CircuitHalfOpen:
		cb.testRequests++
		if cb.testRequests >= cb.config.HalfOpenRequests {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.testRequests = 0
		}
	case CircuitClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = CircuitOpen
			cb.setNextRetry()
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.testRequests = 0
		cb.setNextRetry()
	}
}

func (cb *CircuitBreaker) setNextRetry() {
	timeout, _ := time.ParseDuration(cb.config.RecoveryTimeout)
	cb.nextRetry = time.Now().Add(timeout)
}

// GetState returns the current state of the circuit breaker.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// LinearBackoff implements a simple linear backoff strategy.
type LinearBackoff struct {
	interval time.Duration
	max      time.Duration
	current  time.Duration
}

// NextBackOff returns the next backoff interval.
func (lb *LinearBackoff) NextBackOff() time.Duration {
	if lb.current == 0 {
		lb.current = lb.interval
	} else {
		lb.current += lb.interval
	}

	if lb.current > lb.max {
		lb.current = lb.max
	}

	return lb.current
}

// Reset resets the backoff to its initial state.
func (lb *LinearBackoff) Reset() {
	lb.current = 0
}

// JitteredBackoff adds ±10% jitter to another backoff strategy.
type JitteredBackoff struct {
	backoff.BackOff
}

// NextBackOff returns the next backoff interval with jitter.
func (jb *JitteredBackoff) NextBackOff() time.Duration {
	next := jb.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}

	jitter := float64(next) * 0.1
	offset := (2.0*float64(time.Now().UnixNano()%1000)/1000.0 - 1.0) * jitter
	return next + time.Duration(offset)
}

// WrapError wraps an error with component and operation context.
func WrapError(err error, component, operation, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s in %s.%s: %w", message, component, operation, err)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if ce, ok := err.(*ClassifiedError); ok {
		return ce.Retryable
	}
	return false
}

// GetErrorType extracts the error type from a classified error.
func GetErrorType(err error) ErrorType {
	if ce, ok := err.(*ClassifiedError); ok {
		return ce.Type
	}
	return ErrorTypeUnknown
}

// GetSeverity extracts the severity from a classified error.
func GetSeverity(err error) Severity {
	if ce, ok := err.(*ClassifiedError); ok {
		return ce.Severity
	}
	return SeverityMedium
}
