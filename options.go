package redisconn

import (
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// ParseConfig holds address parsing options.
type ParseConfig struct {
	// DefaultDatabase is used when the address itself names no database.
	// Default: 0
	DefaultDatabase int

	// Options are caller-supplied driver options. Query-string options
	// parsed from the address override these on key collision.
	Options map[string]string

	// Logger receives deprecation warnings for option aliases.
	// Default: slog.Default()
	Logger *slog.Logger
}

// ParseOption is a functional option for configuring address parsing.
type ParseOption func(*ParseConfig)

// WithDefaultDatabase sets the database used when the address names none.
//
// Example:
//
//	redisconn.ParseAddress("redis://localhost", redisconn.WithDefaultDatabase(3))
func WithDefaultDatabase(db int) ParseOption {
	return func(c *ParseConfig) {
		c.DefaultDatabase = db
	}
}

// WithClientOptions supplies driver options to merge under any parsed from
// the address query string.
func WithClientOptions(options map[string]string) ParseOption {
	return func(c *ParseConfig) {
		c.Options = options
	}
}

// WithParseLogger sets the logger that receives deprecation warnings.
func WithParseLogger(logger *slog.Logger) ParseOption {
	return func(c *ParseConfig) {
		c.Logger = logger
	}
}

// DefaultParseConfig returns parse configuration with sensible defaults.
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		DefaultDatabase: 0,
		Logger:          slog.Default(),
	}
}

// ProxyConfig holds proxy construction options.
type ProxyConfig struct {
	// Classifier decides which call errors count as connectivity failures.
	// Default: DefaultConnectivityClassifier
	Classifier ConnectivityClassifier

	// Logger for recovery operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// Breaker, when non-nil, places a circuit breaker between the recovery
	// loop and the underlying client.
	Breaker *CircuitBreakerConfig
}

// ProxyOption is a functional option for configuring a Proxy.
type ProxyOption func(*ProxyConfig)

// WithConnectivityClassifier sets a custom connectivity classifier.
//
// Example:
//
//	redisconn.WithConnectivityClassifier(&myClassifier{})
func WithConnectivityClassifier(classifier ConnectivityClassifier) ProxyOption {
	return func(c *ProxyConfig) {
		c.Classifier = classifier
	}
}

// WithProxyLogger sets a custom logger for recovery operations.
func WithProxyLogger(logger *slog.Logger) ProxyOption {
	return func(c *ProxyConfig) {
		c.Logger = logger
	}
}

// WithCircuitBreaker enables a circuit breaker on the proxy's call path.
// The breaker sits inside the reconnect-retry loop, so its counters see
// every attempt against the store.
//
// Example:
//
//	redisconn.WithCircuitBreaker(
//	    redisconn.WithTimeout(60*time.Second),
//	    redisconn.WithMaxRequests(5),
//	)
func WithCircuitBreaker(opts ...CircuitBreakerOption) ProxyOption {
	return func(c *ProxyConfig) {
		config := DefaultCircuitBreakerConfig()
		for _, opt := range opts {
			opt(config)
		}
		c.Breaker = config
	}
}

// DefaultProxyConfig returns proxy configuration with sensible defaults.
func DefaultProxyConfig() *ProxyConfig {
	return &ProxyConfig{
		Classifier: DefaultConnectivityClassifier{},
		Logger:     slog.Default(),
	}
}

// RetryStrategy defines the backoff strategy for WaitReady.
type RetryStrategy string

const (
	// RetryStrategyExponential uses exponential backoff with jitter.
	RetryStrategyExponential RetryStrategy = "exponential"

	// RetryStrategyConstant uses a constant delay between retries.
	RetryStrategyConstant RetryStrategy = "constant"

	// RetryStrategyFibonacci uses fibonacci backoff with jitter.
	RetryStrategyFibonacci RetryStrategy = "fibonacci"
)

// RetryConfig holds backoff configuration for WaitReady.
type RetryConfig struct {
	// Strategy defines the backoff strategy.
	// Default: RetryStrategyExponential
	Strategy RetryStrategy

	// InitialDelay is the delay before the first retry.
	// Default: 1 second
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 30 seconds
	MaxDelay time.Duration

	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 5
	MaxAttempts int

	// Logger for readiness probing.
	// Default: slog.Default()
	Logger *slog.Logger
}

// RetryOption is a functional option for configuring WaitReady backoff.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the maximum number of readiness attempts, including
// the initial one.
func WithMaxAttempts(attempts int) RetryOption {
	return func(c *RetryConfig) {
		c.MaxAttempts = attempts
	}
}

// WithExponentialBackoff configures exponential backoff with jitter.
//
// Example:
//
//	redisconn.WithExponentialBackoff(time.Second, 30*time.Second)
//	// ~1s, ~2s, ~4s, ~8s, ..., capped at 30s
func WithExponentialBackoff(initialDelay, maxDelay time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.Strategy = RetryStrategyExponential
		c.InitialDelay = initialDelay
		c.MaxDelay = maxDelay
	}
}

// WithConstantBackoff configures a constant delay between retries.
func WithConstantBackoff(delay time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.Strategy = RetryStrategyConstant
		c.InitialDelay = delay
		c.MaxDelay = delay
	}
}

// WithFibonacciBackoff configures fibonacci backoff with jitter.
func WithFibonacciBackoff(initialDelay, maxDelay time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.Strategy = RetryStrategyFibonacci
		c.InitialDelay = initialDelay
		c.MaxDelay = maxDelay
	}
}

// WithRetryLogger sets a custom logger for readiness probing.
func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(c *RetryConfig) {
		c.Logger = logger
	}
}

// DefaultRetryConfig returns backoff configuration with sensible defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		Strategy:     RetryStrategyExponential,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  5,
		Logger:       slog.Default(),
	}
}

// backoff builds the go-retry backoff for the configuration.
// Note: retry.Do counts the initial attempt, so MaxAttempts-1 is passed to
// WithMaxRetries.
func (c *RetryConfig) backoff() retry.Backoff {
	maxRetries := c.MaxAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}

	var base retry.Backoff
	switch c.Strategy {
	case RetryStrategyConstant:
		base = retry.BackoffFunc(func() (time.Duration, bool) {
			return c.InitialDelay, false
		})
	case RetryStrategyFibonacci:
		base = retry.WithJitter(c.InitialDelay/10, retry.NewFibonacci(c.InitialDelay))
	default:
		base = retry.WithJitter(c.InitialDelay/10, retry.NewExponential(c.InitialDelay))
	}

	return retry.WithMaxRetries(
		uint64(maxRetries), // #nosec G115 - negative values floored above
		retry.WithCappedDuration(c.MaxDelay, base),
	)
}

// CircuitBreakerConfig holds circuit breaker configuration options.
type CircuitBreakerConfig struct {
	// ReadyToTrip is called with a copy of counts whenever a call fails in
	// the closed state; returning true opens the circuit.
	// Default: trips after 3 calls with a 60% failure rate
	ReadyToTrip func(counts CircuitBreakerCounts) bool

	// OnStateChange is called whenever the circuit breaker changes state.
	OnStateChange func(name string, from, to CircuitBreakerState)

	// Logger for circuit breaker operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// Interval is the cyclic period of the closed state after which the
	// internal counts are cleared. If 0, never clears.
	// Default: 10 seconds
	Interval time.Duration

	// Timeout is the period of the open state, after which the state
	// becomes half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRequests is the maximum number of calls allowed through while the
	// circuit breaker is half-open.
	// Default: 3
	MaxRequests uint32
}

// CircuitBreakerOption is a functional option for configuring circuit
// breaker behavior.
type CircuitBreakerOption func(*CircuitBreakerConfig)

// CircuitBreakerCounts holds the internal counts of the circuit breaker.
type CircuitBreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed means the circuit is closed and calls flow normally.
	StateClosed CircuitBreakerState = iota

	// StateHalfOpen means the circuit is testing if the store has recovered.
	StateHalfOpen

	// StateOpen means the circuit is open and calls are rejected immediately.
	StateOpen
)

// String returns the string representation of the circuit breaker state.
func (s CircuitBreakerState) String() string {
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

// WithMaxRequests sets the maximum number of calls in half-open state.
func WithMaxRequests(maxRequests uint32) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.MaxRequests = maxRequests
	}
}

// WithInterval sets the interval for clearing counts in closed state.
func WithInterval(interval time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Interval = interval
	}
}

// WithTimeout sets the timeout for staying in open state.
func WithTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Timeout = timeout
	}
}

// WithReadyToTrip sets a custom function to determine when to trip the
// circuit.
//
// Example:
//
//	redisconn.WithReadyToTrip(func(counts redisconn.CircuitBreakerCounts) bool {
//	    return counts.ConsecutiveFailures >= 10
//	})
func WithReadyToTrip(fn func(counts CircuitBreakerCounts) bool) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ReadyToTrip = fn
	}
}

// WithStateChangeHandler sets a callback for circuit breaker state changes.
func WithStateChangeHandler(fn func(name string, from, to CircuitBreakerState)) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.OnStateChange = fn
	}
}

// WithCircuitBreakerLogger sets a custom logger for circuit breaker
// operations.
func WithCircuitBreakerLogger(logger *slog.Logger) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Logger = logger
	}
}

// DefaultCircuitBreakerConfig returns circuit breaker configuration with
// sensible defaults.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts CircuitBreakerCounts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		Logger: slog.Default(),
	}
}
