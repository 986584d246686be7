package redisconn

import (
	"errors"
	"log/slog"

	jperrors "github.com/JohnPlummer/jp-go-errors"
	"github.com/sony/gobreaker/v2"
)

// circuitBreaker guards the call path against a persistently failing
// store. It sits inside the reconnect-retry loop so its counters see every
// attempt; only connectivity failures count against the circuit, store
// errors (wrong type, missing key) do not.
type circuitBreaker struct {
	cb     *gobreaker.CircuitBreaker[any]
	logger *slog.Logger
}

func newCircuitBreaker(config *CircuitBreakerConfig, classifier ConnectivityClassifier) *circuitBreaker {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        "redisconn-proxy",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return config.ReadyToTrip(convertCounts(counts))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			config.Logger.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())

			if config.OnStateChange != nil {
				config.OnStateChange(name, convertGobreakerState(from), convertGobreakerState(to))
			}
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !classifier.IsConnectivityError(err)
		},
	}

	return &circuitBreaker{
		cb:     gobreaker.NewCircuitBreaker[any](settings),
		logger: config.Logger,
	}
}

// execute runs one attempt through the breaker. Rejections are wrapped
// with jperrors circuit breaker errors; rejection is not a connectivity
// failure, so the guard loop surfaces it without reconnecting.
func (b *circuitBreaker) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState):
			counts := b.cb.Counts()
			b.logger.Warn("circuit breaker is open, call rejected",
				"error", err,
				"state", b.cb.State(),
				"counts", counts)
			return nil, jperrors.NewCircuitBreakerError(
				"call rejected",
				"execute",
				"open",
				jperrors.WithCause(err),
				jperrors.WithCounts(jperrors.CircuitCounts{
					Requests:             counts.Requests,
					TotalSuccesses:       counts.TotalSuccesses,
					TotalFailures:        counts.TotalFailures,
					ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
					ConsecutiveFailures:  counts.ConsecutiveFailures,
				}),
			)
		case errors.Is(err, gobreaker.ErrTooManyRequests):
			b.logger.Debug("circuit breaker half-open, too many calls",
				"error", err)
			return nil, jperrors.NewCircuitBreakerError(
				"too many calls in half-open state",
				"execute",
				"half-open",
				jperrors.WithCause(err),
			)
		}
		return nil, err
	}
	return result, nil
}

func (b *circuitBreaker) state() CircuitBreakerState {
	return convertGobreakerState(b.cb.State())
}

func (b *circuitBreaker) counts() CircuitBreakerCounts {
	return convertCounts(b.cb.Counts())
}

func convertCounts(counts gobreaker.Counts) CircuitBreakerCounts {
	return CircuitBreakerCounts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

// convertGobreakerState converts gobreaker.State to CircuitBreakerState.
func convertGobreakerState(state gobreaker.State) CircuitBreakerState {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// State returns the circuit breaker state, or StateClosed when no breaker
// is configured.
func (p *Proxy) State() CircuitBreakerState {
	if p.breaker == nil {
		return StateClosed
	}
	return p.breaker.state()
}

// Counts returns the circuit breaker counts. Zero when no breaker is
// configured.
func (p *Proxy) Counts() CircuitBreakerCounts {
	if p.breaker == nil {
		return CircuitBreakerCounts{}
	}
	return p.breaker.counts()
}
