package redisconn

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
)

// maxCallAttempts bounds the reconnect-and-retry protocol: the initial
// attempt plus up to two recoveries.
const maxCallAttempts = 3

// clientHandle pairs a live client with the identifier its pool was
// registered under. Eviction always uses the identifier captured when the
// client was built, never one recomputed later.
type clientHandle struct {
	conn       Conn
	identifier string
}

// Proxy wraps a live client so calls survive a broken connection. It owns
// the current client handle and replaces it in place when a guarded call
// detects a connectivity failure: the stale pool is evicted from the
// registry and a fresh client is built through the factory.
//
// The (factory, params, poolParams) triple is immutable for the proxy's
// lifetime. Proxy implements Conn; Do and Ping run through recovery
// guards, Close passes straight through to the live client.
//
// Concurrent calls are not serialized. Two failing calls may both evict
// and both rebuild; the last replacement wins and the extra eviction is a
// no-op lookup in the registry.
type Proxy struct {
	factory    ClientFactory
	params     ConnectionParams
	poolParams PoolParams
	registry   PoolRegistry

	logger     *slog.Logger
	classifier ConnectivityClassifier
	breaker    *circuitBreaker

	current atomic.Pointer[clientHandle]

	guardMu sync.Mutex
	guards  map[string]*callGuard

	stats proxyStats
}

// proxyStats tracks guarded call statistics.
type proxyStats struct {
	mu                sync.RWMutex
	totalAttempts     int64
	totalReconnects   int64
	totalSuccesses    int64
	totalFailures     int64
	lastReconnectTime time.Time
	lastError         error
}

// NewProxy creates a proxy for one logical connection target and
// immediately builds the first client.
//
// Example:
//
//	proxy, err := redisconn.NewProxy(
//	    redisconn.NewGoRedisFactory(),
//	    params,
//	    nil,
//	    redisconn.NewMemoryPoolRegistry(),
//	    redisconn.WithCircuitBreaker(),
//	)
func NewProxy(
	factory ClientFactory,
	params ConnectionParams,
	poolParams PoolParams,
	registry PoolRegistry,
	opts ...ProxyOption,
) (*Proxy, error) {
	config := DefaultProxyConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Classifier == nil {
		config.Classifier = DefaultConnectivityClassifier{}
	}

	p := &Proxy{
		factory:    factory,
		params:     params,
		poolParams: poolParams,
		registry:   registry,
		logger:     config.Logger,
		classifier: config.Classifier,
		guards:     make(map[string]*callGuard),
	}

	if config.Breaker != nil {
		p.breaker = newCircuitBreaker(config.Breaker, config.Classifier)
	}

	if _, err := p.createClient(); err != nil {
		return nil, err
	}

	return p, nil
}

// createClient builds a client bound to the pool registered under the
// connection identifier, creating the pool if needed, and installs it as
// the current client. The swap is a single pointer store so concurrent
// readers never see a torn handle.
func (p *Proxy) createClient() (Conn, error) {
	identifier := ConnectionIdentifier(p.params, p.poolParams)

	pool, err := p.registry.GetPool(identifier, func() (Pool, error) {
		return p.factory.NewPool(p.params, p.poolParams)
	})
	if err != nil {
		return nil, err
	}

	conn, err := p.factory.NewConn(p.params, pool)
	if err != nil {
		return nil, err
	}

	p.current.Store(&clientHandle{conn: conn, identifier: identifier})

	p.logger.Debug("client created",
		"endpoint", p.params.Endpoint(),
		"database", p.params.Database)

	return conn, nil
}

// guard returns the memoized call guard for a method name, creating it on
// first use.
func (p *Proxy) guard(name string) *callGuard {
	p.guardMu.Lock()
	defer p.guardMu.Unlock()

	g, ok := p.guards[name]
	if !ok {
		g = &callGuard{proxy: p, name: name}
		p.guards[name] = g
	}
	return g
}

// Do runs a command through the recovery guard.
func (p *Proxy) Do(ctx context.Context, cmd string, args ...any) (any, error) {
	return p.guard("Do").call(func(conn Conn) (any, error) {
		return conn.Do(ctx, cmd, args...)
	})
}

// Ping checks reachability through the recovery guard.
func (p *Proxy) Ping(ctx context.Context) error {
	_, err := p.guard("Ping").call(func(conn Conn) (any, error) {
		return nil, conn.Ping(ctx)
	})
	return err
}

// Close releases the current client handle directly, without recovery.
func (p *Proxy) Close() error {
	return p.current.Load().conn.Close()
}

// Current returns the live client handle. The handle changes across
// recoveries; callers wanting recovery must go through the proxy itself.
func (p *Proxy) Current() Conn {
	return p.current.Load().conn
}

// Identifier returns the connection identifier the current client's pool
// is registered under.
func (p *Proxy) Identifier() string {
	return p.current.Load().identifier
}

// WaitReady blocks until a guarded Ping succeeds, backing off between
// attempts. Non-connectivity errors abort the wait immediately.
//
// Example:
//
//	err := proxy.WaitReady(ctx,
//	    redisconn.WithMaxAttempts(10),
//	    redisconn.WithFibonacciBackoff(100*time.Millisecond, 5*time.Second),
//	)
func (p *Proxy) WaitReady(ctx context.Context, opts ...RetryOption) error {
	config := DefaultRetryConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	var attempts int
	return retry.Do(ctx, config.backoff(), func(ctx context.Context) error {
		attempts++

		err := p.Ping(ctx)
		if err == nil {
			if attempts > 1 {
				config.Logger.Info("store reachable after retry",
					"attempts", attempts)
			}
			return nil
		}

		if !p.classifier.IsConnectivityError(err) {
			config.Logger.Debug("non-connectivity error while waiting, giving up",
				"error", err,
				"attempts", attempts)
			return err
		}

		config.Logger.Debug("store not ready, retrying after delay",
			"attempt", attempts,
			"error", err)
		return retry.RetryableError(err)
	})
}

// execute routes one attempt through the circuit breaker when configured.
func (p *Proxy) execute(conn Conn, invoke func(Conn) (any, error)) (any, error) {
	if p.breaker == nil {
		return invoke(conn)
	}
	return p.breaker.execute(func() (any, error) {
		return invoke(conn)
	})
}

// ProxyStats holds statistics about guarded calls.
type ProxyStats struct {
	// TotalAttempts is the number of attempts made against the underlying
	// client, including retries after reconnects.
	TotalAttempts int64

	// TotalReconnects is the number of evict-and-recreate cycles.
	TotalReconnects int64

	// TotalSuccesses is the number of guarded calls that returned a result.
	TotalSuccesses int64

	// TotalFailures is the number of guarded calls that returned an error.
	TotalFailures int64

	// LastReconnectTime is the time of the most recent reconnect.
	LastReconnectTime time.Time

	// LastError is the most recent error returned to a caller, if any.
	LastError error
}

// GetStats returns a snapshot of the proxy's call statistics.
func (p *Proxy) GetStats() ProxyStats {
	p.stats.mu.RLock()
	defer p.stats.mu.RUnlock()

	return ProxyStats{
		TotalAttempts:     p.stats.totalAttempts,
		TotalReconnects:   p.stats.totalReconnects,
		TotalSuccesses:    p.stats.totalSuccesses,
		TotalFailures:     p.stats.totalFailures,
		LastReconnectTime: p.stats.lastReconnectTime,
		LastError:         p.stats.lastError,
	}
}

func (s *proxyStats) recordAttempt() {
	s.mu.Lock()
	s.totalAttempts++
	s.mu.Unlock()
}

func (s *proxyStats) recordReconnect() {
	s.mu.Lock()
	s.totalReconnects++
	s.lastReconnectTime = time.Now()
	s.mu.Unlock()
}

func (s *proxyStats) recordSuccess() {
	s.mu.Lock()
	s.totalSuccesses++
	s.mu.Unlock()
}

func (s *proxyStats) recordFailure(err error) {
	s.mu.Lock()
	s.totalFailures++
	s.lastError = err
	s.mu.Unlock()
}
