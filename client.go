// Package redisconn provides a resilient connection layer for key-value
// store clients. It translates flexible address specifications
// (redis:// / rediss:// / unix:// URLs, host:port pairs, bare socket paths)
// into canonical connection parameters, and wraps a live client so that
// calls transparently survive a broken connection: the stale pooled
// connection is evicted, a fresh client is built, and the original call is
// retried a bounded number of times before the failure is surfaced.
//
// Example:
//
//	params, err := redisconn.ParseAddress("redis://:secret@localhost:6379/2")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	proxy, err := redisconn.NewProxy(
//	    redisconn.NewGoRedisFactory(),
//	    params,
//	    redisconn.PoolParams{"pool_size": "20"},
//	    redisconn.NewMemoryPoolRegistry(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer proxy.Close()
//
//	value, err := proxy.Do(ctx, "GET", "greeting")
package redisconn

import "context"

// Conn is the capability interface a key-value store client must expose to
// be wrapped by a Proxy. The Proxy itself implements Conn, forwarding Do
// and Ping through its recovery guards so callers can use the two
// interchangeably.
type Conn interface {
	// Do runs a single command and returns its raw reply.
	Do(ctx context.Context, cmd string, args ...any) (any, error)

	// Ping checks that the server is reachable over the current connection.
	Ping(ctx context.Context) error

	// Close releases the client handle. It does not tear down the shared
	// pool behind it; that is the registry's job on eviction.
	Close() error
}

// Pool is an opaque handle to a reusable set of transport connections. The
// registry owns pools and closes them when they are evicted.
type Pool interface {
	Close() error
}

// ClientFactory builds pools and client handles from canonical connection
// parameters. Implementations bind a specific driver; GoRedisFactory is the
// bundled one.
type ClientFactory interface {
	// NewPool creates a fresh pool for the given parameters. Called by the
	// registry when no pool exists for the connection identifier.
	NewPool(params ConnectionParams, poolParams PoolParams) (Pool, error)

	// NewConn creates a client handle bound to an existing pool.
	NewConn(params ConnectionParams, pool Pool) (Conn, error)
}

// PoolRegistry maps connection identifiers to reusable pools. It is
// process-wide shared state; implementations must be safe for concurrent
// use from multiple proxies.
type PoolRegistry interface {
	// GetPool returns the pool registered under identifier, invoking create
	// to build one if none exists.
	GetPool(identifier string, create func() (Pool, error)) (Pool, error)

	// Evict removes and closes the pool registered under identifier. A
	// missing identifier is a no-op.
	Evict(identifier string)
}

// PoolParams carries driver-specific pool tuning (size, idle timeouts) as
// opaque key/value pairs interpreted by the ClientFactory.
type PoolParams map[string]string
