package redisconn

import (
	"log/slog"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryPoolRegistry is an in-process PoolRegistry backed by a concurrent
// map. One registry is typically shared by every proxy in the process so
// proxies pointing at the same target reuse one pool.
type MemoryPoolRegistry struct {
	pools  *xsync.MapOf[string, Pool]
	logger *slog.Logger
}

// NewMemoryPoolRegistry creates an empty registry.
func NewMemoryPoolRegistry() *MemoryPoolRegistry {
	return &MemoryPoolRegistry{
		pools:  xsync.NewMapOf[string, Pool](),
		logger: slog.Default(),
	}
}

// GetPool implements PoolRegistry. Two goroutines racing to register the
// same identifier both get the pool that won the store; the loser's pool
// is closed.
func (r *MemoryPoolRegistry) GetPool(identifier string, create func() (Pool, error)) (Pool, error) {
	if pool, ok := r.pools.Load(identifier); ok {
		return pool, nil
	}

	pool, err := create()
	if err != nil {
		return nil, err
	}

	actual, loaded := r.pools.LoadOrStore(identifier, pool)
	if loaded {
		if cerr := pool.Close(); cerr != nil {
			r.logger.Debug("closing redundant pool failed", "error", cerr)
		}
		return actual, nil
	}

	return pool, nil
}

// Evict implements PoolRegistry. The evicted pool is closed; an unknown
// identifier is a no-op.
func (r *MemoryPoolRegistry) Evict(identifier string) {
	pool, ok := r.pools.LoadAndDelete(identifier)
	if !ok {
		return
	}
	if err := pool.Close(); err != nil {
		r.logger.Debug("closing evicted pool failed", "error", err)
	}
}

// Len returns the number of registered pools.
func (r *MemoryPoolRegistry) Len() int {
	return r.pools.Size()
}
