package redisconn_test

import (
	"context"
	"sync"

	redisconn "github.com/JohnPlummer/jp-go-redisconn"
)

// mockFactory builds mock pools and conns whose Do/Ping outcomes follow a
// shared script of errors, consumed one per invocation. An exhausted
// script means success.
type mockFactory struct {
	mu           sync.Mutex
	script       []error
	result       any
	poolsCreated int
	connsCreated int
	connsClosed  int

	// connErr, when set, makes NewConn fail once failAfter conns have
	// been created.
	connErr   error
	failAfter int
}

func (f *mockFactory) NewPool(params redisconn.ConnectionParams, poolParams redisconn.PoolParams) (redisconn.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poolsCreated++
	return &mockPool{}, nil
}

func (f *mockFactory) NewConn(params redisconn.ConnectionParams, pool redisconn.Pool) (redisconn.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connErr != nil && f.connsCreated >= f.failAfter {
		return nil, f.connErr
	}
	f.connsCreated++
	return &mockConn{factory: f}, nil
}

func (f *mockFactory) next() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) > 0 {
		err := f.script[0]
		f.script = f.script[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.result, nil
}

func (f *mockFactory) getConnsCreated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connsCreated
}

func (f *mockFactory) getConnsClosed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connsClosed
}

type mockPool struct{}

func (p *mockPool) Close() error { return nil }

type mockConn struct {
	factory *mockFactory
}

func (c *mockConn) Do(ctx context.Context, cmd string, args ...any) (any, error) {
	return c.factory.next()
}

func (c *mockConn) Ping(ctx context.Context) error {
	_, err := c.factory.next()
	return err
}

func (c *mockConn) Close() error {
	c.factory.mu.Lock()
	defer c.factory.mu.Unlock()
	c.factory.connsClosed++
	return nil
}

// mockRegistry records evictions and pool lookups.
type mockRegistry struct {
	mu        sync.Mutex
	pools     map[string]redisconn.Pool
	evictions []string
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{pools: make(map[string]redisconn.Pool)}
}

func (r *mockRegistry) GetPool(identifier string, create func() (redisconn.Pool, error)) (redisconn.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pool, ok := r.pools[identifier]; ok {
		return pool, nil
	}
	pool, err := create()
	if err != nil {
		return nil, err
	}
	r.pools[identifier] = pool
	return pool, nil
}

func (r *mockRegistry) Evict(identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pools, identifier)
	r.evictions = append(r.evictions, identifier)
}

func (r *mockRegistry) evictionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.evictions)
}
