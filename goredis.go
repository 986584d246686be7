package redisconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// GoRedisFactory is a ClientFactory backed by go-redis. The pool handle is
// a shared *redis.Client (which owns the socket pool); client handles are
// thin views onto it, so evicting the pool is what actually tears down the
// broken sockets.
type GoRedisFactory struct{}

// NewGoRedisFactory creates a factory for go-redis backed clients.
func NewGoRedisFactory() *GoRedisFactory {
	return &GoRedisFactory{}
}

type goRedisPool struct {
	client *redis.Client
}

func (p *goRedisPool) Close() error {
	return p.client.Close()
}

type goRedisConn struct {
	client *redis.Client
}

// NewPool implements ClientFactory.
func (f *GoRedisFactory) NewPool(params ConnectionParams, poolParams PoolParams) (Pool, error) {
	options := &redis.Options{
		Password: params.Password,
		DB:       params.Database,
	}

	switch params.Transport {
	case TransportUnix:
		options.Network = "unix"
		options.Addr = params.UnixSocketPath
	case TransportTLS:
		options.Network = "tcp"
		options.Addr = params.Endpoint()
		options.TLSConfig = &tls.Config{
			ServerName: params.Host,
			MinVersion: tls.VersionTLS12,
		}
	default:
		options.Network = "tcp"
		options.Addr = params.Endpoint()
	}

	if err := applyPoolParams(options, poolParams); err != nil {
		return nil, err
	}

	return &goRedisPool{client: redis.NewClient(options)}, nil
}

// NewConn implements ClientFactory.
func (f *GoRedisFactory) NewConn(params ConnectionParams, pool Pool) (Conn, error) {
	gp, ok := pool.(*goRedisPool)
	if !ok {
		return nil, fmt.Errorf("pool %T was not created by GoRedisFactory", pool)
	}
	return &goRedisConn{client: gp.client}, nil
}

// applyPoolParams maps pool tuning keys onto go-redis options. Unknown
// keys are rejected so typos surface at construction, not as silently
// default-sized pools.
func applyPoolParams(options *redis.Options, poolParams PoolParams) error {
	for key, value := range poolParams {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("pool parameter %q: %q must be an integer", key, value)
		}

		switch key {
		case "pool_size":
			options.PoolSize = n
		case "min_idle_conns":
			options.MinIdleConns = n
		case "pool_timeout_seconds":
			options.PoolTimeout = time.Duration(n) * time.Second
		case "conn_max_idle_time_seconds":
			options.ConnMaxIdleTime = time.Duration(n) * time.Second
		case "max_retries":
			options.MaxRetries = n
		default:
			return fmt.Errorf("unknown pool parameter %q", key)
		}
	}
	return nil
}

// Do implements Conn.
func (c *goRedisConn) Do(ctx context.Context, cmd string, args ...any) (any, error) {
	cmdArgs := make([]any, 0, len(args)+1)
	cmdArgs = append(cmdArgs, cmd)
	cmdArgs = append(cmdArgs, args...)
	return c.client.Do(ctx, cmdArgs...).Result()
}

// Ping implements Conn.
func (c *goRedisConn) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close implements Conn. The handle shares the pool's client, which stays
// open for other handles; the registry closes it on eviction.
func (c *goRedisConn) Close() error {
	return nil
}
