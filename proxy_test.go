package redisconn_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	redisconn "github.com/JohnPlummer/jp-go-redisconn"
)

var _ = Describe("Proxy", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		factory  *mockFactory
		registry *mockRegistry
		logger   *slog.Logger

		connErr = syscall.ECONNRESET
	)

	newProxy := func(opts ...redisconn.ProxyOption) *redisconn.Proxy {
		params, err := redisconn.ParseAddress("redis://localhost:6379/0")
		Expect(err).NotTo(HaveOccurred())
		opts = append([]redisconn.ProxyOption{redisconn.WithProxyLogger(logger)}, opts...)
		proxy, err := redisconn.NewProxy(factory, params, nil, registry, opts...)
		Expect(err).NotTo(HaveOccurred())
		return proxy
	}

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		factory = &mockFactory{result: "PONG"}
		registry = newMockRegistry()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError, // Quiet during tests
		}))
	})

	AfterEach(func() {
		cancel()
	})

	Describe("construction", func() {
		It("builds the first client immediately", func() {
			newProxy()
			Expect(factory.getConnsCreated()).To(Equal(1))
			Expect(factory.poolsCreated).To(Equal(1))
		})

		It("registers the pool under the connection identifier", func() {
			proxy := newProxy()
			Expect(registry.pools).To(HaveKey(proxy.Identifier()))
		})

		It("fails when the first client cannot be built", func() {
			factory.connErr = errors.New("dial failed")

			params, err := redisconn.ParseAddress("redis://localhost")
			Expect(err).NotTo(HaveOccurred())
			_, err = redisconn.NewProxy(factory, params, nil, registry)
			Expect(err).To(MatchError("dial failed"))
		})
	})

	Describe("successful calls", func() {
		It("returns the result with no recovery", func() {
			proxy := newProxy()

			result, err := proxy.Do(ctx, "GET", "key")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal("PONG"))
			Expect(registry.evictionCount()).To(BeZero())
			Expect(factory.getConnsCreated()).To(Equal(1))
		})

		It("forwards Ping", func() {
			proxy := newProxy()
			Expect(proxy.Ping(ctx)).To(Succeed())
		})
	})

	Describe("connectivity recovery", func() {
		It("recovers when the first two attempts fail and the third succeeds", func() {
			factory.script = []error{connErr, connErr}
			proxy := newProxy()

			result, err := proxy.Do(ctx, "GET", "key")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal("PONG"))

			Expect(registry.evictionCount()).To(Equal(2))
			Expect(factory.getConnsCreated()).To(Equal(3))

			stats := proxy.GetStats()
			Expect(stats.TotalReconnects).To(Equal(int64(2)))
			Expect(stats.TotalAttempts).To(Equal(int64(3)))
			Expect(stats.TotalSuccesses).To(Equal(int64(1)))
		})

		It("surfaces the original error when all three attempts fail", func() {
			factory.script = []error{connErr, connErr, connErr}
			proxy := newProxy()

			_, err := proxy.Do(ctx, "GET", "key")
			Expect(err).To(MatchError(connErr))

			// Two recreate cycles; no further retry after the third failure.
			Expect(registry.evictionCount()).To(Equal(2))
			Expect(factory.getConnsCreated()).To(Equal(3))

			stats := proxy.GetStats()
			Expect(stats.TotalFailures).To(Equal(int64(1)))
			Expect(stats.LastError).To(MatchError(connErr))
		})

		It("propagates a non-connectivity error immediately", func() {
			storeErr := errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
			factory.script = []error{storeErr}
			proxy := newProxy()

			_, err := proxy.Do(ctx, "GET", "key")
			Expect(err).To(MatchError(storeErr))
			Expect(registry.evictionCount()).To(BeZero())
			Expect(factory.getConnsCreated()).To(Equal(1))
		})

		It("replaces the client identity on recovery", func() {
			factory.script = []error{connErr}
			proxy := newProxy()

			before := proxy.Current()
			_, err := proxy.Do(ctx, "GET", "key")
			Expect(err).NotTo(HaveOccurred())
			Expect(proxy.Current()).NotTo(BeIdenticalTo(before))
		})

		It("evicts under the failed client's identifier", func() {
			factory.script = []error{connErr}
			proxy := newProxy()

			identifier := proxy.Identifier()
			_, err := proxy.Do(ctx, "GET", "key")
			Expect(err).NotTo(HaveOccurred())
			Expect(registry.evictions).To(Equal([]string{identifier}))
		})

		It("propagates a failure to rebuild the client", func() {
			factory.script = []error{connErr}
			factory.connErr = errors.New("dial failed")
			factory.failAfter = 1
			proxy := newProxy()

			_, err := proxy.Do(ctx, "GET", "key")
			Expect(err).To(MatchError("dial failed"))
			Expect(registry.evictionCount()).To(Equal(1))
		})

		It("recovers Ping calls the same way", func() {
			factory.script = []error{connErr}
			proxy := newProxy()

			Expect(proxy.Ping(ctx)).To(Succeed())
			Expect(factory.getConnsCreated()).To(Equal(2))
		})
	})

	Describe("Close", func() {
		It("passes through to the live client without recovery", func() {
			proxy := newProxy()
			Expect(proxy.Close()).To(Succeed())
			Expect(factory.getConnsClosed()).To(Equal(1))
			Expect(registry.evictionCount()).To(BeZero())
		})
	})

	Describe("concurrent calls", func() {
		It("survives concurrent guarded calls", func() {
			proxy := newProxy()

			var wg sync.WaitGroup
			results := make(chan error, 50)
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := proxy.Do(ctx, "GET", "key")
					results <- err
				}()
			}
			wg.Wait()
			close(results)

			for err := range results {
				Expect(err).NotTo(HaveOccurred())
			}
		})
	})

	Describe("WaitReady", func() {
		It("returns once a ping gets through", func() {
			// First guarded ping exhausts its three attempts; the second
			// recovers on its final attempt.
			factory.script = []error{connErr, connErr, connErr, connErr, connErr}
			proxy := newProxy()

			err := proxy.WaitReady(ctx,
				redisconn.WithMaxAttempts(3),
				redisconn.WithConstantBackoff(time.Millisecond),
				redisconn.WithRetryLogger(logger))
			Expect(err).NotTo(HaveOccurred())
		})

		It("gives up after the configured attempts", func() {
			factory.script = []error{
				connErr, connErr, connErr,
				connErr, connErr, connErr,
				connErr, connErr, connErr,
			}
			proxy := newProxy()

			err := proxy.WaitReady(ctx,
				redisconn.WithMaxAttempts(2),
				redisconn.WithConstantBackoff(time.Millisecond),
				redisconn.WithRetryLogger(logger))
			Expect(err).To(MatchError(connErr))
		})

		It("aborts on a non-connectivity error", func() {
			storeErr := errors.New("NOAUTH Authentication required")
			factory.script = []error{storeErr}
			proxy := newProxy()

			err := proxy.WaitReady(ctx,
				redisconn.WithMaxAttempts(5),
				redisconn.WithConstantBackoff(time.Millisecond),
				redisconn.WithRetryLogger(logger))
			Expect(err).To(MatchError(storeErr))
		})
	})

	Describe("health", func() {
		It("reports healthy with reconnect counters", func() {
			factory.script = []error{connErr}
			proxy := newProxy()

			_, err := proxy.Do(ctx, "GET", "key")
			Expect(err).NotTo(HaveOccurred())

			health := proxy.GetHealth()
			Expect(health.Healthy).To(BeTrue())
			Expect(health.Status).To(Equal("closed"))
			Expect(health.TotalReconnects).To(Equal(int64(1)))
		})
	})
})
