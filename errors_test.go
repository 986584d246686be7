package redisconn_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	redisconn "github.com/JohnPlummer/jp-go-redisconn"
)

var _ = Describe("DefaultConnectivityClassifier", func() {
	var classifier redisconn.DefaultConnectivityClassifier

	It("treats nil as non-connectivity", func() {
		Expect(classifier.IsConnectivityError(nil)).To(BeFalse())
	})

	It("classifies syscall sentinels as connectivity failures", func() {
		for _, err := range []error{
			syscall.ECONNREFUSED,
			syscall.ECONNRESET,
			syscall.EPIPE,
			syscall.ETIMEDOUT,
		} {
			Expect(classifier.IsConnectivityError(err)).To(BeTrue(), "%v", err)
		}
	})

	It("classifies wrapped syscall errors", func() {
		err := fmt.Errorf("write failed: %w", syscall.ECONNRESET)
		Expect(classifier.IsConnectivityError(err)).To(BeTrue())
	})

	It("classifies net errors", func() {
		err := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("reset")}
		Expect(classifier.IsConnectivityError(err)).To(BeTrue())
	})

	It("classifies unexpected stream closure", func() {
		Expect(classifier.IsConnectivityError(io.EOF)).To(BeTrue())
		Expect(classifier.IsConnectivityError(io.ErrUnexpectedEOF)).To(BeTrue())
	})

	It("classifies flattened driver messages by pattern", func() {
		for _, msg := range []string{
			"dial tcp 127.0.0.1:6379: connection refused",
			"redis: connection pool exhausted",
			"write tcp: broken pipe",
		} {
			Expect(classifier.IsConnectivityError(errors.New(msg))).To(BeTrue(), msg)
		}
	})

	It("does not classify context cancellation", func() {
		Expect(classifier.IsConnectivityError(context.Canceled)).To(BeFalse())
		Expect(classifier.IsConnectivityError(context.DeadlineExceeded)).To(BeFalse())
	})

	It("does not classify store errors", func() {
		for _, msg := range []string{
			"WRONGTYPE Operation against a key holding the wrong kind of value",
			"NOAUTH Authentication required",
			"ERR unknown command 'FOO'",
		} {
			Expect(classifier.IsConnectivityError(errors.New(msg))).To(BeFalse(), msg)
		}
	})
})
