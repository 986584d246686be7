package redisconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	pkgerrors "github.com/JohnPlummer/jp-go-errors"
)

// ErrInvalidAddressSpec is returned when an address specification is
// neither a string nor a slice of strings.
var ErrInvalidAddressSpec = errors.New("address must be a string or a slice of strings")

// UnsupportedSchemeError is returned when a URL-form address uses a scheme
// other than redis, rediss, or unix.
type UnsupportedSchemeError struct {
	Scheme string
	Addr   string
}

// Error implements the error interface.
func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("unsupported scheme %q in address %q (expected redis, rediss, or unix)", e.Scheme, e.Addr)
}

// InvalidPortError is returned when the port of a host:port address is not
// an integer.
type InvalidPortError struct {
	Port string
	Addr string
}

// Error implements the error interface.
func (e *InvalidPortError) Error() string {
	return fmt.Sprintf("port %q from %q must be an integer", e.Port, e.Addr)
}

// ConnectivityClassifier decides whether an error means the underlying
// transport is unusable. Connectivity failures are the only error kind the
// proxy recovers from; everything else propagates untouched.
type ConnectivityClassifier interface {
	// IsConnectivityError returns true if the error signals a broken or
	// unreachable connection.
	IsConnectivityError(err error) bool
}

// connErrorPatterns are matched against lowercased error text as a last
// resort, for drivers that flatten transport failures into plain strings.
// Store-level errors (wrong type, missing key, bad command) deliberately
// never match.
var connErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"connection lost",
	"broken pipe",
	"network is unreachable",
	"no such host",
	"i/o timeout",
	"use of closed network connection",
	"connection pool exhausted",
	"client is closed",
}

// DefaultConnectivityClassifier classifies transport-level failures from
// common drivers: syscall sentinels, net.Error values, unexpected stream
// closure, and timeout errors. Context cancellation is not connectivity —
// retrying with the same context would fail again immediately.
type DefaultConnectivityClassifier struct{}

// IsConnectivityError implements ConnectivityClassifier.
func (DefaultConnectivityClassifier) IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.ETIMEDOUT):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if pkgerrors.IsTimeout(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range connErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}
