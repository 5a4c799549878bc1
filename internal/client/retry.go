package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"net"
	"syscall"
	"time"
)

// ErrorClass is the diagnostic taxonomy for outbound call failures. It is
// logged on every failed attempt; only the retryable/fatal split changes
// behavior.
type ErrorClass string

const (
	ErrClassDNS         ErrorClass = "dns"
	ErrClassRefused     ErrorClass = "connection_refused"
	ErrClassTimeout     ErrorClass = "timeout"
	ErrClassTLS         ErrorClass = "tls"
	ErrClassNetwork     ErrorClass = "network"
	ErrClassHTTPServer  ErrorClass = "http_5xx"
	ErrClassHTTPClient  ErrorClass = "http_4xx"
	ErrClassApplication ErrorClass = "application"
)

// apiError is a non-2xx reply from an upstream HTTP API.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("upstream API error (status %d): %s", e.StatusCode, e.Body)
}

// Classify maps an outbound call error to the diagnostic taxonomy.
func Classify(err error) ErrorClass {
	var api *apiError
	if errors.As(err, &api) {
		if api.StatusCode >= 500 {
			return ErrClassHTTPServer
		}
		return ErrClassHTTPClient
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrClassDNS
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrClassRefused
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrClassTimeout
	}
	var certErr *tls.CertificateVerificationError
	var hostErr x509.HostnameError
	var authErr x509.UnknownAuthorityError
	if errors.As(err, &certErr) || errors.As(err, &hostErr) || errors.As(err, &authErr) {
		return ErrClassTLS
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrClassNetwork
	}
	return ErrClassApplication
}

// Retryable reports whether another attempt could plausibly succeed:
// 5xx replies and network-level failures, never 4xx.
func Retryable(err error) bool {
	switch Classify(err) {
	case ErrClassHTTPServer, ErrClassDNS, ErrClassRefused, ErrClassTimeout, ErrClassTLS, ErrClassNetwork:
		return true
	}
	return false
}

// IsTimeout reports whether the failure was time-related, for 504 mapping.
func IsTimeout(err error) bool {
	return Classify(err) == ErrClassTimeout
}

// IsConnectivity reports whether the failure never reached the upstream
// application, for 502 mapping.
func IsConnectivity(err error) bool {
	switch Classify(err) {
	case ErrClassDNS, ErrClassRefused, ErrClassTLS, ErrClassNetwork:
		return true
	}
	return false
}

// backoffDelay is 2^attempt seconds scaled by base: 2s, 4s, 8s... for the
// default base of one second.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	return time.Duration(1<<uint(attempt)) * base
}

// doWithRetry runs fn up to maxAttempts times, backing off between attempts.
// Non-retryable errors (4xx and everything that is not a transport failure)
// end the loop immediately; the last error is returned either way.
func doWithRetry(ctx context.Context, label string, maxAttempts int, base time.Duration, fn func() error) error {
	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		last = err

		class := Classify(err)
		log.Printf("[%s] attempt %d/%d failed (%s): %v", label, attempt, maxAttempts, class, err)

		if !Retryable(err) || attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(attempt, base)):
		}
	}
	return last
}
