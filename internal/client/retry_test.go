package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(tc.attempt, time.Second); got != tc.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDoWithRetry_RetriesOn5xx(t *testing.T) {
	calls := 0
	err := doWithRetry(context.Background(), "test", 3, time.Millisecond, func() error {
		calls++
		if calls == 1 {
			return &apiError{StatusCode: 503, Body: "unavailable"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", calls)
	}
}

func TestDoWithRetry_NoRetryOn4xx(t *testing.T) {
	calls := 0
	err := doWithRetry(context.Background(), "test", 3, time.Millisecond, func() error {
		calls++
		return &apiError{StatusCode: 401, Body: "unauthorized"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("4xx must not be retried: got %d attempts", calls)
	}
}

func TestDoWithRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := &apiError{StatusCode: 500, Body: "boom"}
	err := doWithRetry(context.Background(), "test", 3, time.Millisecond, func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error to propagate, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestDoWithRetry_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := doWithRetry(ctx, "test", 3, time.Hour, func() error {
		calls++
		return &apiError{StatusCode: 503, Body: "unavailable"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled while backing off, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", calls)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"5xx", &apiError{StatusCode: 502}, ErrClassHTTPServer},
		{"4xx", &apiError{StatusCode: 404}, ErrClassHTTPClient},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.example.com"}, ErrClassDNS},
		{"deadline", context.DeadlineExceeded, ErrClassTimeout},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, ErrClassTimeout},
		{"other net", &net.OpError{Op: "dial", Err: errors.New("reset")}, ErrClassNetwork},
		{"plain", errors.New("bad payload"), ErrClassApplication},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("%s: Classify = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(&apiError{StatusCode: 400}) {
		t.Error("4xx must not be retryable")
	}
	if !Retryable(&apiError{StatusCode: 500}) {
		t.Error("5xx must be retryable")
	}
	if !Retryable(&net.DNSError{Err: "no such host"}) {
		t.Error("dns failure must be retryable")
	}
	if Retryable(errors.New("parse error")) {
		t.Error("application errors must not be retryable")
	}
}
