package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, time.Minute)

	if cb.GetState() != CircuitClosed {
		t.Fatalf("initial state = %s, want CLOSED", cb.GetState())
	}

	for i := 0; i < 3; i++ {
		if err := cb.Allow(); err != nil {
			t.Fatalf("allow before threshold failed: %v", err)
		}
		cb.RecordFailure()
	}

	if cb.GetState() != CircuitOpen {
		t.Errorf("state after %d failures = %s, want OPEN", 3, cb.GetState())
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("allow on open circuit = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 10*time.Millisecond)

	cb.RecordFailure()
	if cb.GetState() != CircuitOpen {
		t.Fatalf("state = %s, want OPEN", cb.GetState())
	}

	time.Sleep(20 * time.Millisecond)

	// First allow after the open timeout transitions to half-open.
	if err := cb.Allow(); err != nil {
		t.Fatalf("allow after open timeout failed: %v", err)
	}
	if cb.GetState() != CircuitHalfOpen {
		t.Fatalf("state = %s, want HALF_OPEN", cb.GetState())
	}

	cb.RecordSuccess()
	cb.RecordSuccess()
	if cb.GetState() != CircuitClosed {
		t.Errorf("state after success threshold = %s, want CLOSED", cb.GetState())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 10*time.Millisecond)
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("allow failed: %v", err)
	}

	cb.RecordFailure()
	if cb.GetState() != CircuitOpen {
		t.Errorf("state = %s, want OPEN after half-open failure", cb.GetState())
	}
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, 1, time.Minute)
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.GetState() != CircuitClosed {
		t.Errorf("state = %s, want CLOSED (success should reset the count)", cb.GetState())
	}
}

func newTestEnricher(retry RetryConfig) *Enricher {
	e := &Enricher{retry: retry}
	if retry.CircuitBreakerEnabled {
		e.circuitBreaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
	}
	return e
}

func TestRetryWithBackoffEventualSuccess(t *testing.T) {
	e := newTestEnricher(RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Timeout:           time.Second,
	})

	attempts := 0
	err := e.retryWithBackoff(context.Background(), "test-op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("503 service unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryWithBackoffNonRetriableStopsImmediately(t *testing.T) {
	e := newTestEnricher(RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Timeout:           time.Second,
	})

	attempts := 0
	err := e.retryWithBackoff(context.Background(), "test-op", func(context.Context) error {
		attempts++
		return fmt.Errorf("401 unauthorized")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on auth errors)", attempts)
	}
}

func TestRetryWithBackoffExhaustsAttempts(t *testing.T) {
	e := newTestEnricher(RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Timeout:           time.Second,
	})

	attempts := 0
	err := e.retryWithBackoff(context.Background(), "test-op", func(context.Context) error {
		attempts++
		return fmt.Errorf("connection refused")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (initial + 2 retries)", attempts)
	}
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{fmt.Errorf("429 rate limit exceeded"), true},
		{fmt.Errorf("internal server error"), true},
		{fmt.Errorf("connection reset by peer"), true},
		{fmt.Errorf("400 bad request"), false},
		{fmt.Errorf("403 forbidden"), false},
		{fmt.Errorf("something unexpected"), false},
	}

	for _, tt := range tests {
		if got := isRetriableError(tt.err); got != tt.want {
			t.Errorf("isRetriableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
