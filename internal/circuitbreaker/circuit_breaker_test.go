package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amp-proto/amp/internal/amperrors"
)

var errTest = errors.New("test error")

func TestCircuitBreakerClosedState(t *testing.T) {
	cb := New(&Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          1 * time.Second,
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := cb.Execute(ctx, func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed, got: %v", cb.GetState())
	}

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected to remain closed below threshold, got: %v", cb.GetState())
	}
}

func TestCircuitBreakerValidationFailuresDoNotTrip(t *testing.T) {
	cb := New(&Config{FailureThreshold: 2, Timeout: time.Second})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error {
			return amperrors.ValidationMsg("bad input")
		})
	}
	if cb.GetState() != StateClosed {
		t.Errorf("validation failures should never trip the breaker, got: %v", cb.GetState())
	}
	if stats := cb.GetStats(); stats.TotalFailures != 0 {
		t.Errorf("expected 0 counted failures for a client-fault kind, got: %d", stats.TotalFailures)
	}
}

func TestCircuitBreakerOpenState(t *testing.T) {
	var stateChanges []string
	cb := New(&Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          100 * time.Millisecond,
		OnStateChange: func(from, to State) {
			stateChanges = append(stateChanges, fmt.Sprintf("%s->%s", from, to))
		},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	}
	if cb.GetState() != StateOpen {
		t.Errorf("expected open, got: %v", cb.GetState())
	}

	err := cb.Execute(ctx, func(ctx context.Context) error { return nil })
	ampErr := amperrors.As(err)
	if ampErr.Kind != amperrors.KindProviderUnavailable {
		t.Errorf("expected a provider-unavailable rejection, got: %v", err)
	}

	if len(stateChanges) != 1 || stateChanges[0] != "closed->open" {
		t.Errorf("expected state change closed->open, got: %v", stateChanges)
	}

	time.Sleep(150 * time.Millisecond)

	err = cb.Execute(ctx, func(ctx context.Context) error { return nil })
	if err != nil {
		t.Errorf("expected probe through in half-open, got: %v", err)
	}
	if cb.GetState() != StateHalfOpen {
		t.Errorf("expected half-open, got: %v", cb.GetState())
	}
}

func TestCircuitBreakerHalfOpenCloses(t *testing.T) {
	cb := New(&Config{
		FailureThreshold:      3,
		SuccessThreshold:      2,
		Timeout:               50 * time.Millisecond,
		MaxConcurrentRequests: 1,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	}
	time.Sleep(100 * time.Millisecond)

	if err := cb.Execute(ctx, func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
	if cb.GetState() != StateHalfOpen {
		t.Errorf("expected half-open, got: %v", cb.GetState())
	}

	if err := cb.Execute(ctx, func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed after successes, got: %v", cb.GetState())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := New(&Config{FailureThreshold: 3, SuccessThreshold: 2, Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	}
	time.Sleep(100 * time.Millisecond)

	_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	if cb.GetState() != StateOpen {
		t.Errorf("expected reopen after half-open failure, got: %v", cb.GetState())
	}
}

func TestCircuitBreakerConcurrentHalfOpenRequests(t *testing.T) {
	cb := New(&Config{
		FailureThreshold:      3,
		SuccessThreshold:      2,
		Timeout:               50 * time.Millisecond,
		MaxConcurrentRequests: 2,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	}
	time.Sleep(100 * time.Millisecond)

	var wg sync.WaitGroup
	var successCount, rejectCount int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := cb.Execute(ctx, func(ctx context.Context) error {
				time.Sleep(20 * time.Millisecond)
				return nil
			})
			switch {
			case err == nil:
				atomic.AddInt32(&successCount, 1)
			case amperrors.As(err).Kind == amperrors.KindProviderUnavailable:
				atomic.AddInt32(&rejectCount, 1)
			default:
				t.Logf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successCount == 0 {
		t.Error("expected at least some successful requests")
	}
	if successCount+rejectCount != 5 {
		t.Errorf("expected 5 total outcomes, got: %d", successCount+rejectCount)
	}
}

func TestCircuitBreakerStats(t *testing.T) {
	cb := New(&Config{FailureThreshold: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error { return nil })
	}
	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	}

	stats := cb.GetStats()
	if stats.TotalRequests != 5 {
		t.Errorf("expected 5 total requests, got: %d", stats.TotalRequests)
	}
	if stats.TotalSuccesses != 3 {
		t.Errorf("expected 3 successes, got: %d", stats.TotalSuccesses)
	}
	if stats.TotalFailures != 2 {
		t.Errorf("expected 2 failures, got: %d", stats.TotalFailures)
	}
	if stats.FailureRate != 0.4 {
		t.Errorf("expected failure rate 0.4, got: %f", stats.FailureRate)
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := New(&Config{FailureThreshold: 1})
	ctx := context.Background()

	_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	if cb.GetState() != StateOpen {
		t.Error("expected circuit to be open")
	}

	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Error("expected circuit to be closed after reset")
	}

	if err := cb.Execute(ctx, func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("expected no error after reset, got: %v", err)
	}
}

func TestCircuitBreakerRaceConditions(t *testing.T) {
	cb := New(&Config{FailureThreshold: 10, SuccessThreshold: 5, Timeout: 10 * time.Millisecond})
	ctx := context.Background()
	done := make(chan bool)

	go func() {
		for i := 0; i < 100; i++ {
			_ = cb.Execute(ctx, func(ctx context.Context) error {
				if i%3 == 0 {
					return errTest
				}
				return nil
			})
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = cb.GetStats()
			_ = cb.GetState()
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 10; i++ {
			time.Sleep(15 * time.Millisecond)
			if cb.GetState() == StateOpen {
				time.Sleep(15 * time.Millisecond)
			}
		}
		done <- true
	}()

	for i := 0; i < 3; i++ {
		<-done
	}

	state := cb.GetState()
	if state != StateClosed && state != StateOpen && state != StateHalfOpen {
		t.Errorf("invalid state after race test: %v", state)
	}
}
