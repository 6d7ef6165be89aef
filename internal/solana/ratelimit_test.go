package solana

import (
	"context"
	"testing"
	"time"
)

func TestAdaptiveLimiter_Throttle(t *testing.T) {
	l := NewAdaptiveLimiter(10)

	if got := l.Rate(); got != 10 {
		t.Fatalf("expected initial rate 10, got %f", got)
	}

	l.OnThrottle()
	if got := l.Rate(); got != 5 {
		t.Errorf("expected rate 5 after throttle, got %f", got)
	}

	l.OnThrottle()
	if got := l.Rate(); got != 2.5 {
		t.Errorf("expected rate 2.5 after second throttle, got %f", got)
	}
}

func TestAdaptiveLimiter_Floor(t *testing.T) {
	l := NewAdaptiveLimiter(1)

	for i := 0; i < 20; i++ {
		l.OnThrottle()
	}

	if got := l.Rate(); got < minRequestsPerSec {
		t.Errorf("rate %f fell below floor %f", got, minRequestsPerSec)
	}
}

func TestAdaptiveLimiter_NoRecoveryWhileThrottling(t *testing.T) {
	l := NewAdaptiveLimiter(10)
	l.OnThrottle()

	// Throttle was just now, recovery must not kick in yet.
	l.OnSuccess()
	if got := l.Rate(); got != 5 {
		t.Errorf("expected rate to stay at 5, got %f", got)
	}
}

func TestAdaptiveLimiter_RecoveryAfterQuietPeriod(t *testing.T) {
	l := NewAdaptiveLimiter(10)
	l.OnThrottle()
	l.lastThrottle = time.Now().Add(-recoveryClearTime - time.Second)

	l.OnSuccess()
	got := l.Rate()
	if got < 5.49 || got > 5.51 {
		t.Errorf("expected rate ~5.5 after recovery step, got %f", got)
	}
}

func TestAdaptiveLimiter_RecoveryCappedAtConfigured(t *testing.T) {
	l := NewAdaptiveLimiter(10)
	l.OnThrottle()
	l.lastThrottle = time.Now().Add(-recoveryClearTime - time.Second)

	for i := 0; i < 50; i++ {
		l.OnSuccess()
	}

	if got := l.Rate(); got != 10 {
		t.Errorf("expected rate capped at 10, got %f", got)
	}
}

func TestAdaptiveLimiter_SuccessAtConfiguredIsNoop(t *testing.T) {
	l := NewAdaptiveLimiter(4)
	l.OnSuccess()
	if got := l.Rate(); got != 4 {
		t.Errorf("expected rate to stay at 4, got %f", got)
	}
}

func TestAdaptiveLimiter_WaitCancelled(t *testing.T) {
	l := NewAdaptiveLimiter(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Drain the single burst token first so Wait would have to block.
	l.Wait(context.Background())

	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
