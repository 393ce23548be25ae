package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSleepReturnsAfterTimer(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), RealClock{}, 5*time.Millisecond); err != nil {
		t.Fatalf("Sleep error = %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Errorf("Sleep returned early")
	}
}

func TestSleepHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, RealClock{}, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep error = %v, want context.Canceled", err)
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
}
