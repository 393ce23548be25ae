package util

import (
	"context"
	"time"
)

// Timer is the stoppable subset of *time.Timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type Clock interface {
	NewTimer(d time.Duration) Timer
	Now() time.Time
}

type RealClock struct{}

func (RealClock) NewTimer(d time.Duration) Timer { return realTimer{time.NewTimer(d)} }
func (RealClock) Now() time.Time                 { return time.Now() }

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

// Sleep blocks for d or until ctx is done. The timer is always stopped.
func Sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if clock == nil {
		clock = RealClock{}
	}
	t := clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
