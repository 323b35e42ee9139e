package monitor

import (
	"context"
	"time"

	"k8s.io/utils/clock"
)

type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, in which case it returns the context error.
	Sleep(ctx context.Context, d time.Duration) error
}

var RealClock = FromClock(clock.RealClock{})

// FromClock adapts a k8s.io/utils clock, such as the fake clock from k8s.io/utils/clock/testing.
func FromClock(c clock.Clock) Clock {
	return contextClock{clock: c}
}

type contextClock struct {
	clock clock.Clock
}

func (c contextClock) Now() time.Time { return c.clock.Now() }

func (c contextClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}
