package session

import (
	"context"
	"sync"
	"time"
)

// Deadline is the single timestamp shared by a read loop and its watchdog.
// It only moves forward.
type Deadline struct {
	mu  sync.Mutex
	at  time.Time
	now func() time.Time
}

func NewDeadline() *Deadline {
	return &Deadline{now: time.Now}
}

// NewDeadlineWithClock is NewDeadline with an injected clock.
func NewDeadlineWithClock(now func() time.Time) *Deadline {
	return &Deadline{now: now}
}

// Extend moves the deadline to now+d unless it is already later.
func (d *Deadline) Extend(dur time.Duration) time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	if next := d.now().Add(dur); next.After(d.at) {
		d.at = next
	}
	return d.at
}

func (d *Deadline) At() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.at
}

// Remaining is the time left before expiry; zero or negative once passed.
func (d *Deadline) Remaining() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.at.Sub(d.now())
}

// Watchdog blocks until d passes without being extended, then calls onExpire
// and returns ErrWatchdogExpired. Each wake-up re-arms the timer to the latest
// deadline. A canceled ctx stops the watchdog without calling onExpire.
func Watchdog(ctx context.Context, d *Deadline, onExpire func()) error {
	timer := time.NewTimer(max(d.Remaining(), 0))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		remaining := d.Remaining()
		if remaining <= 0 {
			if onExpire != nil {
				onExpire()
			}
			return ErrWatchdogExpired
		}
		timer.Reset(remaining)
	}
}
