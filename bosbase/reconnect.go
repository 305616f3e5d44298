package bosbase

import (
	"context"
	"time"
)

// reconnect delays for the push-stream transport, indexed by the number of consecutive failures
func DefaultReconnectSchedule() []time.Duration {
	return []time.Duration{
		200 * time.Millisecond,
		500 * time.Millisecond,
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		5000 * time.Millisecond,
	}
}

// Backoff walks a non-decreasing delay schedule, clamped to the last entry.
// A single entry schedule is a fixed delay.
// Not safe for concurrent use; each supervisor owns one.
type Backoff struct {
	schedule []time.Duration
	attempts int
}

func NewBackoff(schedule []time.Duration) *Backoff {
	if len(schedule) == 0 {
		schedule = DefaultReconnectSchedule()
	}
	return &Backoff{
		schedule: schedule,
	}
}

func NewFixedBackoff(delay time.Duration) *Backoff {
	return NewBackoff([]time.Duration{delay})
}

// returns the delay for the current failure count and advances the count
func (self *Backoff) Next() time.Duration {
	delay := self.schedule[min(self.attempts, len(self.schedule)-1)]
	self.attempts += 1
	return delay
}

// call after a successful open
func (self *Backoff) Reset() {
	self.attempts = 0
}

func (self *Backoff) Attempts() int {
	return self.attempts
}

// waits for the next delay. Returns false if the context is done first.
func (self *Backoff) Wait(ctx context.Context) bool {
	delay := self.Next()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
