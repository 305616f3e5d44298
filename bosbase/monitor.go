package bosbase

import (
	"context"
	"sync"
	"time"
)

// a level-triggered flag that goroutines can wait on.
// Set closes the current channel, Clear replaces it with a new open channel.
type monitor struct {
	stateLock sync.Mutex
	set       bool
	update    chan struct{}
}

func newMonitor() *monitor {
	return &monitor{
		update: make(chan struct{}),
	}
}

func (self *monitor) Set() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if !self.set {
		self.set = true
		close(self.update)
	}
}

func (self *monitor) Clear() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.set {
		self.set = false
		self.update = make(chan struct{})
	}
}

func (self *monitor) IsSet() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.set
}

// the returned channel is closed when the flag is set
func (self *monitor) NotifyChannel() <-chan struct{} {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.update
}

// returns true if the flag was set within the timeout
func (self *monitor) Wait(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-self.NotifyChannel():
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return self.IsSet()
	}
}
