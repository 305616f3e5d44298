package bosbase

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (self ConnectionState) String() string {
	switch self {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// runs one connection loop per transport and owns its lifecycle.
//
// The loop is started on demand and exits when it is stopped or when a session ends
// while there are no subscriptions left. The exit decision and a restart are ordered
// under `runLock`, so a subscribe racing with the exit always ends up with a running loop.
type supervisor struct {
	ctx context.Context
	tag string

	// true if the loop must not start another session
	stopped *atomic.Bool

	runLock   sync.Mutex
	runCancel context.CancelFunc
	runDone   chan struct{}

	stateLock sync.Mutex
	state     ConnectionState
	sessionId string

	// set while a session is established
	ready *monitor

	idle func() bool
	run  func(ctx context.Context)
}

func newSupervisor(ctx context.Context, tag string, idle func() bool, run func(ctx context.Context)) *supervisor {
	return &supervisor{
		ctx:     ctx,
		tag:     tag,
		stopped: atomic.NewBool(true),
		state:   StateDisconnected,
		ready:   newMonitor(),
		idle:    idle,
		run:     run,
	}
}

// starts the loop if it is not running.
// If a previous loop is stopping, waits for it to exit first.
func (self *supervisor) ensureRunning() {
	for {
		done, start := func() (chan struct{}, bool) {
			self.runLock.Lock()
			defer self.runLock.Unlock()

			if self.runDone != nil {
				select {
				case <-self.runDone:
				default:
					if !self.stopped.Load() {
						// running
						return nil, false
					}
					return self.runDone, false
				}
			}

			self.stopped.Store(false)
			runCtx, runCancel := context.WithCancel(self.ctx)
			runDone := make(chan struct{})
			self.runCancel = runCancel
			self.runDone = runDone
			go self.loop(runCtx, runCancel, runDone)
			return nil, true
		}()
		if start || done == nil {
			return
		}
		<-done
	}
}

func (self *supervisor) loop(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()
	defer func() {
		self.disconnected()

		self.runLock.Lock()
		defer self.runLock.Unlock()
		self.stopped.Store(true)
	}()

	LogFn(LogLevelLifecycle, self.tag)("loop start")
	self.run(ctx)
	LogFn(LogLevelLifecycle, self.tag)("loop exit")
}

// called by the loop after each session.
// Returns true if the loop should exit, in which case the loop is marked stopped.
func (self *supervisor) shouldExit() bool {
	self.runLock.Lock()
	defer self.runLock.Unlock()

	if self.stopped.Load() {
		return true
	}
	if self.idle() {
		self.stopped.Store(true)
		return true
	}
	return false
}

func (self *supervisor) isStopped() bool {
	return self.stopped.Load()
}

// signals the loop to stop if there is nothing left to serve. Does not wait for the exit.
// This is safe to call from a listener callback, which runs on the loop goroutine.
func (self *supervisor) stopIfIdle() {
	cancel := func() context.CancelFunc {
		self.runLock.Lock()
		defer self.runLock.Unlock()

		if !self.idle() {
			return nil
		}
		self.stopped.Store(true)
		return self.runCancel
	}()
	if cancel != nil {
		cancel()
	}
}

// stops the loop and waits for it to exit. Idempotent.
// Must not be called from a listener callback.
func (self *supervisor) stop() {
	cancel, done := func() (context.CancelFunc, chan struct{}) {
		self.runLock.Lock()
		defer self.runLock.Unlock()

		self.stopped.Store(true)
		return self.runCancel, self.runDone
	}()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	self.disconnected()
}

func (self *supervisor) connecting() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.state = StateConnecting
	self.sessionId = ""
}

func (self *supervisor) connected(sessionId string) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.state = StateConnected
		self.sessionId = sessionId
	}()
	self.ready.Set()
}

func (self *supervisor) disconnected() {
	self.ready.Clear()

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.state = StateDisconnected
	self.sessionId = ""
}

func (self *supervisor) State() ConnectionState {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.state
}

func (self *supervisor) SessionId() string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.sessionId
}
