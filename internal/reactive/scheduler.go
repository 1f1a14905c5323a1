package reactive

import "sync"

// Scheduler defers work until the current turn of activity has finished.
// State containers use it to coalesce notifications: however many patches
// land within one turn, subscribers hear about the merged result once.
type Scheduler interface {
	Defer(fn func())
}

// LoopScheduler runs deferred work on a single goroutine in submission
// order. It is the production scheduler; every notification the engine
// delivers goes through this loop, so subscribers never run concurrently
// with each other.
type LoopScheduler struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
	idle *sync.Cond
	busy bool
}

// NewLoopScheduler starts the scheduler goroutine.
func NewLoopScheduler() *LoopScheduler {
	l := &LoopScheduler{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	l.idle = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Defer queues fn to run on the scheduler goroutine. After Stop it is a no-op.
func (l *LoopScheduler) Defer(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Stop shuts the scheduler down. Queued work that has not started is
// dropped. Stop is idempotent and waits for an in-flight batch to finish.
func (l *LoopScheduler) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.queue = nil
	for l.busy {
		l.idle.Wait()
	}
	l.mu.Unlock()
	close(l.done)
}

func (l *LoopScheduler) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
			l.drain()
		}
	}
}

func (l *LoopScheduler) drain() {
	for {
		l.mu.Lock()
		if l.stopped || len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.queue
		l.queue = nil
		l.busy = true
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
		}

		l.mu.Lock()
		l.busy = false
		l.idle.Broadcast()
		l.mu.Unlock()
	}
}

// ManualScheduler queues deferred work until Flush is called. Tests use it
// to step the reactive graph deterministically.
type ManualScheduler struct {
	mu    sync.Mutex
	queue []func()
}

// NewManualScheduler returns an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Defer queues fn for the next Flush.
func (m *ManualScheduler) Defer(fn func()) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

// Flush runs deferred work until the queue is empty, including work deferred
// by the callbacks themselves.
func (m *ManualScheduler) Flush() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		batch := m.queue
		m.queue = nil
		m.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

// Pending reports whether any deferred work is waiting for a Flush.
func (m *ManualScheduler) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) > 0
}
