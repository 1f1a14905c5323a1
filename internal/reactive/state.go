package reactive

import "sync"

// Source is anything with a readable current value and change subscription:
// state containers, combined views, and the owners registry all satisfy it.
type Source[T any] interface {
	Current() T
	Subscribe(fn func(T)) (unsubscribe func())
}

// State is a mutable document with coalesced change notification. The
// current value is always readable synchronously; subscribers are notified
// at most once per scheduler turn, after every patch of that turn has been
// merged, so they never observe a torn intermediate value.
type State[T any] struct {
	sched Scheduler

	mu      sync.Mutex
	current T
	subs    map[int]func(T)
	nextID  int
	pending bool
}

// NewState returns a state container seeded with initial.
func NewState[T any](sched Scheduler, initial T) *State[T] {
	return &State[T]{
		sched:   sched,
		current: initial,
		subs:    make(map[int]func(T)),
	}
}

// Current returns the latest merged value.
func (s *State[T]) Current() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Patch applies mutate to a copy of the current document and installs the
// result immediately. The mutator must treat nested pointers as shared:
// replace them, never write through them.
func (s *State[T]) Patch(mutate func(*T)) {
	s.mu.Lock()
	next := s.current
	mutate(&next)
	s.current = next
	schedule := !s.pending
	s.pending = true
	s.mu.Unlock()

	if schedule {
		s.sched.Defer(s.notify)
	}
}

// Subscribe registers fn for change notification and returns the matching
// unsubscribe function. fn is not called with the current value at
// subscription time.
func (s *State[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *State[T]) notify() {
	s.mu.Lock()
	s.pending = false
	v := s.current
	fns := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
