package reactive

import "sync"

// Stream dispatches discrete events to any number of listeners. It models
// intents (a play request, a position update) as opposed to State, which
// models a continuous document; events are delivered synchronously and are
// never coalesced.
type Stream[T any] struct {
	mu     sync.Mutex
	subs   map[int]func(T)
	nextID int
}

// NewStream returns an empty event stream.
func NewStream[T any]() *Stream[T] {
	return &Stream[T]{subs: make(map[int]func(T))}
}

// Subscribe registers fn and returns the matching unsubscribe function.
func (s *Stream[T]) Subscribe(fn func(T)) func() {
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

// Dispatch delivers ev to every listener registered at dispatch time.
func (s *Stream[T]) Dispatch(ev T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
