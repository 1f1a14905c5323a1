package reactive

import "sync"

// Combined is a derived Source computed from two inputs. It re-emits
// whenever either input emits; orchestrations use it to gate on multiple
// documents at once (e.g. "act only when both state and owners are ready").
type Combined[C any] struct {
	current func() C

	mu     sync.Mutex
	subs   map[int]func(C)
	nextID int

	unsubscribe []func()
	closed      bool
}

// Combine2 derives a Source from a and b through f. Close releases the
// input subscriptions.
func Combine2[A, B, C any](a Source[A], b Source[B], f func(A, B) C) *Combined[C] {
	c := &Combined[C]{
		current: func() C { return f(a.Current(), b.Current()) },
		subs:    make(map[int]func(C)),
	}
	c.unsubscribe = []func(){
		a.Subscribe(func(A) { c.emit() }),
		b.Subscribe(func(B) { c.emit() }),
	}
	return c
}

// Current recomputes the combined value from the inputs' current values.
func (c *Combined[C]) Current() C {
	return c.current()
}

// Subscribe registers fn and returns the matching unsubscribe function.
func (c *Combined[C]) Subscribe(fn func(C)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Close detaches the combined view from its inputs. Subscribers receive no
// further emissions.
func (c *Combined[C]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	for _, fn := range unsub {
		fn()
	}
}

func (c *Combined[C]) emit() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fns := make([]func(C), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	v := c.current()
	for _, fn := range fns {
		fn(v)
	}
}
