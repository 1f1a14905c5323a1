package playback

import (
	"context"
	"log/slog"
	"sync"

	"hls-playback/internal/reactive"
)

// Resolvable turns state changes into at-most-once asynchronous resolve
// operations. On every emission of its source it evaluates keys: the
// identifiers of every resolve that should currently be in flight. A key
// already running is never started twice, and a running key that the
// snapshot stops asking for is cancelled, so a superseded operation's result
// can never clobber newer state. Failures are caught here, logged and put on
// the error stream; cancellation is suppressed.
type Resolvable[S any] struct {
	name string
	log  *slog.Logger
	errs *reactive.Stream[error]

	parent context.Context
	keys   func(S) []string
	run    func(ctx context.Context, snap S, key string) error

	mu          sync.Mutex
	inflight    map[string]*inflightOp
	closed      bool
	wg          sync.WaitGroup
	unsubscribe func()
}

type inflightOp struct {
	cancel context.CancelFunc
}

// NewResolvable subscribes to source and immediately evaluates its current
// value. run must apply its result through a state patch only after a final
// ctx.Err() check; it is invoked once per needed key, off the notification
// goroutine.
func NewResolvable[S any](
	parent context.Context,
	log *slog.Logger,
	errs *reactive.Stream[error],
	name string,
	source reactive.Source[S],
	keys func(S) []string,
	run func(ctx context.Context, snap S, key string) error,
) *Resolvable[S] {
	r := &Resolvable[S]{
		name:     name,
		log:      log,
		errs:     errs,
		parent:   parent,
		keys:     keys,
		run:      run,
		inflight: make(map[string]*inflightOp),
	}
	r.unsubscribe = source.Subscribe(r.evaluate)
	r.evaluate(source.Current())
	return r
}

// Close cancels everything in flight, detaches from the source, and waits
// for resolve goroutines to finish. Idempotent.
func (r *Resolvable[S]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for key, op := range r.inflight {
		op.cancel()
		delete(r.inflight, key)
	}
	unsub := r.unsubscribe
	r.mu.Unlock()

	unsub()
	r.wg.Wait()
}

func (r *Resolvable[S]) evaluate(snap S) {
	needed := r.keys(snap)
	want := make(map[string]struct{}, len(needed))
	for _, k := range needed {
		want[k] = struct{}{}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	for key, op := range r.inflight {
		if _, still := want[key]; !still {
			op.cancel()
			delete(r.inflight, key)
		}
	}
	for _, key := range needed {
		if _, running := r.inflight[key]; running {
			continue
		}
		ctx, cancel := context.WithCancel(r.parent)
		op := &inflightOp{cancel: cancel}
		r.inflight[key] = op
		r.wg.Add(1)
		go r.resolve(ctx, op, snap, key)
	}
	r.mu.Unlock()
}

func (r *Resolvable[S]) resolve(ctx context.Context, op *inflightOp, snap S, key string) {
	defer r.wg.Done()
	defer op.cancel()

	err := r.run(ctx, snap, key)

	r.mu.Lock()
	// Only clear our own entry: a superseded key may have been deleted and
	// re-added for a newer operation in the meantime.
	if cur, ok := r.inflight[key]; ok && cur == op {
		delete(r.inflight, key)
	}
	r.mu.Unlock()

	switch {
	case err == nil:
	case IsCancelled(err):
		r.log.Debug("resolve superseded or torn down",
			slog.String("resolvable", r.name),
			slog.String("key", key))
	default:
		r.log.Warn("resolve failed",
			slog.String("resolvable", r.name),
			slog.String("key", key),
			slog.String("error", err.Error()))
		if r.errs != nil {
			r.errs.Dispatch(err)
		}
	}
}
