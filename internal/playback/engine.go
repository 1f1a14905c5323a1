package playback

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"hls-playback/internal/abr"
	"hls-playback/internal/buffer"
	"hls-playback/internal/platform/logger"
	"hls-playback/internal/platform/metrics"
	"hls-playback/internal/playlist"
	"hls-playback/internal/reactive"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultInitialBandwidth    = 1_000_000 // bits/s; conservative first pick
	DefaultForwardBufferTarget = 30.0      // seconds
	DefaultBackBufferKeep      = 30.0      // seconds
)

// Config carries the engine's tunables. The zero value is usable; defaults
// are applied at construction.
type Config struct {
	// InitialBandwidth seeds the estimate before any sample exists (bits/s).
	InitialBandwidth float64
	// PreferredAudioLanguage breaks ties in the initial audio selection.
	PreferredAudioLanguage string
	// SafetyFactor scales the bandwidth estimate during selection; <= 0
	// means abr.DefaultSafetyFactor.
	SafetyFactor float64
	// MaxHeight caps the selected video resolution; 0 means no cap.
	MaxHeight int
	// ForwardBufferTarget is how far ahead of the playhead to buffer, in
	// seconds.
	ForwardBufferTarget float64
	// BackBuffer controls eviction behind the playhead. A negative
	// KeepBehind disables eviction.
	BackBuffer buffer.BackBufferPolicy
	// ResolveAll resolves every track's playlist instead of only the
	// selected one per switching set.
	ResolveAll bool
}

func (c Config) withDefaults() Config {
	if c.InitialBandwidth <= 0 {
		c.InitialBandwidth = DefaultInitialBandwidth
	}
	if c.ForwardBufferTarget <= 0 {
		c.ForwardBufferTarget = DefaultForwardBufferTarget
	}
	if c.BackBuffer.KeepBehind == 0 {
		c.BackBuffer.KeepBehind = DefaultBackBufferKeep
	}
	return c
}

func (c Config) selector() abr.SelectorConfig {
	return abr.SelectorConfig{SafetyFactor: c.SafetyFactor, MaxHeight: c.MaxHeight}
}

// Option customizes an Engine at construction.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithFetcher replaces the HTTP fetch primitive; tests supply fakes.
func WithFetcher(f Fetcher) Option {
	return func(e *Engine) { e.fetch = f }
}

// WithScheduler replaces the notification scheduler; tests supply a
// reactive.ManualScheduler for deterministic stepping. The caller owns the
// supplied scheduler's lifecycle.
func WithScheduler(s reactive.Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithMetrics attaches Prometheus metrics; nil disables recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.met = m }
}

// WithSinkFactory supplies the constructor for the media sink. Without a
// factory the host must attach a sink through the owners registry before
// sink setup can run.
func WithSinkFactory(f func() MediaSink) Option {
	return func(e *Engine) { e.sinkFactory = f }
}

type closer interface{ Close() }

// Engine is the playback composition root. It owns the reactive playback
// document, the owners registry and the event stream, and wires every
// orchestration at construction. The only public mutation surface is
// State().Patch, Owners().Patch and Events().Dispatch; orchestrations never
// call one another, so stage ordering is purely a function of data
// availability.
type Engine struct {
	cfg   Config
	log   *slog.Logger
	met   *metrics.Metrics
	fetch Fetcher

	sinkFactory func() MediaSink

	sched reactive.Scheduler
	loop  *reactive.LoopScheduler // set when the engine owns its scheduler

	ctx    context.Context
	cancel context.CancelFunc

	state    *reactive.State[State]
	owners   *Owners
	events   *reactive.Stream[Event]
	errs     *reactive.Stream[error]
	bw       *reactive.State[abr.State]
	position *reactive.State[float64]

	resolvables []closer
	combined    []closer
	unsubs      []func()

	initMu sync.Mutex
	inits  map[MediaKind]string // init segment URI appended, per kind

	destroyOnce sync.Once
	destroyed   atomic.Bool
}

// New constructs an engine and wires all orchestrations. The engine does
// nothing until a source is loaded.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:   cfg.withDefaults(),
		log:   logger.Nop(),
		fetch: NewHTTPFetcher(""),
		inits: make(map[MediaKind]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sched == nil {
		e.loop = reactive.NewLoopScheduler()
		e.sched = e.loop
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.state = reactive.NewState[State](e.sched, State{Preload: PreloadAuto})
	e.owners = NewOwners()
	e.events = reactive.NewStream[Event]()
	e.errs = reactive.NewStream[error]()
	e.bw = reactive.NewState[abr.State](e.sched, abr.State{})
	e.position = reactive.NewState[float64](e.sched, 0)

	e.wireEvents()
	e.wireInitialSelection()
	e.wireAdaptation()
	e.wireTextTrackModes()
	e.resolvables = append(e.resolvables,
		e.wirePresentationResolution(),
		e.wireTrackResolution(),
		e.wireSinkSetup(),
		e.wireSegmentLoading(),
	)

	e.met.EngineStarted()
	return e
}

// State returns the reactive playback document.
func (e *Engine) State() *reactive.State[State] { return e.state }

// Owners returns the registry of externally-owned resources.
func (e *Engine) Owners() *Owners { return e.owners }

// Events returns the engine's intent stream.
func (e *Engine) Events() *reactive.Stream[Event] { return e.events }

// Errors returns the stream of non-fatal and fatal playback errors.
// Cancelled operations are never reported here.
func (e *Engine) Errors() *reactive.Stream[error] { return e.errs }

// Bandwidth returns the current bandwidth estimator snapshot.
func (e *Engine) Bandwidth() abr.State { return e.bw.Current() }

// Load points the engine at a new source. Preload "" means PreloadAuto.
func (e *Engine) Load(url string, preload PreloadPolicy) error {
	if e.destroyed.Load() {
		return ErrDestroyed
	}
	if preload == "" {
		preload = PreloadAuto
	}
	e.state.Patch(func(s *State) {
		s.Presentation = &Presentation{ID: url, URL: url, Status: StatusUnresolved}
		s.Preload = preload
		s.SelectedVideoTrackID = ""
		s.SelectedAudioTrackID = ""
		s.SelectedTextTrackID = ""
		s.PlayRequested = false
	})
	return nil
}

// Play dispatches a play intent, unlatching PreloadNone sources.
func (e *Engine) Play() error {
	if e.destroyed.Load() {
		return ErrDestroyed
	}
	e.events.Dispatch(Event{Type: EventPlay})
	return nil
}

// AttachMedia hands the engine the host's media element.
func (e *Engine) AttachMedia(el MediaElement) error {
	if e.destroyed.Load() {
		return ErrDestroyed
	}
	e.owners.Patch(func(v *OwnersView) { v.MediaElement = el })
	return nil
}

// Destroy tears the engine down: cancels in-flight work, detaches every
// subscription, closes the sink, and stops the engine-owned scheduler.
// Idempotent.
func (e *Engine) Destroy() {
	e.destroyOnce.Do(func() {
		e.destroyed.Store(true)
		e.cancel()
		for _, r := range e.resolvables {
			r.Close()
		}
		for _, c := range e.combined {
			c.Close()
		}
		for _, unsub := range e.unsubs {
			unsub()
		}
		if sink := e.owners.Current().MediaSink; sink != nil {
			_ = sink.Close()
		}
		if e.loop != nil {
			e.loop.Stop()
		}
		e.met.EngineStopped()
		e.log.Info("engine destroyed")
	})
}

// wireEvents translates discrete intents into document patches.
func (e *Engine) wireEvents() {
	unsub := e.events.Subscribe(func(ev Event) {
		switch ev.Type {
		case EventPlay:
			e.state.Patch(func(s *State) { s.PlayRequested = true })
		case EventTimeUpdate:
			e.position.Patch(func(p *float64) { *p = ev.Position })
		}
	})
	e.unsubs = append(e.unsubs, unsub)
}

// resolutionAdmitted reports whether the preload policy allows resolving
// playlists right now.
func resolutionAdmitted(s State) bool {
	if s.Preload == PreloadNone {
		return s.PlayRequested
	}
	return true
}

// segmentLoadingAdmitted reports whether segment bytes may be fetched:
// metadata preload resolves playlists but defers media data to play intent.
func segmentLoadingAdmitted(s State) bool {
	return s.Preload == PreloadAuto || s.PlayRequested
}

// fetchText fetches a playlist body, recording fetch metrics.
func (e *Engine) fetchText(ctx context.Context, url string) (string, error) {
	e.met.IncFetches()
	text, err := e.fetch.FetchText(ctx, url)
	if err != nil {
		if !IsCancelled(err) {
			e.met.IncFetchErrors()
		}
		return "", err
	}
	return text, nil
}

// fetchBytes fetches media bytes, feeding the bandwidth estimator and fetch
// metrics.
func (e *Engine) fetchBytes(ctx context.Context, url string, br *playlist.ByteRange) ([]byte, error) {
	e.met.IncFetches()
	start := time.Now()
	data, err := e.fetch.FetchBytes(ctx, url, br)
	if err != nil {
		if !IsCancelled(err) {
			e.met.IncFetchErrors()
		}
		return nil, err
	}
	elapsed := time.Since(start)
	e.bw.Patch(func(s *abr.State) { *s = abr.Sample(*s, elapsed, int64(len(data))) })
	e.met.AddBytesFetched(int64(len(data)))
	return data, nil
}

func (e *Engine) initAppended(kind MediaKind) string {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	return e.inits[kind]
}

func (e *Engine) setInitAppended(kind MediaKind, uri string) {
	e.initMu.Lock()
	e.inits[kind] = uri
	e.initMu.Unlock()
}
