package playback

import (
	"context"
	"log/slog"

	"hls-playback/internal/reactive"
)

// sinkGate is the combined snapshot sink setup reacts to: the playback
// document for readiness and the owners registry for the media element and
// any host-attached sink.
type sinkGate struct {
	state  State
	owners OwnersView
}

// wireSinkSetup opens the media sink and creates one sub-sink per present
// media kind once a media element is attached and at least one selected
// track has resolved. Setup runs at most once per engine: after it
// completes, the owners registry carries a non-nil sub-sink map and the
// readiness predicate goes quiet.
func (e *Engine) wireSinkSetup() closer {
	gate := reactive.Combine2[State, OwnersView, sinkGate](e.state, e.owners,
		func(s State, o OwnersView) sinkGate { return sinkGate{state: s, owners: o} })
	e.combined = append(e.combined, gate)

	keys := func(g sinkGate) []string {
		if g.owners.SubSinks != nil {
			return nil
		}
		if g.owners.MediaElement == nil {
			return nil
		}
		if g.owners.MediaSink == nil && e.sinkFactory == nil {
			return nil
		}
		p := g.state.Presentation
		if p == nil || p.Status != StatusResolved {
			return nil
		}
		// Wait until every selected track is terminal so the sub-sink set
		// is decided in one pass; setup never runs twice.
		ready := false
		for _, kind := range []MediaKind{KindVideo, KindAudio} {
			id := g.state.SelectedTrackID(kind)
			if id == "" {
				continue
			}
			t := p.FindTrack(id)
			if t == nil {
				continue
			}
			switch t.Status {
			case StatusResolved:
				ready = true
			case StatusErrored:
			default:
				return nil
			}
		}
		if !ready {
			return nil
		}
		return []string{"sink"}
	}
	return NewResolvable[sinkGate](e.ctx, e.log, e.errs, "sink", gate, keys, e.setupSink)
}

func (e *Engine) setupSink(ctx context.Context, snap sinkGate, _ string) error {
	sink := snap.owners.MediaSink
	created := false
	if sink == nil {
		sink = e.sinkFactory()
		created = true
	}

	if err := sink.Open(ctx); err != nil {
		if created {
			_ = sink.Close()
		}
		return err
	}

	subs := make(map[MediaKind]SubSink)
	for _, kind := range []MediaKind{KindVideo, KindAudio} {
		t := selectedResolvedTrack(snap.state, kind)
		if t == nil {
			continue
		}
		sub, err := sink.AddSubSink(kind, t.Codecs)
		if err != nil {
			// One rejected kind does not fail setup; playback continues
			// with whatever the sink accepted.
			merr := &UnsupportedMediaError{Kind: kind, Codecs: t.Codecs, Err: err}
			e.log.Warn("sub-sink rejected",
				slog.String("kind", string(kind)),
				slog.String("codecs", t.Codecs),
				slog.String("error", err.Error()))
			e.errs.Dispatch(merr)
			continue
		}
		subs[kind] = sub
	}

	if err := ctx.Err(); err != nil {
		if created {
			_ = sink.Close()
		}
		return err
	}

	e.owners.Patch(func(v *OwnersView) {
		v.MediaSink = sink
		v.SubSinks = subs
	})
	e.log.Info("media sink ready", slog.Int("sub_sinks", len(subs)))
	return nil
}

// selectedResolvedTrack returns the selected track of the given kind if its
// playlist has resolved, else nil.
func selectedResolvedTrack(s State, kind MediaKind) *Track {
	p := s.Presentation
	if p == nil {
		return nil
	}
	id := s.SelectedTrackID(kind)
	if id == "" {
		return nil
	}
	t := p.FindTrack(id)
	if t == nil || t.Status != StatusResolved {
		return nil
	}
	return t
}
