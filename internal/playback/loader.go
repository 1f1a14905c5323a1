package playback

import (
	"context"
	"fmt"
	"log/slog"

	"hls-playback/internal/buffer"
	"hls-playback/internal/playlist"
	"hls-playback/internal/reactive"
)

// loaderView is the combined snapshot segment loading reacts to: the
// playback document, the owners registry, and the playhead position.
type loaderView struct {
	state    State
	owners   OwnersView
	position float64
}

type stateOwners struct {
	state  State
	owners OwnersView
}

// wireSegmentLoading fetches and appends media segments. Per kind, only the
// first segment missing from the forward buffer is ever in flight; when it
// lands, the loader nudges itself to plan the next one. Switching renditions
// or seeking changes the wanted key, which cancels the stale fetch.
func (e *Engine) wireSegmentLoading() closer {
	so := reactive.Combine2[State, OwnersView, stateOwners](e.state, e.owners,
		func(s State, o OwnersView) stateOwners { return stateOwners{state: s, owners: o} })
	view := reactive.Combine2[stateOwners, float64, loaderView](so, e.position,
		func(so stateOwners, pos float64) loaderView {
			return loaderView{state: so.state, owners: so.owners, position: pos}
		})
	e.combined = append(e.combined, so, view)

	keys := func(v loaderView) []string {
		if !segmentLoadingAdmitted(v.state) {
			return nil
		}
		var out []string
		for _, kind := range []MediaKind{KindVideo, KindAudio} {
			if seg, ok := e.nextSegment(v, kind); ok {
				out = append(out, segmentKey(kind, seg))
			}
		}
		return out
	}
	return NewResolvable[loaderView](e.ctx, e.log, e.errs, "segments", view, keys, e.loadSegment)
}

// nextSegment plans the single next segment to load for one kind: the first
// entry of the selected track's playlist that the sub-sink's buffered ranges
// do not cover within the forward buffer window.
func (e *Engine) nextSegment(v loaderView, kind MediaKind) (playlist.Segment, bool) {
	sub := v.owners.SubSinks[kind]
	if sub == nil {
		return playlist.Segment{}, false
	}
	t := selectedResolvedTrack(v.state, kind)
	if t == nil || t.Playlist == nil {
		return playlist.Segment{}, false
	}
	plan := buffer.SegmentsToLoad(sub.Buffered(), v.position, e.cfg.ForwardBufferTarget, t.Playlist.Segments)
	if len(plan) == 0 {
		return playlist.Segment{}, false
	}
	return plan[0], true
}

// segmentKey identifies one fetch: byte-range resources share a URI, so the
// offset is part of the identity.
func segmentKey(kind MediaKind, seg playlist.Segment) string {
	offset := int64(-1)
	if seg.ByteRange != nil {
		offset = seg.ByteRange.Offset
	}
	return fmt.Sprintf("%s|%s|%d", kind, seg.URI, offset)
}

func (e *Engine) loadSegment(ctx context.Context, snap loaderView, key string) error {
	kind, seg, ok := e.segmentForKey(snap, key)
	if !ok {
		return nil
	}
	sub := snap.owners.SubSinks[kind]
	t := selectedResolvedTrack(snap.state, kind)

	if init := t.Playlist.Init; init != nil && e.initAppended(kind) != init.URI {
		data, err := e.fetchBytes(ctx, init.URI, init.ByteRange)
		if err != nil {
			return err
		}
		if err := sub.Append(ctx, data); err != nil {
			return err
		}
		e.setInitAppended(kind, init.URI)
	}

	data, err := e.fetchBytes(ctx, seg.URI, seg.ByteRange)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sub.Append(ctx, data); err != nil {
		return err
	}
	e.met.IncSegmentsAppended()
	e.log.Debug("segment appended",
		slog.String("kind", string(kind)),
		slog.String("uri", seg.URI),
		slog.Int64("sequence", seg.Sequence),
		slog.Int("bytes", len(data)))

	if point, ok := buffer.FlushPoint(sub.Buffered(), snap.position, e.cfg.BackBuffer); ok {
		if err := sub.Remove(ctx, 0, point); err != nil && !IsCancelled(err) {
			e.log.Warn("back buffer flush failed",
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()))
		}
	}

	// The sub-sink's buffered ranges are not reactive, so a completed append
	// re-triggers planning by hand.
	e.nudgeLoader()
	return nil
}

// segmentForKey re-derives the planned segment from the snapshot and checks
// it still matches the key the operation was started for.
func (e *Engine) segmentForKey(snap loaderView, key string) (MediaKind, playlist.Segment, bool) {
	for _, kind := range []MediaKind{KindVideo, KindAudio} {
		seg, ok := e.nextSegment(snap, kind)
		if ok && segmentKey(kind, seg) == key {
			return kind, seg, true
		}
	}
	return "", playlist.Segment{}, false
}

func (e *Engine) nudgeLoader() {
	e.position.Patch(func(*float64) {})
}
