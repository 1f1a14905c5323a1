package playback

import (
	"context"

	"hls-playback/internal/buffer"
)

// MediaElement is the engine's view of the host's media-element-like object.
// The engine only queries it; play/pause/seek intents arrive on the event
// stream.
type MediaElement interface {
	CurrentTime() float64
	Duration() float64
	Buffered() []buffer.Range
}

// MediaSink is a MediaSource-like collaborator the engine drives but does
// not implement. The engine opens it once and creates one sub-sink per
// present media kind.
type MediaSink interface {
	Open(ctx context.Context) error
	AddSubSink(kind MediaKind, codecs string) (SubSink, error)
	Close() error
}

// SubSink is a SourceBuffer-like append target for one media kind.
type SubSink interface {
	Append(ctx context.Context, data []byte) error
	Remove(ctx context.Context, start, end float64) error
	Buffered() []buffer.Range
}

// TextTrackMode mirrors the host text track's display mode.
type TextTrackMode string

const (
	TextTrackDisabled TextTrackMode = "disabled"
	TextTrackHidden   TextTrackMode = "hidden"
	TextTrackShowing  TextTrackMode = "showing"
)

// TextTrack is a handle to a host-owned text track. Track-mode selection is
// the engine's only responsibility here; rendering stays with the host.
type TextTrack interface {
	SetMode(mode TextTrackMode)
	Mode() TextTrackMode
}
