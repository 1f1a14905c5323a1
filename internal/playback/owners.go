package playback

import "sync"

// OwnersView is a snapshot of the owners registry. Maps are copied on read
// and on patch, so a held view never changes underneath its holder.
type OwnersView struct {
	MediaElement MediaElement
	MediaSink    MediaSink
	SubSinks     map[MediaKind]SubSink
	TextTracks   map[string]TextTrack
}

// Owners is a mutable registry of externally-owned resources: the media
// element and text tracks attached by the host, the sink and sub-sinks
// created by the engine. Unlike the reactive playback document a mutation
// here means a real resource was attached or created, so notification is
// immediate rather than coalesced, and each field has a single writer.
type Owners struct {
	mu     sync.Mutex
	view   OwnersView
	subs   map[int]func(OwnersView)
	nextID int
}

// NewOwners returns an empty registry.
func NewOwners() *Owners {
	return &Owners{subs: make(map[int]func(OwnersView))}
}

// Current returns a snapshot of the registry.
func (o *Owners) Current() OwnersView {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneView(o.view)
}

// Patch applies mutate to a snapshot and installs it, then notifies
// subscribers synchronously.
func (o *Owners) Patch(mutate func(*OwnersView)) {
	o.mu.Lock()
	next := cloneView(o.view)
	mutate(&next)
	o.view = next
	fns := make([]func(OwnersView), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}

// Subscribe registers fn for mutation notification and returns the matching
// unsubscribe function.
func (o *Owners) Subscribe(fn func(OwnersView)) func() {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

func cloneView(v OwnersView) OwnersView {
	out := v
	if v.SubSinks != nil {
		out.SubSinks = make(map[MediaKind]SubSink, len(v.SubSinks))
		for k, s := range v.SubSinks {
			out.SubSinks[k] = s
		}
	}
	if v.TextTracks != nil {
		out.TextTracks = make(map[string]TextTrack, len(v.TextTracks))
		for k, t := range v.TextTracks {
			out.TextTracks[k] = t
		}
	}
	return out
}
