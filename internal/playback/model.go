// Package playback implements the adaptive playback engine: the reactive
// playback document, the owners registry for externally-owned resources,
// and the resolvable orchestrations that wire fetching, selection and sink
// setup together. Ordering between the stages is never sequenced explicitly;
// it emerges from readiness predicates reading upstream state.
package playback

import (
	"fmt"
	"strings"

	"hls-playback/internal/abr"
	"hls-playback/internal/playlist"
)

// MediaKind identifies a selection set's media type.
type MediaKind string

const (
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
	KindText  MediaKind = "text"
)

// PreloadPolicy controls how eagerly the engine resolves a new source.
type PreloadPolicy string

const (
	// PreloadAuto resolves the presentation, the selected tracks, and
	// segment data as soon as a source URL is set.
	PreloadAuto PreloadPolicy = "auto"
	// PreloadMetadata resolves the presentation and the selected tracks'
	// playlists but fetches no segment bytes until play is requested.
	PreloadMetadata PreloadPolicy = "metadata"
	// PreloadNone fetches nothing until play is requested.
	PreloadNone PreloadPolicy = "none"
)

// ResolveStatus is the explicit lifecycle of a lazily-fetched sub-document.
type ResolveStatus int

const (
	StatusUnresolved ResolveStatus = iota
	StatusResolving
	StatusResolved
	StatusErrored
)

func (s ResolveStatus) String() string {
	switch s {
	case StatusUnresolved:
		return "unresolved"
	case StatusResolving:
		return "resolving"
	case StatusResolved:
		return "resolved"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Presentation is the root description of playable content. It is created
// unresolved when a source URL is patched in and transitions to resolved or
// errored exactly once per URL.
type Presentation struct {
	ID  string
	URL string
	// Duration in seconds; 0 while unknown (live, or not yet resolved).
	Duration      float64
	Status        ResolveStatus
	Err           error
	SelectionSets []SelectionSet
}

// SelectionSet groups switching sets of one media kind.
type SelectionSet struct {
	ID            string
	Kind          MediaKind
	SwitchingSets []SwitchingSet
}

// SwitchingSet holds interchangeable tracks: the same content at different
// encodings (e.g. one audio language across bitrates).
type SwitchingSet struct {
	ID         string
	Language   string
	Label      string
	Default    bool
	AutoSelect bool
	Tracks     []Track
}

// Track is one encoded rendition. Playlist stays nil until the track's own
// playlist has been fetched; Status is the authoritative resolution marker.
type Track struct {
	ID               string
	Kind             MediaKind
	URI              string
	Bandwidth        int64
	AverageBandwidth int64
	Codecs           string
	Width            int
	Height           int
	FrameRate        float64
	Language         string
	Channels         string

	Status   ResolveStatus
	Err      error
	Playlist *playlist.MediaPlaylist
}

// Clone deep-copies the selection-set tree so a patched document never
// shares track slices with earlier snapshots. Parsed playlists are immutable
// and stay shared.
func (p *Presentation) Clone() *Presentation {
	if p == nil {
		return nil
	}
	q := *p
	q.SelectionSets = make([]SelectionSet, len(p.SelectionSets))
	for i, ss := range p.SelectionSets {
		nss := ss
		nss.SwitchingSets = make([]SwitchingSet, len(ss.SwitchingSets))
		for j, sw := range ss.SwitchingSets {
			nsw := sw
			nsw.Tracks = append([]Track(nil), sw.Tracks...)
			nss.SwitchingSets[j] = nsw
		}
		q.SelectionSets[i] = nss
	}
	return &q
}

// FindTrack returns a pointer to the track with the given id, or nil. The
// pointer aliases p; callers mutate only freshly cloned presentations.
func (p *Presentation) FindTrack(id string) *Track {
	if p == nil || id == "" {
		return nil
	}
	for i := range p.SelectionSets {
		for j := range p.SelectionSets[i].SwitchingSets {
			tracks := p.SelectionSets[i].SwitchingSets[j].Tracks
			for k := range tracks {
				if tracks[k].ID == id {
					return &tracks[k]
				}
			}
		}
	}
	return nil
}

// SwitchingSetOf returns a pointer to the switching set containing the
// given track id, or nil.
func (p *Presentation) SwitchingSetOf(trackID string) *SwitchingSet {
	if p == nil || trackID == "" {
		return nil
	}
	for i := range p.SelectionSets {
		for j := range p.SelectionSets[i].SwitchingSets {
			sw := &p.SelectionSets[i].SwitchingSets[j]
			for k := range sw.Tracks {
				if sw.Tracks[k].ID == trackID {
					return sw
				}
			}
		}
	}
	return nil
}

// TracksOfKind returns pointers to every track of the given kind, in
// declaration order.
func (p *Presentation) TracksOfKind(kind MediaKind) []*Track {
	if p == nil {
		return nil
	}
	var out []*Track
	for i := range p.SelectionSets {
		if p.SelectionSets[i].Kind != kind {
			continue
		}
		for j := range p.SelectionSets[i].SwitchingSets {
			tracks := p.SelectionSets[i].SwitchingSets[j].Tracks
			for k := range tracks {
				out = append(out, &tracks[k])
			}
		}
	}
	return out
}

// Kinds returns the media kinds present in the presentation.
func (p *Presentation) Kinds() []MediaKind {
	if p == nil {
		return nil
	}
	kinds := make([]MediaKind, 0, len(p.SelectionSets))
	for _, ss := range p.SelectionSets {
		kinds = append(kinds, ss.Kind)
	}
	return kinds
}

// State is the single reactive playback document.
type State struct {
	Presentation *Presentation
	Preload      PreloadPolicy

	SelectedVideoTrackID string
	SelectedAudioTrackID string
	// SelectedTextTrackID is only ever set by the host, never by the engine.
	SelectedTextTrackID string

	// PlayRequested latches the first play intent; PreloadNone waits on it.
	PlayRequested bool
}

// SelectedTrackID returns the selected track id for the given kind.
func (s State) SelectedTrackID(kind MediaKind) string {
	switch kind {
	case KindVideo:
		return s.SelectedVideoTrackID
	case KindAudio:
		return s.SelectedAudioTrackID
	case KindText:
		return s.SelectedTextTrackID
	default:
		return ""
	}
}

// EventType names a discrete intent dispatched on the engine's event stream.
type EventType string

const (
	EventPlay       EventType = "play"
	EventPause      EventType = "pause"
	EventTimeUpdate EventType = "timeupdate"
)

// Event is one discrete intent. Position is meaningful for EventTimeUpdate.
type Event struct {
	Type     EventType
	Position float64
}

// buildSelectionSets translates a parsed multivariant playlist into the
// presentation's selection-set tree. Variants become the video switching
// set; alternate renditions become audio and text sets grouped by group id
// and language. Renditions without a URI are carried in the variant stream
// itself and cannot be independently resolved, so they are skipped.
func buildSelectionSets(mvp *playlist.MultivariantPlaylist) []SelectionSet {
	var sets []SelectionSet

	if len(mvp.Variants) > 0 {
		sw := SwitchingSet{ID: "main"}
		for i, v := range mvp.Variants {
			sw.Tracks = append(sw.Tracks, Track{
				ID:               fmt.Sprintf("video-%d", i),
				Kind:             KindVideo,
				URI:              v.URI,
				Bandwidth:        v.Bandwidth,
				AverageBandwidth: v.AverageBandwidth,
				Codecs:           v.Codecs,
				Width:            v.Width,
				Height:           v.Height,
				FrameRate:        v.FrameRate,
			})
		}
		sets = append(sets, SelectionSet{ID: "video", Kind: KindVideo, SwitchingSets: []SwitchingSet{sw}})
	}

	if audio := renditionSets(mvp.Renditions, "AUDIO", KindAudio); len(audio) > 0 {
		sets = append(sets, SelectionSet{ID: "audio", Kind: KindAudio, SwitchingSets: audio})
	}
	if text := renditionSets(mvp.Renditions, "SUBTITLES", KindText); len(text) > 0 {
		sets = append(sets, SelectionSet{ID: "text", Kind: KindText, SwitchingSets: text})
	}
	return sets
}

// renditionSets groups alternate renditions of one type into switching sets
// keyed by group id and language.
func renditionSets(rends []playlist.AlternateRendition, typ string, kind MediaKind) []SwitchingSet {
	var sets []SwitchingSet
	index := make(map[string]int)

	for _, r := range rends {
		if r.Type != typ || r.URI == "" {
			continue
		}
		key := r.GroupID + "/" + r.Language
		i, ok := index[key]
		if !ok {
			i = len(sets)
			index[key] = i
			sets = append(sets, SwitchingSet{
				ID:         key,
				Language:   r.Language,
				Label:      r.Name,
				Default:    r.Default,
				AutoSelect: r.AutoSelect,
			})
		}
		sets[i].Tracks = append(sets[i].Tracks, Track{
			ID:       trackID(kind, r.GroupID, r.Name),
			Kind:     kind,
			URI:      r.URI,
			Language: r.Language,
			Channels: r.Channels,
		})
	}
	return sets
}

func trackID(kind MediaKind, group, name string) string {
	clean := func(s string) string {
		return strings.Map(func(r rune) rune {
			if r == '/' || r == ' ' {
				return '-'
			}
			return r
		}, s)
	}
	return fmt.Sprintf("%s-%s-%s", kind, clean(group), clean(name))
}

// candidatesOfKind reduces the presentation's tracks of one kind to selector
// candidates. A track inherits the default flag of its switching set.
// Errored tracks are excluded so selection never bounces back to a rendition
// that already failed.
func candidatesOfKind(p *Presentation, kind MediaKind) []abr.Candidate {
	if p == nil {
		return nil
	}
	var out []abr.Candidate
	for i := range p.SelectionSets {
		if p.SelectionSets[i].Kind != kind {
			continue
		}
		for _, sw := range p.SelectionSets[i].SwitchingSets {
			for _, t := range sw.Tracks {
				if t.Status == StatusErrored {
					continue
				}
				bitrate := t.Bandwidth
				if t.AverageBandwidth > 0 {
					bitrate = t.AverageBandwidth
				}
				out = append(out, abr.Candidate{
					TrackID:  t.ID,
					Bitrate:  bitrate,
					Height:   t.Height,
					Language: t.Language,
					Default:  sw.Default,
				})
			}
		}
	}
	return out
}
