package playback

import "hls-playback/internal/reactive"

// textView pairs the host-chosen text selection with the registered track
// handles.
type textView struct {
	selected string
	tracks   map[string]TextTrack
}

// wireTextTrackModes mirrors the text selection onto the host's track
// handles: the selected track shows, every other registered track is
// disabled. The engine never renders text; mode selection is its whole job
// here.
func (e *Engine) wireTextTrackModes() {
	view := reactive.Combine2[State, OwnersView, textView](e.state, e.owners,
		func(s State, o OwnersView) textView {
			return textView{selected: s.SelectedTextTrackID, tracks: o.TextTracks}
		})
	e.combined = append(e.combined, view)

	unsub := view.Subscribe(func(v textView) {
		for id, tr := range v.tracks {
			mode := TextTrackDisabled
			if id == v.selected {
				mode = TextTrackShowing
			}
			if tr.Mode() != mode {
				tr.SetMode(mode)
			}
		}
	})
	e.unsubs = append(e.unsubs, unsub)
}
