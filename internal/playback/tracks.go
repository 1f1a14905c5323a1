package playback

import (
	"context"
	"log/slog"
	"net/url"

	"hls-playback/internal/abr"
	"hls-playback/internal/playlist"
)

// wireInitialSelection picks the initial video and audio tracks once the
// presentation resolves. Video uses the bandwidth estimate (which is the
// configured seed until samples exist); audio prefers the configured
// language. Text is never selected automatically.
func (e *Engine) wireInitialSelection() {
	unsub := e.state.Subscribe(func(s State) {
		p := s.Presentation
		if p == nil || p.Status != StatusResolved {
			return
		}

		videoID := s.SelectedVideoTrackID
		audioID := s.SelectedAudioTrackID
		if videoID == "" {
			estimate := abr.Estimate(e.bw.Current(), e.cfg.InitialBandwidth)
			if c, ok := abr.SelectQuality(candidatesOfKind(p, KindVideo), estimate, e.cfg.selector()); ok {
				videoID = c.TrackID
			}
		}
		if audioID == "" {
			if c, ok := abr.SelectAudio(candidatesOfKind(p, KindAudio), e.cfg.PreferredAudioLanguage); ok {
				audioID = c.TrackID
			}
		}
		if videoID == s.SelectedVideoTrackID && audioID == s.SelectedAudioTrackID {
			return
		}

		e.state.Patch(func(st *State) {
			if st.SelectedVideoTrackID == "" {
				st.SelectedVideoTrackID = videoID
			}
			if st.SelectedAudioTrackID == "" {
				st.SelectedAudioTrackID = audioID
			}
		})
		e.log.Info("initial tracks selected",
			slog.String("video", videoID),
			slog.String("audio", audioID))
	})
	e.unsubs = append(e.unsubs, unsub)
}

// wireAdaptation re-runs video selection whenever the bandwidth estimate
// moves. Switches only happen once the estimator has seen enough bytes to
// trust; the new track's playlist is then resolved by the track resolvable
// reacting to the selection change.
func (e *Engine) wireAdaptation() {
	unsub := e.bw.Subscribe(func(bw abr.State) {
		estimate := abr.Estimate(bw, e.cfg.InitialBandwidth)
		e.met.SetBandwidthEstimate(estimate)
		if !abr.HasGoodEstimate(bw) {
			return
		}

		s := e.state.Current()
		p := s.Presentation
		if p == nil || p.Status != StatusResolved || s.SelectedVideoTrackID == "" {
			return
		}
		c, ok := abr.SelectQuality(candidatesOfKind(p, KindVideo), estimate, e.cfg.selector())
		if !ok || c.TrackID == s.SelectedVideoTrackID {
			return
		}

		e.log.Info("switching video rendition",
			slog.String("from", s.SelectedVideoTrackID),
			slog.String("to", c.TrackID),
			slog.Float64("estimate_bps", estimate))
		e.met.IncRenditionSwitches()
		e.state.Patch(func(st *State) { st.SelectedVideoTrackID = c.TrackID })
	})
	e.unsubs = append(e.unsubs, unsub)
}

// wireTrackResolution fetches the playlist of each selected-but-unresolved
// track. Only the selected track per switching set is resolved unless
// ResolveAll is configured; switching selection before a resolve finishes
// cancels the stale fetch.
func (e *Engine) wireTrackResolution() closer {
	keys := func(s State) []string {
		p := s.Presentation
		if p == nil || p.Status != StatusResolved || !resolutionAdmitted(s) {
			return nil
		}

		var ids []string
		if e.cfg.ResolveAll {
			for _, kind := range []MediaKind{KindVideo, KindAudio, KindText} {
				for _, t := range p.TracksOfKind(kind) {
					if t.URI != "" && t.Status == StatusUnresolved {
						ids = append(ids, t.ID)
					}
				}
			}
			return ids
		}

		for _, kind := range []MediaKind{KindVideo, KindAudio, KindText} {
			id := s.SelectedTrackID(kind)
			if id == "" {
				continue
			}
			t := p.FindTrack(id)
			if t != nil && t.URI != "" && t.Status == StatusUnresolved {
				ids = append(ids, id)
			}
		}
		return ids
	}
	return NewResolvable[State](e.ctx, e.log, e.errs, "tracks", e.state, keys, e.resolveTrack)
}

func (e *Engine) resolveTrack(ctx context.Context, snap State, trackID string) error {
	t := snap.Presentation.FindTrack(trackID)
	if t == nil {
		return nil
	}
	kind := t.Kind

	e.patchTrack(trackID, func(tr *Track, _ *Presentation) { tr.Status = StatusResolving })

	text, err := e.fetchText(ctx, t.URI)
	if err != nil {
		return e.failTrack(trackID, kind, err)
	}
	base, err := url.Parse(t.URI)
	if err != nil {
		return e.failTrack(trackID, kind, err)
	}
	mp, err := playlist.ParseMediaPlaylist(text, base)
	if err != nil {
		return e.failTrack(trackID, kind, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.state.Patch(func(s *State) {
		p := s.Presentation.Clone()
		if p == nil {
			return
		}
		tr := p.FindTrack(trackID)
		if tr == nil {
			return
		}
		tr.Status = StatusResolved
		tr.Err = nil
		tr.Playlist = mp

		// Keep at most one resolved track per switching set: the previous
		// rendition's segment list is dropped when a switch target lands.
		if !e.cfg.ResolveAll {
			if sw := p.SwitchingSetOf(trackID); sw != nil {
				for i := range sw.Tracks {
					if sw.Tracks[i].ID != trackID && sw.Tracks[i].Status == StatusResolved {
						sw.Tracks[i].Status = StatusUnresolved
						sw.Tracks[i].Playlist = nil
					}
				}
			}
		}

		if kind == KindVideo && !mp.Live && p.Duration == 0 {
			p.Duration = mp.Duration()
		}
		s.Presentation = p
	})
	e.log.Info("track resolved",
		slog.String("track", trackID),
		slog.Int("segments", len(mp.Segments)),
		slog.Bool("live", mp.Live))
	return nil
}

// failTrack marks the track errored. A failed switch target is recoverable:
// if a sibling rendition is still resolved, selection falls back to it and
// playback continues.
func (e *Engine) failTrack(trackID string, kind MediaKind, err error) error {
	if IsCancelled(err) {
		return err
	}
	e.state.Patch(func(s *State) {
		p := s.Presentation.Clone()
		if p == nil {
			return
		}
		tr := p.FindTrack(trackID)
		if tr == nil {
			return
		}
		tr.Status = StatusErrored
		tr.Err = err
		s.Presentation = p

		if s.SelectedTrackID(kind) != trackID {
			return
		}
		for _, sibling := range p.TracksOfKind(kind) {
			if sibling.Status == StatusResolved {
				switch kind {
				case KindVideo:
					s.SelectedVideoTrackID = sibling.ID
				case KindAudio:
					s.SelectedAudioTrackID = sibling.ID
				}
				return
			}
		}
	})
	return err
}

// patchTrack applies mutate to a clone of the named track.
func (e *Engine) patchTrack(trackID string, mutate func(*Track, *Presentation)) {
	e.state.Patch(func(s *State) {
		p := s.Presentation.Clone()
		if p == nil {
			return
		}
		tr := p.FindTrack(trackID)
		if tr == nil {
			return
		}
		mutate(tr, p)
		s.Presentation = p
	})
}
