package playback

import (
	"context"
	"log/slog"
	"net/url"

	"hls-playback/internal/playlist"
)

// wirePresentationResolution resolves the root manifest once a source URL is
// set and the preload policy admits starting. A malformed or unreachable
// root manifest is fatal to startup: there is nothing to select from, so the
// presentation is marked errored and the failure surfaces on the error
// stream.
func (e *Engine) wirePresentationResolution() closer {
	keys := func(s State) []string {
		p := s.Presentation
		if p == nil || p.URL == "" || p.Status != StatusUnresolved {
			return nil
		}
		if !resolutionAdmitted(s) {
			return nil
		}
		return []string{p.URL}
	}
	return NewResolvable[State](e.ctx, e.log, e.errs, "presentation", e.state, keys, e.resolvePresentation)
}

func (e *Engine) resolvePresentation(ctx context.Context, _ State, sourceURL string) error {
	e.patchPresentation(sourceURL, func(p *Presentation) { p.Status = StatusResolving })

	text, err := e.fetchText(ctx, sourceURL)
	if err != nil {
		return e.failPresentation(sourceURL, err)
	}
	base, err := url.Parse(sourceURL)
	if err != nil {
		return e.failPresentation(sourceURL, err)
	}
	mvp, err := playlist.ParseMultivariant(text, base)
	if err != nil {
		return e.failPresentation(sourceURL, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sets := buildSelectionSets(mvp)
	e.patchPresentation(sourceURL, func(p *Presentation) {
		p.Status = StatusResolved
		p.Err = nil
		p.SelectionSets = sets
	})
	e.log.Info("presentation resolved",
		slog.String("url", sourceURL),
		slog.Int("selection_sets", len(sets)))
	return nil
}

func (e *Engine) failPresentation(sourceURL string, err error) error {
	if IsCancelled(err) {
		return err
	}
	e.patchPresentation(sourceURL, func(p *Presentation) {
		p.Status = StatusErrored
		p.Err = err
	})
	return err
}

// patchPresentation applies mutate to a clone of the presentation, but only
// while the document still points at the same source URL: a result landing
// after the host loaded a new source must be discarded.
func (e *Engine) patchPresentation(sourceURL string, mutate func(*Presentation)) {
	e.state.Patch(func(s *State) {
		if s.Presentation == nil || s.Presentation.URL != sourceURL {
			return
		}
		p := s.Presentation.Clone()
		mutate(p)
		s.Presentation = p
	})
}
