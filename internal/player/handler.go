// Package player exposes playback sessions over HTTP: each session wraps
// one engine, and the handlers translate between JSON and the engine's
// reactive documents.
package player

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"hls-playback/internal/abr"
	"hls-playback/internal/platform/metrics"
	"hls-playback/internal/playback"

	"github.com/go-chi/chi/v5"
)

// Handler exposes session HTTP endpoints using go-chi.
type Handler struct {
	reg     *Registry
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler over the given Registry, Logger, and optional
// Metrics. Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(reg *Registry, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{reg: reg, log: log, metrics: m}
}

type createSessionRequest struct {
	URL     string `json:"url"`
	Preload string `json:"preload"`
}

type createSessionResponse struct {
	ID string `json:"id"`
}

// sessionView is the JSON snapshot of one session's playback document.
type sessionView struct {
	ID                string            `json:"id"`
	Preload           string            `json:"preload"`
	PlayRequested     bool              `json:"play_requested"`
	SelectedVideo     string            `json:"selected_video,omitempty"`
	SelectedAudio     string            `json:"selected_audio,omitempty"`
	SelectedText      string            `json:"selected_text,omitempty"`
	BandwidthEstimate float64           `json:"bandwidth_estimate_bps"`
	Presentation      *presentationView `json:"presentation,omitempty"`
}

type presentationView struct {
	URL      string      `json:"url"`
	Status   string      `json:"status"`
	Duration float64     `json:"duration,omitempty"`
	Error    string      `json:"error,omitempty"`
	Tracks   []trackView `json:"tracks,omitempty"`
}

type trackView struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Status   string  `json:"status"`
	Bitrate  int64   `json:"bitrate,omitempty"`
	Height   int     `json:"height,omitempty"`
	Language string  `json:"language,omitempty"`
	Segments int     `json:"segments,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// CreateSession handles POST /sessions.
// Body: { "url": "https://cdn.example/main.m3u8", "preload": "auto" }.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid session body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.URL == "" || !validPreload(req.Preload) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	id, eng := h.reg.Create()
	if err := eng.Load(req.URL, playback.PreloadPolicy(req.Preload)); err != nil {
		h.reg.Delete(id)
		h.log.Error("load failed", slog.String("error", err.Error()))
		h.metrics.IncErrors()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.log.Info("session created",
		slog.String("session_id", id),
		slog.String("url", req.URL),
		slog.String("preload", req.Preload))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createSessionResponse{ID: id})
}

// GetSession handles GET /sessions/{session_id}: a JSON snapshot of the
// session's playback document.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	eng, ok := h.reg.Get(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(snapshot(id, eng))
}

// PlaySession handles POST /sessions/{session_id}/play.
func (h *Handler) PlaySession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	eng, ok := h.reg.Get(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := eng.Play(); err != nil {
		h.log.Error("play failed", slog.String("session_id", id), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusConflict)
		return
	}

	h.log.Debug("play requested", slog.String("session_id", id))
	w.WriteHeader(http.StatusOK)
}

// DeleteSession handles DELETE /sessions/{session_id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !h.reg.Delete(id) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	h.log.Info("session destroyed", slog.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func validPreload(p string) bool {
	switch playback.PreloadPolicy(p) {
	case "", playback.PreloadAuto, playback.PreloadMetadata, playback.PreloadNone:
		return true
	default:
		return false
	}
}

func snapshot(id string, eng *playback.Engine) sessionView {
	s := eng.State().Current()
	view := sessionView{
		ID:                id,
		Preload:           string(s.Preload),
		PlayRequested:     s.PlayRequested,
		SelectedVideo:     s.SelectedVideoTrackID,
		SelectedAudio:     s.SelectedAudioTrackID,
		SelectedText:      s.SelectedTextTrackID,
		BandwidthEstimate: abr.Estimate(eng.Bandwidth(), 0),
	}
	p := s.Presentation
	if p == nil {
		return view
	}

	pv := &presentationView{
		URL:      p.URL,
		Status:   p.Status.String(),
		Duration: p.Duration,
	}
	if p.Err != nil {
		pv.Error = p.Err.Error()
	}
	for _, kind := range p.Kinds() {
		for _, t := range p.TracksOfKind(kind) {
			tv := trackView{
				ID:       t.ID,
				Kind:     string(t.Kind),
				Status:   t.Status.String(),
				Bitrate:  t.Bandwidth,
				Height:   t.Height,
				Language: t.Language,
			}
			if t.Playlist != nil {
				tv.Segments = len(t.Playlist.Segments)
				tv.Duration = t.Playlist.Duration()
			}
			pv.Tracks = append(pv.Tracks, tv)
		}
	}
	view.Presentation = pv
	return view
}
