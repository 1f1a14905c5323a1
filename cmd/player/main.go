package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hls-playback/internal/buffer"
	"hls-playback/internal/platform/config"
	"hls-playback/internal/platform/logger"
	"hls-playback/internal/platform/metrics"
	"hls-playback/internal/playback"
	"hls-playback/internal/player"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	engineCfg := playback.Config{
		InitialBandwidth:       config.GetEnvFloat("INITIAL_BANDWIDTH", playback.DefaultInitialBandwidth),
		PreferredAudioLanguage: config.GetEnv("PREFERRED_AUDIO_LANG", ""),
		SafetyFactor:           config.GetEnvFloat("SAFETY_FACTOR", 0),
		MaxHeight:              config.GetEnvInt("MAX_HEIGHT", 0),
		ForwardBufferTarget:    config.GetEnvFloat("FORWARD_BUFFER_TARGET", playback.DefaultForwardBufferTarget),
		BackBuffer:             buffer.BackBufferPolicy{KeepBehind: config.GetEnvFloat("BACK_BUFFER_KEEP", playback.DefaultBackBufferKeep)},
	}

	log := logger.New(logLevel, logFormat)
	met := metrics.New()

	reg := player.NewRegistry(func() *playback.Engine {
		return playback.New(engineCfg,
			playback.WithLogger(log),
			playback.WithMetrics(met),
		)
	})
	h := player.NewHandler(reg, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveEngines(reg.ActiveCount()) }).ServeHTTP(w, r)
	})
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Route("/{session_id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/play", h.PlaySession)
			r.Delete("/", h.DeleteSession)
		})
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"initial_bandwidth", engineCfg.InitialBandwidth,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	reg.DestroyAll()
	log.Info("server stopped")
}
