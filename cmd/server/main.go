package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stagecue/stagecue/internal/config"
	"github.com/stagecue/stagecue/internal/gateway"
	"github.com/stagecue/stagecue/internal/mirror"
	"github.com/stagecue/stagecue/internal/playback"
	"github.com/stagecue/stagecue/internal/script"
)

func main() {
	configPath := flag.String("config", "stagecue.yaml", "path to config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	store := playback.NewStore(clock)
	library := script.NewLibrary(cfg.Server.ScriptPath)

	var sink gateway.EventSink
	if cfg.NATS.URL != "" {
		mirrorCfg := mirror.DefaultConfig()
		mirrorCfg.URL = cfg.NATS.URL
		mirrorCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		m, err := mirror.New(mirrorCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect event mirror")
		}
		defer m.Close()
		sink = m
		log.Info().Str("url", cfg.NATS.URL).Msg("event mirror enabled")
	}

	svc := gateway.NewService(gateway.DefaultConfig(), store, library, clock, sink)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: c.Handler(mux),
	}

	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("script_path", cfg.Server.ScriptPath).
			Msg("playback server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
