// Command listener is a headless audience client: it connects to the
// playback server, follows the event stream with a simulated media element,
// and logs its sync diagnostics. Useful for soaking the server before a show
// and for watching drift from the back of the house.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stagecue/stagecue/internal/client"
	"github.com/stagecue/stagecue/internal/config"
)

func main() {
	url := flag.String("url", "ws://localhost:5174/ws", "playback server WebSocket URL")
	configPath := flag.String("config", "stagecue.yaml", "path to config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	media := client.NewSimulatedElement(clock)
	listener := client.NewListener(client.ListenerConfig{
		URL:          *url,
		PingInterval: time.Duration(cfg.Sync.PingIntervalMs) * time.Millisecond,
		Scheduler: client.SchedulerConfig{
			StartThreshold:  time.Duration(cfg.Sync.StartThresholdMs) * time.Millisecond,
			ResyncTolerance: cfg.Sync.ResyncToleranceSec,
		},
	}, clock, media)

	go reportLoop(ctx, clock, media, listener)

	if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("listener failed")
	}
}

func reportLoop(ctx context.Context, clock clockwork.Clock, media *client.SimulatedElement, listener *client.Listener) {
	ticker := clock.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			log.Info().
				Float64("position_sec", media.CurrentTime()).
				Bool("playing", media.Playing()).
				Float64("offset_ms", listener.OffsetMs()).
				Msg("sync report")
		}
	}
}
