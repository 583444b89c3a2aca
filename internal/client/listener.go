// Package client implements the audience side of the playback protocol: a
// WebSocket listener that keeps a local media element converged on the
// server's timeline via clock-offset probing and anchor projection.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/stagecue/stagecue/internal/playback"
	"github.com/stagecue/stagecue/internal/protocol"
)

// DefaultPingInterval is how often the listener probes the server clock.
const DefaultPingInterval = time.Second

// ListenerConfig holds listener configuration.
type ListenerConfig struct {
	// URL is the server's WebSocket endpoint, e.g. ws://host:5174/ws.
	URL string

	// PingInterval overrides DefaultPingInterval when positive.
	PingInterval time.Duration

	// Scheduler tunes the playback scheduler; zero fields use the defaults.
	Scheduler SchedulerConfig
}

// Listener connects to the playback server and drives a media element from
// the event stream. One Listener owns one connection; Run blocks until the
// context is cancelled or the connection drops.
type Listener struct {
	config    ListenerConfig
	clock     clockwork.Clock
	estimator *OffsetEstimator
	scheduler *Scheduler

	mu          sync.Mutex
	lastProbeMs int64
	lastState   *playback.State
}

// NewListener returns a listener that will drive media.
func NewListener(config ListenerConfig, clock clockwork.Clock, media MediaElement) *Listener {
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultPingInterval
	}
	return &Listener{
		config:    config,
		clock:     clock,
		estimator: NewOffsetEstimator(),
		scheduler: NewSchedulerWithConfig(clock, media, config.Scheduler),
	}
}

// OffsetMs exposes the current clock-offset estimate for diagnostics.
func (l *Listener) OffsetMs() float64 {
	return l.estimator.OffsetMs()
}

// Run dials the server and processes events until ctx ends. Reconnection is
// the caller's choice: the HELLO/STATE handshake makes a fresh Run converge
// without any message history.
func (l *Listener) Run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.config.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.config.URL, err)
	}

	log.Info().Str("url", l.config.URL).Msg("connected to playback server")

	// connCtx scopes the probe loop and the close watcher to this connection,
	// so a read-error return releases both instead of leaving them parked on
	// the caller's context.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go l.probeLoop(connCtx, conn)
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			l.scheduler.Stop()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		l.handleEvent(connCtx, raw)
	}
}

// probeLoop sends a clock probe every ping interval and opportunistically
// rechecks drift against the latest state. The ticker dies with the context
// so a stale socket cannot leak timers.
func (l *Listener) probeLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := l.clock.NewTicker(l.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			now := l.clock.Now().UnixMilli()
			l.mu.Lock()
			l.lastProbeMs = now
			state := l.lastState
			l.mu.Unlock()

			probe := protocol.Command{Type: protocol.EventTypePing, T0: &now}
			data, err := json.Marshal(probe)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Msg("failed to send clock probe")
				return
			}

			if state != nil {
				l.scheduler.Resync(*state, l.estimator.OffsetMs())
			}
		}
	}
}

func (l *Listener) handleEvent(ctx context.Context, raw []byte) {
	var ev protocol.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		log.Debug().Err(err).Msg("ignoring malformed event")
		return
	}

	switch ev.Type {
	case protocol.EventTypePing:
		received := l.clock.Now().UnixMilli()
		l.mu.Lock()
		sent := l.lastProbeMs
		l.mu.Unlock()
		if sent > 0 {
			l.estimator.Observe(sent, ev.ServerTimeEpochMs, received)
		}

	case protocol.EventTypeState:
		if ev.State == nil {
			return
		}
		l.mu.Lock()
		l.lastState = ev.State
		l.mu.Unlock()
		l.scheduler.ApplyState(ctx, *ev.State, l.estimator.OffsetMs())
		log.Info().
			Str("scene", string(ev.State.Scene)).
			Int("cue_index", ev.State.CueIndex).
			Bool("paused", ev.State.IsPaused).
			Float64("media_time_sec", ev.State.Anchor.MediaTimeSec).
			Float64("offset_ms", l.estimator.OffsetMs()).
			Msg("state applied")

	case protocol.EventTypeHello:
		log.Info().Msg("server hello")

	default:
		// Granular events are informational here; the STATE that follows
		// each of them carries everything the scheduler needs.
		log.Debug().Str("type", string(ev.Type)).Msg("event received")
	}
}
