// Package mirror republishes every broadcast event onto NATS so external
// consoles (lighting desks, show-control tooling) can follow the performance
// without holding a WebSocket to the playback server.
package mirror

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/stagecue/stagecue/internal/protocol"
)

// Config holds NATS mirror configuration.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the default mirror configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "stagecue.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Mirror publishes events to NATS subjects derived from the event type,
// e.g. stagecue.events.cue.
type Mirror struct {
	nc     *nats.Conn
	prefix string
}

// New connects to NATS and returns a mirror.
func New(config Config) (*Mirror, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Mirror{nc: nc, prefix: config.SubjectPrefix}, nil
}

// Publish mirrors one event. Delivery is fire-and-forget, matching the
// WebSocket broadcast semantics; failures are logged and dropped.
func (m *Mirror) Publish(ev protocol.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal event for mirror")
		return
	}

	subject := m.prefix + "." + strings.ToLower(string(ev.Type))
	if err := m.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to mirror event")
	}
}

// Close drains and closes the NATS connection.
func (m *Mirror) Close() {
	if err := m.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("failed to drain NATS connection")
	}
}
