package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/stagecue/stagecue/internal/playback"
	"github.com/stagecue/stagecue/internal/protocol"
	"github.com/stagecue/stagecue/internal/script"
)

// EventSink receives a copy of every broadcast event. Used to mirror the
// event stream to an external bus; may be nil.
type EventSink interface {
	Publish(ev protocol.Event)
}

// Service is the playback gateway: it owns the WebSocket connections, applies
// operator commands to the state store, and broadcasts the resulting events.
type Service struct {
	store       *playback.Store
	library     *script.Library
	connections *ConnectionManager
	clock       clockwork.Clock
	sink        EventSink

	// dispatchMu makes each action's mutate-and-broadcast atomic so no
	// client can observe two actions' event sequences interleaved.
	dispatchMu sync.Mutex
}

// Config holds gateway configuration.
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{ConnectionConfig: DefaultConnectionConfig()}
}

// NewService creates the gateway around an existing store and script library.
// sink may be nil.
func NewService(config Config, store *playback.Store, library *script.Library, clock clockwork.Clock, sink EventSink) *Service {
	return &Service{
		store:       store,
		library:     library,
		connections: NewConnectionManager(config.ConnectionConfig),
		clock:       clock,
		sink:        sink,
	}
}

// RegisterRoutes registers the WebSocket and REST routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.HandleConnection)
	mux.HandleFunc("/ws/stats", s.HandleConnectionStats)
	mux.HandleFunc("/current", s.HandleCurrentState)
	mux.HandleFunc("/update", s.HandleUpdate)
	mux.HandleFunc("/manifest/", s.HandleManifest)
	log.Info().Msg("gateway routes registered")
}

// HandleConnection upgrades a viewer connection. The client is greeted with
// HELLO followed by the full STATE so a late joiner synchronizes without
// polling.
func (s *Service) HandleConnection(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now().UnixMilli()
	welcome := [][]byte{
		mustMarshal(protocol.Hello(now)),
		mustMarshal(protocol.StateOf(now, s.store.Snapshot())),
	}

	if err := s.connections.UpgradeConnection(w, r, s.dispatch, welcome...); err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
	}
}

// broadcast marshals each event once, fans the frames out to every open
// connection in order, and mirrors them to the sink if one is configured.
func (s *Service) broadcast(events ...protocol.Event) {
	frames := make([][]byte, 0, len(events))
	for _, ev := range events {
		frames = append(frames, mustMarshal(ev))
	}
	s.connections.Broadcast(frames...)

	if s.sink != nil {
		for _, ev := range events {
			s.sink.Publish(ev)
		}
	}
}

func mustMarshal(ev protocol.Event) []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		// Events are plain structs; this cannot fail for any real event.
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal event")
		return []byte(`{}`)
	}
	return data
}
