package gateway

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/stagecue/stagecue/internal/playback"
	"github.com/stagecue/stagecue/internal/protocol"
)

// dispatch routes one inbound frame to its handler. Malformed frames and
// unknown types are dropped without a reply: during a live show a stray or
// partial message must never disturb the running state.
func (s *Service) dispatch(conn *Connection, raw []byte) {
	var cmd protocol.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", conn.ID).
			Msg("ignoring malformed message")
		return
	}

	switch cmd.Type {
	case protocol.EventTypePing:
		s.reply(conn, protocol.PingReply(s.clock.Now().UnixMilli()))
	case protocol.EventTypeHeartbeat:
		s.reply(conn, protocol.Heartbeat(s.clock.Now().UnixMilli()))
	case protocol.EventTypeCue:
		s.handleCue(cmd)
	case protocol.EventTypeSeek:
		s.handleSeek(cmd)
	case protocol.EventTypeRate:
		s.handleRate(cmd)
	case protocol.EventTypePause:
		s.handlePauseResume(cmd, true)
	case protocol.EventTypeResume:
		s.handlePauseResume(cmd, false)
	default:
		log.Debug().
			Str("connection_id", conn.ID).
			Str("type", string(cmd.Type)).
			Msg("ignoring unrecognized message type")
	}
}

// reply sends an event to a single connection, bypassing the broadcast path.
func (s *Service) reply(conn *Connection, ev protocol.Event) {
	if !conn.enqueue(mustMarshal(ev)) {
		log.Warn().Str("connection_id", conn.ID).Msg("dropping reply, send buffer full")
	}
}

// handleCue jumps playback to a cue. The anchor timestamp is trusted from the
// client because the operator console stamps cue anchors with its own lead
// time. A cue always resumes playback, and a scene change announces
// SCENE_LOAD before the CUE itself.
func (s *Service) handleCue(cmd protocol.Command) {
	if cmd.CueIndex == nil || cmd.Anchor == nil || cmd.Anchor.MediaTimeSec == nil {
		return
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	prev := s.store.Snapshot()
	paused := false
	state := s.store.Apply(playback.Update{
		Scene:           cmd.Scene,
		CueIndex:        cmd.CueIndex,
		PlaybackRate:    cmd.PlaybackRate,
		IsPaused:        &paused,
		Anchor:          cmd.Anchor.Update(),
		TrustAnchorTime: true,
	})

	now := s.clock.Now().UnixMilli()
	var events []protocol.Event
	if cmd.Scene != nil && *cmd.Scene != prev.Scene {
		events = append(events, protocol.SceneLoad(now, state.Scene))
	}
	events = append(events,
		protocol.Cue(now, state.CueIndex),
		protocol.StateOf(now, state),
	)
	s.broadcast(events...)
}

// handleSeek repositions playback. The anchor timestamp is never trusted
// here: a seek takes effect as of the server's now.
func (s *Service) handleSeek(cmd protocol.Command) {
	mediaTime, ok := cmd.AnchorMediaTime()
	if !ok {
		return
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	state := s.store.Apply(playback.Update{Anchor: cmd.AnchorUpdate()})

	now := s.clock.Now().UnixMilli()
	s.broadcast(
		protocol.Seek(now, mediaTime),
		protocol.StateOf(now, state),
	)
}

// handleRate changes the playback rate. Only an explicit anchor payload may
// reposition media time here; a bare top-level mediaTimeSec on a RATE command
// is ignored, so the rate change pivots around the current position.
func (s *Service) handleRate(cmd protocol.Command) {
	if cmd.PlaybackRate == nil {
		return
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	state := s.store.Apply(playback.Update{
		PlaybackRate: cmd.PlaybackRate,
		Anchor:       cmd.Anchor.Update(),
	})

	now := s.clock.Now().UnixMilli()
	s.broadcast(
		protocol.Rate(now, state.PlaybackRate),
		protocol.StateOf(now, state),
	)
}

// handlePauseResume toggles playback. With no anchor supplied, the store
// freezes media time at its last known value while refreshing the reference
// timestamp, which is exactly what pausing in place requires.
func (s *Service) handlePauseResume(cmd protocol.Command, pause bool) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	state := s.store.Apply(playback.Update{
		IsPaused: &pause,
		Anchor:   cmd.AnchorUpdate(),
	})

	now := s.clock.Now().UnixMilli()
	granular := protocol.Resume(now)
	if pause {
		granular = protocol.Pause(now)
	}
	s.broadcast(granular, protocol.StateOf(now, state))
}
