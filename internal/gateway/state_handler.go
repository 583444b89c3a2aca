package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/stagecue/stagecue/internal/playback"
	"github.com/stagecue/stagecue/internal/protocol"
	"github.com/stagecue/stagecue/internal/script"
)

// HandleCurrentState handles GET /current with a snapshot of the playback
// state. Late joiners fetch this once before their WebSocket delivers STATE.
func (s *Service) HandleCurrentState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, s.store.Snapshot())
}

// HandleUpdate handles POST /update: the stateless mutation entry point. It
// accepts the same partial-update shape as the streamed commands and drives
// the identical granular-then-STATE broadcast, so a plain HTTP caller gets
// the same synchronization guarantees as a WebSocket operator.
func (s *Service) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd protocol.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	s.applyUpdate(cmd)
	writeJSON(w, map[string]bool{"ok": true})
}

// applyUpdate merges the partial update and broadcasts granular events for
// every field the body carried, always finishing with STATE. Unlike a cue
// command, an update's anchor timestamp is never trusted.
func (s *Service) applyUpdate(cmd protocol.Command) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	var anchor *playback.AnchorUpdate
	if cmd.Anchor != nil && cmd.Anchor.MediaTimeSec != nil {
		anchor = &playback.AnchorUpdate{MediaTimeSec: *cmd.Anchor.MediaTimeSec}
	}

	state := s.store.Apply(playback.Update{
		Scene:        cmd.Scene,
		CueIndex:     cmd.CueIndex,
		PlaybackRate: cmd.PlaybackRate,
		IsPaused:     cmd.IsPaused,
		Anchor:       anchor,
	})

	now := s.clock.Now().UnixMilli()
	var events []protocol.Event
	if cmd.Scene != nil {
		events = append(events, protocol.SceneLoad(now, *cmd.Scene))
	}
	if cmd.CueIndex != nil {
		events = append(events, protocol.Cue(now, *cmd.CueIndex))
	}
	if cmd.IsPaused != nil {
		if *cmd.IsPaused {
			events = append(events, protocol.Pause(now))
		} else {
			events = append(events, protocol.Resume(now))
		}
	}
	if cmd.PlaybackRate != nil {
		events = append(events, protocol.Rate(now, *cmd.PlaybackRate))
	}
	if anchor != nil {
		events = append(events, protocol.Seek(now, anchor.MediaTimeSec))
	}
	events = append(events, protocol.StateOf(now, state))
	s.broadcast(events...)
}

// HandleManifest handles GET /manifest/{sceneId}: the ordered cue list for a
// scene, straight from the dialog script.
func (s *Service) HandleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sceneID := strings.TrimPrefix(r.URL.Path, "/manifest/")
	if sceneID == "" || strings.Contains(sceneID, "/") {
		http.Error(w, "scene id is required", http.StatusBadRequest)
		return
	}

	cues, err := s.library.SceneCues(sceneID)
	if err != nil {
		if errors.Is(err, script.ErrSceneNotFound) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "Scene not found"})
			return
		}
		log.Error().Err(err).Str("scene", sceneID).Msg("failed to load scene cues")
		http.Error(w, "failed to load scene", http.StatusInternalServerError)
		return
	}

	writeJSON(w, cues)
}

// HandleConnectionStats handles GET /ws/stats.
func (s *Service) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]int{"total_connections": s.connections.ConnectionCount()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
