package protocol

import (
	"github.com/stagecue/stagecue/internal/playback"
)

// EventType discriminates every message on the wire, in both directions.
type EventType string

const (
	EventTypeHello     EventType = "HELLO"
	EventTypeState     EventType = "STATE"
	EventTypeSceneLoad EventType = "SCENE_LOAD"
	EventTypeCue       EventType = "CUE"
	EventTypePause     EventType = "PAUSE"
	EventTypeResume    EventType = "RESUME"
	EventTypeSeek      EventType = "SEEK"
	EventTypeRate      EventType = "RATE"
	EventTypePing      EventType = "PING"
	EventTypeHeartbeat EventType = "HEARTBEAT"
)

// Event is a server-to-client message. Events are transient: they are
// streamed to every open connection and never stored. Every event except the
// PING reply's echo fields carries the server time at emission.
type Event struct {
	Type              EventType         `json:"type"`
	ServerTimeEpochMs int64             `json:"serverTimeEpochMs"`
	Scene             *playback.SceneID `json:"scene,omitempty"`
	CueIndex          *int              `json:"cueIndex,omitempty"`
	MediaTimeSec      *float64          `json:"mediaTimeSec,omitempty"`
	PlaybackRate      *float64          `json:"playbackRate,omitempty"`
	State             *playback.State   `json:"state,omitempty"`
}

// Hello greets a freshly connected client; a STATE event always follows it.
func Hello(nowMs int64) Event {
	return Event{Type: EventTypeHello, ServerTimeEpochMs: nowMs}
}

// StateOf carries the full playback state. It is the last event of every
// action's broadcast sequence, so a client that only understands STATE still
// converges.
func StateOf(nowMs int64, st playback.State) Event {
	return Event{Type: EventTypeState, ServerTimeEpochMs: nowMs, State: &st}
}

// SceneLoad tells clients to switch their manifest to a new scene.
func SceneLoad(nowMs int64, scene playback.SceneID) Event {
	return Event{Type: EventTypeSceneLoad, ServerTimeEpochMs: nowMs, Scene: &scene}
}

// Cue announces a jump to a cue index within the current scene.
func Cue(nowMs int64, cueIndex int) Event {
	return Event{Type: EventTypeCue, ServerTimeEpochMs: nowMs, CueIndex: &cueIndex}
}

func Pause(nowMs int64) Event {
	return Event{Type: EventTypePause, ServerTimeEpochMs: nowMs}
}

func Resume(nowMs int64) Event {
	return Event{Type: EventTypeResume, ServerTimeEpochMs: nowMs}
}

// Seek announces a reposition within the current cue.
func Seek(nowMs int64, mediaTimeSec float64) Event {
	return Event{Type: EventTypeSeek, ServerTimeEpochMs: nowMs, MediaTimeSec: &mediaTimeSec}
}

// Rate announces a playback rate change.
func Rate(nowMs int64, playbackRate float64) Event {
	return Event{Type: EventTypeRate, ServerTimeEpochMs: nowMs, PlaybackRate: &playbackRate}
}

// PingReply answers a client clock probe with the server time.
func PingReply(nowMs int64) Event {
	return Event{Type: EventTypePing, ServerTimeEpochMs: nowMs}
}

func Heartbeat(nowMs int64) Event {
	return Event{Type: EventTypeHeartbeat, ServerTimeEpochMs: nowMs}
}
