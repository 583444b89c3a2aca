package protocol

import (
	"github.com/stagecue/stagecue/internal/playback"
)

// AnchorPayload is a client-supplied anchor. Either field may be absent;
// a payload without a media time is treated as no anchor at all.
type AnchorPayload struct {
	ServerTimeEpochMs *int64   `json:"serverTimeEpochMs,omitempty"`
	MediaTimeSec      *float64 `json:"mediaTimeSec,omitempty"`
}

// Update converts the payload into a store update. Nil-safe; returns nil when
// there is no payload or it carries no media time.
func (a *AnchorPayload) Update() *playback.AnchorUpdate {
	if a == nil || a.MediaTimeSec == nil {
		return nil
	}
	return &playback.AnchorUpdate{
		ServerTimeEpochMs: a.ServerTimeEpochMs,
		MediaTimeSec:      *a.MediaTimeSec,
	}
}

// Command is an inbound operator message, from either the WebSocket channel
// or the REST update endpoint (which omits Type). Validation is per-handler:
// a command missing required fields for its type is dropped without a reply.
type Command struct {
	Type         EventType         `json:"type"`
	Scene        *playback.SceneID `json:"scene,omitempty"`
	CueIndex     *int              `json:"cueIndex,omitempty"`
	PlaybackRate *float64          `json:"playbackRate,omitempty"`
	IsPaused     *bool             `json:"isPaused,omitempty"`
	MediaTimeSec *float64          `json:"mediaTimeSec,omitempty"`
	Anchor       *AnchorPayload    `json:"anchor,omitempty"`

	// T0 is the client's local send time on PING probes. The server ignores
	// it; the client pairs it with the reply to estimate its clock offset.
	T0 *int64 `json:"t0,omitempty"`
}

// AnchorMediaTime returns the commanded media time, preferring the anchor's
// over the top-level field.
func (c *Command) AnchorMediaTime() (float64, bool) {
	if c.Anchor != nil && c.Anchor.MediaTimeSec != nil {
		return *c.Anchor.MediaTimeSec, true
	}
	if c.MediaTimeSec != nil {
		return *c.MediaTimeSec, true
	}
	return 0, false
}

// AnchorUpdate converts the command's anchor fields into a store update.
// It falls back to the top-level media time so that PAUSE/RESUME/SEEK sent
// with a bare mediaTimeSec still reposition the anchor. Returns nil when the
// command carries no usable media time, which the store treats as "freeze
// media time, refresh timestamp".
func (c *Command) AnchorUpdate() *playback.AnchorUpdate {
	if u := c.Anchor.Update(); u != nil {
		return u
	}
	if c.MediaTimeSec != nil {
		return &playback.AnchorUpdate{MediaTimeSec: *c.MediaTimeSec}
	}
	return nil
}
