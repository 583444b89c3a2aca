package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/stagecue/stagecue/internal/playback"
	"github.com/stagecue/stagecue/internal/protocol"
)

// Operator drives a show over the command channel. Cue anchors are minted
// with the operator's lead time, giving every listener room to schedule the
// jump before it takes effect.
type Operator struct {
	clock clockwork.Clock
	lead  time.Duration

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// DialOperator connects to the server's WebSocket endpoint. A non-positive
// lead falls back to playback.DefaultAnchorLead.
func DialOperator(ctx context.Context, url string, clock clockwork.Clock, lead time.Duration) (*Operator, error) {
	if lead <= 0 {
		lead = playback.DefaultAnchorLead
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Operator{clock: clock, lead: lead, conn: conn}, nil
}

// Cue jumps playback to a cue, resuming if paused. The minted anchor carries
// the operator's lead-time timestamp, which the server trusts on cues.
func (o *Operator) Cue(scene playback.SceneID, cueIndex int, mediaTimeSec float64, playbackRate *float64) error {
	anchor := playback.MakeAnchor(o.clock, mediaTimeSec, o.lead)
	cmd := protocol.Command{
		Type:         protocol.EventTypeCue,
		CueIndex:     &cueIndex,
		PlaybackRate: playbackRate,
		Anchor: &protocol.AnchorPayload{
			ServerTimeEpochMs: &anchor.ServerTimeEpochMs,
			MediaTimeSec:      &anchor.MediaTimeSec,
		},
	}
	if scene != "" {
		cmd.Scene = &scene
	}
	return o.send(cmd)
}

// Pause halts playback; a media time, when given, also pins the position.
func (o *Operator) Pause(mediaTimeSec *float64) error {
	return o.send(protocol.Command{Type: protocol.EventTypePause, MediaTimeSec: mediaTimeSec})
}

// Resume restarts playback from the held position, or from mediaTimeSec when
// given.
func (o *Operator) Resume(mediaTimeSec *float64) error {
	return o.send(protocol.Command{Type: protocol.EventTypeResume, MediaTimeSec: mediaTimeSec})
}

// Seek repositions playback as of the server's now.
func (o *Operator) Seek(mediaTimeSec float64) error {
	return o.send(protocol.Command{Type: protocol.EventTypeSeek, MediaTimeSec: &mediaTimeSec})
}

// Rate changes the playback rate without moving the playhead.
func (o *Operator) Rate(playbackRate float64) error {
	return o.send(protocol.Command{Type: protocol.EventTypeRate, PlaybackRate: &playbackRate})
}

func (o *Operator) send(cmd protocol.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if err := o.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Type, err)
	}
	return nil
}

// Close tears down the connection.
func (o *Operator) Close() error {
	return o.conn.Close()
}
