package playback

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Anchor pins a media position to a server wall-clock instant. Every client
// projects its own playhead forward from the most recent anchor, so an anchor
// is immutable once created and replaced wholesale on every state change.
type Anchor struct {
	ServerTimeEpochMs int64   `json:"serverTimeEpochMs"`
	MediaTimeSec      float64 `json:"mediaTimeSec"`
}

// DefaultAnchorLead is how far in the future a freshly minted anchor is
// stamped, giving every client time to receive and schedule the action
// before it takes effect.
const DefaultAnchorLead = 250 * time.Millisecond

// MakeAnchor returns an anchor for mediaTimeSec stamped lead into the future.
func MakeAnchor(clock clockwork.Clock, mediaTimeSec float64, lead time.Duration) Anchor {
	return Anchor{
		ServerTimeEpochMs: clock.Now().Add(lead).UnixMilli(),
		MediaTimeSec:      mediaTimeSec,
	}
}

// AnchorUpdate is the client-supplied portion of an anchor inside a partial
// state update. The timestamp is optional and only honored when the caller
// marks it trusted.
type AnchorUpdate struct {
	ServerTimeEpochMs *int64
	MediaTimeSec      float64
}
