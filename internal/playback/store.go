package playback

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// State is the single source of truth for synchronized playback. The server
// owns exactly one instance; it lives for the lifetime of the process and is
// never persisted.
type State struct {
	Scene        SceneID `json:"scene"`
	CueIndex     int     `json:"cueIndex"`
	PlaybackRate float64 `json:"playbackRate"`
	IsPaused     bool    `json:"isPaused"`
	Anchor       Anchor  `json:"anchor"`
}

// Update is a partial state change. Nil fields are left untouched, which is
// what distinguishes "no seek requested" from "seek to zero".
type Update struct {
	Scene        *SceneID
	CueIndex     *int
	PlaybackRate *float64
	IsPaused     *bool
	Anchor       *AnchorUpdate

	// TrustAnchorTime keeps the client-supplied anchor timestamp instead of
	// restamping with server time. Only cue advances set it: the operator
	// console pre-computes the lead time for those.
	TrustAnchorTime bool
}

// Store holds the playback state behind a controlled mutation API. There is a
// single logical writer; the mutex only serializes HTTP and WebSocket handler
// goroutines against each other.
type Store struct {
	clock clockwork.Clock

	mu    sync.Mutex
	state State
}

// NewStore returns a store with the boot defaults: scene "1", cue 0, normal
// rate, paused, anchored at media time zero as of now.
func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock: clock,
		state: State{
			Scene:        "1",
			CueIndex:     0,
			PlaybackRate: 1.0,
			IsPaused:     true,
			Anchor: Anchor{
				ServerTimeEpochMs: clock.Now().UnixMilli(),
				MediaTimeSec:      0,
			},
		},
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Apply merges the fields present in u into the state and reconciles the
// anchor, returning the resulting snapshot. The anchor is always refreshed:
// a stale anchor paired with a new pause/resume/rate value would make every
// client project from the wrong reference point.
func (s *Store) Apply(u Update) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Scene != nil {
		s.state.Scene = *u.Scene
	}
	if u.CueIndex != nil {
		s.state.CueIndex = *u.CueIndex
	}
	if u.PlaybackRate != nil {
		s.state.PlaybackRate = *u.PlaybackRate
	}
	if u.IsPaused != nil {
		s.state.IsPaused = *u.IsPaused
	}
	s.state.Anchor = s.reconcileAnchor(u.Anchor, u.TrustAnchorTime)

	log.Debug().
		Str("scene", string(s.state.Scene)).
		Int("cue_index", s.state.CueIndex).
		Float64("rate", s.state.PlaybackRate).
		Bool("paused", s.state.IsPaused).
		Float64("media_time_sec", s.state.Anchor.MediaTimeSec).
		Msg("playback state applied")

	return s.state
}

// reconcileAnchor implements the anchor replacement rules. With no anchor in
// the update, media time freezes at its last known value while the timestamp
// resets to now; this is how pause/resume without an explicit seek works.
func (s *Store) reconcileAnchor(in *AnchorUpdate, trustClientTime bool) Anchor {
	now := s.clock.Now().UnixMilli()
	if in == nil {
		return Anchor{
			ServerTimeEpochMs: now,
			MediaTimeSec:      s.state.Anchor.MediaTimeSec,
		}
	}

	ts := now
	if trustClientTime && in.ServerTimeEpochMs != nil {
		ts = *in.ServerTimeEpochMs
	}
	return Anchor{
		ServerTimeEpochMs: ts,
		MediaTimeSec:      in.MediaTimeSec,
	}
}
