package client

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/stagecue/stagecue/internal/playback"
)

// MediaElement is the pausable audio surface the scheduler drives. A browser
// audio tag, the simulated element, or anything else with a seekable playhead
// satisfies it.
type MediaElement interface {
	CurrentTime() float64
	SetCurrentTime(sec float64)
	SetPlaybackRate(rate float64)
	Play() error
	Pause()
}

const (
	// DefaultStartThreshold is the minimum future lead on an anchor worth
	// waiting out with a timer rather than playing immediately.
	DefaultStartThreshold = 60 * time.Millisecond

	// DefaultResyncTolerance is the drift, in seconds, beyond which an
	// already-playing element is snapped to the projected position. Within
	// it the playhead is left alone: an audible micro-adjustment is worse
	// than an occasional jump during narration.
	DefaultResyncTolerance = 0.5
)

// TargetTime projects the media position implied by an anchor at the given
// server-clock instant. Before the anchor's instant no time has elapsed, so
// the projection is the anchor's media time itself.
func TargetTime(anchor playback.Anchor, playbackRate float64, serverNowMs float64) float64 {
	elapsed := math.Max(0, (serverNowMs-float64(anchor.ServerTimeEpochMs))/1000) * playbackRate
	return anchor.MediaTimeSec + elapsed
}

// SchedulerConfig holds the scheduler's tuning knobs. Zero values fall back
// to the defaults.
type SchedulerConfig struct {
	StartThreshold  time.Duration
	ResyncTolerance float64
}

// Scheduler converges a local media element on the server's timeline using
// the latest state, its anchor, and the estimated clock offset.
type Scheduler struct {
	clock           clockwork.Clock
	media           MediaElement
	startThreshold  time.Duration
	resyncTolerance float64

	mu      sync.Mutex
	pending *pendingStart
}

// pendingStart is a delayed play waiting out an anchor's lead time. The
// cancel channel releases the waiting goroutine when a newer state supersedes
// the start.
type pendingStart struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

// NewScheduler returns a scheduler for the given media element using the
// default start threshold and resync tolerance.
func NewScheduler(clock clockwork.Clock, media MediaElement) *Scheduler {
	return NewSchedulerWithConfig(clock, media, SchedulerConfig{})
}

// NewSchedulerWithConfig returns a scheduler with explicit tuning.
func NewSchedulerWithConfig(clock clockwork.Clock, media MediaElement, config SchedulerConfig) *Scheduler {
	if config.StartThreshold <= 0 {
		config.StartThreshold = DefaultStartThreshold
	}
	if config.ResyncTolerance <= 0 {
		config.ResyncTolerance = DefaultResyncTolerance
	}
	return &Scheduler{
		clock:           clock,
		media:           media,
		startThreshold:  config.StartThreshold,
		resyncTolerance: config.ResyncTolerance,
	}
}

// ApplyState reacts to a fresh playback state. Paused state pauses the
// element and pins the playhead to the anchor's media time with no elapsed
// projection. Playing state seeks to the projected target and starts
// playback, delaying the play call when the anchor is still in the future so
// every client starts at the same instant.
func (s *Scheduler) ApplyState(ctx context.Context, state playback.State, offsetMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelPendingLocked()

	if state.IsPaused {
		s.media.Pause()
		s.media.SetCurrentTime(state.Anchor.MediaTimeSec)
		return
	}

	s.media.SetPlaybackRate(state.PlaybackRate)

	serverNow := float64(s.clock.Now().UnixMilli()) + offsetMs
	target := TargetTime(state.Anchor, state.PlaybackRate, serverNow)
	s.media.SetCurrentTime(math.Max(0, target))

	startDelay := time.Duration(float64(state.Anchor.ServerTimeEpochMs)-serverNow) * time.Millisecond
	if startDelay <= s.startThreshold {
		s.play()
		return
	}

	// The anchor is in the future: its lead time has not elapsed yet. Hold
	// the play call until the anchored instant.
	pending := &pendingStart{
		timer:  s.clock.NewTimer(startDelay),
		cancel: make(chan struct{}),
	}
	s.pending = pending
	go func() {
		select {
		case <-pending.timer.Chan():
			// A newer state may have superseded this start between the
			// timer firing and the lock; play only while still current.
			s.mu.Lock()
			current := s.pending == pending
			if current {
				s.pending = nil
			}
			s.mu.Unlock()
			if current {
				s.play()
			}
		case <-pending.cancel:
			stopAndDrainTimer(pending.timer)
		case <-ctx.Done():
			stopAndDrainTimer(pending.timer)
		}
	}()
}

// Resync checks an already-playing element against the projected position and
// snaps the playhead only when drift exceeds the tolerance.
func (s *Scheduler) Resync(state playback.State, offsetMs float64) {
	if state.IsPaused {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	serverNow := float64(s.clock.Now().UnixMilli()) + offsetMs
	target := TargetTime(state.Anchor, state.PlaybackRate, serverNow)
	drift := s.media.CurrentTime() - target
	if math.Abs(drift) <= s.resyncTolerance {
		return
	}

	log.Debug().
		Float64("drift_sec", drift).
		Float64("target_sec", target).
		Msg("snapping playhead to projected position")
	s.media.SetCurrentTime(math.Max(0, target))
}

// Stop cancels any pending delayed start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPendingLocked()
}

func (s *Scheduler) cancelPendingLocked() {
	if s.pending != nil {
		close(s.pending.cancel)
		s.pending = nil
	}
}

// play starts the element, swallowing rejections. A refused play is typically
// a transient permission issue the user resolves with a gesture; rolling back
// state would only desynchronize further.
func (s *Scheduler) play() {
	if err := s.media.Play(); err != nil {
		log.Debug().Err(err).Msg("media play rejected")
	}
}

// stopAndDrainTimer stops a timer and drains its channel so the goroutine
// waiting on it cannot leak, per the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
