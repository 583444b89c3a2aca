package client

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SimulatedElement is a MediaElement whose playhead advances with a clock
// instead of decoding audio. The headless listener drives one to follow a
// show, and tests use it to observe scheduling decisions.
type SimulatedElement struct {
	clock clockwork.Clock

	mu         sync.Mutex
	basisAt    time.Time
	basisMedia float64
	rate       float64
	playing    bool
}

// NewSimulatedElement returns a stopped element at position zero with rate 1.
func NewSimulatedElement(clock clockwork.Clock) *SimulatedElement {
	return &SimulatedElement{
		clock:   clock,
		basisAt: clock.Now(),
		rate:    1.0,
	}
}

// CurrentTime returns the playhead position in seconds.
func (e *SimulatedElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

// SetCurrentTime seeks the playhead.
func (e *SimulatedElement) SetCurrentTime(sec float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.basisMedia = sec
	e.basisAt = e.clock.Now()
}

// SetPlaybackRate changes the advance rate without moving the playhead.
func (e *SimulatedElement) SetPlaybackRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rebaseLocked()
	e.rate = rate
}

// Play starts the playhead advancing.
func (e *SimulatedElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rebaseLocked()
	e.playing = true
	return nil
}

// Pause freezes the playhead in place.
func (e *SimulatedElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rebaseLocked()
	e.playing = false
}

// Playing reports whether the element is advancing.
func (e *SimulatedElement) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *SimulatedElement) positionLocked() float64 {
	if !e.playing {
		return e.basisMedia
	}
	elapsed := e.clock.Now().Sub(e.basisAt).Seconds()
	return e.basisMedia + elapsed*e.rate
}

// rebaseLocked folds elapsed playback into the basis so a rate or play-state
// change measures from the current position.
func (e *SimulatedElement) rebaseLocked() {
	e.basisMedia = e.positionLocked()
	e.basisAt = e.clock.Now()
}
