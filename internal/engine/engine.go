// Package engine defines the contracts for the two external collaborators —
// the notation engine that parses and renders tab files, and the audio
// transport that plays the recording. The real engines run in the browser
// front-end; the server programs against these interfaces so sessions can be
// driven by remote proxies in production and fakes in tests.
package engine

import (
	"fmt"

	"tabsync/pkg/models"
)

// Event is a discrete message from one of the external engines. Every
// callback the collaborators fire is modeled as one of these values so the
// session state machines consume an explicit message, not an implicit
// callback side effect.
type Event int

const (
	EventScoreLoaded    Event = iota // notation engine parsed the tab file
	EventPlayerReady                 // notation engine's tick cache is usable
	EventRenderFinished              // notation layout complete
	EventAudioReady                  // audio engine decoded the media
	EventPositionChanged             // transport clock advanced or seeked
)

func (e Event) String() string {
	switch e {
	case EventScoreLoaded:
		return "score-loaded"
	case EventPlayerReady:
		return "player-ready"
	case EventRenderFinished:
		return "render-finished"
	case EventAudioReady:
		return "audio-ready"
	case EventPositionChanged:
		return "position-changed"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Notation is the capability set consumed from the notation collaborator.
type Notation interface {
	// Score returns the parsed score summary. ok is false until the
	// score-loaded signal has fired.
	Score() (*models.Score, bool)

	// TickRange returns the engine's tick range for a bar. ok is false until
	// the player-ready signal has fired or when the bar is unknown.
	TickRange(bar models.BarNumber) (models.BarTicks, bool)

	// SetTick moves the engine's visual cursor without triggering its own
	// audio playback.
	SetTick(tick int)
}

// Transport is the capability set consumed from the audio collaborator.
type Transport interface {
	// Duration returns the decoded track length in seconds. ok is false
	// until the decode finishes.
	Duration() (float64, bool)

	// Position returns the current transport clock in seconds. Valid while
	// playing or paused.
	Position() float64

	// Playing reports whether the transport is currently advancing.
	Playing() bool

	// Seek moves the transport clock.
	Seek(t float64)

	// SetRate applies a playback-rate multiplier. Rate changes only scale
	// time; no pitch contract is implied.
	SetRate(rate float64)
}

// ReadyGate ANDs the notation engine's two independent readiness signals.
// Score parsing and player (tick cache) readiness fire separately and in
// either order; operations gated on the pair only enable once both have
// fired at least once.
type ReadyGate struct {
	scoreLoaded bool
	playerReady bool
}

// Fire records a readiness event. Events other than score-loaded and
// player-ready are ignored.
func (g *ReadyGate) Fire(ev Event) {
	switch ev {
	case EventScoreLoaded:
		g.scoreLoaded = true
	case EventPlayerReady:
		g.playerReady = true
	}
}

// Ready reports whether both signals have fired.
func (g *ReadyGate) Ready() bool {
	return g.scoreLoaded && g.playerReady
}

// ScoreLoaded reports whether the score-loaded signal has fired.
func (g *ReadyGate) ScoreLoaded() bool {
	return g.scoreLoaded
}

// PlayerReady reports whether the player-ready signal has fired.
func (g *ReadyGate) PlayerReady() bool {
	return g.playerReady
}
