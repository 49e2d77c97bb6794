package session

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"tabsync/internal/beatsync"
	"tabsync/internal/engine"
	"tabsync/pkg/models"
)

// ErrNoMapping is returned for playback operations before a sync mapping is
// loaded.
var ErrNoMapping = errors.New("no sync mapping loaded")

// PlayerSession replays a loaded mapping: it derives the notation cursor
// from the audio clock the client reports and never writes the mapping. The
// notation engine's own synthesized audio is muted client-side; only its
// cursor and tick table are used.
type PlayerSession struct {
	mu        sync.Mutex
	logger    *logrus.Logger
	mapping   *models.SyncMapping
	gate      engine.ReadyGate
	notation  *RemoteNotation
	transport *RemoteTransport
	cursor    *CursorBroadcaster

	currentBar models.BarNumber // last published bar, 0 before the first marker
}

// PlayerStatus is the wire snapshot of a player session.
type PlayerStatus struct {
	Title       string           `json:"title"`
	Artist      string           `json:"artist"`
	TotalBars   int              `json:"totalBars"`
	MarkerCount int              `json:"markerCount"`
	GPFile      string           `json:"gpFile,omitempty"`
	AudioFile   string           `json:"audioFile,omitempty"`
	Ready       bool             `json:"ready"`
	ScoreLoaded bool             `json:"scoreLoaded"`
	PlayerReady bool             `json:"playerReady"`
	Duration    float64          `json:"duration"`
	CurrentBar  models.BarNumber `json:"currentBar"`
}

// CursorFrame is one answer to a position report: the interpolated cursor,
// plus the bar number only when it changed since the previous frame (the
// display updates on change only), plus any queued seek for the client to
// apply.
type CursorFrame struct {
	Cursor     models.CursorState `json:"cursor"`
	BarChanged bool               `json:"barChanged,omitempty"`
	Bar        models.BarNumber   `json:"bar,omitempty"`
	SeekTo     *float64           `json:"seekTo,omitempty"`
}

// NewPlayerSession creates a player with nothing loaded.
func NewPlayerSession(logger *logrus.Logger) *PlayerSession {
	return &PlayerSession{
		logger:    logger,
		notation:  &RemoteNotation{},
		transport: &RemoteTransport{},
		cursor:    NewCursorBroadcaster(),
	}
}

// LoadMapping installs a structurally valid mapping, read-only from here on.
// If the score is already loaded the mapping is cross-checked against its
// actual bar count; a mismatch rejects the load and keeps prior state.
func (p *PlayerSession) LoadMapping(m *models.SyncMapping) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if score, ok := p.notation.Score(); ok {
		if err := beatsync.CheckAgainstScore(m, score.TotalBars); err != nil {
			return err
		}
	}
	p.mapping = m
	p.currentBar = 0

	p.logger.WithFields(logrus.Fields{
		"title":   m.Title,
		"markers": len(m.Markers),
		"version": m.Version,
	}).Info("Loaded sync mapping in player")
	return nil
}

// HandleScoreLoaded consumes the notation engine's score-loaded message. A
// score whose bar count the loaded mapping outruns is refused: the user
// paired the wrong tab file and must pick the one the mapping names.
func (p *PlayerSession) HandleScoreLoaded(score *models.Score) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mapping != nil {
		if err := beatsync.CheckAgainstScore(p.mapping, score.TotalBars); err != nil {
			return err
		}
	}
	p.notation.SetScoreInfo(score)
	p.gate.Fire(engine.EventScoreLoaded)
	return nil
}

// HandlePlayerReady consumes the notation engine's player-ready message and
// its per-bar tick table.
func (p *PlayerSession) HandlePlayerReady(ticks beatsync.TickMap) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.notation.SetTickMap(ticks)
	p.gate.Fire(engine.EventPlayerReady)
}

// HandleAudioReady consumes the audio engine's decode-finished message.
func (p *PlayerSession) HandleAudioReady(duration float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.transport.SetDuration(duration)
}

// Ready reports whether playback operations are enabled: a mapping with
// markers plus both notation readiness signals plus a decoded track.
func (p *PlayerSession) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready()
}

func (p *PlayerSession) ready() bool {
	_, hasAudio := p.transport.Duration()
	return p.mapping != nil && len(p.mapping.Markers) > 0 && p.gate.Ready() && hasAudio
}

// UpdatePosition consumes one transport clock sample and derives the cursor
// frame for it. Before the first marker the cursor is undefined and only a
// neutral frame is returned. Called at display-refresh cadence while the
// client is playing, and once per seek.
func (p *PlayerSession) UpdatePosition(pos float64, playing bool) CursorFrame {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.transport.ReportPosition(pos, playing)
	return p.frameAt(pos)
}

// frameAt resolves the cursor for time t (must be called with the lock held).
func (p *PlayerSession) frameAt(t float64) CursorFrame {
	var frame CursorFrame
	if target, ok := p.transport.TakePendingSeek(); ok {
		frame.SeekTo = &target
	}
	if p.mapping == nil {
		return frame
	}

	duration, _ := p.transport.Duration()
	loc, ok := beatsync.Locate(p.mapping.Markers, t, duration)
	if !ok {
		frame.Cursor = models.CursorState{Time: t}
		return frame
	}

	state := models.CursorState{
		Time:     t,
		Bar:      loc.Bar,
		Progress: loc.Progress,
	}
	if tick, ok := loc.Tick(p.notation.ticks); ok {
		p.notation.SetTick(tick)
		state.Tick = tick
		state.TickKnown = true
	}

	// The bar-number display only updates on change.
	if loc.Bar != p.currentBar {
		p.currentBar = loc.Bar
		frame.BarChanged = true
		frame.Bar = loc.Bar
	}

	frame.Cursor = state
	p.cursor.Publish(state)
	return frame
}

// Seek moves the transport clock and recomputes the cursor immediately.
func (p *PlayerSession) Seek(t float64) CursorFrame {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.transport.Seek(t)
	return p.frameAt(p.transport.Position())
}

// PreviousBar seeks to the last marker before the current position (with the
// shared epsilon). With no marker before it, the transport clamps to the
// start of the track; already at the start, nothing happens.
func (p *PlayerSession) PreviousBar() (CursorFrame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mapping == nil || len(p.mapping.Markers) == 0 {
		return CursorFrame{}, false
	}

	target := beatsync.PrevMarker(p.mapping.Markers, p.transport.Position())
	if target == p.transport.Position() {
		return CursorFrame{}, false // clamped in place, no seek
	}
	p.transport.Seek(target)
	return p.frameAt(target), true
}

// NextBar seeks to the first marker after the current position. Past the
// last marker the position is left unchanged.
func (p *PlayerSession) NextBar() (CursorFrame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mapping == nil || len(p.mapping.Markers) == 0 {
		return CursorFrame{}, false
	}

	target, ok := beatsync.NextMarker(p.mapping.Markers, p.transport.Position())
	if !ok {
		return CursorFrame{}, false
	}
	p.transport.Seek(target)
	return p.frameAt(target), true
}

// SetRate applies a playback-rate multiplier to the transport.
func (p *PlayerSession) SetRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.transport.SetRate(rate)
}

// Stop rewinds to the start and publishes a neutral cursor. The client tears
// its animation loop down on stop; no background updates continue here
// either.
func (p *PlayerSession) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.transport.Seek(0)
	p.transport.ReportPosition(0, false)
	p.transport.TakePendingSeek()
	p.currentBar = 0
	p.cursor.Publish(models.CursorState{})
}

// Cursor exposes the broadcaster for feed subscriptions.
func (p *PlayerSession) Cursor() *CursorBroadcaster {
	return p.cursor
}

// Status returns the wire snapshot for the status endpoint.
func (p *PlayerSession) Status() PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := PlayerStatus{
		Ready:       p.ready(),
		ScoreLoaded: p.gate.ScoreLoaded(),
		PlayerReady: p.gate.PlayerReady(),
		CurrentBar:  p.currentBar,
	}
	st.Duration, _ = p.transport.Duration()

	if p.mapping != nil {
		st.Title = p.mapping.Title
		st.Artist = p.mapping.Artist
		st.TotalBars = p.mapping.TotalBars
		st.MarkerCount = len(p.mapping.Markers)
		if p.mapping.GPFile != nil {
			st.GPFile = *p.mapping.GPFile
		}
		if p.mapping.AudioFile != nil {
			st.AudioFile = *p.mapping.AudioFile
		}
	}
	return st
}
