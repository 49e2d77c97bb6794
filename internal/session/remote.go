package session

import (
	"tabsync/internal/beatsync"
	"tabsync/internal/engine"
	"tabsync/pkg/models"
)

var (
	_ engine.Notation  = (*RemoteNotation)(nil)
	_ engine.Transport = (*RemoteTransport)(nil)
)

// RemoteNotation is the server-side proxy for the notation engine running in
// the browser front-end. The client reports the engine's lifecycle results
// (parsed score summary, per-bar tick table); cursor pushes are buffered here
// and delivered to the client in the next cursor frame. Not safe for
// concurrent use — the owning session serializes access.
type RemoteNotation struct {
	score *models.Score
	ticks beatsync.TickMap
	tick  int
}

// SetScoreInfo records the parsed score summary reported by the client.
func (n *RemoteNotation) SetScoreInfo(score *models.Score) {
	n.score = score
}

// SetTickMap records the per-bar tick table reported once the engine's
// player-ready signal fires.
func (n *RemoteNotation) SetTickMap(ticks beatsync.TickMap) {
	n.ticks = ticks
}

// Score implements engine.Notation.
func (n *RemoteNotation) Score() (*models.Score, bool) {
	if n.score == nil {
		return nil, false
	}
	return n.score, true
}

// TickRange implements engine.Notation.
func (n *RemoteNotation) TickRange(bar models.BarNumber) (models.BarTicks, bool) {
	bt, ok := n.ticks[bar]
	return bt, ok
}

// SetTick implements engine.Notation. The tick is relayed to the real engine
// through the next cursor frame rather than pushed synchronously.
func (n *RemoteNotation) SetTick(tick int) {
	n.tick = tick
}

// Tick returns the last pushed cursor tick.
func (n *RemoteNotation) Tick() int {
	return n.tick
}

// TickMapSize returns how many bars the tick table covers, 0 before
// player-ready.
func (n *RemoteNotation) TickMapSize() int {
	return len(n.ticks)
}

// RemoteTransport is the server-side proxy for the audio engine. The client
// reports the transport clock at display-refresh cadence while playing (and
// on every seek); server-initiated seeks and rate changes are queued for the
// client to apply. Not safe for concurrent use — the owning session
// serializes access.
type RemoteTransport struct {
	duration    float64
	hasDuration bool
	position    float64
	playing     bool
	rate        float64
	pendingSeek *float64
}

// SetDuration records the decoded track length reported by the client.
func (t *RemoteTransport) SetDuration(d float64) {
	t.duration = d
	t.hasDuration = true
}

// ReportPosition records a transport clock sample from the client.
func (t *RemoteTransport) ReportPosition(pos float64, playing bool) {
	t.position = pos
	t.playing = playing
}

// Duration implements engine.Transport.
func (t *RemoteTransport) Duration() (float64, bool) {
	return t.duration, t.hasDuration
}

// Position implements engine.Transport.
func (t *RemoteTransport) Position() float64 {
	return t.position
}

// Playing implements engine.Transport.
func (t *RemoteTransport) Playing() bool {
	return t.playing
}

// Seek implements engine.Transport. The target is applied optimistically to
// the proxy clock and queued for the client.
func (t *RemoteTransport) Seek(target float64) {
	if target < 0 {
		target = 0
	}
	if t.hasDuration && target > t.duration {
		target = t.duration
	}
	t.position = target
	t.pendingSeek = &target
}

// SetRate implements engine.Transport.
func (t *RemoteTransport) SetRate(rate float64) {
	t.rate = rate
}

// Rate returns the last requested playback-rate multiplier, 0 when never set.
func (t *RemoteTransport) Rate() float64 {
	return t.rate
}

// TakePendingSeek pops the queued seek target, if any. The client applies it
// and resumes reporting positions from there.
func (t *RemoteTransport) TakePendingSeek() (float64, bool) {
	if t.pendingSeek == nil {
		return 0, false
	}
	target := *t.pendingSeek
	t.pendingSeek = nil
	return target, true
}
