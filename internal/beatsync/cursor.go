package beatsync

import (
	"sort"

	"tabsync/pkg/models"
)

// SeekEpsilon keeps prev/next-bar navigation from re-landing on the marker
// boundary the transport is already sitting on.
const SeekEpsilon = 0.1

// TickMap holds the notation engine's per-bar tick ranges. It is built from
// the engine's tick cache once its player-ready signal fires.
type TickMap map[models.BarNumber]models.BarTicks

// Position is the resolved cursor location for one instant of audio time:
// the bar whose marker most recently started, and how far through its time
// interval the clock is.
type Position struct {
	Bar      models.BarNumber
	Start    float64 // the bar's marker time
	End      float64 // next marker's time, or the total audio duration
	Progress float64 // 0..1 within [Start, End]
}

// Locate resolves the current bar for time t against markers ordered by
// ascending time. Ties resolve to the marker with the larger index (the most
// recently started bar). ok is false when t precedes the first marker or the
// mapping is empty; the cursor shows nothing there.
func Locate(markers []models.BeatMarker, t, duration float64) (Position, bool) {
	if len(markers) == 0 {
		return Position{}, false
	}

	// Greatest i such that markers[i].Time <= t.
	i := sort.Search(len(markers), func(j int) bool { return markers[j].Time > t }) - 1
	if i < 0 {
		return Position{}, false
	}

	pos := Position{
		Bar:   markers[i].Bar,
		Start: markers[i].Time,
		End:   duration,
	}
	if i+1 < len(markers) {
		pos.End = markers[i+1].Time
	}
	pos.Progress = barProgress(t, pos.Start, pos.End)
	return pos, true
}

// barProgress clamps to [0, 1]. A zero-length interval (two markers tapped
// at the same instant) is defined as progress 0 instead of dividing by zero.
func barProgress(t, start, end float64) float64 {
	if end <= start {
		return 0
	}
	frac := (t - start) / (end - start)
	if frac < 0 {
		return 0
	}
	if frac > 1 {
		return 1
	}
	return frac
}

// Tick maps the resolved position linearly onto the notation engine's tick
// range for that bar. ok is false when the tick map has no entry for the bar
// (player not ready yet, or the mapping outruns the score) and the caller
// skips the cursor push.
func (p Position) Tick(ticks TickMap) (int, bool) {
	bt, ok := ticks[p.Bar]
	if !ok {
		return 0, false
	}
	return bt.Start + int(float64(bt.End-bt.Start)*p.Progress), true
}

// PrevMarker finds the time of the last marker strictly before t (with the
// seek epsilon applied). When no marker qualifies it clamps to the start of
// the track rather than erroring.
func PrevMarker(markers []models.BeatMarker, t float64) float64 {
	for i := len(markers) - 1; i >= 0; i-- {
		if markers[i].Time < t-SeekEpsilon {
			return markers[i].Time
		}
	}
	return 0
}

// NextMarker finds the time of the first marker strictly after t (with the
// seek epsilon applied). ok is false past the last marker; the caller leaves
// the transport position unchanged.
func NextMarker(markers []models.BeatMarker, t float64) (float64, bool) {
	for _, mk := range markers {
		if mk.Time > t+SeekEpsilon {
			return mk.Time, true
		}
	}
	return 0, false
}
