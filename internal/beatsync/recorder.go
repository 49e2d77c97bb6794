package beatsync

import (
	"fmt"
	"time"

	"tabsync/pkg/models"
)

// State enumerates the tap-recording machine's phases. The phase is always
// derived from the loaded score, the audio readiness flag and the marker
// count; it is never stored.
type State int

const (
	StateEmpty     State = iota // tab and/or audio not loaded yet
	StateReady                  // both loaded, nothing recorded
	StateRecording              // some bars marked, some remaining
	StateComplete               // every bar has a timestamp
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateReady:
		return "ready"
	case StateRecording:
		return "recording"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Recorder converts a sequence of user tap events, each sampled against the
// live audio clock, into a validated beat marker sequence. Taps are single
// atomic appends; there is no batching or debouncing, so rapid taps are all
// recorded in arrival order. Recorder is not safe for concurrent use — the
// owning session serializes access.
type Recorder struct {
	totalBars  int
	markers    []models.BeatMarker
	scoreReady bool
	audioReady bool
}

// NewRecorder returns a recorder in the Empty state.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// SetScore records the bar count of the freshly loaded score. If markers
// resumed from an earlier session no longer fit the new score they are
// discarded and an ErrBarOutOfRange is returned so the caller can surface
// the mismatch; the recorder itself restarts cleanly either way.
func (r *Recorder) SetScore(totalBars int) error {
	r.totalBars = totalBars
	r.scoreReady = totalBars > 0

	if len(r.markers) > totalBars {
		dropped := len(r.markers)
		r.markers = r.markers[:0]
		return fmt.Errorf("%w: %d resumed markers, score has %d bars", ErrBarOutOfRange, dropped, totalBars)
	}
	return nil
}

// SetAudioReady flags whether the audio transport has a decoded track. Taps
// are allowed while the transport is playing or paused, but never before it
// has something loaded.
func (r *Recorder) SetAudioReady(ready bool) {
	r.audioReady = ready
}

// State derives the current phase.
func (r *Recorder) State() State {
	if !r.scoreReady || !r.audioReady {
		return StateEmpty
	}
	if len(r.markers) >= r.totalBars {
		return StateComplete
	}
	if len(r.markers) == 0 {
		return StateReady
	}
	return StateRecording
}

// NextBar is the bar awaiting the next timestamp. Markers are contiguous
// from bar 1 by construction, so this is always len(markers)+1.
func (r *Recorder) NextBar() models.BarNumber {
	return models.BarNumber(len(r.markers) + 1)
}

// TotalBars returns the loaded score's bar count, 0 when no score is loaded.
func (r *Recorder) TotalBars() int {
	return r.totalBars
}

// RecordTap appends a marker associating the next unmarked bar with the
// given clock position and advances. Outside Ready/Recording the tap is
// ignored (reported by the false return), not an error — the caller treats
// it as a disabled control.
func (r *Recorder) RecordTap(clock float64) (models.BeatMarker, bool) {
	switch r.State() {
	case StateReady, StateRecording:
	default:
		return models.BeatMarker{}, false
	}

	mk := models.BeatMarker{Bar: r.NextBar(), Time: clock}
	r.markers = append(r.markers, mk)
	return mk, true
}

// Undo removes the last-appended marker. No-op on an empty list.
func (r *Recorder) Undo() bool {
	if len(r.markers) == 0 {
		return false
	}
	r.markers = r.markers[:len(r.markers)-1]
	return true
}

// Clear drops every marker, returning the machine to Ready. Confirming the
// destructive action is the caller's contract, not the machine's.
func (r *Recorder) Clear() {
	r.markers = r.markers[:0]
}

// LoadExisting replaces the marker list wholesale to resume editing a
// previously exported mapping. Lists that are not contiguous from bar 1 are
// rejected, which keeps NextBar sound; lists larger than an already-loaded
// score are rejected as a wrong-file pairing. On error the current markers
// are untouched.
func (r *Recorder) LoadExisting(markers []models.BeatMarker) error {
	if err := checkContiguous(markers); err != nil {
		return err
	}
	if r.scoreReady && len(markers) > r.totalBars {
		return fmt.Errorf("%w: %d markers, score has %d bars", ErrBarOutOfRange, len(markers), r.totalBars)
	}
	r.markers = append(r.markers[:0], markers...)
	return nil
}

// Markers returns a copy of the recorded sequence in tap order.
func (r *Recorder) Markers() []models.BeatMarker {
	out := make([]models.BeatMarker, len(r.markers))
	copy(out, r.markers)
	return out
}

// Snapshot assembles the portable export artifact from current state.
func (r *Recorder) Snapshot(title, artist string, gpFile, audioFile *string) *models.SyncMapping {
	return &models.SyncMapping{
		Version:   CurrentVersion,
		Title:     title,
		Artist:    artist,
		GPFile:    gpFile,
		AudioFile: audioFile,
		TotalBars: r.totalBars,
		Markers:   r.Markers(),
		CreatedAt: time.Now().UTC(),
	}
}
