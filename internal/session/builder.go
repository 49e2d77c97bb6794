package session

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"tabsync/internal/beatsync"
	"tabsync/pkg/models"
)

// ErrNoMarkers is returned when an export is requested before any bar has
// been marked.
var ErrNoMarkers = errors.New("no markers recorded")

// BuilderSession owns one in-progress sync mapping: the tap recorder, the
// engine proxies and the export metadata. It is the mapping's only writer
// for the lifetime of the session; there is no other concurrent writer by
// construction, the mutex only serializes HTTP callbacks.
type BuilderSession struct {
	mu        sync.Mutex
	logger    *logrus.Logger
	recorder  *beatsync.Recorder
	notation  *RemoteNotation
	transport *RemoteTransport

	title     string
	artist    string
	gpFile    *string
	audioFile *string
}

// BuilderStatus is the wire snapshot of a builder session.
type BuilderStatus struct {
	State       string              `json:"state"`
	NextBar     models.BarNumber    `json:"nextBar"`
	TotalBars   int                 `json:"totalBars"`
	MarkerCount int                 `json:"markerCount"`
	Markers     []models.BeatMarker `json:"markers"`
	Title       string              `json:"title"`
	Artist      string              `json:"artist"`
	GPFile      string              `json:"gpFile,omitempty"`
	AudioFile   string              `json:"audioFile,omitempty"`
	Duration    float64             `json:"duration"`
}

// NewBuilderSession creates a builder with no files loaded.
func NewBuilderSession(logger *logrus.Logger) *BuilderSession {
	return &BuilderSession{
		logger:    logger,
		recorder:  beatsync.NewRecorder(),
		notation:  &RemoteNotation{},
		transport: &RemoteTransport{},
	}
}

// HandleScoreLoaded consumes the notation engine's score-loaded message. The
// score's metadata prefills the export fields unless the user already set
// them. An error means markers resumed from an earlier mapping did not fit
// the new score and were discarded.
func (b *BuilderSession) HandleScoreLoaded(score *models.Score, filename string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.notation.SetScoreInfo(score)
	if filename != "" {
		name := filename
		b.gpFile = &name
	}
	if b.title == "" {
		b.title = score.Title
	}
	if b.artist == "" {
		b.artist = score.Artist
	}

	if err := b.recorder.SetScore(score.TotalBars); err != nil {
		b.logger.WithError(err).WithField("total_bars", score.TotalBars).Warn("Discarded resumed markers on score load")
		return err
	}
	return nil
}

// HandleAudioReady consumes the audio engine's decode-finished message.
func (b *BuilderSession) HandleAudioReady(duration float64, filename string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transport.SetDuration(duration)
	b.recorder.SetAudioReady(duration > 0)
	if filename != "" {
		name := filename
		b.audioFile = &name
	}
}

// ReportPosition records a transport clock sample from the client. Tap reads
// this clock, so recording works both mid-playback and paused.
func (b *BuilderSession) ReportPosition(pos float64, playing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transport.ReportPosition(pos, playing)
}

// Tap records a marker for the next unmarked bar at the transport's current
// position. A tap outside Ready/Recording is silently ignored.
func (b *BuilderSession) Tap() (models.BeatMarker, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	mk, ok := b.recorder.RecordTap(b.transport.Position())
	if ok {
		b.logger.WithFields(logrus.Fields{
			"bar":  mk.Bar,
			"time": mk.Time,
		}).Debug("Recorded beat marker")
	}
	return mk, ok
}

// Undo removes the last marker.
func (b *BuilderSession) Undo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.recorder.Undo()
}

// Clear drops all markers. The confirmation contract for this destructive
// action is enforced at the HTTP boundary.
func (b *BuilderSession) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.recorder.Clear()
}

// SetMetadata overrides the export title/artist fields.
func (b *BuilderSession) SetMetadata(title, artist string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setMetadata(title, artist)
}

func (b *BuilderSession) setMetadata(title, artist string) {
	if title != "" {
		b.title = title
	}
	if artist != "" {
		b.artist = artist
	}
}

// LoadMapping resumes editing a previously exported mapping, replacing the
// marker list wholesale. The document's file hints are echoed so the user
// can supply matching files; they are never trusted for bar counts.
func (b *BuilderSession) LoadMapping(m *models.SyncMapping) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.recorder.LoadExisting(m.Markers); err != nil {
		return err
	}
	if m.Title != "" {
		b.title = m.Title
	}
	if m.Artist != "" {
		b.artist = m.Artist
	}
	b.gpFile = m.GPFile
	b.audioFile = m.AudioFile

	b.logger.WithFields(logrus.Fields{
		"markers":  len(m.Markers),
		"next_bar": b.recorder.NextBar(),
	}).Info("Resumed sync mapping in builder")
	return nil
}

// Export assembles the immutable export snapshot. The optional title/artist
// override the prefilled metadata.
func (b *BuilderSession) Export(title, artist string) (*models.SyncMapping, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setMetadata(title, artist)
	if len(b.recorder.Markers()) == 0 {
		return nil, ErrNoMarkers
	}

	name := b.title
	if name == "" {
		name = "Untitled"
	}
	artistName := b.artist
	if artistName == "" {
		artistName = "Unknown Artist"
	}
	return b.recorder.Snapshot(name, artistName, b.gpFile, b.audioFile), nil
}

// Status returns the wire snapshot for the status endpoint.
func (b *BuilderSession) Status() BuilderStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	duration, _ := b.transport.Duration()
	st := BuilderStatus{
		State:       b.recorder.State().String(),
		NextBar:     b.recorder.NextBar(),
		TotalBars:   b.recorder.TotalBars(),
		MarkerCount: len(b.recorder.Markers()),
		Markers:     b.recorder.Markers(),
		Title:       b.title,
		Artist:      b.artist,
		Duration:    duration,
	}
	if b.gpFile != nil {
		st.GPFile = *b.gpFile
	}
	if b.audioFile != nil {
		st.AudioFile = *b.audioFile
	}
	return st
}
