package models

import "time"

// BarNumber identifies a notated measure by its 1-based position within a
// score. The zero value is not a valid bar; 0-based storage indices stay
// internal to the sync package.
type BarNumber int

// Valid reports whether b refers to a real bar.
func (b BarNumber) Valid() bool {
	return b >= 1
}

// Index returns the 0-based storage index for b.
func (b BarNumber) Index() int {
	return int(b) - 1
}

// BeatMarker is a single association between a notation bar and a point in
// the audio recording.
type BeatMarker struct {
	Bar  BarNumber `json:"bar"`
	Time float64   `json:"time"` // seconds from the start of the audio track
}

// SyncMapping is the portable artifact linking a tab file to an audio
// recording: the ordered marker list plus metadata. The file hints name the
// source files but never embed their content.
type SyncMapping struct {
	Version   int          `json:"version"`
	Title     string       `json:"title"`
	Artist    string       `json:"artist"`
	GPFile    *string      `json:"gpFile"`    // filename hint only
	AudioFile *string      `json:"audioFile"` // filename hint only
	TotalBars int          `json:"totalBars"`
	Markers   []BeatMarker `json:"markers"`
	CreatedAt time.Time    `json:"createdAt"`
}

// MarkerCount returns the number of recorded markers.
func (m *SyncMapping) MarkerCount() int {
	return len(m.Markers)
}

// MappingInfo is a library index entry for a stored .tabsync file.
type MappingInfo struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	GPFile      string    `json:"gpFile,omitempty"`
	AudioFile   string    `json:"audioFile,omitempty"`
	TotalBars   int       `json:"totalBars"`
	MarkerCount int       `json:"markerCount"`
	FilePath    string    `json:"-"` // don't expose file path to client
	FileSize    int64     `json:"fileSize"`
	CreatedAt   time.Time `json:"createdAt"`
}
