package models

import "time"

// TrackInfo describes one track of a loaded score, as reported by the
// notation engine.
type TrackInfo struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Instrument string `json:"instrument,omitempty"`
}

// Score is the summary of a parsed tab file: the notation engine parses the
// raw bytes and reports this shape once its score-loaded signal fires.
type Score struct {
	Title     string      `json:"title"`
	Artist    string      `json:"artist"`
	TotalBars int         `json:"totalBars"`
	Tracks    []TrackInfo `json:"tracks"`
}

// BarTicks is the notation engine's tick range for a single bar.
type BarTicks struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// CursorState is the derived playback cursor position. It is recomputed from
// (mapping, currentTime) on every position update and is never authoritative.
type CursorState struct {
	Time      float64   `json:"time"`
	Bar       BarNumber `json:"bar"`
	Progress  float64   `json:"progress"`
	Tick      int       `json:"tick"`
	TickKnown bool      `json:"tickKnown"`
	UpdatedAt time.Time `json:"updatedAt"`
}
