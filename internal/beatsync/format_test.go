package beatsync

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"

	"tabsync/pkg/models"
)

func TestRoundTrip(t *testing.T) {
	gp := "riff.gp5"
	audio := "riff-take3.mp3"
	original := &models.SyncMapping{
		Title:     "Riff",
		Artist:    "Garage Band",
		GPFile:    &gp,
		AudioFile: &audio,
		TotalBars: 3,
		Markers:   threeBarMapping,
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}

	var buf bytes.Buffer
	if err := Write(&buf, original); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	parsed, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse of exported document failed: %v", err)
	}

	// Round-trip law: import(export(M)).markers == M.markers.
	if !reflect.DeepEqual(parsed.Markers, original.Markers) {
		t.Errorf("markers after round trip = %+v, want %+v", parsed.Markers, original.Markers)
	}
	if parsed.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", parsed.Version, CurrentVersion)
	}
	if parsed.Title != "Riff" || parsed.Artist != "Garage Band" {
		t.Errorf("metadata lost: %q / %q", parsed.Title, parsed.Artist)
	}
	if parsed.GPFile == nil || *parsed.GPFile != gp {
		t.Errorf("gpFile hint lost: %v", parsed.GPFile)
	}
	if !parsed.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", parsed.CreatedAt, original.CreatedAt)
	}
}

func TestParseLegacyDocument(t *testing.T) {
	// Version 1 documents predate the version field.
	doc := `{
  "title": "Old Export",
  "totalBars": 2,
  "markers": [ { "bar": 1, "time": 0.0 }, { "bar": 2, "time": 1.5 } ]
}`

	m, err := ParseBytes([]byte(doc))
	if err != nil {
		t.Fatalf("ParseBytes failed on legacy document: %v", err)
	}
	if m.Version != 1 {
		t.Errorf("Version = %d, want 1 for legacy document", m.Version)
	}
	if len(m.Markers) != 2 {
		t.Errorf("marker count = %d, want 2", len(m.Markers))
	}
	if m.GPFile != nil || m.AudioFile != nil {
		t.Error("absent file hints should decode to nil")
	}
}

func TestParseNullFileHints(t *testing.T) {
	doc := `{"version":2,"title":"x","artist":"y","gpFile":null,"audioFile":null,"totalBars":1,"markers":[{"bar":1,"time":0}],"createdAt":"2026-01-02T03:04:05Z"}`
	m, err := ParseBytes([]byte(doc))
	if err != nil {
		t.Fatalf("ParseBytes failed: %v", err)
	}
	if m.GPFile != nil || m.AudioFile != nil {
		t.Error("null file hints should decode to nil")
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{"NotJSON", `{"title": "broken`},
		{"MissingMarkers", `{"version":2,"title":"x","totalBars":4}`},
		{"MarkersNotArray", `{"version":2,"markers":{"bar":1}}`},
		{"BarZero", `{"version":2,"totalBars":2,"markers":[{"bar":0,"time":0}]}`},
		{"NegativeTime", `{"version":2,"totalBars":2,"markers":[{"bar":1,"time":-0.5}]}`},
		{"DuplicateBar", `{"version":2,"totalBars":2,"markers":[{"bar":1,"time":0},{"bar":1,"time":1}]}`},
		{"NegativeTotalBars", `{"version":2,"totalBars":-1,"markers":[]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseBytes([]byte(tc.doc)); !errors.Is(err, ErrBadFormat) {
				t.Errorf("ParseBytes error = %v, want ErrBadFormat", err)
			}
		})
	}
}

func TestCheckAgainstScore(t *testing.T) {
	m := &models.SyncMapping{TotalBars: 3, Markers: threeBarMapping}

	if err := CheckAgainstScore(m, 3); err != nil {
		t.Errorf("CheckAgainstScore(3) = %v, want nil", err)
	}
	// Wrong tab file: score shorter than the mapping's bar references.
	if err := CheckAgainstScore(m, 2); !errors.Is(err, ErrBarOutOfRange) {
		t.Errorf("CheckAgainstScore(2) = %v, want ErrBarOutOfRange", err)
	}
}

func TestMarshalStampsDefaults(t *testing.T) {
	data, err := Marshal(&models.SyncMapping{Title: "t"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	m, err := ParseBytes(data)
	if err != nil {
		t.Fatalf("ParseBytes failed: %v", err)
	}
	if m.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", m.Version, CurrentVersion)
	}
	if m.CreatedAt.IsZero() {
		t.Error("CreatedAt not stamped on export")
	}
	if m.Markers == nil {
		t.Error("nil markers should export as an empty array")
	}
}

func TestExportFilename(t *testing.T) {
	testCases := []struct {
		title string
		want  string
	}{
		{"My Song", "My_Song.tabsync"},
		{"Högre & Lägre!", "H_gre___L_gre_.tabsync"},
		{"plain", "plain.tabsync"},
		{"", "Untitled.tabsync"},
	}

	for _, tc := range testCases {
		if got := ExportFilename(tc.title); got != tc.want {
			t.Errorf("ExportFilename(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}
