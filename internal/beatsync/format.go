// Package beatsync implements the bar-to-time synchronization core: the
// .tabsync document codec, the tap-recording state machine that builds a
// marker list by ear, and the interpolation engine that derives a notation
// cursor position from a freely seekable audio clock.
package beatsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"tabsync/pkg/models"
)

const (
	// Extension is the file extension convention for sync documents.
	Extension = ".tabsync"

	// CurrentVersion is the document version written on export. Version 1
	// documents predate the version field and carry the same marker shape.
	CurrentVersion = 2
)

// ErrBadFormat marks a document that failed structural parsing or validation.
// Imports are atomic: a document that fails with ErrBadFormat has changed no
// in-memory state.
var ErrBadFormat = errors.New("malformed sync document")

// Parse reads and validates a .tabsync document.
func Parse(r io.Reader) (*models.SyncMapping, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading sync document: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes decodes a .tabsync document. A document without a version field
// is accepted as version 1. The markers array is mandatory; everything else
// degrades to zero values.
func ParseBytes(data []byte) (*models.SyncMapping, error) {
	var m models.SyncMapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}

	if m.Markers == nil {
		return nil, fmt.Errorf("%w: missing markers array", ErrBadFormat)
	}
	if m.Version == 0 {
		m.Version = 1
	}

	if err := ValidateStructure(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Marshal serializes m in the canonical two-space indented form, stamping the
// current version and a creation time if the snapshot has none.
func Marshal(m *models.SyncMapping) ([]byte, error) {
	doc := *m
	doc.Version = CurrentVersion
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.Markers == nil {
		doc.Markers = []models.BeatMarker{}
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding sync document: %w", err)
	}
	return append(data, '\n'), nil
}

// Write serializes m to w in the canonical form.
func Write(w io.Writer, m *models.SyncMapping) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing sync document: %w", err)
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ExportFilename derives a download filename from a mapping title, replacing
// every non-alphanumeric character and appending the .tabsync extension.
func ExportFilename(title string) string {
	if title == "" {
		title = "Untitled"
	}
	return unsafeFilenameChars.ReplaceAllString(title, "_") + Extension
}
