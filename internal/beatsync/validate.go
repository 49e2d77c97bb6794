package beatsync

import (
	"errors"
	"fmt"

	"tabsync/pkg/models"
)

var (
	// ErrBarOutOfRange marks a mapping whose markers reference bars beyond
	// the bar count of the score it is being paired with.
	ErrBarOutOfRange = errors.New("marker bar exceeds score bar count")

	// ErrNonContiguous marks a marker list that is not exactly bars 1..n in
	// order, which the tap recorder requires to resume editing.
	ErrNonContiguous = errors.New("markers not contiguous from bar 1")
)

// ValidateStructure checks the invariants every sync document must satisfy
// regardless of which score it is later paired with: positive bar numbers,
// non-negative times, no duplicate bars, a sane bar count.
func ValidateStructure(m *models.SyncMapping) error {
	if m.TotalBars < 0 {
		return fmt.Errorf("%w: negative totalBars %d", ErrBadFormat, m.TotalBars)
	}

	seen := make(map[models.BarNumber]struct{}, len(m.Markers))
	for i, mk := range m.Markers {
		if !mk.Bar.Valid() {
			return fmt.Errorf("%w: marker %d has bar %d", ErrBadFormat, i, mk.Bar)
		}
		if mk.Time < 0 {
			return fmt.Errorf("%w: marker %d has negative time %g", ErrBadFormat, i, mk.Time)
		}
		if _, dup := seen[mk.Bar]; dup {
			return fmt.Errorf("%w: duplicate marker for bar %d", ErrBadFormat, mk.Bar)
		}
		seen[mk.Bar] = struct{}{}
	}
	return nil
}

// CheckAgainstScore verifies that every marker refers to a bar the freshly
// loaded score actually has. The mapping's own totalBars field is a hint
// captured at creation time; the score is authoritative. A mismatch here
// usually means the user paired the mapping with the wrong tab file.
func CheckAgainstScore(m *models.SyncMapping, totalBars int) error {
	for _, mk := range m.Markers {
		if int(mk.Bar) > totalBars {
			return fmt.Errorf("%w: marker for bar %d, score has %d bars", ErrBarOutOfRange, mk.Bar, totalBars)
		}
	}
	return nil
}

// checkContiguous verifies markers are exactly bars 1..len in order.
func checkContiguous(markers []models.BeatMarker) error {
	for i, mk := range markers {
		if mk.Bar.Index() != i {
			return fmt.Errorf("%w: position %d holds bar %d", ErrNonContiguous, i, mk.Bar)
		}
	}
	return nil
}
