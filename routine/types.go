/*
Package routine implements versioned routine protocols.

PURPOSE:
  A routine is a chain of dated versions, each carrying the set of items
  (medications, supplements, skincare steps, habit-style tasks) in effect
  for a contiguous date range. This package answers "what is active on
  date D" (Resolver) and manages the transitions that keep version and
  item windows gap-free and overlap-free (VersionManager).

KEY CONCEPTS:
  - RoutineVersion: "the protocol in effect starting on date X"
  - RoutineCard: moment-of-day grouping within a version
  - RoutineItem: one prescribable thing with a validity window
  - Succession: item-to-item pointers forming a forward-only chain

HISTORY IS SACRED:
  Versions and items are never deleted and mutated only at two points:
  a version's end_date is set exactly once when its successor is created,
  and an item is closed exactly once when superseded. Everything else is
  immutable after authoring, so the historical ledger stays trustworthy.

SEE ALSO:
  - resolver.go: active-item resolution for a reference date
  - transition.go: version creation and item succession
  - engine/window.go: validity window semantics
*/
package routine

import "github.com/warp/adherence-engine/engine"

// =============================================================================
// ROUTINE - Container for versions
// =============================================================================

type Routine struct {
	ID          engine.RoutineID
	SubjectID   engine.SubjectID
	Name        string
	Description string
}

// =============================================================================
// ROUTINE VERSION - Dated protocol definition
// =============================================================================

// RoutineVersion is the set of items in effect for [StartDate, EndDate].
// EndDate == nil means open-ended: this is the current version. At most one
// version per routine is open at any time.
type RoutineVersion struct {
	ID        engine.VersionID
	RoutineID engine.RoutineID
	Number    int // monotonic per routine
	StartDate engine.Date
	EndDate   *engine.Date
	CreatedBy string
	Notes     string
}

// Covers reports whether the version's interval contains the date.
func (v RoutineVersion) Covers(d engine.Date) bool {
	if d.Before(v.StartDate) {
		return false
	}
	return v.EndDate == nil || d.BeforeOrEqual(*v.EndDate)
}

// Open reports whether this is the current (unclosed) version.
func (v RoutineVersion) Open() bool { return v.EndDate == nil }

// =============================================================================
// ROUTINE CARD - Moment-of-day grouping
// =============================================================================

type RoutineCard struct {
	ID        engine.CardID
	VersionID engine.VersionID
	Moment    engine.Moment
	SortOrder int
}

// =============================================================================
// ROUTINE ITEM - One prescribable thing
// =============================================================================

// RoutineItem is immutable after creation except for its closure: setting
// Window.ValidUntil and SucceededBy exactly once when superseded.
type RoutineItem struct {
	ID           engine.ItemID
	CardID       engine.CardID
	Type         engine.ItemType
	Name         string
	Dosage       string
	Instructions string
	Frequency    engine.Frequency
	Window       engine.Window
	SucceededBy  *engine.ItemID
	SortOrder    int
}

// ActiveOn reports whether the item's window contains the date.
func (it RoutineItem) ActiveOn(d engine.Date) bool { return it.Window.ActiveOn(d) }

// =============================================================================
// INVARIANT CHECKS
// =============================================================================

// ValidateVersions checks the coverage invariant: versions sorted by start,
// non-overlapping, at most one open. Input must be ordered by StartDate.
func ValidateVersions(versions []RoutineVersion) error {
	var openSeen bool
	for i, v := range versions {
		if v.Open() {
			if openSeen {
				return &engine.AmbiguousVersionWindowError{
					RoutineID: v.RoutineID,
					Date:      v.StartDate,
					Versions:  []engine.VersionID{versions[i-1].ID, v.ID},
				}
			}
			openSeen = true
		}
		if i == 0 {
			continue
		}
		prev := versions[i-1]
		if prev.EndDate == nil || v.StartDate.BeforeOrEqual(*prev.EndDate) {
			return &engine.AmbiguousVersionWindowError{
				RoutineID: v.RoutineID,
				Date:      v.StartDate,
				Versions:  []engine.VersionID{prev.ID, v.ID},
			}
		}
	}
	return nil
}

// ValidateChain checks the no-gap invariant along a succession chain:
// each successor starts exactly the day after its predecessor's effective
// valid_until. The items map is the arena keyed by identity.
func ValidateChain(items map[engine.ItemID]RoutineItem, head engine.ItemID) error {
	seen := make(map[engine.ItemID]bool)
	id := head
	for {
		it, ok := items[id]
		if !ok {
			return engine.ErrItemNotFound
		}
		if seen[id] {
			// Forward-only chain; a repeat means corrupted links.
			return &engine.InvalidTransitionDateError{ItemID: id, ValidFrom: it.Window.ValidFrom, EffectiveDate: it.Window.ValidFrom}
		}
		seen[id] = true

		if it.SucceededBy == nil {
			return nil
		}
		next, ok := items[*it.SucceededBy]
		if !ok {
			return engine.ErrItemNotFound
		}
		until := it.Window.EffectiveUntil()
		if until == nil || !next.Window.ValidFrom.Equal(until.Next()) {
			return &engine.InvalidTransitionDateError{
				ItemID:        next.ID,
				ValidFrom:     it.Window.ValidFrom,
				EffectiveDate: next.Window.ValidFrom,
			}
		}
		id = *it.SucceededBy
	}
}
