/*
errors.go - Centralized error types for the adherence engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Higher-level packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Construction errors - malformed temporal windows, rejected at write time
  2. Invariant violations - overlapping versions, surfaced loudly, never guessed around
  3. Not-found errors - missing referenced records

  "Nothing scheduled" and "no history" are NOT errors anywhere in the engine.
  They are valid states represented as empty slices and nil results.

USAGE:
  Callers classify with errors.Is / errors.As:

    var amb *engine.AmbiguousVersionWindowError
    if errors.As(err, &amb) {
        // two versions both claim amb.Date
    }
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidItemWindow is returned when an item's validity window is
	// malformed - most importantly when both valid_until and duration_days
	// are set. Ambiguous windows are a construction-time error.
	ErrInvalidItemWindow = errors.New("invalid item window")

	// ErrAmbiguousVersionWindow is returned when two versions of the same
	// routine both claim a reference date. This is an invariant violation,
	// never resolved silently.
	ErrAmbiguousVersionWindow = errors.New("ambiguous version window")

	// ErrInvalidFrequency is returned when a custom frequency carries no
	// weekdays. Such a schedule matches no day at all, which silently drops
	// the item from scoring and streaks, so it is rejected at construction.
	ErrInvalidFrequency = errors.New("custom frequency requires at least one weekday")

	// ErrInvalidTransitionDate is returned when a succession's effective date
	// does not fall strictly after the superseded item's valid_from.
	ErrInvalidTransitionDate = errors.New("invalid transition date")

	// ErrInvalidVersionStart is returned when a new version does not start
	// strictly after the current open version.
	ErrInvalidVersionStart = errors.New("version start must be after current version start")

	// ErrSnapshotFrozen is returned by snapshot stores when Save would
	// replace an already-persisted snapshot. Rewriting history goes through
	// the explicit Overwrite path.
	ErrSnapshotFrozen = errors.New("snapshot for past date is immutable")

	ErrRoutineNotFound = errors.New("routine not found")
	ErrVersionNotFound = errors.New("version not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrHabitNotFound   = errors.New("habit not found")
	ErrSubjectNotFound = errors.New("subject not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidItemWindowError reports a malformed validity window.
type InvalidItemWindowError struct {
	ItemName string
	Reason   string
}

func (e *InvalidItemWindowError) Error() string {
	if e.ItemName != "" {
		return fmt.Sprintf("invalid item window for %q: %s", e.ItemName, e.Reason)
	}
	return fmt.Sprintf("invalid item window: %s", e.Reason)
}

func (e *InvalidItemWindowError) Unwrap() error { return ErrInvalidItemWindow }

// AmbiguousVersionWindowError reports overlapping version intervals.
type AmbiguousVersionWindowError struct {
	RoutineID RoutineID
	Date      Date
	Versions  []VersionID
}

func (e *AmbiguousVersionWindowError) Error() string {
	return fmt.Sprintf("ambiguous version window: routine %s has %d versions claiming %s",
		e.RoutineID, len(e.Versions), e.Date)
}

func (e *AmbiguousVersionWindowError) Unwrap() error { return ErrAmbiguousVersionWindow }

// InvalidTransitionDateError reports a succession dated at or before the
// superseded item's start.
type InvalidTransitionDateError struct {
	ItemID        ItemID
	ValidFrom     Date
	EffectiveDate Date
}

func (e *InvalidTransitionDateError) Error() string {
	return fmt.Sprintf("invalid transition date: %s is not after item %s valid_from %s",
		e.EffectiveDate, e.ItemID, e.ValidFrom)
}

func (e *InvalidTransitionDateError) Unwrap() error { return ErrInvalidTransitionDate }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConstructionError reports whether the error is a write-time rejection of
// malformed input. These never reach read paths.
func IsConstructionError(err error) bool {
	return errors.Is(err, ErrInvalidItemWindow) ||
		errors.Is(err, ErrInvalidFrequency) ||
		errors.Is(err, ErrInvalidTransitionDate) ||
		errors.Is(err, ErrInvalidVersionStart)
}

// IsInvariantViolation reports whether the error indicates corrupted temporal
// state. Operations in progress must abort rather than guess.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrAmbiguousVersionWindow) ||
		errors.Is(err, ErrSnapshotFrozen)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoutineNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrHabitNotFound) ||
		errors.Is(err, ErrSubjectNotFound)
}
