/*
Package engine provides the temporal core of the adherence system.

PURPOSE:
  This package contains the domain-agnostic building blocks shared by every
  higher-level package: calendar dates, validity windows, schedule rules, and
  the identifier and error types that flow between them. It has no knowledge
  of routines, habits, or scores - those live in their own packages.

KEY CONCEPTS IN THIS FILE (types.go):
  - Typed IDs: SubjectID, RoutineID, ItemID, ... prevent mixing identities
  - Moment: one of four fixed daily time slots used for ordering
  - Frequency: which calendar days an item is actually scheduled on
  - Category: scoring bucket (routine, habit, exercise)

DESIGN PRINCIPLES:
  1. Day granularity: everything is keyed by calendar date, never by instant
  2. Type safety: strong typing for IDs prevents cross-wiring subjects/items
  3. Purity: nothing in this package performs I/O or touches shared state

SEE ALSO:
  - window.go: Validity windows and their construction-time validation
  - time.go: Date and DateRange
  - errors.go: Centralized error types
*/
package engine

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	// SubjectID identifies a person whose adherence is tracked.
	SubjectID string

	// RoutineID identifies a named routine (a chain of versions).
	RoutineID string

	// VersionID identifies one dated version of a routine.
	VersionID string

	// CardID identifies a moment-of-day grouping within a version.
	CardID string

	// ItemID identifies a trackable thing in the completion ledger:
	// a routine item or a habit. Habits log under their own ID.
	ItemID string

	// HabitID identifies a habit definition.
	HabitID string
)

// =============================================================================
// SUBJECT - The person being tracked
// =============================================================================

// Subject carries the per-person settings the engine needs. The surrounding
// application owns the rest of the profile.
type Subject struct {
	ID       SubjectID
	Name     string
	TimeZone string // IANA name, e.g. "America/Chicago"
}

// Location resolves the subject's time zone, falling back to UTC if the
// name is missing or unknown. "Today" is always computed through this.
func (s Subject) Location() *time.Location {
	if s.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// =============================================================================
// MOMENT OF DAY - Fixed daily slots for grouping and ordering
// =============================================================================

type Moment string

const (
	MomentMorning Moment = "morning"
	MomentMidday  Moment = "midday"
	MomentEvening Moment = "evening"
	MomentNight   Moment = "night"
)

// SlotOrder returns the display/scheduling position of a moment.
// Unknown moments sort last.
func (m Moment) SlotOrder() int {
	switch m {
	case MomentMorning:
		return 0
	case MomentMidday:
		return 1
	case MomentEvening:
		return 2
	case MomentNight:
		return 3
	default:
		return 4
	}
}

func (m Moment) Valid() bool { return m.SlotOrder() < 4 }

// =============================================================================
// ITEM TYPE - What kind of prescribable thing an item is
// =============================================================================

type ItemType string

const (
	ItemMedication ItemType = "medication"
	ItemSupplement ItemType = "supplement"
	ItemSkincare   ItemType = "skincare"
	ItemHairCare   ItemType = "hair_care"
	ItemHabit      ItemType = "habit"
)

// =============================================================================
// CATEGORY - Scoring bucket
// =============================================================================

type Category string

const (
	CategoryRoutine  Category = "routine"
	CategoryHabit    Category = "habit"
	CategoryExercise Category = "exercise"
)

// =============================================================================
// FREQUENCY - Which days something is scheduled on
// =============================================================================

type FrequencyRule string

const (
	FrequencyDaily    FrequencyRule = "daily"
	FrequencyWeekdays FrequencyRule = "weekdays"
	FrequencyCustom   FrequencyRule = "custom"
)

// Frequency determines which calendar days an item or habit is due.
// A day that is not scheduled neither demands completion nor breaks streaks.
type Frequency struct {
	Rule FrequencyRule

	// Weekdays lists the scheduled weekdays when Rule is FrequencyCustom.
	Weekdays []time.Weekday
}

// Daily is the default schedule.
var Daily = Frequency{Rule: FrequencyDaily}

// Validate rejects a custom rule with no weekdays. A schedule that matches
// no day would silently drop its item from scoring and streaks, so it is a
// construction error like a malformed window.
func (f Frequency) Validate() error {
	if f.Rule == FrequencyCustom && len(f.Weekdays) == 0 {
		return ErrInvalidFrequency
	}
	return nil
}

// ScheduledOn reports whether the frequency schedules the given date.
// An unset rule behaves as daily.
func (f Frequency) ScheduledOn(d Date) bool {
	switch f.Rule {
	case FrequencyWeekdays:
		wd := d.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	case FrequencyCustom:
		for _, wd := range f.Weekdays {
			if d.Weekday() == wd {
				return true
			}
		}
		return false
	default:
		return true
	}
}
