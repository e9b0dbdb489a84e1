// Package habit implements habit definitions and streak derivation.
// Habits log through the completion ledger like routine items do; streak
// state is a materialized view that can always be discarded and rebuilt
// from ledger history.
package habit

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/adherence-engine/engine"
)

// =============================================================================
// HABIT - Definition
// =============================================================================

type Type string

const (
	// TypeBoolean is a plain yes/no habit ("Took vitamins").
	TypeBoolean Type = "boolean"

	// TypeNumeric tracks a quantity against a target ("10,000 steps").
	TypeNumeric Type = "numeric"
)

type Habit struct {
	ID        engine.HabitID
	SubjectID engine.SubjectID
	Name      string
	Type      Type

	// TargetValue and Unit apply to numeric habits.
	TargetValue *decimal.Decimal
	Unit        string

	// Category places the habit in a scoring bucket: habit or exercise.
	Category engine.Category

	Frequency engine.Frequency

	Active bool

	// Pauses are periods the habit was deactivated. No completions are
	// expected during a pause, so paused days never break a streak.
	Pauses []PauseRange
}

// PauseRange is an inclusive deactivation span. Until == nil means the
// habit is still paused.
type PauseRange struct {
	From  engine.Date
	Until *engine.Date
}

func (p PauseRange) Contains(d engine.Date) bool {
	if d.Before(p.From) {
		return false
	}
	return p.Until == nil || d.BeforeOrEqual(*p.Until)
}

// Key is the habit's identity in the completion ledger.
func (h Habit) Key() engine.ItemID { return engine.ItemID(h.ID) }

// ActiveOn reports whether the habit was active (not paused) on the date.
func (h Habit) ActiveOn(d engine.Date) bool {
	for _, p := range h.Pauses {
		if p.Contains(d) {
			return false
		}
	}
	return true
}

// ScheduledOn reports whether the habit demands completion on the date:
// active and due per its frequency rule.
func (h Habit) ScheduledOn(d engine.Date) bool {
	return h.ActiveOn(d) && h.Frequency.ScheduledOn(d)
}

// LogMeetsTarget reports whether a ledger record counts as a completed day
// for this habit. Boolean habits use the record's Completed flag; numeric
// habits compare the logged value against the target.
func (h Habit) LogMeetsTarget(completed bool, value *decimal.Decimal) bool {
	if h.Type == TypeNumeric && h.TargetValue != nil {
		if value == nil {
			return completed
		}
		return value.GreaterThanOrEqual(*h.TargetValue)
	}
	return completed
}

// =============================================================================
// STREAK STATE - Derived, cached view
// =============================================================================

// StreakState is derived from ledger history. Current is the run of
// consecutive scheduled days completed up to the as-of date; a single
// missed scheduled day in the past resets it (unless the recovery policy
// forgives the miss). Longest >= Current always holds.
type StreakState struct {
	SubjectID engine.SubjectID
	HabitID   engine.HabitID

	Current int
	Longest int

	// LastCompleted is the most recent completed day, nil with no history.
	LastCompleted *engine.Date
}

// =============================================================================
// STORES
// =============================================================================

// Store persists habit definitions.
type Store interface {
	SaveHabit(ctx context.Context, h Habit) error
	GetHabit(ctx context.Context, id engine.HabitID) (*Habit, error)
	HabitsForSubject(ctx context.Context, subjectID engine.SubjectID) ([]Habit, error)
}

// StateStore caches computed streak state, one row per (subject, habit).
// Safe to discard: Calculator.Recompute rebuilds from ledger history.
type StateStore interface {
	SaveState(ctx context.Context, st StreakState) error
	GetState(ctx context.Context, subjectID engine.SubjectID, habitID engine.HabitID) (*StreakState, error)
}
