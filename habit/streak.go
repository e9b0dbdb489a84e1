/*
streak.go - Streak derivation from ledger history

PURPOSE:
  Recomputes current and longest streaks for a habit from its full
  completion history. Always a full recompute, never an incremental
  patch - incremental updates drift, and history is small (one record
  per day at most).

ALGORITHM:
  One forward pass from the earliest record to the as-of date, tracking
  run lengths. Day classification:
    - paused or unscheduled day: skipped entirely (no break, no extension)
    - completed day: extends the current run
    - scheduled past day with no completion: breaks the run, unless the
      recovery policy forgives the miss
    - the as-of day itself with no record yet: pending, does not break
  Current streak is the run still alive at the as-of date; longest is the
  maximum run seen, which by construction is >= current.

RECOVERY POLICY:
  Miss handling is a strategy so grace-day rules can be swapped in without
  touching the walk. The default is StrictReset: every miss breaks.

SEE ALSO:
  - tracking/ledger.go: the history this derives from
  - snapshot/builder.go: surfaces the subject's best current streak
*/
package habit

import (
	"context"

	"github.com/warp/adherence-engine/engine"
	"github.com/warp/adherence-engine/tracking"
)

// =============================================================================
// RECOVERY POLICY - Pluggable miss handling
// =============================================================================

// RecoveryPolicy decides whether a missed scheduled day breaks the run.
// consecutiveMisses counts the misses in the current gap, including this one.
type RecoveryPolicy interface {
	Forgives(day engine.Date, consecutiveMisses int) bool
}

// StrictReset breaks the streak on every missed scheduled day.
type StrictReset struct{}

func (StrictReset) Forgives(engine.Date, int) bool { return false }

// GraceDays forgives up to N consecutive missed days before breaking.
// Not wired as a default anywhere; the embedding application opts in.
type GraceDays struct {
	N int
}

func (g GraceDays) Forgives(_ engine.Date, consecutiveMisses int) bool {
	return consecutiveMisses <= g.N
}

// =============================================================================
// CALCULATOR
// =============================================================================

// CompletionSource is the slice of the ledger the calculator needs.
// *tracking.Ledger satisfies it.
type CompletionSource interface {
	History(ctx context.Context, subjectID engine.SubjectID, itemID engine.ItemID) ([]tracking.CompletionRecord, error)
}

type Calculator struct {
	Ledger CompletionSource
	Policy RecoveryPolicy
}

func NewCalculator(ledger CompletionSource) *Calculator {
	return &Calculator{Ledger: ledger, Policy: StrictReset{}}
}

// RecomputeAsOf derives the streak state for the habit as of the given
// local date. A habit with no history yields zeros and a nil LastCompleted.
func (c *Calculator) RecomputeAsOf(ctx context.Context, h Habit, asOf engine.Date) (StreakState, error) {
	state := StreakState{SubjectID: h.SubjectID, HabitID: h.ID}

	history, err := c.Ledger.History(ctx, h.SubjectID, h.Key())
	if err != nil {
		return StreakState{}, err
	}
	if len(history) == 0 {
		return state, nil
	}

	completed := make(map[engine.Date]bool, len(history))
	earliest := history[0].Date
	for _, rec := range history {
		if rec.Date.Before(earliest) {
			earliest = rec.Date
		}
		if rec.Date.After(asOf) {
			continue
		}
		if h.LogMeetsTarget(rec.Completed, rec.Value) {
			completed[rec.Date] = true
			if state.LastCompleted == nil || rec.Date.After(*state.LastCompleted) {
				d := rec.Date
				state.LastCompleted = &d
			}
		}
	}

	policy := c.Policy
	if policy == nil {
		policy = StrictReset{}
	}

	run := 0
	misses := 0
	for d := earliest; d.BeforeOrEqual(asOf); d = d.Next() {
		if !h.ActiveOn(d) || !h.Frequency.ScheduledOn(d) {
			continue
		}
		if completed[d] {
			run++
			misses = 0
		} else if d.Equal(asOf) {
			// Today is still pending; absence of a record is not a miss.
			continue
		} else {
			misses++
			if !policy.Forgives(d, misses) {
				if run > state.Longest {
					state.Longest = run
				}
				run = 0
				misses = 0
			}
		}
	}
	state.Current = run
	if run > state.Longest {
		state.Longest = run
	}
	return state, nil
}

// Recompute derives the streak as of today in the subject's time zone.
func (c *Calculator) Recompute(ctx context.Context, h Habit, subject engine.Subject) (StreakState, error) {
	return c.RecomputeAsOf(ctx, h, engine.Today(subject.Location()))
}
