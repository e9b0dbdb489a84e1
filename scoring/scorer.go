/*
Package scoring computes daily adherence scores.

PURPOSE:
  For one subject and one date, compare what was scheduled (routine items
  from the resolver, habits from their definitions) against what the
  ledger says was completed, and produce 0-100 scores per category plus a
  blended daily score.

SCORING RULES:
  - category_score = 100 * completed / scheduled, when scheduled > 0
  - a category with nothing scheduled is EXCLUDED from the blend - it is
    neither 0 nor 100, it simply does not participate
  - the blended score is the arithmetic mean of participating categories
  - a day with nothing scheduled at all has a nil blended score: a day
    with nothing to do is not a failed day
  - accumulation is exact (decimal); rounding to one decimal place with
    round-half-to-even happens only at the output boundary

SEE ALSO:
  - routine/resolver.go: supplies the denominator
  - tracking/ledger.go: supplies the numerator
  - snapshot/builder.go: persists the result
*/
package scoring

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/adherence-engine/engine"
	"github.com/warp/adherence-engine/habit"
	"github.com/warp/adherence-engine/routine"
	"github.com/warp/adherence-engine/tracking"
)

// =============================================================================
// DAY SCORE - Output of one day's scoring
// =============================================================================

// DayScore carries per-category and blended scores for one (subject, date).
// Nil score pointers mean the category had nothing scheduled (or, for
// DailyScore, that no category did).
type DayScore struct {
	SubjectID engine.SubjectID
	Date      engine.Date

	RoutineScore  *float64
	HabitScore    *float64
	ExerciseScore *float64
	DailyScore    *float64

	RoutinesCompleted  int
	RoutinesTotal      int
	HabitsCompleted    int
	HabitsTotal        int
	ExercisesCompleted int
	ExercisesTotal     int
}

// =============================================================================
// SOURCES - Slices of other packages the scorer depends on
// =============================================================================

// ItemSource resolves active routine items. *routine.Resolver satisfies it.
type ItemSource interface {
	ActiveItemsForSubject(ctx context.Context, subjectID engine.SubjectID, date engine.Date) ([]routine.ActiveItem, error)
}

// HabitSource lists a subject's habits. Satisfied by habit stores.
type HabitSource interface {
	HabitsForSubject(ctx context.Context, subjectID engine.SubjectID) ([]habit.Habit, error)
}

// CompletionSource reads one day of the ledger. *tracking.Ledger satisfies it.
type CompletionSource interface {
	CompletionsForDate(ctx context.Context, subjectID engine.SubjectID, date engine.Date) ([]tracking.CompletionRecord, error)
}

// =============================================================================
// SCORER
// =============================================================================

type Scorer struct {
	Items  ItemSource
	Habits HabitSource
	Ledger CompletionSource
}

func NewScorer(items ItemSource, habits HabitSource, ledger CompletionSource) *Scorer {
	return &Scorer{Items: items, Habits: habits, Ledger: ledger}
}

var hundred = decimal.NewFromInt(100)

// ScoreDay scores one subject's day. Resolver errors (including ambiguous
// version windows) propagate unchanged - a partial score would misstate
// medical history.
func (s *Scorer) ScoreDay(ctx context.Context, subjectID engine.SubjectID, date engine.Date) (DayScore, error) {
	out := DayScore{SubjectID: subjectID, Date: date}

	active, err := s.Items.ActiveItemsForSubject(ctx, subjectID, date)
	if err != nil {
		return DayScore{}, err
	}
	habits, err := s.Habits.HabitsForSubject(ctx, subjectID)
	if err != nil {
		return DayScore{}, err
	}
	records, err := s.Ledger.CompletionsForDate(ctx, subjectID, date)
	if err != nil {
		return DayScore{}, err
	}

	recorded := make(map[engine.ItemID]tracking.CompletionRecord, len(records))
	for _, rec := range records {
		recorded[rec.ItemID] = rec
	}

	// Routine category: active items that are due per their frequency.
	for _, ai := range active {
		if !ai.Item.Frequency.ScheduledOn(date) {
			continue
		}
		out.RoutinesTotal++
		if rec, ok := recorded[ai.Item.ID]; ok && rec.Completed {
			out.RoutinesCompleted++
		}
	}

	// Habit and exercise categories.
	for _, h := range habits {
		if !h.ScheduledOn(date) {
			continue
		}
		done := false
		if rec, ok := recorded[h.Key()]; ok {
			done = h.LogMeetsTarget(rec.Completed, rec.Value)
		}
		if h.Category == engine.CategoryExercise {
			out.ExercisesTotal++
			if done {
				out.ExercisesCompleted++
			}
		} else {
			out.HabitsTotal++
			if done {
				out.HabitsCompleted++
			}
		}
	}

	// Blend participating categories, round at the boundary only.
	var participating []decimal.Decimal
	if frac, ok := fraction(out.RoutinesCompleted, out.RoutinesTotal); ok {
		out.RoutineScore = rounded(frac)
		participating = append(participating, frac)
	}
	if frac, ok := fraction(out.HabitsCompleted, out.HabitsTotal); ok {
		out.HabitScore = rounded(frac)
		participating = append(participating, frac)
	}
	if frac, ok := fraction(out.ExercisesCompleted, out.ExercisesTotal); ok {
		out.ExerciseScore = rounded(frac)
		participating = append(participating, frac)
	}
	if len(participating) > 0 {
		sum := decimal.Zero
		for _, f := range participating {
			sum = sum.Add(f)
		}
		out.DailyScore = rounded(sum.Div(decimal.NewFromInt(int64(len(participating)))))
	}
	return out, nil
}

// fraction returns the unrounded 0-100 score, or ok=false when nothing
// was scheduled in the category.
func fraction(completed, total int) (decimal.Decimal, bool) {
	if total == 0 {
		return decimal.Zero, false
	}
	return hundred.Mul(decimal.NewFromInt(int64(completed))).Div(decimal.NewFromInt(int64(total))), true
}

// rounded applies the output-boundary rounding: one decimal place,
// round-half-to-even.
func rounded(d decimal.Decimal) *float64 {
	f, _ := d.RoundBank(1).Float64()
	return &f
}
