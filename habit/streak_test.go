package habit_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/adherence-engine/engine"
	"github.com/warp/adherence-engine/habit"
	"github.com/warp/adherence-engine/store/memory"
	"github.com/warp/adherence-engine/tracking"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestCalculator(t *testing.T) (*habit.Calculator, *tracking.Ledger) {
	t.Helper()
	ledger := tracking.NewLedger(memory.New())
	return habit.NewCalculator(ledger), ledger
}

func date(y int, m time.Month, d int) engine.Date {
	return engine.NewDate(y, m, d)
}

func dailyHabit(id string) habit.Habit {
	return habit.Habit{
		ID:        engine.HabitID(id),
		SubjectID: "subj-1",
		Name:      "meditation",
		Type:      habit.TypeBoolean,
		Category:  engine.CategoryHabit,
		Active:    true,
	}
}

func logDay(t *testing.T, ledger *tracking.Ledger, h habit.Habit, d engine.Date, completed bool) {
	t.Helper()
	_, err := ledger.RecordCompletion(context.Background(), h.SubjectID, h.Key(), d, completed, "")
	require.NoError(t, err)
}

// =============================================================================
// CORE STREAK BEHAVIOR
// =============================================================================

func TestStreak_NoHistory_Zeros(t *testing.T) {
	calc, _ := newTestCalculator(t)

	state, err := calc.RecomputeAsOf(context.Background(), dailyHabit("h-1"), date(2025, time.March, 10))
	require.NoError(t, err)
	assert.Equal(t, 0, state.Current)
	assert.Equal(t, 0, state.Longest)
	assert.Nil(t, state.LastCompleted)
}

func TestStreak_MissedDayBreaksCurrent_LongestSurvives(t *testing.T) {
	// GIVEN: Days 1-5 completed, day 6 missed, day 7 completed
	// WHEN: Recomputing as of day 7
	// THEN: Current is 1, longest is 5

	calc, ledger := newTestCalculator(t)
	h := dailyHabit("h-1")

	for day := 1; day <= 5; day++ {
		logDay(t, ledger, h, date(2025, time.March, day), true)
	}
	logDay(t, ledger, h, date(2025, time.March, 6), false)
	logDay(t, ledger, h, date(2025, time.March, 7), true)

	state, err := calc.RecomputeAsOf(context.Background(), h, date(2025, time.March, 7))
	require.NoError(t, err)
	assert.Equal(t, 1, state.Current)
	assert.Equal(t, 5, state.Longest)
	require.NotNil(t, state.LastCompleted)
	assert.True(t, state.LastCompleted.Equal(date(2025, time.March, 7)))
}

func TestStreak_MissingRecordOnPastDay_IsAMiss(t *testing.T) {
	// Day 3 has no record at all. For a past scheduled day, absence counts
	// the same as an explicit miss.

	calc, ledger := newTestCalculator(t)
	h := dailyHabit("h-1")

	logDay(t, ledger, h, date(2025, time.March, 1), true)
	logDay(t, ledger, h, date(2025, time.March, 2), true)
	// March 3: nothing recorded
	logDay(t, ledger, h, date(2025, time.March, 4), true)

	state, err := calc.RecomputeAsOf(context.Background(), h, date(2025, time.March, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, state.Current)
	assert.Equal(t, 2, state.Longest)
}

func TestStreak_TodayPending_DoesNotBreak(t *testing.T) {
	// GIVEN: Days 1-3 completed, nothing recorded for today (day 4)
	// THEN: Current stays 3; the day is pending, not missed

	calc, ledger := newTestCalculator(t)
	h := dailyHabit("h-1")

	for day := 1; day <= 3; day++ {
		logDay(t, ledger, h, date(2025, time.March, day), true)
	}

	state, err := calc.RecomputeAsOf(context.Background(), h, date(2025, time.March, 4))
	require.NoError(t, err)
	assert.Equal(t, 3, state.Current)
}

func TestStreak_SkippedDay_BreaksLikeAMiss(t *testing.T) {
	// A skip with a reason is still not a completion.

	calc, ledger := newTestCalculator(t)
	h := dailyHabit("h-1")
	ctx := context.Background()

	logDay(t, ledger, h, date(2025, time.March, 1), true)
	_, err := ledger.RecordCompletion(ctx, h.SubjectID, h.Key(), date(2025, time.March, 2), false, "travelling")
	require.NoError(t, err)
	logDay(t, ledger, h, date(2025, time.March, 3), true)

	state, err := calc.RecomputeAsOf(ctx, h, date(2025, time.March, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, state.Current)
	assert.Equal(t, 1, state.Longest)
}

func TestStreak_LongestNeverBelowCurrent(t *testing.T) {
	calc, ledger := newTestCalculator(t)
	h := dailyHabit("h-1")

	for day := 1; day <= 10; day++ {
		logDay(t, ledger, h, date(2025, time.March, day), true)
	}

	state, err := calc.RecomputeAsOf(context.Background(), h, date(2025, time.March, 10))
	require.NoError(t, err)
	assert.Equal(t, 10, state.Current)
	assert.GreaterOrEqual(t, state.Longest, state.Current)
}

func TestStreak_RecordsAfterAsOf_Ignored(t *testing.T) {
	calc, ledger := newTestCalculator(t)
	h := dailyHabit("h-1")

	logDay(t, ledger, h, date(2025, time.March, 1), true)
	logDay(t, ledger, h, date(2025, time.March, 2), true)
	logDay(t, ledger, h, date(2025, time.March, 9), true)

	state, err := calc.RecomputeAsOf(context.Background(), h, date(2025, time.March, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, state.Current)
	require.NotNil(t, state.LastCompleted)
	assert.True(t, state.LastCompleted.Equal(date(2025, time.March, 2)))
}

// =============================================================================
// SCHEDULING AND PAUSES
// =============================================================================

func TestStreak_UnscheduledDays_NeitherBreakNorExtend(t *testing.T) {
	// GIVEN: A Mon/Thu habit completed on both scheduled days
	// THEN: The in-between days do not break the run

	calc, ledger := newTestCalculator(t)
	h := dailyHabit("h-1")
	h.Frequency = engine.Frequency{
		Rule:     engine.FrequencyCustom,
		Weekdays: []time.Weekday{time.Monday, time.Thursday},
	}

	monday := date(2025, time.March, 3)
	thursday := date(2025, time.March, 6)
	logDay(t, ledger, h, monday, true)
	logDay(t, ledger, h, thursday, true)

	state, err := calc.RecomputeAsOf(context.Background(), h, date(2025, time.March, 7))
	require.NoError(t, err)
	assert.Equal(t, 2, state.Current)
}

func TestStreak_PausedDays_Skipped(t *testing.T) {
	// GIVEN: Completions before and after a pause, nothing during it
	// THEN: The run continues across the pause

	calc, ledger := newTestCalculator(t)
	h := dailyHabit("h-1")
	h.Pauses = []habit.PauseRange{{
		From:  date(2025, time.March, 3),
		Until: datePtr(date(2025, time.March, 5)),
	}}

	logDay(t, ledger, h, date(2025, time.March, 1), true)
	logDay(t, ledger, h, date(2025, time.March, 2), true)
	logDay(t, ledger, h, date(2025, time.March, 6), true)

	state, err := calc.RecomputeAsOf(context.Background(), h, date(2025, time.March, 6))
	require.NoError(t, err)
	assert.Equal(t, 3, state.Current)
}

func datePtr(d engine.Date) *engine.Date { return &d }

// =============================================================================
// RECOVERY POLICY
// =============================================================================

func TestStreak_GraceDays_ForgivesShortLapses(t *testing.T) {
	// GIVEN: A one-day grace policy and a single missed day mid-run
	// THEN: The run survives the lapse

	calc, ledger := newTestCalculator(t)
	calc.Policy = habit.GraceDays{N: 1}
	h := dailyHabit("h-1")

	logDay(t, ledger, h, date(2025, time.March, 1), true)
	logDay(t, ledger, h, date(2025, time.March, 2), true)
	// March 3 missed
	logDay(t, ledger, h, date(2025, time.March, 4), true)

	state, err := calc.RecomputeAsOf(context.Background(), h, date(2025, time.March, 4))
	require.NoError(t, err)
	assert.Equal(t, 3, state.Current)
}

func TestStreak_GraceDays_LongerLapseStillBreaks(t *testing.T) {
	calc, ledger := newTestCalculator(t)
	calc.Policy = habit.GraceDays{N: 1}
	h := dailyHabit("h-1")

	logDay(t, ledger, h, date(2025, time.March, 1), true)
	logDay(t, ledger, h, date(2025, time.March, 2), true)
	// March 3 and 4 missed: exceeds the one-day grace
	logDay(t, ledger, h, date(2025, time.March, 5), true)

	state, err := calc.RecomputeAsOf(context.Background(), h, date(2025, time.March, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, state.Current)
	assert.Equal(t, 2, state.Longest)
}

// =============================================================================
// NUMERIC HABITS
// =============================================================================

func TestStreak_NumericHabit_TargetGatesTheDay(t *testing.T) {
	// GIVEN: A steps habit with a 10000 target
	// WHEN: Day 1 hits 12000, day 2 logs only 4000
	// THEN: Only day 1 counts

	calc, ledger := newTestCalculator(t)
	target := decimal.NewFromInt(10000)
	h := dailyHabit("h-steps")
	h.Type = habit.TypeNumeric
	h.TargetValue = &target
	ctx := context.Background()

	logValue := func(d engine.Date, v int64) {
		val := decimal.NewFromInt(v)
		_, err := ledger.Record(ctx, tracking.Entry{
			SubjectID: h.SubjectID,
			ItemID:    h.Key(),
			Date:      d,
			Completed: true,
			Value:     &val,
		})
		require.NoError(t, err)
	}

	logValue(date(2025, time.March, 1), 12000)
	logValue(date(2025, time.March, 2), 4000)

	state, err := calc.RecomputeAsOf(ctx, h, date(2025, time.March, 3))
	require.NoError(t, err)
	assert.Equal(t, 0, state.Current)
	assert.Equal(t, 1, state.Longest)
	require.NotNil(t, state.LastCompleted)
	assert.True(t, state.LastCompleted.Equal(date(2025, time.March, 1)))
}
