package scoring_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/adherence-engine/engine"
	"github.com/warp/adherence-engine/habit"
	"github.com/warp/adherence-engine/routine"
	"github.com/warp/adherence-engine/scoring"
	"github.com/warp/adherence-engine/store/memory"
	"github.com/warp/adherence-engine/tracking"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type scorerFixture struct {
	scorer *scoring.Scorer
	store  *memory.Store
	ledger *tracking.Ledger
}

func newScorerFixture(t *testing.T) *scorerFixture {
	t.Helper()
	store := memory.New()
	ledger := tracking.NewLedger(store)
	resolver := routine.NewResolver(store)
	return &scorerFixture{
		scorer: scoring.NewScorer(resolver, store, ledger),
		store:  store,
		ledger: ledger,
	}
}

func date(y int, m time.Month, d int) engine.Date {
	return engine.NewDate(y, m, d)
}

// seedItems creates one routine with a single open version holding the
// named items, all open-ended from Jan 1.
func (f *scorerFixture) seedItems(t *testing.T, names ...string) []engine.ItemID {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.store.SaveRoutine(ctx, routine.Routine{
		ID: "r-1", SubjectID: "subj-1", Name: "protocol",
	}))
	require.NoError(t, f.store.SaveVersion(ctx, routine.RoutineVersion{
		ID: "v-1", RoutineID: "r-1", Number: 1, StartDate: date(2025, time.January, 1),
	}))
	require.NoError(t, f.store.SaveCard(ctx, routine.RoutineCard{
		ID: "c-1", VersionID: "v-1", Moment: engine.MomentMorning,
	}))

	ids := make([]engine.ItemID, len(names))
	for i, name := range names {
		id := engine.ItemID("item-" + name)
		require.NoError(t, f.store.SaveItem(ctx, routine.RoutineItem{
			ID:        id,
			CardID:    "c-1",
			Type:      engine.ItemMedication,
			Name:      name,
			Window:    engine.Window{ValidFrom: date(2025, time.January, 1)},
			SortOrder: i,
		}))
		ids[i] = id
	}
	return ids
}

func (f *scorerFixture) seedHabit(t *testing.T, id string, category engine.Category) habit.Habit {
	t.Helper()
	h := habit.Habit{
		ID:        engine.HabitID(id),
		SubjectID: "subj-1",
		Name:      id,
		Type:      habit.TypeBoolean,
		Category:  category,
		Active:    true,
	}
	require.NoError(t, f.store.SaveHabit(context.Background(), h))
	return h
}

// =============================================================================
// CATEGORY SCORES
// =============================================================================

func TestScoreDay_TwoOfThreeItems_RoundsHalfToEven(t *testing.T) {
	// GIVEN: 3 scheduled items, 2 completed, 1 explicitly skipped
	// THEN: Routine score is 66.7 (also the daily score, single category)

	f := newScorerFixture(t)
	ctx := context.Background()
	mar10 := date(2025, time.March, 10)

	ids := f.seedItems(t, "a", "b", "c")
	_, err := f.ledger.RecordCompletion(ctx, "subj-1", ids[0], mar10, true, "")
	require.NoError(t, err)
	_, err = f.ledger.RecordCompletion(ctx, "subj-1", ids[1], mar10, true, "")
	require.NoError(t, err)
	_, err = f.ledger.RecordCompletion(ctx, "subj-1", ids[2], mar10, false, "ran out")
	require.NoError(t, err)

	score, err := f.scorer.ScoreDay(ctx, "subj-1", mar10)
	require.NoError(t, err)

	assert.Equal(t, 3, score.RoutinesTotal)
	assert.Equal(t, 2, score.RoutinesCompleted)
	require.NotNil(t, score.RoutineScore)
	assert.InDelta(t, 66.7, *score.RoutineScore, 0.0001)
	require.NotNil(t, score.DailyScore)
	assert.InDelta(t, 66.7, *score.DailyScore, 0.0001)
}

func TestScoreDay_MissingRecord_CountsAsNotCompleted(t *testing.T) {
	f := newScorerFixture(t)
	ctx := context.Background()
	mar10 := date(2025, time.March, 10)

	ids := f.seedItems(t, "a", "b")
	_, err := f.ledger.RecordCompletion(ctx, "subj-1", ids[0], mar10, true, "")
	require.NoError(t, err)
	// ids[1] has no record at all

	score, err := f.scorer.ScoreDay(ctx, "subj-1", mar10)
	require.NoError(t, err)
	assert.Equal(t, 2, score.RoutinesTotal)
	assert.Equal(t, 1, score.RoutinesCompleted)
	require.NotNil(t, score.RoutineScore)
	assert.InDelta(t, 50.0, *score.RoutineScore, 0.0001)
}

func TestScoreDay_EmptyCategory_NullNotZero(t *testing.T) {
	// GIVEN: Items but no habits
	// THEN: Habit and exercise scores are nil and excluded from the blend

	f := newScorerFixture(t)
	ctx := context.Background()
	mar10 := date(2025, time.March, 10)

	ids := f.seedItems(t, "a")
	_, err := f.ledger.RecordCompletion(ctx, "subj-1", ids[0], mar10, true, "")
	require.NoError(t, err)

	score, err := f.scorer.ScoreDay(ctx, "subj-1", mar10)
	require.NoError(t, err)

	assert.Nil(t, score.HabitScore)
	assert.Nil(t, score.ExerciseScore)
	require.NotNil(t, score.RoutineScore)
	require.NotNil(t, score.DailyScore)
	assert.InDelta(t, 100.0, *score.DailyScore, 0.0001)
}

func TestScoreDay_NothingScheduledAnywhere_NilDailyScore(t *testing.T) {
	f := newScorerFixture(t)

	score, err := f.scorer.ScoreDay(context.Background(), "subj-1", date(2025, time.March, 10))
	require.NoError(t, err)
	assert.Nil(t, score.RoutineScore)
	assert.Nil(t, score.HabitScore)
	assert.Nil(t, score.ExerciseScore)
	assert.Nil(t, score.DailyScore)
}

func TestScoreDay_BlendIsMeanOfParticipants(t *testing.T) {
	// GIVEN: Routine 100% (1/1), habits 0% (0/1), no exercises
	// THEN: Daily score is 50.0, mean of two participating categories

	f := newScorerFixture(t)
	ctx := context.Background()
	mar10 := date(2025, time.March, 10)

	ids := f.seedItems(t, "a")
	_, err := f.ledger.RecordCompletion(ctx, "subj-1", ids[0], mar10, true, "")
	require.NoError(t, err)

	f.seedHabit(t, "h-1", engine.CategoryHabit)

	score, err := f.scorer.ScoreDay(ctx, "subj-1", mar10)
	require.NoError(t, err)
	require.NotNil(t, score.DailyScore)
	assert.InDelta(t, 50.0, *score.DailyScore, 0.0001)
}

func TestScoreDay_BlendAveragesUnroundedFractions(t *testing.T) {
	// GIVEN: Routines 2/3 and habits 1/3
	// THEN: Daily score is 50.0, the mean of the exact thirds, not of the
	//       pre-rounded 66.7 and 33.3

	f := newScorerFixture(t)
	ctx := context.Background()
	mar10 := date(2025, time.March, 10)

	ids := f.seedItems(t, "a", "b", "c")
	for _, id := range ids[:2] {
		_, err := f.ledger.RecordCompletion(ctx, "subj-1", id, mar10, true, "")
		require.NoError(t, err)
	}

	for i, id := range []string{"h-1", "h-2", "h-3"} {
		h := f.seedHabit(t, id, engine.CategoryHabit)
		_, err := f.ledger.RecordCompletion(ctx, "subj-1", h.Key(), mar10, i == 0, "")
		require.NoError(t, err)
	}

	score, err := f.scorer.ScoreDay(ctx, "subj-1", mar10)
	require.NoError(t, err)
	require.NotNil(t, score.DailyScore)
	assert.InDelta(t, 50.0, *score.DailyScore, 0.0001)
}

// =============================================================================
// EXERCISE CATEGORY
// =============================================================================

func TestScoreDay_ExerciseHabits_ScoredSeparately(t *testing.T) {
	f := newScorerFixture(t)
	ctx := context.Background()
	mar10 := date(2025, time.March, 10)

	gym := f.seedHabit(t, "h-gym", engine.CategoryExercise)
	f.seedHabit(t, "h-read", engine.CategoryHabit)

	_, err := f.ledger.RecordCompletion(ctx, "subj-1", gym.Key(), mar10, true, "")
	require.NoError(t, err)

	score, err := f.scorer.ScoreDay(ctx, "subj-1", mar10)
	require.NoError(t, err)

	assert.Equal(t, 1, score.ExercisesTotal)
	assert.Equal(t, 1, score.ExercisesCompleted)
	require.NotNil(t, score.ExerciseScore)
	assert.InDelta(t, 100.0, *score.ExerciseScore, 0.0001)

	assert.Equal(t, 1, score.HabitsTotal)
	assert.Equal(t, 0, score.HabitsCompleted)
	require.NotNil(t, score.HabitScore)
	assert.InDelta(t, 0.0, *score.HabitScore, 0.0001)
}

// =============================================================================
// SCHEDULING AND TARGETS
// =============================================================================

func TestScoreDay_UnscheduledItems_ExcludedFromDenominator(t *testing.T) {
	// GIVEN: A weekdays-only item scored on a Saturday
	// THEN: It does not count against the subject

	f := newScorerFixture(t)
	ctx := context.Background()

	ids := f.seedItems(t, "weekday-med")
	it, err := f.store.GetItem(ctx, ids[0])
	require.NoError(t, err)
	it.Frequency = engine.Frequency{Rule: engine.FrequencyWeekdays}
	require.NoError(t, f.store.SaveItem(ctx, *it))

	saturday := date(2025, time.March, 1)
	score, err := f.scorer.ScoreDay(ctx, "subj-1", saturday)
	require.NoError(t, err)
	assert.Equal(t, 0, score.RoutinesTotal)
	assert.Nil(t, score.RoutineScore)
}

func TestScoreDay_NumericHabit_BelowTargetNotDone(t *testing.T) {
	f := newScorerFixture(t)
	ctx := context.Background()
	mar10 := date(2025, time.March, 10)

	target := decimal.NewFromInt(10000)
	h := habit.Habit{
		ID:          "h-steps",
		SubjectID:   "subj-1",
		Name:        "steps",
		Type:        habit.TypeNumeric,
		TargetValue: &target,
		Unit:        "steps",
		Category:    engine.CategoryExercise,
		Active:      true,
	}
	require.NoError(t, f.store.SaveHabit(ctx, h))

	low := decimal.NewFromInt(4000)
	_, err := f.ledger.Record(ctx, tracking.Entry{
		SubjectID: "subj-1", ItemID: h.Key(), Date: mar10, Completed: true, Value: &low,
	})
	require.NoError(t, err)

	score, err := f.scorer.ScoreDay(ctx, "subj-1", mar10)
	require.NoError(t, err)
	assert.Equal(t, 1, score.ExercisesTotal)
	assert.Equal(t, 0, score.ExercisesCompleted)
}

// =============================================================================
// ERROR PROPAGATION
// =============================================================================

func TestScoreDay_AmbiguousVersions_NoPartialScore(t *testing.T) {
	f := newScorerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveRoutine(ctx, routine.Routine{
		ID: "r-1", SubjectID: "subj-1", Name: "protocol",
	}))
	require.NoError(t, f.store.SaveVersion(ctx, routine.RoutineVersion{
		ID: "v-1", RoutineID: "r-1", Number: 1, StartDate: date(2025, time.January, 1),
	}))
	require.NoError(t, f.store.SaveVersion(ctx, routine.RoutineVersion{
		ID: "v-2", RoutineID: "r-1", Number: 2, StartDate: date(2025, time.February, 1),
	}))

	_, err := f.scorer.ScoreDay(ctx, "subj-1", date(2025, time.March, 10))
	assert.ErrorIs(t, err, engine.ErrAmbiguousVersionWindow)
}
