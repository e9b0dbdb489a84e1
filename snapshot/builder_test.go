package snapshot_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/adherence-engine/engine"
	"github.com/warp/adherence-engine/habit"
	"github.com/warp/adherence-engine/routine"
	"github.com/warp/adherence-engine/scoring"
	"github.com/warp/adherence-engine/snapshot"
	"github.com/warp/adherence-engine/store/memory"
	"github.com/warp/adherence-engine/tracking"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type builderFixture struct {
	builder *snapshot.Builder
	store   *memory.Store
	ledger  *tracking.Ledger
}

func newBuilderFixture(t *testing.T) *builderFixture {
	t.Helper()
	store := memory.New()
	ledger := tracking.NewLedger(store)
	resolver := routine.NewResolver(store)
	scorer := scoring.NewScorer(resolver, store, ledger)
	streaks := habit.NewCalculator(ledger)

	require.NoError(t, store.SaveSubject(context.Background(), engine.Subject{
		ID: "subj-1", Name: "Ada", TimeZone: "UTC",
	}))

	return &builderFixture{
		builder: snapshot.NewBuilder(scorer, streaks, store, store, store),
		store:   store,
		ledger:  ledger,
	}
}

func date(y int, m time.Month, d int) engine.Date {
	return engine.NewDate(y, m, d)
}

func (f *builderFixture) seedDay(t *testing.T, d engine.Date, completed bool) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.store.SaveRoutine(ctx, routine.Routine{
		ID: "r-1", SubjectID: "subj-1", Name: "protocol",
	}))
	require.NoError(t, f.store.SaveVersion(ctx, routine.RoutineVersion{
		ID: "v-1", RoutineID: "r-1", Number: 1, StartDate: date(2020, time.January, 1),
	}))
	require.NoError(t, f.store.SaveCard(ctx, routine.RoutineCard{
		ID: "c-1", VersionID: "v-1", Moment: engine.MomentMorning,
	}))
	require.NoError(t, f.store.SaveItem(ctx, routine.RoutineItem{
		ID: "i-1", CardID: "c-1", Type: engine.ItemMedication, Name: "med",
		Window: engine.Window{ValidFrom: date(2020, time.January, 1)},
	}))

	_, err := f.ledger.RecordCompletion(ctx, "subj-1", "i-1", d, completed, "")
	require.NoError(t, err)
}

// =============================================================================
// BUILD SEMANTICS
// =============================================================================

func TestBuild_ElapsedDay_PersistedAndIdempotent(t *testing.T) {
	// GIVEN: An elapsed day with one completed item
	// WHEN: Building the snapshot twice
	// THEN: Both results are identical and the stored copy exists

	f := newBuilderFixture(t)
	ctx := context.Background()
	day := date(2025, time.March, 10)
	f.seedDay(t, day, true)

	first, err := f.builder.Build(ctx, "subj-1", day)
	require.NoError(t, err)
	assert.Equal(t, 1, first.RoutinesCompleted)
	require.NotNil(t, first.DailyScore)
	assert.InDelta(t, 100.0, *first.DailyScore, 0.0001)

	second, err := f.builder.Build(ctx, "subj-1", day)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stored, err := f.store.Get(ctx, "subj-1", day)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, first, *stored)
}

func TestBuild_ElapsedDay_FrozenAgainstLateEdits(t *testing.T) {
	// GIVEN: A frozen snapshot for an elapsed day
	// WHEN: The ledger is corrected afterwards and Build runs again
	// THEN: Build returns the frozen copy; only Rebuild sees the correction

	f := newBuilderFixture(t)
	ctx := context.Background()
	day := date(2025, time.March, 10)
	f.seedDay(t, day, false)

	frozen, err := f.builder.Build(ctx, "subj-1", day)
	require.NoError(t, err)
	require.NotNil(t, frozen.DailyScore)
	assert.InDelta(t, 0.0, *frozen.DailyScore, 0.0001)

	// Late correction: the item was actually taken.
	_, err = f.ledger.RecordCompletion(ctx, "subj-1", "i-1", day, true, "")
	require.NoError(t, err)

	unchanged, err := f.builder.Build(ctx, "subj-1", day)
	require.NoError(t, err)
	assert.Equal(t, frozen, unchanged)

	rebuilt, err := f.builder.Rebuild(ctx, "subj-1", day)
	require.NoError(t, err)
	require.NotNil(t, rebuilt.DailyScore)
	assert.InDelta(t, 100.0, *rebuilt.DailyScore, 0.0001)

	// The overwrite sticks for subsequent reads.
	after, err := f.builder.Build(ctx, "subj-1", day)
	require.NoError(t, err)
	assert.Equal(t, rebuilt, after)
}

func TestStore_SaveIsWriteOnce(t *testing.T) {
	// GIVEN: A persisted snapshot
	// WHEN: Save runs again for the same (subject, date)
	// THEN: The store refuses and only Overwrite replaces the row

	f := newBuilderFixture(t)
	ctx := context.Background()
	day := date(2025, time.March, 10)

	first := snapshot.DailySnapshot{SubjectID: "subj-1", Date: day, RoutinesTotal: 1}
	require.NoError(t, f.store.Save(ctx, first))

	replacement := snapshot.DailySnapshot{SubjectID: "subj-1", Date: day, RoutinesTotal: 2}
	err := f.store.Save(ctx, replacement)
	require.ErrorIs(t, err, engine.ErrSnapshotFrozen)
	assert.True(t, engine.IsInvariantViolation(err))

	stored, err := f.store.Get(ctx, "subj-1", day)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, first, *stored)

	require.NoError(t, f.store.Overwrite(ctx, replacement))
	stored, err = f.store.Get(ctx, "subj-1", day)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, replacement, *stored)
}

func TestBuild_CurrentDay_NotPersisted(t *testing.T) {
	// Today's numbers keep moving, so nothing is frozen until the day ends.

	f := newBuilderFixture(t)
	ctx := context.Background()
	today := engine.Today(time.UTC)
	f.seedDay(t, today, true)

	_, err := f.builder.Build(ctx, "subj-1", today)
	require.NoError(t, err)

	stored, err := f.store.Get(ctx, "subj-1", today)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestBuild_UnknownSubject_NotFound(t *testing.T) {
	f := newBuilderFixture(t)

	_, err := f.builder.Build(context.Background(), "ghost", date(2025, time.March, 10))
	assert.ErrorIs(t, err, engine.ErrSubjectNotFound)
}

func TestBuild_AmbiguousVersions_AbortsWholeBuild(t *testing.T) {
	// GIVEN: Overlapping versions on the snapshot date
	// THEN: The build fails and nothing is stored

	f := newBuilderFixture(t)
	ctx := context.Background()
	day := date(2025, time.March, 10)

	require.NoError(t, f.store.SaveRoutine(ctx, routine.Routine{
		ID: "r-1", SubjectID: "subj-1", Name: "protocol",
	}))
	require.NoError(t, f.store.SaveVersion(ctx, routine.RoutineVersion{
		ID: "v-1", RoutineID: "r-1", Number: 1, StartDate: date(2025, time.January, 1),
	}))
	require.NoError(t, f.store.SaveVersion(ctx, routine.RoutineVersion{
		ID: "v-2", RoutineID: "r-1", Number: 2, StartDate: date(2025, time.February, 1),
	}))

	_, err := f.builder.Build(ctx, "subj-1", day)
	assert.ErrorIs(t, err, engine.ErrAmbiguousVersionWindow)

	stored, err := f.store.Get(ctx, "subj-1", day)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

// =============================================================================
// STREAK ROLLUP
// =============================================================================

func TestBuild_CurrentStreak_MaxAcrossHabits(t *testing.T) {
	f := newBuilderFixture(t)
	ctx := context.Background()
	day := date(2025, time.March, 10)

	for _, id := range []string{"h-short", "h-long"} {
		require.NoError(t, f.store.SaveHabit(ctx, habit.Habit{
			ID: engine.HabitID(id), SubjectID: "subj-1", Name: id,
			Type: habit.TypeBoolean, Category: engine.CategoryHabit, Active: true,
		}))
	}

	// h-long: 5 consecutive days up to the snapshot date.
	for i := 0; i < 5; i++ {
		_, err := f.ledger.RecordCompletion(ctx, "subj-1", engine.ItemID("h-long"), day.AddDays(-i), true, "")
		require.NoError(t, err)
	}
	// h-short: just the snapshot day.
	_, err := f.ledger.RecordCompletion(ctx, "subj-1", engine.ItemID("h-short"), day, true, "")
	require.NoError(t, err)

	snap, err := f.builder.Build(ctx, "subj-1", day)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.CurrentStreak)
	assert.Equal(t, 2, snap.HabitsCompleted)
	assert.Equal(t, 2, snap.HabitsTotal)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestBuild_ConcurrentSameKey_SingleResult(t *testing.T) {
	// GIVEN: Many goroutines building the same (subject, date)
	// THEN: Every caller sees the same snapshot and no error

	f := newBuilderFixture(t)
	day := date(2025, time.March, 10)
	f.seedDay(t, day, true)

	const n = 16
	results := make([]snapshot.DailySnapshot, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.builder.Build(context.Background(), "subj-1", day)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
}
