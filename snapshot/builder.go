/*
Package snapshot builds the immutable per-day adherence summary.

PURPOSE:
  One DailySnapshot per (subject, date): scores, counts, and the subject's
  best current streak. The builder orchestrates the resolver, the ledger,
  the scorer, and the streak calculator; everything it stores is derived,
  so building is idempotent - unchanged inputs always produce an identical
  snapshot.

IMMUTABILITY:
  Once a snapshot's date has fully elapsed it is frozen. Build returns the
  stored snapshot for past dates instead of recomputing; Rebuild is the
  explicit administrative override that rewrites history.

DEDUPLICATION:
  Concurrent builds of the same (subject, date) are collapsed to a single
  computation. This is an efficiency measure, not a correctness one - the
  computation is deterministic either way.
*/
package snapshot

import (
	"context"
	"errors"
	"sync"

	"github.com/warp/adherence-engine/engine"
	"github.com/warp/adherence-engine/habit"
	"github.com/warp/adherence-engine/scoring"
)

// =============================================================================
// DAILY SNAPSHOT - One immutable record per (subject, date)
// =============================================================================

// DailySnapshot summarizes one subject's adherence for one date. It carries
// no generation timestamp: two builds over unchanged data must be identical.
type DailySnapshot struct {
	SubjectID engine.SubjectID
	Date      engine.Date

	RoutineScore  *float64
	HabitScore    *float64
	ExerciseScore *float64
	DailyScore    *float64

	RoutinesCompleted int
	RoutinesTotal     int
	HabitsCompleted   int
	HabitsTotal       int

	// CurrentStreak is the maximum current streak across the subject's
	// habits as of the snapshot date.
	CurrentStreak int
}

// Store persists snapshots keyed by (subject, date). Save is write-once:
// replacing an existing snapshot returns engine.ErrSnapshotFrozen. Rewriting
// history goes through Overwrite.
type Store interface {
	Save(ctx context.Context, s DailySnapshot) error
	Overwrite(ctx context.Context, s DailySnapshot) error
	Get(ctx context.Context, subjectID engine.SubjectID, date engine.Date) (*DailySnapshot, error)
}

// =============================================================================
// BUILDER
// =============================================================================

// SubjectSource resolves subject settings (time zone).
type SubjectSource interface {
	GetSubject(ctx context.Context, id engine.SubjectID) (*engine.Subject, error)
}

type Builder struct {
	Scorer    *scoring.Scorer
	Streaks   *habit.Calculator
	Habits    scoring.HabitSource
	Subjects  SubjectSource
	Snapshots Store // optional; nil disables persistence and freezing

	mu       sync.Mutex
	inflight map[buildKey]*buildCall
}

type buildKey struct {
	subject engine.SubjectID
	date    engine.Date
}

type buildCall struct {
	done chan struct{}
	snap DailySnapshot
	err  error
}

func NewBuilder(scorer *scoring.Scorer, streaks *habit.Calculator, habits scoring.HabitSource, subjects SubjectSource, snapshots Store) *Builder {
	return &Builder{
		Scorer:    scorer,
		Streaks:   streaks,
		Habits:    habits,
		Subjects:  subjects,
		Snapshots: snapshots,
		inflight:  make(map[buildKey]*buildCall),
	}
}

// Build produces the snapshot for (subject, date).
//
// For a date that has fully elapsed, an already-stored snapshot is returned
// as-is: past snapshots are immutable on this path. Concurrent builds of
// the same key share one computation.
func (b *Builder) Build(ctx context.Context, subjectID engine.SubjectID, date engine.Date) (DailySnapshot, error) {
	key := buildKey{subject: subjectID, date: date}

	b.mu.Lock()
	if call, ok := b.inflight[key]; ok {
		b.mu.Unlock()
		<-call.done
		return call.snap, call.err
	}
	call := &buildCall{done: make(chan struct{})}
	b.inflight[key] = call
	b.mu.Unlock()

	call.snap, call.err = b.build(ctx, subjectID, date, false)

	b.mu.Lock()
	delete(b.inflight, key)
	b.mu.Unlock()
	close(call.done)

	return call.snap, call.err
}

// Rebuild recomputes and overwrites the snapshot regardless of age. This is
// the explicit administrative path for regenerating history after data
// corrections.
func (b *Builder) Rebuild(ctx context.Context, subjectID engine.SubjectID, date engine.Date) (DailySnapshot, error) {
	return b.build(ctx, subjectID, date, true)
}

func (b *Builder) build(ctx context.Context, subjectID engine.SubjectID, date engine.Date, force bool) (DailySnapshot, error) {
	subject, err := b.Subjects.GetSubject(ctx, subjectID)
	if err != nil {
		return DailySnapshot{}, err
	}
	if subject == nil {
		return DailySnapshot{}, engine.ErrSubjectNotFound
	}

	elapsed := date.Before(engine.Today(subject.Location()))

	if b.Snapshots != nil && elapsed && !force {
		existing, err := b.Snapshots.Get(ctx, subjectID, date)
		if err != nil {
			return DailySnapshot{}, err
		}
		if existing != nil {
			return *existing, nil
		}
	}

	// Any resolver failure (ambiguous version window included) aborts the
	// whole build. Data integrity over availability.
	score, err := b.Scorer.ScoreDay(ctx, subjectID, date)
	if err != nil {
		return DailySnapshot{}, err
	}

	streak, err := b.bestCurrentStreak(ctx, subjectID, date)
	if err != nil {
		return DailySnapshot{}, err
	}

	snap := DailySnapshot{
		SubjectID:         subjectID,
		Date:              date,
		RoutineScore:      score.RoutineScore,
		HabitScore:        score.HabitScore,
		ExerciseScore:     score.ExerciseScore,
		DailyScore:        score.DailyScore,
		RoutinesCompleted: score.RoutinesCompleted,
		RoutinesTotal:     score.RoutinesTotal,
		HabitsCompleted:   score.HabitsCompleted + score.ExercisesCompleted,
		HabitsTotal:       score.HabitsTotal + score.ExercisesTotal,
		CurrentStreak:     streak,
	}

	if b.Snapshots != nil && elapsed {
		if force {
			if err := b.Snapshots.Overwrite(ctx, snap); err != nil {
				return DailySnapshot{}, err
			}
		} else if err := b.Snapshots.Save(ctx, snap); err != nil {
			// A concurrent writer beat us to the key. The computation is
			// deterministic, so the stored snapshot equals ours.
			if !errors.Is(err, engine.ErrSnapshotFrozen) {
				return DailySnapshot{}, err
			}
		}
	}
	return snap, nil
}

// bestCurrentStreak is the maximum current streak across the subject's
// habits as of the snapshot date. Zero habits yields zero.
func (b *Builder) bestCurrentStreak(ctx context.Context, subjectID engine.SubjectID, date engine.Date) (int, error) {
	habits, err := b.Habits.HabitsForSubject(ctx, subjectID)
	if err != nil {
		return 0, err
	}

	best := 0
	for _, h := range habits {
		st, err := b.Streaks.RecomputeAsOf(ctx, h, date)
		if err != nil {
			return 0, err
		}
		if st.Current > best {
			best = st.Current
		}
	}
	return best, nil
}
