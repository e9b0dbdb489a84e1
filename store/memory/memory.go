// Package memory provides in-memory store implementations (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/adherence-engine/engine"
	"github.com/warp/adherence-engine/habit"
	"github.com/warp/adherence-engine/routine"
	"github.com/warp/adherence-engine/snapshot"
	"github.com/warp/adherence-engine/tracking"
)

// =============================================================================
// MEMORY STORE - Implements every store interface in one struct
// =============================================================================

type Store struct {
	mu sync.RWMutex

	subjects  map[engine.SubjectID]engine.Subject
	routines  map[engine.RoutineID]routine.Routine
	versions  map[engine.VersionID]routine.RoutineVersion
	cards     map[engine.CardID]routine.RoutineCard
	items     map[engine.ItemID]routine.RoutineItem
	habits    map[engine.HabitID]habit.Habit
	streaks   map[streakKey]habit.StreakState
	records   map[recordKey]tracking.CompletionRecord
	snapshots map[snapKey]snapshot.DailySnapshot
}

type recordKey struct {
	Subject engine.SubjectID
	Item    engine.ItemID
	Date    engine.Date
}

type streakKey struct {
	Subject engine.SubjectID
	Habit   engine.HabitID
}

type snapKey struct {
	Subject engine.SubjectID
	Date    engine.Date
}

func New() *Store {
	return &Store{
		subjects:  make(map[engine.SubjectID]engine.Subject),
		routines:  make(map[engine.RoutineID]routine.Routine),
		versions:  make(map[engine.VersionID]routine.RoutineVersion),
		cards:     make(map[engine.CardID]routine.RoutineCard),
		items:     make(map[engine.ItemID]routine.RoutineItem),
		habits:    make(map[engine.HabitID]habit.Habit),
		streaks:   make(map[streakKey]habit.StreakState),
		records:   make(map[recordKey]tracking.CompletionRecord),
		snapshots: make(map[snapKey]snapshot.DailySnapshot),
	}
}

// Interface checks
var (
	_ routine.TxStore        = (*Store)(nil)
	_ tracking.Store         = (*Store)(nil)
	_ habit.Store            = (*Store)(nil)
	_ habit.StateStore       = (*Store)(nil)
	_ snapshot.Store         = (*Store)(nil)
	_ snapshot.SubjectSource = (*Store)(nil)
)

// =============================================================================
// SUBJECTS
// =============================================================================

func (m *Store) SaveSubject(_ context.Context, s engine.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[s.ID] = s
	return nil
}

func (m *Store) GetSubject(_ context.Context, id engine.SubjectID) (*engine.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.subjects[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *Store) ListSubjects(_ context.Context) ([]engine.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// ROUTINES / VERSIONS / CARDS / ITEMS
// =============================================================================

func (m *Store) SaveRoutine(_ context.Context, r routine.Routine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routines[r.ID] = r
	return nil
}

func (m *Store) GetRoutine(_ context.Context, id engine.RoutineID) (*routine.Routine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.routines[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *Store) RoutinesForSubject(_ context.Context, subjectID engine.SubjectID) ([]routine.Routine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []routine.Routine
	for _, r := range m.routines {
		if r.SubjectID == subjectID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) SaveVersion(_ context.Context, v routine.RoutineVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[v.ID] = v
	return nil
}

func (m *Store) CloseVersion(_ context.Context, id engine.VersionID, end engine.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return engine.ErrVersionNotFound
	}
	v.EndDate = &end
	m.versions[id] = v
	return nil
}

func (m *Store) VersionsForRoutine(_ context.Context, routineID engine.RoutineID) ([]routine.RoutineVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []routine.RoutineVersion
	for _, v := range m.versions {
		if v.RoutineID == routineID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *Store) SaveCard(_ context.Context, c routine.RoutineCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[c.ID] = c
	return nil
}

func (m *Store) CardsForVersion(_ context.Context, versionID engine.VersionID) ([]routine.RoutineCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []routine.RoutineCard
	for _, c := range m.cards {
		if c.VersionID == versionID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Moment.SlotOrder() != out[j].Moment.SlotOrder() {
			return out[i].Moment.SlotOrder() < out[j].Moment.SlotOrder()
		}
		return out[i].SortOrder < out[j].SortOrder
	})
	return out, nil
}

func (m *Store) SaveItem(_ context.Context, it routine.RoutineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
	return nil
}

func (m *Store) GetItem(_ context.Context, id engine.ItemID) (*routine.RoutineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if it, ok := m.items[id]; ok {
		return &it, nil
	}
	return nil, nil
}

func (m *Store) ItemsForCard(_ context.Context, cardID engine.CardID) ([]routine.RoutineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []routine.RoutineItem
	for _, it := range m.items {
		if it.CardID == cardID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *Store) CloseItem(_ context.Context, id engine.ItemID, until engine.Date, succeededBy engine.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return engine.ErrItemNotFound
	}
	u := until
	it.Window.ValidUntil = &u
	it.Window.DurationDays = nil
	sb := succeededBy
	it.SucceededBy = &sb
	m.items[id] = it
	return nil
}

// WithTx executes fn with rollback-on-error semantics, simulated with a
// snapshot of the routine tables.
func (m *Store) WithTx(ctx context.Context, fn func(routine.Store) error) error {
	m.mu.Lock()
	versions := copyMap(m.versions)
	cards := copyMap(m.cards)
	items := copyMap(m.items)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.versions = versions
		m.cards = cards
		m.items = items
		m.mu.Unlock()
		return err
	}
	return nil
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// =============================================================================
// COMPLETION RECORDS
// =============================================================================

func (m *Store) Upsert(_ context.Context, rec tracking.CompletionRecord) (*tracking.CompletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey{Subject: rec.SubjectID, Item: rec.ItemID, Date: rec.Date}
	var previous *tracking.CompletionRecord
	if existing, ok := m.records[k]; ok {
		previous = &existing
	}
	m.records[k] = rec
	return previous, nil
}

func (m *Store) Find(_ context.Context, subjectID engine.SubjectID, itemID engine.ItemID, date engine.Date) (*tracking.CompletionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.records[recordKey{Subject: subjectID, Item: itemID, Date: date}]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *Store) ForDate(_ context.Context, subjectID engine.SubjectID, date engine.Date) ([]tracking.CompletionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []tracking.CompletionRecord
	for k, rec := range m.records {
		if k.Subject == subjectID && k.Date.Equal(date) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (m *Store) InRange(_ context.Context, subjectID engine.SubjectID, itemID engine.ItemID, from, to engine.Date) ([]tracking.CompletionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []tracking.CompletionRecord
	for k, rec := range m.records {
		if k.Subject == subjectID && k.Item == itemID && k.Date.AfterOrEqual(from) && k.Date.BeforeOrEqual(to) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Store) History(_ context.Context, subjectID engine.SubjectID, itemID engine.ItemID) ([]tracking.CompletionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []tracking.CompletionRecord
	for k, rec := range m.records {
		if k.Subject == subjectID && k.Item == itemID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// =============================================================================
// HABITS & STREAK STATE
// =============================================================================

func (m *Store) SaveHabit(_ context.Context, h habit.Habit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.habits[h.ID] = h
	return nil
}

func (m *Store) GetHabit(_ context.Context, id engine.HabitID) (*habit.Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.habits[id]; ok {
		return &h, nil
	}
	return nil, nil
}

func (m *Store) HabitsForSubject(_ context.Context, subjectID engine.SubjectID) ([]habit.Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []habit.Habit
	for _, h := range m.habits {
		if h.SubjectID == subjectID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) SaveState(_ context.Context, st habit.StreakState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaks[streakKey{Subject: st.SubjectID, Habit: st.HabitID}] = st
	return nil
}

func (m *Store) GetState(_ context.Context, subjectID engine.SubjectID, habitID engine.HabitID) (*habit.StreakState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.streaks[streakKey{Subject: subjectID, Habit: habitID}]; ok {
		return &st, nil
	}
	return nil, nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Save is write-once per (subject, date). Replacing a persisted snapshot
// requires the explicit Overwrite path.
func (m *Store) Save(_ context.Context, s snapshot.DailySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := snapKey{Subject: s.SubjectID, Date: s.Date}
	if _, ok := m.snapshots[key]; ok {
		return engine.ErrSnapshotFrozen
	}
	m.snapshots[key] = s
	return nil
}

func (m *Store) Overwrite(_ context.Context, s snapshot.DailySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapKey{Subject: s.SubjectID, Date: s.Date}] = s
	return nil
}

func (m *Store) Get(_ context.Context, subjectID engine.SubjectID, date engine.Date) (*snapshot.DailySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.snapshots[snapKey{Subject: subjectID, Date: date}]; ok {
		return &s, nil
	}
	return nil, nil
}
