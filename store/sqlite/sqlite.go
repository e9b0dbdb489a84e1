/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface the engine defines (routine.TxStore,
  tracking.Store, habit.Store, habit.StateStore, snapshot.Store) using SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

MUTATION DISCIPLINE:
  History tables are close-once, never deleted:
  - routine_versions: INSERT, then end_date set exactly once (CloseVersion)
  - routine_items:    INSERT, then closed exactly once (CloseItem)
  - completions:      upsert on the unique day key, no DELETE
  The schema backs the engine's invariants with unique keys mirroring the
  domain model (one completion per subject/item/day, one version number per
  routine, one streak row per subject/habit, one snapshot per subject/day).

CONCURRENCY:
  Version transitions run inside a database transaction (WithTx). SQLite's
  single-writer model serializes concurrent transitions on the same routine;
  with PostgreSQL the equivalent is row-level locking on the routine.

WAL MODE:
  Opened with WAL (Write-Ahead Logging) so readers do not block during
  snapshot builds.

USAGE:
  store, err := sqlite.New("./data/adherence.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - routine/store.go, tracking/ledger.go, habit/types.go, snapshot/builder.go:
    interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/adherence-engine/engine"
	"github.com/warp/adherence-engine/habit"
	"github.com/warp/adherence-engine/routine"
	"github.com/warp/adherence-engine/snapshot"
	"github.com/warp/adherence-engine/tracking"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a SQLite store at the given path. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Interface checks
var (
	_ routine.TxStore        = (*Store)(nil)
	_ tracking.Store         = (*Store)(nil)
	_ habit.Store            = (*Store)(nil)
	_ habit.StateStore       = (*Store)(nil)
	_ snapshot.Store         = (*Store)(nil)
	_ snapshot.SubjectSource = (*Store)(nil)
)

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		timezone TEXT NOT NULL DEFAULT 'America/Chicago'
	);

	CREATE TABLE IF NOT EXISTS routines (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_routines_subject ON routines(subject_id);

	CREATE TABLE IF NOT EXISTS routine_versions (
		id TEXT PRIMARY KEY,
		routine_id TEXT NOT NULL,
		version_number INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		created_by TEXT,
		notes TEXT,
		UNIQUE(routine_id, version_number)
	);
	CREATE INDEX IF NOT EXISTS idx_versions_routine_start
		ON routine_versions(routine_id, start_date);

	CREATE TABLE IF NOT EXISTS routine_cards (
		id TEXT PRIMARY KEY,
		version_id TEXT NOT NULL,
		moment TEXT NOT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_cards_version ON routine_cards(version_id);

	CREATE TABLE IF NOT EXISTS routine_items (
		id TEXT PRIMARY KEY,
		card_id TEXT NOT NULL,
		item_type TEXT NOT NULL,
		name TEXT NOT NULL,
		dosage TEXT,
		instructions TEXT,
		frequency_json TEXT NOT NULL,
		valid_from TEXT NOT NULL,
		valid_until TEXT,
		duration_days INTEGER,
		succeeded_by TEXT,
		sort_order INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_items_card ON routine_items(card_id);

	-- CRITICAL: at most one completion record per subject/item/day
	CREATE TABLE IF NOT EXISTS completions (
		id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		completion_date TEXT NOT NULL,
		completed INTEGER NOT NULL,
		skip_reason TEXT,
		notes TEXT,
		value TEXT,
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (subject_id, item_id, completion_date)
	);
	CREATE INDEX IF NOT EXISTS idx_completions_subject_date
		ON completions(subject_id, completion_date);

	CREATE TABLE IF NOT EXISTS habits (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		name TEXT NOT NULL,
		habit_type TEXT NOT NULL,
		target_value TEXT,
		unit TEXT,
		category TEXT NOT NULL,
		frequency_json TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		pauses_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_habits_subject ON habits(subject_id);

	CREATE TABLE IF NOT EXISTS habit_streaks (
		subject_id TEXT NOT NULL,
		habit_id TEXT NOT NULL,
		current_streak INTEGER NOT NULL DEFAULT 0,
		longest_streak INTEGER NOT NULL DEFAULT 0,
		last_completed TEXT,
		PRIMARY KEY (subject_id, habit_id)
	);

	CREATE TABLE IF NOT EXISTS daily_snapshots (
		subject_id TEXT NOT NULL,
		snapshot_date TEXT NOT NULL,
		routine_score REAL,
		habit_score REAL,
		exercise_score REAL,
		daily_score REAL,
		routines_completed INTEGER NOT NULL DEFAULT 0,
		routines_total INTEGER NOT NULL DEFAULT 0,
		habits_completed INTEGER NOT NULL DEFAULT 0,
		habits_total INTEGER NOT NULL DEFAULT 0,
		current_streak INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (subject_id, snapshot_date)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier abstracts *sql.DB and *sql.Tx so routine operations can run both
// standalone and inside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// SUBJECTS
// =============================================================================

func (s *Store) SaveSubject(ctx context.Context, subj engine.Subject) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subjects (id, name, timezone) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, timezone = excluded.timezone`,
		string(subj.ID), subj.Name, subj.TimeZone)
	return err
}

func (s *Store) GetSubject(ctx context.Context, id engine.SubjectID) (*engine.Subject, error) {
	var subj engine.Subject
	var sid string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, timezone FROM subjects WHERE id = ?`, string(id)).
		Scan(&sid, &subj.Name, &subj.TimeZone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	subj.ID = engine.SubjectID(sid)
	return &subj, nil
}

func (s *Store) ListSubjects(ctx context.Context) ([]engine.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, timezone FROM subjects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Subject
	for rows.Next() {
		var subj engine.Subject
		var sid string
		if err := rows.Scan(&sid, &subj.Name, &subj.TimeZone); err != nil {
			return nil, err
		}
		subj.ID = engine.SubjectID(sid)
		out = append(out, subj)
	}
	return out, rows.Err()
}

// =============================================================================
// ROUTINES / VERSIONS / CARDS / ITEMS
// =============================================================================

func (s *Store) SaveRoutine(ctx context.Context, r routine.Routine) error {
	return saveRoutine(ctx, s.db, r)
}

func saveRoutine(ctx context.Context, q querier, r routine.Routine) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO routines (id, subject_id, name, description) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description`,
		string(r.ID), string(r.SubjectID), r.Name, r.Description)
	return err
}

func (s *Store) GetRoutine(ctx context.Context, id engine.RoutineID) (*routine.Routine, error) {
	var r routine.Routine
	var rid, sid string
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, subject_id, name, description FROM routines WHERE id = ?`, string(id)).
		Scan(&rid, &sid, &r.Name, &desc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.ID = engine.RoutineID(rid)
	r.SubjectID = engine.SubjectID(sid)
	r.Description = desc.String
	return &r, nil
}

func (s *Store) RoutinesForSubject(ctx context.Context, subjectID engine.SubjectID) ([]routine.Routine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, name, description FROM routines WHERE subject_id = ? ORDER BY id`,
		string(subjectID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []routine.Routine
	for rows.Next() {
		var r routine.Routine
		var rid, sid string
		var desc sql.NullString
		if err := rows.Scan(&rid, &sid, &r.Name, &desc); err != nil {
			return nil, err
		}
		r.ID = engine.RoutineID(rid)
		r.SubjectID = engine.SubjectID(sid)
		r.Description = desc.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SaveVersion(ctx context.Context, v routine.RoutineVersion) error {
	return saveVersion(ctx, s.db, v)
}

func saveVersion(ctx context.Context, q querier, v routine.RoutineVersion) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO routine_versions (id, routine_id, version_number, start_date, end_date, created_by, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(v.ID), string(v.RoutineID), v.Number, v.StartDate.String(),
		nullDate(v.EndDate), v.CreatedBy, v.Notes)
	return err
}

func (s *Store) CloseVersion(ctx context.Context, id engine.VersionID, end engine.Date) error {
	return closeVersion(ctx, s.db, id, end)
}

func closeVersion(ctx context.Context, q querier, id engine.VersionID, end engine.Date) error {
	// Close-once: only an open version can be closed.
	res, err := q.ExecContext(ctx,
		`UPDATE routine_versions SET end_date = ? WHERE id = ? AND end_date IS NULL`,
		end.String(), string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrVersionNotFound
	}
	return nil
}

func (s *Store) VersionsForRoutine(ctx context.Context, routineID engine.RoutineID) ([]routine.RoutineVersion, error) {
	return versionsForRoutine(ctx, s.db, routineID)
}

func versionsForRoutine(ctx context.Context, q querier, routineID engine.RoutineID) ([]routine.RoutineVersion, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, routine_id, version_number, start_date, end_date, created_by, notes
		FROM routine_versions WHERE routine_id = ? ORDER BY start_date`,
		string(routineID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []routine.RoutineVersion
	for rows.Next() {
		var v routine.RoutineVersion
		var vid, rid, start string
		var end, createdBy, notes sql.NullString
		if err := rows.Scan(&vid, &rid, &v.Number, &start, &end, &createdBy, &notes); err != nil {
			return nil, err
		}
		v.ID = engine.VersionID(vid)
		v.RoutineID = engine.RoutineID(rid)
		if v.StartDate, err = engine.ParseDate(start); err != nil {
			return nil, err
		}
		if v.EndDate, err = parseNullDate(end); err != nil {
			return nil, err
		}
		v.CreatedBy = createdBy.String
		v.Notes = notes.String
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) SaveCard(ctx context.Context, c routine.RoutineCard) error {
	return saveCard(ctx, s.db, c)
}

func saveCard(ctx context.Context, q querier, c routine.RoutineCard) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO routine_cards (id, version_id, moment, sort_order) VALUES (?, ?, ?, ?)`,
		string(c.ID), string(c.VersionID), string(c.Moment), c.SortOrder)
	return err
}

func (s *Store) CardsForVersion(ctx context.Context, versionID engine.VersionID) ([]routine.RoutineCard, error) {
	return cardsForVersion(ctx, s.db, versionID)
}

func cardsForVersion(ctx context.Context, q querier, versionID engine.VersionID) ([]routine.RoutineCard, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, version_id, moment, sort_order FROM routine_cards
		WHERE version_id = ?
		ORDER BY CASE moment
			WHEN 'morning' THEN 0 WHEN 'midday' THEN 1
			WHEN 'evening' THEN 2 WHEN 'night' THEN 3 ELSE 4 END,
			sort_order`,
		string(versionID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []routine.RoutineCard
	for rows.Next() {
		var c routine.RoutineCard
		var cid, vid, moment string
		if err := rows.Scan(&cid, &vid, &moment, &c.SortOrder); err != nil {
			return nil, err
		}
		c.ID = engine.CardID(cid)
		c.VersionID = engine.VersionID(vid)
		c.Moment = engine.Moment(moment)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) SaveItem(ctx context.Context, it routine.RoutineItem) error {
	return saveItem(ctx, s.db, it)
}

func saveItem(ctx context.Context, q querier, it routine.RoutineItem) error {
	freq, err := json.Marshal(it.Frequency)
	if err != nil {
		return err
	}
	var succeededBy any
	if it.SucceededBy != nil {
		succeededBy = string(*it.SucceededBy)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO routine_items
			(id, card_id, item_type, name, dosage, instructions, frequency_json,
			 valid_from, valid_until, duration_days, succeeded_by, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(it.ID), string(it.CardID), string(it.Type), it.Name, it.Dosage,
		it.Instructions, string(freq), it.Window.ValidFrom.String(),
		nullDate(it.Window.ValidUntil), nullInt(it.Window.DurationDays),
		succeededBy, it.SortOrder)
	return err
}

func (s *Store) GetItem(ctx context.Context, id engine.ItemID) (*routine.RoutineItem, error) {
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, q querier, id engine.ItemID) (*routine.RoutineItem, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, card_id, item_type, name, dosage, instructions, frequency_json,
		       valid_from, valid_until, duration_days, succeeded_by, sort_order
		FROM routine_items WHERE id = ?`, string(id))
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Store) ItemsForCard(ctx context.Context, cardID engine.CardID) ([]routine.RoutineItem, error) {
	return itemsForCard(ctx, s.db, cardID)
}

func itemsForCard(ctx context.Context, q querier, cardID engine.CardID) ([]routine.RoutineItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, card_id, item_type, name, dosage, instructions, frequency_json,
		       valid_from, valid_until, duration_days, succeeded_by, sort_order
		FROM routine_items WHERE card_id = ? ORDER BY sort_order`,
		string(cardID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []routine.RoutineItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func scanItem(row rowScanner) (*routine.RoutineItem, error) {
	var it routine.RoutineItem
	var iid, cid, itemType, freqJSON, validFrom string
	var dosage, instructions, validUntil, succeededBy sql.NullString
	var durationDays sql.NullInt64

	err := row.Scan(&iid, &cid, &itemType, &it.Name, &dosage, &instructions,
		&freqJSON, &validFrom, &validUntil, &durationDays, &succeededBy, &it.SortOrder)
	if err != nil {
		return nil, err
	}

	it.ID = engine.ItemID(iid)
	it.CardID = engine.CardID(cid)
	it.Type = engine.ItemType(itemType)
	it.Dosage = dosage.String
	it.Instructions = instructions.String
	if err := json.Unmarshal([]byte(freqJSON), &it.Frequency); err != nil {
		return nil, err
	}
	if it.Window.ValidFrom, err = engine.ParseDate(validFrom); err != nil {
		return nil, err
	}
	if it.Window.ValidUntil, err = parseNullDate(validUntil); err != nil {
		return nil, err
	}
	if durationDays.Valid {
		n := int(durationDays.Int64)
		it.Window.DurationDays = &n
	}
	if succeededBy.Valid {
		sb := engine.ItemID(succeededBy.String)
		it.SucceededBy = &sb
	}
	return &it, nil
}

func (s *Store) CloseItem(ctx context.Context, id engine.ItemID, until engine.Date, succeededBy engine.ItemID) error {
	return closeItem(ctx, s.db, id, until, succeededBy)
}

func closeItem(ctx context.Context, q querier, id engine.ItemID, until engine.Date, succeededBy engine.ItemID) error {
	// Close-once: resolves any duration to an explicit end in the same write.
	res, err := q.ExecContext(ctx, `
		UPDATE routine_items
		SET valid_until = ?, duration_days = NULL, succeeded_by = ?
		WHERE id = ? AND succeeded_by IS NULL`,
		until.String(), string(succeededBy), string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrItemNotFound
	}
	return nil
}

// WithTx executes fn inside a database transaction. Any error from fn rolls
// back every write made through the transactional view.
func (s *Store) WithTx(ctx context.Context, fn func(routine.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&txView{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// txView binds the routine.Store operations to an open transaction.
type txView struct {
	tx *sql.Tx
}

func (v *txView) SaveRoutine(ctx context.Context, r routine.Routine) error {
	return saveRoutine(ctx, v.tx, r)
}

func (v *txView) GetRoutine(ctx context.Context, id engine.RoutineID) (*routine.Routine, error) {
	var r routine.Routine
	var rid, sid string
	var desc sql.NullString
	err := v.tx.QueryRowContext(ctx,
		`SELECT id, subject_id, name, description FROM routines WHERE id = ?`, string(id)).
		Scan(&rid, &sid, &r.Name, &desc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.ID = engine.RoutineID(rid)
	r.SubjectID = engine.SubjectID(sid)
	r.Description = desc.String
	return &r, nil
}

func (v *txView) RoutinesForSubject(ctx context.Context, subjectID engine.SubjectID) ([]routine.Routine, error) {
	rows, err := v.tx.QueryContext(ctx,
		`SELECT id, subject_id, name, description FROM routines WHERE subject_id = ? ORDER BY id`,
		string(subjectID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []routine.Routine
	for rows.Next() {
		var r routine.Routine
		var rid, sid string
		var desc sql.NullString
		if err := rows.Scan(&rid, &sid, &r.Name, &desc); err != nil {
			return nil, err
		}
		r.ID = engine.RoutineID(rid)
		r.SubjectID = engine.SubjectID(sid)
		r.Description = desc.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (v *txView) SaveVersion(ctx context.Context, ver routine.RoutineVersion) error {
	return saveVersion(ctx, v.tx, ver)
}

func (v *txView) CloseVersion(ctx context.Context, id engine.VersionID, end engine.Date) error {
	return closeVersion(ctx, v.tx, id, end)
}

func (v *txView) VersionsForRoutine(ctx context.Context, routineID engine.RoutineID) ([]routine.RoutineVersion, error) {
	return versionsForRoutine(ctx, v.tx, routineID)
}

func (v *txView) SaveCard(ctx context.Context, c routine.RoutineCard) error {
	return saveCard(ctx, v.tx, c)
}

func (v *txView) CardsForVersion(ctx context.Context, versionID engine.VersionID) ([]routine.RoutineCard, error) {
	return cardsForVersion(ctx, v.tx, versionID)
}

func (v *txView) SaveItem(ctx context.Context, it routine.RoutineItem) error {
	return saveItem(ctx, v.tx, it)
}

func (v *txView) GetItem(ctx context.Context, id engine.ItemID) (*routine.RoutineItem, error) {
	return getItem(ctx, v.tx, id)
}

func (v *txView) ItemsForCard(ctx context.Context, cardID engine.CardID) ([]routine.RoutineItem, error) {
	return itemsForCard(ctx, v.tx, cardID)
}

func (v *txView) CloseItem(ctx context.Context, id engine.ItemID, until engine.Date, succeededBy engine.ItemID) error {
	return closeItem(ctx, v.tx, id, until, succeededBy)
}

// =============================================================================
// COMPLETION RECORDS
// =============================================================================

func (s *Store) Upsert(ctx context.Context, rec tracking.CompletionRecord) (*tracking.CompletionRecord, error) {
	previous, err := s.Find(ctx, rec.SubjectID, rec.ItemID, rec.Date)
	if err != nil {
		return nil, err
	}

	var value any
	if rec.Value != nil {
		value = rec.Value.String()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO completions
			(id, subject_id, item_id, completion_date, completed, skip_reason, notes, value, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id, item_id, completion_date) DO UPDATE SET
			id = excluded.id,
			completed = excluded.completed,
			skip_reason = excluded.skip_reason,
			notes = excluded.notes,
			value = excluded.value,
			recorded_at = excluded.recorded_at`,
		rec.ID, string(rec.SubjectID), string(rec.ItemID), rec.Date.String(),
		boolInt(rec.Completed), rec.SkipReason, rec.Notes, value,
		rec.RecordedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	return previous, nil
}

func (s *Store) Find(ctx context.Context, subjectID engine.SubjectID, itemID engine.ItemID, date engine.Date) (*tracking.CompletionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject_id, item_id, completion_date, completed, skip_reason, notes, value, recorded_at
		FROM completions WHERE subject_id = ? AND item_id = ? AND completion_date = ?`,
		string(subjectID), string(itemID), date.String())
	rec, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) ForDate(ctx context.Context, subjectID engine.SubjectID, date engine.Date) ([]tracking.CompletionRecord, error) {
	return s.queryCompletions(ctx, `
		SELECT id, subject_id, item_id, completion_date, completed, skip_reason, notes, value, recorded_at
		FROM completions WHERE subject_id = ? AND completion_date = ? ORDER BY item_id`,
		string(subjectID), date.String())
}

func (s *Store) InRange(ctx context.Context, subjectID engine.SubjectID, itemID engine.ItemID, from, to engine.Date) ([]tracking.CompletionRecord, error) {
	return s.queryCompletions(ctx, `
		SELECT id, subject_id, item_id, completion_date, completed, skip_reason, notes, value, recorded_at
		FROM completions
		WHERE subject_id = ? AND item_id = ? AND completion_date >= ? AND completion_date <= ?
		ORDER BY completion_date`,
		string(subjectID), string(itemID), from.String(), to.String())
}

func (s *Store) History(ctx context.Context, subjectID engine.SubjectID, itemID engine.ItemID) ([]tracking.CompletionRecord, error) {
	return s.queryCompletions(ctx, `
		SELECT id, subject_id, item_id, completion_date, completed, skip_reason, notes, value, recorded_at
		FROM completions WHERE subject_id = ? AND item_id = ? ORDER BY completion_date`,
		string(subjectID), string(itemID))
}

func (s *Store) queryCompletions(ctx context.Context, query string, args ...any) ([]tracking.CompletionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tracking.CompletionRecord
	for rows.Next() {
		rec, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanCompletion(row rowScanner) (*tracking.CompletionRecord, error) {
	var rec tracking.CompletionRecord
	var sid, iid, dateStr, recordedAt string
	var completed int
	var skipReason, notes, value sql.NullString

	err := row.Scan(&rec.ID, &sid, &iid, &dateStr, &completed, &skipReason, &notes, &value, &recordedAt)
	if err != nil {
		return nil, err
	}

	rec.SubjectID = engine.SubjectID(sid)
	rec.ItemID = engine.ItemID(iid)
	if rec.Date, err = engine.ParseDate(dateStr); err != nil {
		return nil, err
	}
	rec.Completed = completed != 0
	rec.SkipReason = skipReason.String
	rec.Notes = notes.String
	if value.Valid {
		dec, err := decimal.NewFromString(value.String)
		if err != nil {
			return nil, err
		}
		rec.Value = &dec
	}
	if rec.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// =============================================================================
// HABITS & STREAK STATE
// =============================================================================

func (s *Store) SaveHabit(ctx context.Context, h habit.Habit) error {
	freq, err := json.Marshal(h.Frequency)
	if err != nil {
		return err
	}
	pauses, err := json.Marshal(h.Pauses)
	if err != nil {
		return err
	}
	var target any
	if h.TargetValue != nil {
		target = h.TargetValue.String()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO habits
			(id, subject_id, name, habit_type, target_value, unit, category, frequency_json, active, pauses_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			habit_type = excluded.habit_type,
			target_value = excluded.target_value,
			unit = excluded.unit,
			category = excluded.category,
			frequency_json = excluded.frequency_json,
			active = excluded.active,
			pauses_json = excluded.pauses_json`,
		string(h.ID), string(h.SubjectID), h.Name, string(h.Type), target, h.Unit,
		string(h.Category), string(freq), boolInt(h.Active), string(pauses))
	return err
}

func (s *Store) GetHabit(ctx context.Context, id engine.HabitID) (*habit.Habit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject_id, name, habit_type, target_value, unit, category, frequency_json, active, pauses_json
		FROM habits WHERE id = ?`, string(id))
	h, err := scanHabit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Store) HabitsForSubject(ctx context.Context, subjectID engine.SubjectID) ([]habit.Habit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, name, habit_type, target_value, unit, category, frequency_json, active, pauses_json
		FROM habits WHERE subject_id = ? ORDER BY id`,
		string(subjectID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []habit.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

func scanHabit(row rowScanner) (*habit.Habit, error) {
	var h habit.Habit
	var hid, sid, habitType, category, freqJSON string
	var target, unit, pausesJSON sql.NullString
	var active int

	err := row.Scan(&hid, &sid, &h.Name, &habitType, &target, &unit, &category, &freqJSON, &active, &pausesJSON)
	if err != nil {
		return nil, err
	}

	h.ID = engine.HabitID(hid)
	h.SubjectID = engine.SubjectID(sid)
	h.Type = habit.Type(habitType)
	h.Unit = unit.String
	h.Category = engine.Category(category)
	h.Active = active != 0
	if target.Valid {
		dec, err := decimal.NewFromString(target.String)
		if err != nil {
			return nil, err
		}
		h.TargetValue = &dec
	}
	if err := json.Unmarshal([]byte(freqJSON), &h.Frequency); err != nil {
		return nil, err
	}
	if pausesJSON.Valid && pausesJSON.String != "" && pausesJSON.String != "null" {
		if err := json.Unmarshal([]byte(pausesJSON.String), &h.Pauses); err != nil {
			return nil, err
		}
	}
	return &h, nil
}

func (s *Store) SaveState(ctx context.Context, st habit.StreakState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habit_streaks (subject_id, habit_id, current_streak, longest_streak, last_completed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subject_id, habit_id) DO UPDATE SET
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_completed = excluded.last_completed`,
		string(st.SubjectID), string(st.HabitID), st.Current, st.Longest, nullDate(st.LastCompleted))
	return err
}

func (s *Store) GetState(ctx context.Context, subjectID engine.SubjectID, habitID engine.HabitID) (*habit.StreakState, error) {
	var st habit.StreakState
	var sid, hid string
	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT subject_id, habit_id, current_streak, longest_streak, last_completed
		FROM habit_streaks WHERE subject_id = ? AND habit_id = ?`,
		string(subjectID), string(habitID)).
		Scan(&sid, &hid, &st.Current, &st.Longest, &last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.SubjectID = engine.SubjectID(sid)
	st.HabitID = engine.HabitID(hid)
	if st.LastCompleted, err = parseNullDate(last); err != nil {
		return nil, err
	}
	return &st, nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Save is write-once per (subject, date). A conflicting row is left intact
// and engine.ErrSnapshotFrozen is returned; rewriting goes through Overwrite.
func (s *Store) Save(ctx context.Context, snap snapshot.DailySnapshot) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_snapshots
			(subject_id, snapshot_date, routine_score, habit_score, exercise_score, daily_score,
			 routines_completed, routines_total, habits_completed, habits_total, current_streak)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id, snapshot_date) DO NOTHING`,
		string(snap.SubjectID), snap.Date.String(),
		nullFloat(snap.RoutineScore), nullFloat(snap.HabitScore),
		nullFloat(snap.ExerciseScore), nullFloat(snap.DailyScore),
		snap.RoutinesCompleted, snap.RoutinesTotal,
		snap.HabitsCompleted, snap.HabitsTotal, snap.CurrentStreak)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrSnapshotFrozen
	}
	return nil
}

func (s *Store) Overwrite(ctx context.Context, snap snapshot.DailySnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_snapshots
			(subject_id, snapshot_date, routine_score, habit_score, exercise_score, daily_score,
			 routines_completed, routines_total, habits_completed, habits_total, current_streak)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id, snapshot_date) DO UPDATE SET
			routine_score = excluded.routine_score,
			habit_score = excluded.habit_score,
			exercise_score = excluded.exercise_score,
			daily_score = excluded.daily_score,
			routines_completed = excluded.routines_completed,
			routines_total = excluded.routines_total,
			habits_completed = excluded.habits_completed,
			habits_total = excluded.habits_total,
			current_streak = excluded.current_streak`,
		string(snap.SubjectID), snap.Date.String(),
		nullFloat(snap.RoutineScore), nullFloat(snap.HabitScore),
		nullFloat(snap.ExerciseScore), nullFloat(snap.DailyScore),
		snap.RoutinesCompleted, snap.RoutinesTotal,
		snap.HabitsCompleted, snap.HabitsTotal, snap.CurrentStreak)
	return err
}

func (s *Store) Get(ctx context.Context, subjectID engine.SubjectID, date engine.Date) (*snapshot.DailySnapshot, error) {
	var snap snapshot.DailySnapshot
	var sid, dateStr string
	var routineScore, habitScore, exerciseScore, dailyScore sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT subject_id, snapshot_date, routine_score, habit_score, exercise_score, daily_score,
		       routines_completed, routines_total, habits_completed, habits_total, current_streak
		FROM daily_snapshots WHERE subject_id = ? AND snapshot_date = ?`,
		string(subjectID), date.String()).
		Scan(&sid, &dateStr, &routineScore, &habitScore, &exerciseScore, &dailyScore,
			&snap.RoutinesCompleted, &snap.RoutinesTotal,
			&snap.HabitsCompleted, &snap.HabitsTotal, &snap.CurrentStreak)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.SubjectID = engine.SubjectID(sid)
	if snap.Date, err = engine.ParseDate(dateStr); err != nil {
		return nil, err
	}
	snap.RoutineScore = floatPtr(routineScore)
	snap.HabitScore = floatPtr(habitScore)
	snap.ExerciseScore = floatPtr(exerciseScore)
	snap.DailyScore = floatPtr(dailyScore)
	return &snap, nil
}

// =============================================================================
// SCAN/BIND HELPERS
// =============================================================================

func nullDate(d *engine.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDate(s sql.NullString) (*engine.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := engine.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
