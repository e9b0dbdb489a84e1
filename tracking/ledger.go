/*
Package tracking implements the completion ledger.

PURPOSE:
  The ledger is the record of fact for adherence: "on calendar date D,
  item I was completed or explicitly skipped by subject S". Streaks and
  scores are always derived from it, never stored authoritatively
  elsewhere.

INVARIANT:
  Exactly zero or one record per (subject, item, calendar date). Writing
  the same key twice is an upsert: last write wins. The overwritten record
  is handed to an audit hook so the correction is traceable; the ledger
  itself keeps only the surviving record.

WHY UPSERT INSTEAD OF APPEND-ONLY?
  A completion is a statement about a day, not an event stream. "I did
  take it after all" replaces the earlier statement - two contradictory
  records for the same day would make every downstream derivation
  ambiguous. Auditability is preserved through the overwrite hook.

SEE ALSO:
  - habit/streak.go: derives streaks from ledger history
  - scoring/scorer.go: derives the adherence numerator from the ledger
*/
package tracking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/adherence-engine/engine"
)

// =============================================================================
// COMPLETION RECORD - One fact about one day
// =============================================================================

// CompletionRecord states whether an item or habit was completed on a
// calendar date. Date is the subject's local date, not a UTC instant.
type CompletionRecord struct {
	ID        string
	SubjectID engine.SubjectID
	ItemID    engine.ItemID
	Date      engine.Date

	Completed  bool
	SkipReason string // set when the subject explicitly skipped
	Notes      string

	// Value carries the logged quantity for numeric habits
	// (e.g. 12500 steps). Nil for boolean completions.
	Value *decimal.Decimal

	RecordedAt time.Time
}

// =============================================================================
// STORE - Persistence interface
// =============================================================================

// Store persists completion records with upsert semantics on the unique
// (subject, item, date) key.
type Store interface {
	// Upsert writes the record, replacing any existing record with the same
	// key. Returns the replaced record, or nil if the key was new.
	Upsert(ctx context.Context, rec CompletionRecord) (*CompletionRecord, error)

	// Find returns the record for the key, or nil if none exists.
	Find(ctx context.Context, subjectID engine.SubjectID, itemID engine.ItemID, date engine.Date) (*CompletionRecord, error)

	// ForDate returns all records for the subject on the date.
	ForDate(ctx context.Context, subjectID engine.SubjectID, date engine.Date) ([]CompletionRecord, error)

	// InRange returns records for one item in [from, to], ordered by date.
	InRange(ctx context.Context, subjectID engine.SubjectID, itemID engine.ItemID, from, to engine.Date) ([]CompletionRecord, error)

	// History returns every record for one item, ordered by date.
	History(ctx context.Context, subjectID engine.SubjectID, itemID engine.ItemID) ([]CompletionRecord, error)
}

// AuditLog receives overwritten records so corrections stay traceable.
// Implemented by the surrounding application; nil disables auditing.
type AuditLog interface {
	RecordOverwrite(ctx context.Context, previous, replacement CompletionRecord)
}

// =============================================================================
// LEDGER - Upsert wrapper with audit
// =============================================================================

type Ledger struct {
	store Store
	audit AuditLog

	// now is swappable for tests; defaults to time.Now.
	now func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// WithAudit attaches an overwrite audit hook.
func (l *Ledger) WithAudit(audit AuditLog) *Ledger {
	l.audit = audit
	return l
}

// WithClock overrides the wall clock used for RecordedAt.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Entry is the input for recording one day's fact.
type Entry struct {
	SubjectID  engine.SubjectID
	ItemID     engine.ItemID
	Date       engine.Date
	Completed  bool
	SkipReason string
	Notes      string
	Value      *decimal.Decimal
}

// Record upserts the entry. Idempotent on the (subject, item, date) key:
// writing the same key twice overwrites rather than duplicates.
func (l *Ledger) Record(ctx context.Context, e Entry) (CompletionRecord, error) {
	rec := CompletionRecord{
		ID:         uuid.NewString(),
		SubjectID:  e.SubjectID,
		ItemID:     e.ItemID,
		Date:       e.Date,
		Completed:  e.Completed,
		SkipReason: e.SkipReason,
		Notes:      e.Notes,
		Value:      e.Value,
		RecordedAt: l.now(),
	}

	previous, err := l.store.Upsert(ctx, rec)
	if err != nil {
		return CompletionRecord{}, err
	}
	if previous != nil && l.audit != nil {
		l.audit.RecordOverwrite(ctx, *previous, rec)
	}
	return rec, nil
}

// RecordCompletion is shorthand for the common boolean check-off.
func (l *Ledger) RecordCompletion(ctx context.Context, subjectID engine.SubjectID, itemID engine.ItemID, date engine.Date, completed bool, skipReason string) (CompletionRecord, error) {
	return l.Record(ctx, Entry{
		SubjectID:  subjectID,
		ItemID:     itemID,
		Date:       date,
		Completed:  completed,
		SkipReason: skipReason,
	})
}

// CompletionsForDate returns all of the subject's records for one date.
// An empty result is a valid state, not an error.
func (l *Ledger) CompletionsForDate(ctx context.Context, subjectID engine.SubjectID, date engine.Date) ([]CompletionRecord, error) {
	return l.store.ForDate(ctx, subjectID, date)
}

// CompletionsInRange returns one item's records in [from, to], ordered.
func (l *Ledger) CompletionsInRange(ctx context.Context, subjectID engine.SubjectID, itemID engine.ItemID, r engine.DateRange) ([]CompletionRecord, error) {
	return l.store.InRange(ctx, subjectID, itemID, r.From, r.To)
}

// History returns every record for one item, ordered by date.
func (l *Ledger) History(ctx context.Context, subjectID engine.SubjectID, itemID engine.ItemID) ([]CompletionRecord, error) {
	return l.store.History(ctx, subjectID, itemID)
}
