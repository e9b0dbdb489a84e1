package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar date (no time component)
// =============================================================================

// Date is a calendar date in the subject's local calendar. The engine never
// reasons about instants: completions, validity windows, and snapshots are all
// keyed by whole days. A Date carries no zone; converting "now" into a Date is
// done once, at the boundary, via Today(loc).
type Date struct {
	t time.Time // normalized to midnight UTC, day granularity
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO date ("2006-01-02").
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// DateOf truncates an instant to its calendar date in the given location.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return NewDate(local.Year(), local.Month(), local.Day())
}

// Today returns the current calendar date in the given location.
// This is the only place the engine touches the wall clock.
func Today(loc *time.Location) Date {
	return DateOf(time.Now(), loc)
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Next() Date         { return d.AddDays(1) }
func (d Date) Prev() Date         { return d.AddDays(-1) }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }

func (d Date) String() string { return d.t.Format("2006-01-02") }

// Time returns the underlying midnight-UTC instant (for storage layers).
func (d Date) Time() time.Time { return d.t }

// DaysBetween returns the number of days from a to b (negative if b < a).
func DaysBetween(a, b Date) int {
	return int(b.t.Sub(a.t).Hours() / 24)
}

// =============================================================================
// DATE RANGE - Inclusive [From, To] span of calendar days
// =============================================================================

type DateRange struct {
	From Date
	To   Date
}

func (r DateRange) Valid() bool           { return r.From.BeforeOrEqual(r.To) }
func (r DateRange) Contains(d Date) bool  { return d.AfterOrEqual(r.From) && d.BeforeOrEqual(r.To) }
func (r DateRange) Days() []Date {
	var days []Date
	for d := r.From; d.BeforeOrEqual(r.To); d = d.Next() {
		days = append(days, d)
	}
	return days
}

func (r DateRange) String() string {
	return "[" + r.From.String() + ", " + r.To.String() + "]"
}
