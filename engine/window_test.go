package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/adherence-engine/engine"
)

func date(y int, m time.Month, d int) engine.Date {
	return engine.NewDate(y, m, d)
}

func datePtr(d engine.Date) *engine.Date { return &d }

func intPtr(n int) *int { return &n }

// =============================================================================
// WINDOW VALIDATION TESTS
// =============================================================================

func TestWindow_OpenEnded_Valid(t *testing.T) {
	w := engine.Window{ValidFrom: date(2025, time.March, 1)}
	if err := w.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if until := w.EffectiveUntil(); until != nil {
		t.Errorf("expected nil effective until, got %v", until)
	}
}

func TestWindow_BothEndForms_Rejected(t *testing.T) {
	// GIVEN: A window with both an explicit end and a duration
	// THEN: Validation rejects it as ambiguous

	w := engine.Window{
		ValidFrom:    date(2025, time.March, 1),
		ValidUntil:   datePtr(date(2025, time.March, 31)),
		DurationDays: intPtr(30),
	}
	err := w.Validate()
	if !errors.Is(err, engine.ErrInvalidItemWindow) {
		t.Fatalf("expected invalid window error, got %v", err)
	}
}

func TestWindow_EndBeforeStart_Rejected(t *testing.T) {
	w := engine.Window{
		ValidFrom:  date(2025, time.March, 10),
		ValidUntil: datePtr(date(2025, time.March, 5)),
	}
	if err := w.Validate(); !errors.Is(err, engine.ErrInvalidItemWindow) {
		t.Fatalf("expected invalid window error, got %v", err)
	}
}

func TestWindow_ZeroDuration_Rejected(t *testing.T) {
	w := engine.Window{
		ValidFrom:    date(2025, time.March, 1),
		DurationDays: intPtr(0),
	}
	if err := w.Validate(); !errors.Is(err, engine.ErrInvalidItemWindow) {
		t.Fatalf("expected invalid window error, got %v", err)
	}
}

func TestWindow_Duration_InclusiveEnd(t *testing.T) {
	// A 7-day window starting March 1 covers March 1 through March 7.
	w := engine.Window{
		ValidFrom:    date(2025, time.March, 1),
		DurationDays: intPtr(7),
	}

	until := w.EffectiveUntil()
	if until == nil || !until.Equal(date(2025, time.March, 7)) {
		t.Fatalf("expected effective until 2025-03-07, got %v", until)
	}

	if !w.ActiveOn(date(2025, time.March, 1)) {
		t.Error("expected active on first day")
	}
	if !w.ActiveOn(date(2025, time.March, 7)) {
		t.Error("expected active on last day")
	}
	if w.ActiveOn(date(2025, time.March, 8)) {
		t.Error("expected inactive the day after the window")
	}
	if w.ActiveOn(date(2025, time.February, 28)) {
		t.Error("expected inactive before the window")
	}
}

func TestWindow_SingleDay(t *testing.T) {
	w := engine.Window{
		ValidFrom:  date(2025, time.March, 1),
		ValidUntil: datePtr(date(2025, time.March, 1)),
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.ActiveOn(date(2025, time.March, 1)) {
		t.Error("expected single-day window active on its day")
	}
	if w.ActiveOn(date(2025, time.March, 2)) {
		t.Error("expected single-day window inactive the next day")
	}
}

// =============================================================================
// DATE ARITHMETIC TESTS
// =============================================================================

func TestDate_DaysBetween(t *testing.T) {
	a := date(2025, time.February, 27)
	b := date(2025, time.March, 2)
	if got := engine.DaysBetween(a, b); got != 3 {
		t.Errorf("expected 3 days, got %d", got)
	}
}

func TestDate_AddDays_CrossesMonth(t *testing.T) {
	d := date(2025, time.January, 31).AddDays(1)
	if !d.Equal(date(2025, time.February, 1)) {
		t.Errorf("expected 2025-02-01, got %v", d)
	}
}

func TestDateRange_Contains_Inclusive(t *testing.T) {
	r := engine.DateRange{From: date(2025, time.March, 1), To: date(2025, time.March, 31)}
	for _, d := range []engine.Date{r.From, r.To, date(2025, time.March, 15)} {
		if !r.Contains(d) {
			t.Errorf("expected range to contain %v", d)
		}
	}
	if r.Contains(date(2025, time.April, 1)) {
		t.Error("expected range to exclude the day after")
	}
}

// =============================================================================
// FREQUENCY TESTS
// =============================================================================

func TestFrequency_Weekdays(t *testing.T) {
	f := engine.Frequency{Rule: engine.FrequencyWeekdays}

	monday := date(2025, time.March, 3)
	saturday := date(2025, time.March, 1)

	if !f.ScheduledOn(monday) {
		t.Error("expected scheduled on Monday")
	}
	if f.ScheduledOn(saturday) {
		t.Error("expected not scheduled on Saturday")
	}
}

func TestFrequency_Custom(t *testing.T) {
	f := engine.Frequency{
		Rule:     engine.FrequencyCustom,
		Weekdays: []time.Weekday{time.Monday, time.Thursday},
	}

	if !f.ScheduledOn(date(2025, time.March, 6)) { // Thursday
		t.Error("expected scheduled on Thursday")
	}
	if f.ScheduledOn(date(2025, time.March, 5)) { // Wednesday
		t.Error("expected not scheduled on Wednesday")
	}
}

func TestFrequency_ZeroValue_IsDaily(t *testing.T) {
	var f engine.Frequency
	if !f.ScheduledOn(date(2025, time.March, 1)) {
		t.Error("expected zero-value frequency to schedule every day")
	}
}
