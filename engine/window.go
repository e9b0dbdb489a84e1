package engine

// =============================================================================
// WINDOW - Validity span of a versioned item
// =============================================================================

// Window is the validity span of a routine item. ValidFrom is inherited from
// the parent version's start date. The end of the window comes from exactly
// one of two sources: an explicit ValidUntil, or a DurationDays count relative
// to ValidFrom. Setting both is ambiguous and rejected at construction time.
type Window struct {
	ValidFrom    Date
	ValidUntil   *Date // explicit expiration (inclusive), nil = open or duration-derived
	DurationDays *int  // alternative to ValidUntil
}

// Validate rejects malformed windows. This runs at write time; read paths
// may assume a stored window has passed it.
func (w Window) Validate() error {
	if w.ValidFrom.IsZero() {
		return &InvalidItemWindowError{Reason: "valid_from is required"}
	}
	if w.ValidUntil != nil && w.DurationDays != nil {
		return &InvalidItemWindowError{Reason: "both valid_until and duration_days set"}
	}
	if w.ValidUntil != nil && w.ValidUntil.Before(w.ValidFrom) {
		return &InvalidItemWindowError{Reason: "valid_until precedes valid_from"}
	}
	if w.DurationDays != nil && *w.DurationDays < 1 {
		return &InvalidItemWindowError{Reason: "duration_days must be at least 1"}
	}
	return nil
}

// EffectiveUntil returns the inclusive last active day, or nil for an
// open-ended window. Duration-based windows resolve to ValidFrom+N-1.
func (w Window) EffectiveUntil() *Date {
	if w.ValidUntil != nil {
		d := *w.ValidUntil
		return &d
	}
	if w.DurationDays != nil {
		d := w.ValidFrom.AddDays(*w.DurationDays - 1)
		return &d
	}
	return nil
}

// ActiveOn reports whether the window contains the given date.
func (w Window) ActiveOn(d Date) bool {
	if d.Before(w.ValidFrom) {
		return false
	}
	if until := w.EffectiveUntil(); until != nil && d.After(*until) {
		return false
	}
	return true
}

// Open reports whether the window has no end.
func (w Window) Open() bool { return w.ValidUntil == nil && w.DurationDays == nil }
