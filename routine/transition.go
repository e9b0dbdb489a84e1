/*
transition.go - Version and item succession

PURPOSE:
  The write side of the versioning engine. Creating a new version closes the
  current one; superseding an item closes it and links its replacement. Both
  operations are atomic: partial transitions never reach storage.

GUARANTEES:
  - Versions of a routine never overlap; at most one is open.
  - A closed version's end_date is set exactly once and never changed.
  - Succession chains have no gaps: successor.valid_from is exactly the day
    after predecessor's effective valid_until.
  - Windows with both valid_until and duration_days are rejected before
    anything is persisted.

SEE ALSO:
  - resolver.go: the read side that relies on these invariants
  - store.go: the TxStore contract that provides atomicity
*/
package routine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/warp/adherence-engine/engine"
)

// =============================================================================
// AUTHORING SPECS - Input shapes for version creation
// =============================================================================

// ItemSpec describes an item to author. At most one of ValidUntil and
// DurationDays may be set; both nil means the item is open-ended.
type ItemSpec struct {
	Type         engine.ItemType
	Name         string
	Dosage       string
	Instructions string
	Frequency    engine.Frequency
	ValidUntil   *engine.Date
	DurationDays *int
	SortOrder    int
}

// CardSpec groups item specs under a moment of day.
type CardSpec struct {
	Moment    engine.Moment
	SortOrder int
	Items     []ItemSpec
}

// =============================================================================
// VERSION MANAGER - Transition logic
// =============================================================================

type VersionManager struct {
	Store TxStore
}

func NewVersionManager(store TxStore) *VersionManager {
	return &VersionManager{Store: store}
}

// CreateNewVersion authors a new routine version starting on startDate.
//
// If an open version exists it is closed at startDate-1 in the same atomic
// unit. The new version's number is the previous maximum plus one. Item
// windows inherit valid_from from startDate and are validated before any
// write happens.
func (m *VersionManager) CreateNewVersion(ctx context.Context, routineID engine.RoutineID, startDate engine.Date, cards []CardSpec, notes, createdBy string) (*RoutineVersion, error) {
	// Validate every window up front: a construction error must leave
	// nothing persisted.
	for _, card := range cards {
		if !card.Moment.Valid() {
			return nil, fmt.Errorf("unknown moment of day %q", card.Moment)
		}
		for _, spec := range card.Items {
			w := engine.Window{ValidFrom: startDate, ValidUntil: spec.ValidUntil, DurationDays: spec.DurationDays}
			if err := w.Validate(); err != nil {
				return nil, withItemName(err, spec.Name)
			}
			if err := spec.Frequency.Validate(); err != nil {
				return nil, fmt.Errorf("item %q: %w", spec.Name, err)
			}
		}
	}

	versions, err := m.Store.VersionsForRoutine(ctx, routineID)
	if err != nil {
		return nil, err
	}

	var open *RoutineVersion
	number := 1
	for i := range versions {
		if versions[i].Number >= number {
			number = versions[i].Number + 1
		}
		if versions[i].Open() {
			open = &versions[i]
		}
	}
	if open != nil && !startDate.After(open.StartDate) {
		return nil, fmt.Errorf("%w: %s is not after v%d start %s",
			engine.ErrInvalidVersionStart, startDate, open.Number, open.StartDate)
	}

	version := RoutineVersion{
		ID:        engine.VersionID(uuid.NewString()),
		RoutineID: routineID,
		Number:    number,
		StartDate: startDate,
		CreatedBy: createdBy,
		Notes:     notes,
	}

	err = m.Store.WithTx(ctx, func(s Store) error {
		if open != nil {
			if err := s.CloseVersion(ctx, open.ID, startDate.Prev()); err != nil {
				return err
			}
		}
		if err := s.SaveVersion(ctx, version); err != nil {
			return err
		}
		for _, cardSpec := range cards {
			card := RoutineCard{
				ID:        engine.CardID(uuid.NewString()),
				VersionID: version.ID,
				Moment:    cardSpec.Moment,
				SortOrder: cardSpec.SortOrder,
			}
			if err := s.SaveCard(ctx, card); err != nil {
				return err
			}
			for _, spec := range cardSpec.Items {
				item := RoutineItem{
					ID:           engine.ItemID(uuid.NewString()),
					CardID:       card.ID,
					Type:         spec.Type,
					Name:         spec.Name,
					Dosage:       spec.Dosage,
					Instructions: spec.Instructions,
					Frequency:    spec.Frequency,
					Window: engine.Window{
						ValidFrom:    startDate,
						ValidUntil:   spec.ValidUntil,
						DurationDays: spec.DurationDays,
					},
					SortOrder: spec.SortOrder,
				}
				if err := s.SaveItem(ctx, item); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// SupersedeItem closes oldItemID at effectiveDate-1 and creates its
// replacement starting on effectiveDate, linking succeeded_by. Both writes
// happen in one atomic unit.
//
// A duration-based window is first resolved to an explicit valid_until so
// the stored closure is unambiguous.
func (m *VersionManager) SupersedeItem(ctx context.Context, oldItemID engine.ItemID, spec ItemSpec, effectiveDate engine.Date) (*RoutineItem, error) {
	old, err := m.Store.GetItem(ctx, oldItemID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, engine.ErrItemNotFound
	}
	if old.SucceededBy != nil {
		return nil, fmt.Errorf("item %s already superseded by %s", old.ID, *old.SucceededBy)
	}
	if !effectiveDate.After(old.Window.ValidFrom) {
		return nil, &engine.InvalidTransitionDateError{
			ItemID:        old.ID,
			ValidFrom:     old.Window.ValidFrom,
			EffectiveDate: effectiveDate,
		}
	}

	newWindow := engine.Window{
		ValidFrom:    effectiveDate,
		ValidUntil:   spec.ValidUntil,
		DurationDays: spec.DurationDays,
	}
	if err := newWindow.Validate(); err != nil {
		return nil, withItemName(err, spec.Name)
	}
	if err := spec.Frequency.Validate(); err != nil {
		return nil, fmt.Errorf("item %q: %w", spec.Name, err)
	}

	successor := RoutineItem{
		ID:           engine.ItemID(uuid.NewString()),
		CardID:       old.CardID,
		Type:         spec.Type,
		Name:         spec.Name,
		Dosage:       spec.Dosage,
		Instructions: spec.Instructions,
		Frequency:    spec.Frequency,
		Window:       newWindow,
		SortOrder:    spec.SortOrder,
	}

	// No gaps, no overlaps: the predecessor's last day is the day before
	// the successor starts, regardless of how its window was defined.
	until := effectiveDate.Prev()

	err = m.Store.WithTx(ctx, func(s Store) error {
		if err := s.CloseItem(ctx, old.ID, until, successor.ID); err != nil {
			return err
		}
		return s.SaveItem(ctx, successor)
	})
	if err != nil {
		return nil, err
	}
	return &successor, nil
}

func withItemName(err error, name string) error {
	var winErr *engine.InvalidItemWindowError
	if errors.As(err, &winErr) && winErr.ItemName == "" {
		return &engine.InvalidItemWindowError{ItemName: name, Reason: winErr.Reason}
	}
	return err
}
