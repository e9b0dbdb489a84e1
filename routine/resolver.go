/*
resolver.go - Temporal interval resolution

PURPOSE:
  Answers "which items are active on date D" for a routine. This is the
  read side of the versioning engine: a pure function over stored history
  with no side effects.

ALGORITHM:
  1. Find the version whose [start_date, end_date or +inf) contains D.
     - zero matches: no active protocol that day. Valid state, empty result.
     - more than one match: invariant violation, fail loudly.
  2. Within that version, include every item whose window contains D.
  3. Order by (moment slot, card sort order, item sort order).

SEE ALSO:
  - transition.go: the write side that keeps the invariants this relies on
  - scoring/scorer.go: consumes the result as the adherence denominator
*/
package routine

import (
	"context"
	"sort"

	"github.com/warp/adherence-engine/engine"
)

// =============================================================================
// RESOLVER - Active-item resolution
// =============================================================================

type Resolver struct {
	Store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{Store: store}
}

// ActiveItem is a resolved item together with the card that positions it.
type ActiveItem struct {
	Item   RoutineItem
	Moment engine.Moment
	Card   RoutineCard
}

// ActiveItems returns the items active for the routine on the reference
// date, ordered by (moment slot, card sort order, item sort order).
//
// An empty result means "no active protocol that day" and is not an error.
// Two versions claiming the date is an AmbiguousVersionWindowError.
func (r *Resolver) ActiveItems(ctx context.Context, routineID engine.RoutineID, date engine.Date) ([]ActiveItem, error) {
	versions, err := r.Store.VersionsForRoutine(ctx, routineID)
	if err != nil {
		return nil, err
	}

	version, err := versionFor(routineID, versions, date)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, nil
	}

	cards, err := r.Store.CardsForVersion(ctx, version.ID)
	if err != nil {
		return nil, err
	}

	var active []ActiveItem
	for _, card := range cards {
		items, err := r.Store.ItemsForCard(ctx, card.ID)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			// Stored windows passed validation at write time; check again so
			// a corrupted record fails the query instead of mis-resolving.
			if err := it.Window.Validate(); err != nil {
				return nil, err
			}
			if it.ActiveOn(date) {
				active = append(active, ActiveItem{Item: it, Moment: card.Moment, Card: card})
			}
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if a.Moment.SlotOrder() != b.Moment.SlotOrder() {
			return a.Moment.SlotOrder() < b.Moment.SlotOrder()
		}
		if a.Card.SortOrder != b.Card.SortOrder {
			return a.Card.SortOrder < b.Card.SortOrder
		}
		return a.Item.SortOrder < b.Item.SortOrder
	})
	return active, nil
}

// ActiveItemsForSubject resolves every routine the subject owns.
// Any AmbiguousVersionWindowError aborts the whole resolution.
func (r *Resolver) ActiveItemsForSubject(ctx context.Context, subjectID engine.SubjectID, date engine.Date) ([]ActiveItem, error) {
	routines, err := r.Store.RoutinesForSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	var all []ActiveItem
	for _, rt := range routines {
		items, err := r.ActiveItems(ctx, rt.ID, date)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}

// versionFor selects the single version covering the date.
// Versions must be ordered by StartDate (the Store contract).
func versionFor(routineID engine.RoutineID, versions []RoutineVersion, date engine.Date) (*RoutineVersion, error) {
	var matches []RoutineVersion
	for _, v := range versions {
		if v.Covers(date) {
			matches = append(matches, v)
		}
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		ids := make([]engine.VersionID, len(matches))
		for i, v := range matches {
			ids[i] = v.ID
		}
		return nil, &engine.AmbiguousVersionWindowError{RoutineID: routineID, Date: date, Versions: ids}
	}
}
