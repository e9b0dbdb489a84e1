package routine

import (
	"context"

	"github.com/warp/adherence-engine/engine"
)

// =============================================================================
// STORE - Persistence interface for routine history
// =============================================================================

// Store persists routines, versions, cards, and items.
//
// MUTATION CONTRACT:
//   - Versions: created, then EndDate set exactly once via CloseVersion.
//   - Items: created, then closed exactly once via CloseItem.
//   - Nothing is ever deleted; history must remain queryable.
type Store interface {
	SaveRoutine(ctx context.Context, r Routine) error
	GetRoutine(ctx context.Context, id engine.RoutineID) (*Routine, error)
	RoutinesForSubject(ctx context.Context, subjectID engine.SubjectID) ([]Routine, error)

	SaveVersion(ctx context.Context, v RoutineVersion) error
	// CloseVersion sets the version's end date. A closed version is never
	// changed again.
	CloseVersion(ctx context.Context, id engine.VersionID, end engine.Date) error
	// VersionsForRoutine returns all versions ordered by StartDate.
	VersionsForRoutine(ctx context.Context, routineID engine.RoutineID) ([]RoutineVersion, error)

	SaveCard(ctx context.Context, c RoutineCard) error
	// CardsForVersion returns cards ordered by (moment slot, sort order).
	CardsForVersion(ctx context.Context, versionID engine.VersionID) ([]RoutineCard, error)

	SaveItem(ctx context.Context, it RoutineItem) error
	GetItem(ctx context.Context, id engine.ItemID) (*RoutineItem, error)
	// ItemsForCard returns items ordered by sort order.
	ItemsForCard(ctx context.Context, cardID engine.CardID) ([]RoutineItem, error)
	// CloseItem resolves the item's window to an explicit inclusive end and
	// links its successor. Called exactly once per item.
	CloseItem(ctx context.Context, id engine.ItemID, until engine.Date, succeededBy engine.ItemID) error
}

// TxStore wraps Store with transaction support. Version transitions must be
// atomic per routine: closing the open version and creating its successor
// either both happen or neither does.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
