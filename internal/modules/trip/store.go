// README: Persistence contract for trips and route entries.
package trip

import (
	"context"
	"time"

	"metro/internal/types"
)

// Store is implemented by PgStore. Every read-modify-write of a trip's entry set
// goes through WithTripLock so concurrent operations on one trip serialize.
type Store interface {
	// GetOrCreateDraft returns the user's DRAFT trip, inserting draft when none exists.
	GetOrCreateDraft(ctx context.Context, draft *Trip) (*Trip, error)
	FindDraft(ctx context.Context, userID types.ID) (*Trip, error)
	Get(ctx context.Context, id types.ID) (*Trip, error)
	ListEntries(ctx context.Context, tripID types.ID) ([]RouteEntry, error)
	List(ctx context.Context, f ListFilter) ([]Trip, error)
	UpdateStatus(ctx context.Context, tr Transition) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	WithTripLock(ctx context.Context, tripID types.ID, fn func(tx Tx) error) error
}

// Tx is a transaction holding the lock on one trip row.
type Tx interface {
	Trip() *Trip
	Entries(ctx context.Context) ([]RouteEntry, error)
	InsertEntry(ctx context.Context, e *RouteEntry) error
	DeleteEntry(ctx context.Context, entryID types.ID) error
	SetOrders(ctx context.Context, changes []OrderChange) error
	SetFree(ctx context.Context, entryID types.ID, free bool) error
	UpdateDraft(ctx context.Context, p DraftPatch) error
	SetManuallyOrdered(ctx context.Context) error
	UpdateStatus(ctx context.Context, tr Transition) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
}

// Transition is a conditional status update: it applies only while the row is
// still at From with StatusVersion == Version. Nil fields are left unchanged.
type Transition struct {
	TripID        types.ID
	From          Status
	To            Status
	Version       int
	ModeratorID   *types.ID
	ModeratorName *string
	FormedAt      *time.Time
	EndedAt       *time.Time
	DurationTotal *int
	QR            *string
}

// apply mirrors the UPDATE on an in-memory copy.
func (tr Transition) apply(t *Trip) {
	t.Status = tr.To
	t.StatusVersion++
	if tr.ModeratorID != nil {
		t.ModeratorID = tr.ModeratorID
	}
	if tr.ModeratorName != nil {
		t.ModeratorName = *tr.ModeratorName
	}
	if tr.FormedAt != nil {
		t.FormedAt = tr.FormedAt
	}
	if tr.EndedAt != nil {
		t.EndedAt = tr.EndedAt
	}
	if tr.DurationTotal != nil {
		t.DurationTotal = tr.DurationTotal
	}
	if tr.QR != nil {
		t.QR = tr.QR
	}
}

type DraftPatch struct {
	Owner       *string
	Name        *string
	Description *string
}

func (p DraftPatch) apply(t *Trip) {
	if p.Owner != nil {
		t.Owner = *p.Owner
	}
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
}

type ListFilter struct {
	UserID types.ID
	Status Status
	From   *time.Time
	To     *time.Time
}
