// README: Trip aggregate, route entries and status definitions.
package trip

import (
	"time"

	"metro/internal/modules/catalog"
	"metro/internal/types"
)

type Status string

const (
	StatusNone      Status = ""
	StatusDraft     Status = "DRAFT"
	StatusFormed    Status = "FORMED"
	StatusDeleted   Status = "DELETED"
	StatusFinished  Status = "FINISHED"
	StatusDismissed Status = "DISMISSED"
)

type Trip struct {
	ID            types.ID
	Status        Status
	StatusVersion int
	Owner         string
	UserID        types.ID
	ModeratorID   *types.ID
	// ModeratorName is the display name printed on the summary.
	ModeratorName string
	Name          string
	Description   string
	CreatedAt     time.Time
	FormedAt      *time.Time
	EndedAt       *time.Time
	// QR is the base64 summary artifact, written once at FINISHED.
	QR            *string
	DurationTotal *int
	// ManuallyOrdered freezes duration-based re-ranking once the user moved an entry.
	ManuallyOrdered bool

	Entries []RouteEntry
}

type RouteEntry struct {
	ID        types.ID
	TripID    types.ID
	RouteID   types.ID
	Order     int
	Duration  int
	Free      bool
	CreatedAt time.Time

	Route *catalog.Route
}

type Event struct {
	ID         int64
	TripID     types.ID
	FromStatus Status
	ToStatus   Status
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the trip state flow as code. Every status
// missing from the map is terminal.
var AllowedTransitions = map[Status][]Status{
	StatusDraft:  {StatusFormed, StatusDeleted},
	StatusFormed: {StatusFinished, StatusDismissed},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	_, ok := AllowedTransitions[s]
	return !ok
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusFormed, StatusDeleted, StatusFinished, StatusDismissed:
		return true
	}
	return false
}

// Action is the moderator's decision on a formed trip.
type Action string

const (
	ActionFinish  Action = "finish"
	ActionDismiss Action = "dismiss"
)

func (a Action) target() (Status, bool) {
	switch a {
	case ActionFinish:
		return StatusFinished, true
	case ActionDismiss:
		return StatusDismissed, true
	}
	return StatusNone, false
}
