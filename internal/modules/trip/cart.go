// README: Draft cart operations. Every mutation of the entry set runs under the trip lock.
package trip

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"metro/internal/types"
)

// AddRouteToDraft inserts a route into the caller's draft and re-sequences it
// by duration unless the user has already ordered the trip by hand.
func (s *Service) AddRouteToDraft(ctx context.Context, cmd AddRouteCommand) (*RouteEntry, error) {
	if cmd.Actor.Anonymous() {
		return nil, ErrForbidden
	}
	if cmd.Duration != nil && *cmd.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidArgument)
	}
	route, err := s.lookupRoute(ctx, cmd.RouteID)
	if err != nil {
		return nil, err
	}
	duration := 0
	if cmd.Duration != nil {
		duration = *cmd.Duration
	} else {
		duration = s.randDuration()
	}

	var entry RouteEntry
	err = s.retry(ctx, "add route", func() error {
		return s.store.WithTripLock(ctx, cmd.TripID, func(tx Tx) error {
			t := tx.Trip()
			if err := checkDraftOwner(t, cmd.Actor); err != nil {
				return err
			}
			if !route.Active {
				return fmt.Errorf("%w: route %s", ErrRouteInactive, route.ID)
			}
			entries, err := tx.Entries(ctx)
			if err != nil {
				return fmt.Errorf("load entries: %w", err)
			}
			for _, e := range entries {
				if e.RouteID == cmd.RouteID {
					return ErrAlreadyPresent
				}
			}

			e := RouteEntry{
				ID:        types.NewID(),
				TripID:    t.ID,
				RouteID:   cmd.RouteID,
				Order:     len(entries) + 1,
				Duration:  duration,
				CreatedAt: s.now().UTC(),
			}
			if err := tx.InsertEntry(ctx, &e); err != nil {
				return err
			}
			if !t.ManuallyOrdered {
				all := append(entries, e)
				changes := RankByDuration(all)
				if err := tx.SetOrders(ctx, changes); err != nil {
					return err
				}
				for _, c := range changes {
					if c.EntryID == e.ID {
						e.Order = c.To
					}
				}
			}
			entry = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if route.TravelMinutes == 0 {
		if filled, err := s.routes.EnsureTravelMinutes(ctx, route); err != nil {
			s.log.Warn("assign travel minutes failed", zap.String("route_id", string(route.ID)), zap.Error(err))
		} else {
			route = filled
		}
	}
	entry.Route = route
	s.log.Info("route added",
		zap.String("trip_id", string(entry.TripID)),
		zap.String("route_id", string(entry.RouteID)),
		zap.Int("order", entry.Order),
		zap.Int("duration", entry.Duration),
	)
	return &entry, nil
}

// AddRouteToMyDraft adds a route to the caller's draft, creating the draft if needed.
func (s *Service) AddRouteToMyDraft(ctx context.Context, actor types.Actor, routeID types.ID, duration *int) (*RouteEntry, error) {
	draft, err := s.CreateOrGetDraft(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.AddRouteToDraft(ctx, AddRouteCommand{Actor: actor, TripID: draft.ID, RouteID: routeID, Duration: duration})
}

// RemoveRouteFromDraft deletes an entry and closes the gap it leaves.
func (s *Service) RemoveRouteFromDraft(ctx context.Context, cmd RemoveRouteCommand) error {
	if cmd.Actor.Anonymous() {
		return ErrForbidden
	}
	return s.retry(ctx, "remove route", func() error {
		return s.store.WithTripLock(ctx, cmd.TripID, func(tx Tx) error {
			if err := checkDraftOwner(tx.Trip(), cmd.Actor); err != nil {
				return err
			}
			entries, err := tx.Entries(ctx)
			if err != nil {
				return fmt.Errorf("load entries: %w", err)
			}
			removed, rest, ok := without(entries, cmd.RouteID)
			if !ok {
				return fmt.Errorf("%w: route %s not in trip", ErrNotFound, cmd.RouteID)
			}
			if err := tx.DeleteEntry(ctx, removed.ID); err != nil {
				return err
			}
			return tx.SetOrders(ctx, Compact(rest, removed.Order))
		})
	})
}

// Reposition moves an entry to order and shifts the entries in between.
func (s *Service) Reposition(ctx context.Context, cmd RepositionCommand) (*RouteEntry, error) {
	return s.UpdateEntry(ctx, UpdateEntryCommand{
		Actor: cmd.Actor, TripID: cmd.TripID, RouteID: cmd.RouteID, Order: &cmd.Order,
	})
}

// SetFree toggles the free-ride flag of an entry.
func (s *Service) SetFree(ctx context.Context, cmd SetFreeCommand) (*RouteEntry, error) {
	return s.UpdateEntry(ctx, UpdateEntryCommand{
		Actor: cmd.Actor, TripID: cmd.TripID, RouteID: cmd.RouteID, Free: &cmd.Free,
	})
}

// UpdateEntry repositions an entry and sets its free-ride flag in one
// transaction. Either change failing leaves the entry set untouched.
func (s *Service) UpdateEntry(ctx context.Context, cmd UpdateEntryCommand) (*RouteEntry, error) {
	if cmd.Actor.Anonymous() {
		return nil, ErrForbidden
	}
	if cmd.Order == nil && cmd.Free == nil {
		return nil, fmt.Errorf("%w: order or free is required", ErrInvalidArgument)
	}
	var out RouteEntry
	err := s.retry(ctx, "update entry", func() error {
		return s.store.WithTripLock(ctx, cmd.TripID, func(tx Tx) error {
			t := tx.Trip()
			if err := checkDraftOwner(t, cmd.Actor); err != nil {
				return err
			}
			entries, err := tx.Entries(ctx)
			if err != nil {
				return fmt.Errorf("load entries: %w", err)
			}
			e, ok := find(entries, cmd.RouteID)
			if !ok {
				return fmt.Errorf("%w: route %s not in trip", ErrNotFound, cmd.RouteID)
			}
			var changes []OrderChange
			if cmd.Order != nil {
				if changes, err = Shift(entries, e.ID, *cmd.Order); err != nil {
					return err
				}
			}
			if len(changes) > 0 {
				if err := tx.SetOrders(ctx, changes); err != nil {
					return err
				}
				if !t.ManuallyOrdered {
					if err := tx.SetManuallyOrdered(ctx); err != nil {
						return err
					}
				}
				e.Order = *cmd.Order
			}
			if cmd.Free != nil {
				if err := tx.SetFree(ctx, e.ID, *cmd.Free); err != nil {
					return err
				}
				e.Free = *cmd.Free
			}
			out = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateDraft edits the descriptive fields of a draft.
func (s *Service) UpdateDraft(ctx context.Context, cmd UpdateDraftCommand) (*Trip, error) {
	if cmd.Actor.Anonymous() {
		return nil, ErrForbidden
	}
	var out *Trip
	err := s.store.WithTripLock(ctx, cmd.TripID, func(tx Tx) error {
		t := tx.Trip()
		if err := checkDraftOwner(t, cmd.Actor); err != nil {
			return err
		}
		if err := tx.UpdateDraft(ctx, cmd.Patch); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkDraftOwner(t *Trip, actor types.Actor) error {
	if t.UserID != actor.UserID {
		return ErrForbidden
	}
	if t.Status != StatusDraft {
		return fmt.Errorf("%w: trip is %s", ErrInvalidTransition, t.Status)
	}
	return nil
}

func find(entries []RouteEntry, routeID types.ID) (RouteEntry, bool) {
	for _, e := range entries {
		if e.RouteID == routeID {
			return e, true
		}
	}
	return RouteEntry{}, false
}

func without(entries []RouteEntry, routeID types.ID) (RouteEntry, []RouteEntry, bool) {
	var removed RouteEntry
	found := false
	rest := make([]RouteEntry, 0, len(entries))
	for _, e := range entries {
		if e.RouteID == routeID {
			removed, found = e, true
			continue
		}
		rest = append(rest, e)
	}
	return removed, rest, found
}
