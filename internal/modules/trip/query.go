// README: Read side of trips: detail, list and the caller's draft badge.
package trip

import (
	"context"
	"errors"
	"fmt"

	"metro/internal/modules/pricing"
	"metro/internal/modules/summary"
	"metro/internal/types"
)

// Get returns a trip with its ordered entries and their routes. Only the trip's
// user and moderators may read it.
func (s *Service) Get(ctx context.Context, actor types.Actor, id types.ID) (*Trip, error) {
	if actor.Anonymous() {
		return nil, ErrForbidden
	}
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != actor.UserID && !actor.IsModerator() {
		return nil, ErrForbidden
	}
	if t.Status == StatusDeleted && !actor.IsAdmin() {
		return nil, ErrNotFound
	}
	entries, err := s.store.ListEntries(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	if err := s.attachRoutes(ctx, entries); err != nil {
		return nil, err
	}
	t.Entries = entries
	return t, nil
}

// List returns submitted trips. Non-moderators only see their own.
func (s *Service) List(ctx context.Context, actor types.Actor, f ListFilter) ([]Trip, error) {
	if actor.Anonymous() {
		return nil, ErrForbidden
	}
	switch {
	case f.Status == StatusNone:
	case !f.Status.Valid(), f.Status == StatusDraft, f.Status == StatusDeleted:
		return nil, fmt.Errorf("%w: status %q cannot be listed", ErrInvalidArgument, f.Status)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalidArgument)
	}
	if !actor.IsModerator() {
		f.UserID = actor.UserID
	}
	return s.store.List(ctx, f)
}

// MyDraft returns the caller's draft or ErrNotFound.
func (s *Service) MyDraft(ctx context.Context, actor types.Actor) (*Trip, error) {
	if actor.Anonymous() {
		return nil, ErrForbidden
	}
	t, err := s.store.FindDraft(ctx, actor.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: no draft trip", ErrNotFound)
	}
	return t, err
}

// DraftSummary reports the caller's draft id and entry count, or an empty id
// when there is no draft.
func (s *Service) DraftSummary(ctx context.Context, actor types.Actor) (types.ID, int, error) {
	if actor.Anonymous() {
		return "", 0, nil
	}
	t, err := s.MyDraft(ctx, actor)
	if errors.Is(err, ErrNotFound) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	entries, err := s.store.ListEntries(ctx, t.ID)
	if err != nil {
		return "", 0, err
	}
	return t.ID, len(entries), nil
}

// SummaryPDF renders the printable summary of a finished trip.
func (s *Service) SummaryPDF(ctx context.Context, actor types.Actor, id types.ID) ([]byte, error) {
	t, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusFinished || t.QR == nil {
		return nil, fmt.Errorf("%w: trip is %s", ErrPreconditionFailed, t.Status)
	}
	return summary.RenderPDF(storedSummary(t), *t.QR)
}

// storedSummary rebuilds the summary of a finished trip from its stored
// fields; it reproduces the text encoded in the trip's QR.
func storedSummary(t *Trip) summary.Trip {
	return summaryOf(t, t.Status, t.ModeratorName, t.Entries, t.EndedAt)
}

// Quote prices the trip's paid entries. Entries must have their routes attached.
func Quote(t *Trip, currency string) (pricing.Quote, error) {
	items := make([]pricing.Item, 0, len(t.Entries))
	for _, e := range t.Entries {
		if e.Route == nil {
			continue
		}
		items = append(items, pricing.Item{Label: e.Route.Label(), Price: e.Route.Price, Free: e.Free})
	}
	return pricing.NewQuote(currency, items)
}
