// README: Trip service implements the draft cart, sequencing and status transitions.
package trip

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"metro/internal/modules/catalog"
	"metro/internal/modules/summary"
	"metro/internal/types"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyPresent     = errors.New("route already in trip")
	ErrRouteInactive      = errors.New("route is inactive")
	ErrOutOfRange         = errors.New("order out of range")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrInvalidArgument    = errors.New("invalid argument")
	// ErrTxConflict marks a serialization failure or deadlock; the operation may be retried.
	ErrTxConflict = errors.New("transaction conflict")
)

const (
	minEntryDuration = 30
	maxEntryDuration = 300
)

// RouteLookup is satisfied by catalog.Service.
type RouteLookup interface {
	Get(ctx context.Context, id types.ID) (*catalog.Route, error)
	EnsureTravelMinutes(ctx context.Context, r *catalog.Route) (*catalog.Route, error)
}

type Service struct {
	store        Store
	routes       RouteLookup
	log          *zap.Logger
	now          func() time.Time
	randDuration func() int
	maxAttempts  uint
	retryBase    time.Duration
}

type Option func(*Service)

// WithMaxAttempts bounds how often a sequencing transaction is tried.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = uint(n)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDurationSource replaces the random entry duration used when none is supplied.
func WithDurationSource(fn func() int) Option {
	return func(s *Service) { s.randDuration = fn }
}

func withRetryBase(d time.Duration) Option {
	return func(s *Service) { s.retryBase = d }
}

func NewService(store Store, routes RouteLookup, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		routes: routes,
		log:    log.Named("trip"),
		now:    time.Now,
		randDuration: func() int {
			return minEntryDuration + rand.IntN(maxEntryDuration-minEntryDuration+1)
		},
		maxAttempts: 3,
		retryBase:   20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type AddRouteCommand struct {
	Actor   types.Actor
	TripID  types.ID
	RouteID types.ID
	// Duration in minutes; random in [30,300] when nil.
	Duration *int
}

type RemoveRouteCommand struct {
	Actor   types.Actor
	TripID  types.ID
	RouteID types.ID
}

type RepositionCommand struct {
	Actor   types.Actor
	TripID  types.ID
	RouteID types.ID
	Order   int
}

type SetFreeCommand struct {
	Actor   types.Actor
	TripID  types.ID
	RouteID types.ID
	Free    bool
}

// UpdateEntryCommand carries an optional new order and an optional free flag.
type UpdateEntryCommand struct {
	Actor   types.Actor
	TripID  types.ID
	RouteID types.ID
	Order   *int
	Free    *bool
}

type UpdateDraftCommand struct {
	Actor  types.Actor
	TripID types.ID
	Patch  DraftPatch
}

type FormCommand struct {
	Actor  types.Actor
	TripID types.ID
}

type DeleteCommand struct {
	Actor  types.Actor
	TripID types.ID
}

type ModerateCommand struct {
	Actor  types.Actor
	TripID types.ID
	Action Action
}

// CreateOrGetDraft returns the caller's draft, creating it on first use.
func (s *Service) CreateOrGetDraft(ctx context.Context, actor types.Actor) (*Trip, error) {
	if actor.Anonymous() {
		return nil, ErrForbidden
	}
	var out *Trip
	err := s.retry(ctx, "create draft", func() error {
		t, err := s.store.GetOrCreateDraft(ctx, &Trip{
			ID:        types.NewID(),
			Status:    StatusDraft,
			UserID:    actor.UserID,
			CreatedAt: s.now().UTC(),
		})
		out = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FormTrip submits a draft for moderation.
func (s *Service) FormTrip(ctx context.Context, cmd FormCommand) (*Trip, error) {
	if cmd.Actor.Anonymous() {
		return nil, ErrForbidden
	}
	var out *Trip
	err := s.store.WithTripLock(ctx, cmd.TripID, func(tx Tx) error {
		t := tx.Trip()
		if t.UserID != cmd.Actor.UserID {
			return fmt.Errorf("%w: trip belongs to another user", ErrPreconditionFailed)
		}
		if t.Status != StatusDraft {
			return fmt.Errorf("%w: trip is %s", ErrPreconditionFailed, t.Status)
		}
		if strings.TrimSpace(t.Owner) == "" {
			return fmt.Errorf("%w: owner is not set", ErrPreconditionFailed)
		}
		entries, err := tx.Entries(ctx)
		if err != nil {
			return fmt.Errorf("load entries: %w", err)
		}
		if len(entries) == 0 {
			return fmt.Errorf("%w: trip has no routes", ErrPreconditionFailed)
		}

		formedAt := s.now().UTC()
		tr := Transition{
			TripID:   t.ID,
			From:     StatusDraft,
			To:       StatusFormed,
			Version:  t.StatusVersion,
			FormedAt: &formedAt,
		}
		if err := s.transition(ctx, tx, tr, cmd.Actor.UserID); err != nil {
			return err
		}
		tr.apply(t)
		t.Entries = entries
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("trip formed", zap.String("trip_id", string(out.ID)), zap.Int("routes", len(out.Entries)))
	return out, nil
}

// Moderate finishes or dismisses a formed trip. Finishing computes the total
// duration and the summary artifact inside the same transaction.
func (s *Service) Moderate(ctx context.Context, cmd ModerateCommand) (*Trip, error) {
	target, ok := cmd.Action.target()
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidArgument, cmd.Action)
	}
	if !cmd.Actor.IsModerator() {
		return nil, ErrForbidden
	}

	var out *Trip
	err := s.store.WithTripLock(ctx, cmd.TripID, func(tx Tx) error {
		t := tx.Trip()
		if !CanTransition(t.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, target)
		}
		moderatorID, moderatorName := cmd.Actor.UserID, cmd.Actor.DisplayName()
		tr := Transition{
			TripID:        t.ID,
			From:          t.Status,
			To:            target,
			Version:       t.StatusVersion,
			ModeratorID:   &moderatorID,
			ModeratorName: &moderatorName,
		}
		entries, err := tx.Entries(ctx)
		if err != nil {
			return fmt.Errorf("load entries: %w", err)
		}
		if target == StatusFinished {
			if err := s.attachRoutes(ctx, entries); err != nil {
				return err
			}
			endedAt := s.now().UTC()
			total := TotalDuration(entries)
			qr, err := summary.Generate(summaryOf(t, target, moderatorName, entries, &endedAt))
			if err != nil {
				return fmt.Errorf("generate summary: %w", err)
			}
			tr.EndedAt = &endedAt
			tr.DurationTotal = &total
			tr.QR = &qr
		}
		if err := s.transition(ctx, tx, tr, cmd.Actor.UserID); err != nil {
			return err
		}
		tr.apply(t)
		t.Entries = entries
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("trip moderated",
		zap.String("trip_id", string(out.ID)),
		zap.String("status", string(out.Status)),
		zap.String("moderator_id", string(cmd.Actor.UserID)),
	)
	return out, nil
}

// DeleteTrip discards a draft. Entries are kept with the deleted trip.
func (s *Service) DeleteTrip(ctx context.Context, cmd DeleteCommand) error {
	if cmd.Actor.Anonymous() {
		return ErrForbidden
	}
	err := s.store.WithTripLock(ctx, cmd.TripID, func(tx Tx) error {
		t := tx.Trip()
		if t.UserID != cmd.Actor.UserID && !cmd.Actor.IsAdmin() {
			return ErrForbidden
		}
		if !CanTransition(t.Status, StatusDeleted) {
			return fmt.Errorf("%w: trip is %s", ErrInvalidTransition, t.Status)
		}
		tr := Transition{TripID: t.ID, From: t.Status, To: StatusDeleted, Version: t.StatusVersion}
		return s.transition(ctx, tx, tr, cmd.Actor.UserID)
	})
	if err != nil {
		return err
	}
	s.log.Info("trip deleted", zap.String("trip_id", string(cmd.TripID)))
	return nil
}

// TotalDuration sums entry durations in minutes.
func TotalDuration(entries []RouteEntry) int {
	total := 0
	for _, e := range entries {
		total += e.Duration
	}
	return total
}

type statusWriter interface {
	UpdateStatus(ctx context.Context, tr Transition) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
}

// transition applies a CAS status update and records the event. A lost race
// reports ErrInvalidTransition and is never retried.
func (s *Service) transition(ctx context.Context, w statusWriter, tr Transition, actorID types.ID) error {
	if !CanTransition(tr.From, tr.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, tr.From, tr.To)
	}
	ok, err := w.UpdateStatus(ctx, tr)
	if err != nil {
		return fmt.Errorf("update trip status: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: trip %s changed concurrently", ErrInvalidTransition, tr.TripID)
	}
	return w.AppendEvent(ctx, &Event{
		TripID:     tr.TripID,
		FromStatus: tr.From,
		ToStatus:   tr.To,
		ActorID:    &actorID,
		CreatedAt:  s.now().UTC(),
	})
}

// retry runs fn until it stops failing with ErrTxConflict or the attempts run out.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryBase
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn()
		if err == nil {
			return struct{}{}, nil
		}
		if !errors.Is(err, ErrTxConflict) {
			return struct{}{}, backoff.Permanent(err)
		}
		s.log.Warn("transaction conflict", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.maxAttempts))
	return err
}

func (s *Service) lookupRoute(ctx context.Context, id types.ID) (*catalog.Route, error) {
	r, err := s.routes.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("%w: route %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup route: %w", err)
	}
	return r, nil
}

func (s *Service) attachRoutes(ctx context.Context, entries []RouteEntry) error {
	for i := range entries {
		r, err := s.lookupRoute(ctx, entries[i].RouteID)
		if err != nil {
			return err
		}
		entries[i].Route = r
	}
	return nil
}

func summaryOf(t *Trip, status Status, moderator string, entries []RouteEntry, completedAt *time.Time) summary.Trip {
	out := summary.Trip{
		ID:          string(t.ID),
		Status:      string(status),
		Moderator:   moderator,
		CompletedAt: completedAt,
	}
	for _, e := range entries {
		leg := summary.Leg{Duration: e.Duration}
		if e.Route != nil {
			leg.Origin, leg.Destination = e.Route.Origin, e.Route.Destination
		}
		out.Legs = append(out.Legs, leg)
	}
	return out
}
