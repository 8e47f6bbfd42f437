package trip

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"metro/internal/modules/catalog"
	"metro/internal/types"
)

// memStore emulates PgStore: one mutex stands in for the row lock and a
// transaction works on copies that are written back only on success.
type memStore struct {
	mu      sync.Mutex
	trips   map[types.ID]Trip
	entries map[types.ID][]RouteEntry
	events  []Event

	// conflicts makes the next WithTripLock calls fail with ErrTxConflict.
	conflicts int
	lockCalls int
	// eventErr fails every event insert.
	eventErr error
}

func newMemStore() *memStore {
	return &memStore{trips: map[types.ID]Trip{}, entries: map[types.ID][]RouteEntry{}}
}

func (m *memStore) GetOrCreateDraft(_ context.Context, draft *Trip) (*Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trips {
		if t.UserID == draft.UserID && t.Status == StatusDraft {
			out := t
			return &out, nil
		}
	}
	m.trips[draft.ID] = *draft
	out := *draft
	return &out, nil
}

func (m *memStore) FindDraft(_ context.Context, userID types.ID) (*Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trips {
		if t.UserID == userID && t.Status == StatusDraft {
			out := t
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *memStore) ListEntries(_ context.Context, tripID types.ID) ([]RouteEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedCopy(m.entries[tripID]), nil
}

func (m *memStore) List(_ context.Context, f ListFilter) ([]Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Trip
	for _, t := range m.trips {
		if t.Status == StatusDraft || t.Status == StatusDeleted {
			continue
		}
		if f.UserID != "" && t.UserID != f.UserID {
			continue
		}
		if f.Status != StatusNone && t.Status != f.Status {
			continue
		}
		if f.From != nil && t.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && t.CreatedAt.After(*f.To) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateStatus(_ context.Context, tr Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tr.TripID]
	if !ok || t.Status != tr.From || t.StatusVersion != tr.Version {
		return false, nil
	}
	tr.apply(&t)
	m.trips[t.ID] = t
	return true, nil
}

func (m *memStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.eventErr != nil {
		return m.eventErr
	}
	m.events = append(m.events, *e)
	return nil
}

func (m *memStore) WithTripLock(ctx context.Context, tripID types.ID, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockCalls++
	if m.conflicts > 0 {
		m.conflicts--
		return ErrTxConflict
	}
	row, ok := m.trips[tripID]
	if !ok {
		return ErrNotFound
	}
	handed := row
	tx := &memTx{trip: &handed, row: row, entries: sortedCopy(m.entries[tripID]), eventErr: m.eventErr}
	if err := fn(tx); err != nil {
		return err
	}
	m.trips[tripID] = tx.row
	m.entries[tripID] = tx.entries
	m.events = append(m.events, tx.events...)
	return nil
}

func (m *memStore) trip(id types.ID) Trip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trips[id]
}

func (m *memStore) eventsFor(id types.ID) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.TripID == id {
			out = append(out, e)
		}
	}
	return out
}

type memTx struct {
	trip     *Trip
	row      Trip
	entries  []RouteEntry
	events   []Event
	eventErr error
}

func (x *memTx) Trip() *Trip { return x.trip }

func (x *memTx) Entries(context.Context) ([]RouteEntry, error) {
	return sortedCopy(x.entries), nil
}

func (x *memTx) InsertEntry(_ context.Context, e *RouteEntry) error {
	for _, cur := range x.entries {
		if cur.RouteID == e.RouteID {
			return ErrAlreadyPresent
		}
	}
	x.entries = append(x.entries, *e)
	return nil
}

func (x *memTx) DeleteEntry(_ context.Context, entryID types.ID) error {
	out := x.entries[:0]
	for _, e := range x.entries {
		if e.ID != entryID {
			out = append(out, e)
		}
	}
	x.entries = out
	return nil
}

func (x *memTx) SetOrders(_ context.Context, changes []OrderChange) error {
	x.entries = Apply(x.entries, changes)
	return nil
}

func (x *memTx) SetFree(_ context.Context, entryID types.ID, free bool) error {
	for i := range x.entries {
		if x.entries[i].ID == entryID {
			x.entries[i].Free = free
		}
	}
	return nil
}

func (x *memTx) UpdateDraft(_ context.Context, p DraftPatch) error {
	p.apply(&x.row)
	p.apply(x.trip)
	return nil
}

func (x *memTx) SetManuallyOrdered(context.Context) error {
	x.row.ManuallyOrdered = true
	x.trip.ManuallyOrdered = true
	return nil
}

func (x *memTx) UpdateStatus(_ context.Context, tr Transition) (bool, error) {
	if x.row.Status != tr.From || x.row.StatusVersion != tr.Version {
		return false, nil
	}
	tr.apply(&x.row)
	return true, nil
}

func (x *memTx) AppendEvent(_ context.Context, e *Event) error {
	if x.eventErr != nil {
		return x.eventErr
	}
	x.events = append(x.events, *e)
	return nil
}

func sortedCopy(entries []RouteEntry) []RouteEntry {
	out := make([]RouteEntry, len(entries))
	copy(out, entries)
	SortByOrder(out)
	return out
}

type fakeRoutes struct {
	mu     sync.Mutex
	routes map[types.ID]*catalog.Route
	filled int
}

func (f *fakeRoutes) Get(_ context.Context, id types.ID) (*catalog.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.routes[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	out := *r
	return &out, nil
}

func (f *fakeRoutes) EnsureTravelMinutes(_ context.Context, r *catalog.Route) (*catalog.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := *r
	if out.TravelMinutes == 0 {
		out.TravelMinutes = 45
		f.routes[r.ID].TravelMinutes = 45
		f.filled++
	}
	return &out, nil
}

var (
	alice = types.Actor{UserID: "u-alice", Name: "Alice", Role: types.RoleUser}
	bob   = types.Actor{UserID: "u-bob", Name: "Bob", Role: types.RoleUser}
	mod   = types.Actor{UserID: "u-mod", Name: "Mod", Role: types.RoleModerator}
	admin = types.Actor{UserID: "u-admin", Name: "Admin", Role: types.RoleAdmin}
)

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	store  *memStore
	routes *fakeRoutes
}

// newFixture seeds active routes r1..rN priced at 100 each.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	routes := &fakeRoutes{routes: map[types.ID]*catalog.Route{}}
	for i := 1; i <= n; i++ {
		id := types.ID("r" + string(rune('0'+i)))
		routes.routes[id] = &catalog.Route{
			ID:            id,
			Origin:        "Stop" + string(rune('A'+i-1)),
			Destination:   "Stop" + string(rune('A'+i)),
			Price:         types.Money{Amount: 100, Currency: "RUB"},
			Active:        true,
			TravelMinutes: 20,
		}
	}
	store := newMemStore()
	svc := NewService(store, routes, zap.NewNop(),
		WithClock(func() time.Time { return testNow }),
		withRetryBase(time.Millisecond),
	)
	return &fixture{svc: svc, store: store, routes: routes}
}

func (f *fixture) draft(t *testing.T, actor types.Actor) *Trip {
	t.Helper()
	d, err := f.svc.CreateOrGetDraft(context.Background(), actor)
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	return d
}

func (f *fixture) add(t *testing.T, actor types.Actor, tripID, routeID types.ID, duration int) *RouteEntry {
	t.Helper()
	e, err := f.svc.AddRouteToDraft(context.Background(), AddRouteCommand{
		Actor: actor, TripID: tripID, RouteID: routeID, Duration: &duration,
	})
	if err != nil {
		t.Fatalf("add %s: %v", routeID, err)
	}
	return e
}

// orders maps route id to order for a trip.
func (f *fixture) orders(t *testing.T, tripID types.ID) map[types.ID]int {
	t.Helper()
	entries, _ := f.store.ListEntries(context.Background(), tripID)
	if !Contiguous(entries) {
		t.Fatalf("orders not contiguous: %+v", entries)
	}
	out := map[types.ID]int{}
	for _, e := range entries {
		out[e.RouteID] = e.Order
	}
	return out
}
