package trip

import (
	"context"
	"errors"
	"maps"
	"testing"

	"metro/internal/types"
)

func TestAddRouteSequencesByDuration(t *testing.T) {
	f := newFixture(t, 3)
	d := f.draft(t, alice)

	f.add(t, alice, d.ID, "r1", 50)
	f.add(t, alice, d.ID, "r2", 200)
	last := f.add(t, alice, d.ID, "r3", 30)

	if last.Order != 1 {
		t.Errorf("shortest entry reported at order %d, want 1", last.Order)
	}
	got := f.orders(t, d.ID)
	want := map[types.ID]int{"r3": 1, "r1": 2, "r2": 3}
	for id, o := range want {
		if got[id] != o {
			t.Errorf("route %s: order %d, want %d", id, got[id], o)
		}
	}
}

func TestAddRouteTieGoesAfterExisting(t *testing.T) {
	f := newFixture(t, 2)
	d := f.draft(t, alice)
	f.add(t, alice, d.ID, "r1", 100)
	e := f.add(t, alice, d.ID, "r2", 100)
	if e.Order != 2 {
		t.Fatalf("tied entry at order %d, want 2", e.Order)
	}
}

func TestAddRouteRandomDuration(t *testing.T) {
	f := newFixture(t, 1)
	d := f.draft(t, alice)
	e, err := f.svc.AddRouteToDraft(context.Background(), AddRouteCommand{Actor: alice, TripID: d.ID, RouteID: "r1"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if e.Duration < 30 || e.Duration > 300 {
		t.Fatalf("duration %d outside [30,300]", e.Duration)
	}
}

func TestAddRouteFillsTravelMinutes(t *testing.T) {
	f := newFixture(t, 1)
	f.routes.routes["r1"].TravelMinutes = 0
	d := f.draft(t, alice)

	e := f.add(t, alice, d.ID, "r1", 40)
	if e.Route == nil || e.Route.TravelMinutes != 45 {
		t.Fatalf("route travel minutes not filled: %+v", e.Route)
	}
	if f.routes.filled != 1 {
		t.Fatalf("expected one fill, got %d", f.routes.filled)
	}
}

func TestAddRouteErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	f.routes.routes["r3"].Active = false
	d := f.draft(t, alice)
	f.add(t, alice, d.ID, "r1", 60)
	bad := 0

	tests := []struct {
		name string
		cmd  AddRouteCommand
		want error
	}{
		{"already present", AddRouteCommand{Actor: alice, TripID: d.ID, RouteID: "r1"}, ErrAlreadyPresent},
		{"inactive route", AddRouteCommand{Actor: alice, TripID: d.ID, RouteID: "r3"}, ErrRouteInactive},
		{"unknown route", AddRouteCommand{Actor: alice, TripID: d.ID, RouteID: "nope"}, ErrNotFound},
		{"unknown trip", AddRouteCommand{Actor: alice, TripID: "nope", RouteID: "r2"}, ErrNotFound},
		{"other user", AddRouteCommand{Actor: bob, TripID: d.ID, RouteID: "r2"}, ErrForbidden},
		{"anonymous", AddRouteCommand{TripID: d.ID, RouteID: "r2"}, ErrForbidden},
		{"zero duration", AddRouteCommand{Actor: alice, TripID: d.ID, RouteID: "r2", Duration: &bad}, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.AddRouteToDraft(ctx, tt.cmd); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if got := f.orders(t, d.ID); len(got) != 1 {
		t.Fatalf("failed adds changed the trip: %v", got)
	}
}

func TestAddRouteToFormedTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	d := formedTrip(t, f, alice, 30)

	_, err := f.svc.AddRouteToDraft(ctx, AddRouteCommand{Actor: alice, TripID: d.ID, RouteID: "r2"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAddRouteToMyDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	e1, err := f.svc.AddRouteToMyDraft(ctx, alice, "r1", nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	e2, err := f.svc.AddRouteToMyDraft(ctx, alice, "r2", nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if e1.TripID != e2.TripID {
		t.Fatalf("routes landed in different drafts: %s vs %s", e1.TripID, e2.TripID)
	}
	id, count, err := f.svc.DraftSummary(ctx, alice)
	if err != nil || id != e1.TripID || count != 2 {
		t.Fatalf("draft summary = %s, %d, %v", id, count, err)
	}
}

func TestRemoveRouteCompacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	d := f.draft(t, alice)
	f.add(t, alice, d.ID, "r1", 10)
	f.add(t, alice, d.ID, "r2", 20)
	f.add(t, alice, d.ID, "r3", 30)

	if err := f.svc.RemoveRouteFromDraft(ctx, RemoveRouteCommand{Actor: alice, TripID: d.ID, RouteID: "r2"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got := f.orders(t, d.ID)
	if len(got) != 2 || got["r1"] != 1 || got["r3"] != 2 {
		t.Fatalf("unexpected orders after removal: %v", got)
	}

	err := f.svc.RemoveRouteFromDraft(ctx, RemoveRouteCommand{Actor: alice, TripID: d.ID, RouteID: "r2"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second removal, got %v", err)
	}
}

func TestRepositionShiftsRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	d := f.draft(t, alice)
	for i, id := range []types.ID{"r1", "r2", "r3", "r4"} {
		f.add(t, alice, d.ID, id, 10*(i+1))
	}

	e, err := f.svc.Reposition(ctx, RepositionCommand{Actor: alice, TripID: d.ID, RouteID: "r4", Order: 2})
	if err != nil {
		t.Fatalf("reposition: %v", err)
	}
	if e.Order != 2 {
		t.Errorf("moved entry reported at %d", e.Order)
	}
	got := f.orders(t, d.ID)
	want := map[types.ID]int{"r1": 1, "r4": 2, "r2": 3, "r3": 4}
	for id, o := range want {
		if got[id] != o {
			t.Errorf("route %s: order %d, want %d", id, got[id], o)
		}
	}
}

func TestRepositionErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	d := f.draft(t, alice)
	f.add(t, alice, d.ID, "r1", 10)
	f.add(t, alice, d.ID, "r2", 20)
	before := f.orders(t, d.ID)

	for _, order := range []int{0, -1, 3} {
		_, err := f.svc.Reposition(ctx, RepositionCommand{Actor: alice, TripID: d.ID, RouteID: "r1", Order: order})
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("order %d: expected ErrOutOfRange, got %v", order, err)
		}
		if after := f.orders(t, d.ID); !maps.Equal(before, after) {
			t.Errorf("order %d: orders changed %v -> %v", order, before, after)
		}
	}
	_, err := f.svc.Reposition(ctx, RepositionCommand{Actor: alice, TripID: d.ID, RouteID: "r3", Order: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if after := f.orders(t, d.ID); !maps.Equal(before, after) {
		t.Errorf("orders changed %v -> %v", before, after)
	}
	if f.store.trip(d.ID).ManuallyOrdered {
		t.Error("rejected moves must not freeze ordering")
	}
}

func TestManualOrderFreezesRanking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	d := f.draft(t, alice)
	f.add(t, alice, d.ID, "r1", 10)
	f.add(t, alice, d.ID, "r2", 20)
	f.add(t, alice, d.ID, "r3", 30)

	// a no-op move leaves ranking active
	if _, err := f.svc.Reposition(ctx, RepositionCommand{Actor: alice, TripID: d.ID, RouteID: "r2", Order: 2}); err != nil {
		t.Fatalf("reposition: %v", err)
	}
	if f.store.trip(d.ID).ManuallyOrdered {
		t.Fatal("no-op move froze ordering")
	}

	if _, err := f.svc.Reposition(ctx, RepositionCommand{Actor: alice, TripID: d.ID, RouteID: "r3", Order: 1}); err != nil {
		t.Fatalf("reposition: %v", err)
	}
	if !f.store.trip(d.ID).ManuallyOrdered {
		t.Fatal("manual move did not freeze ordering")
	}

	e := f.add(t, alice, d.ID, "r4", 5)
	if e.Order != 4 {
		t.Fatalf("entry added after manual move at %d, want 4", e.Order)
	}
	got := f.orders(t, d.ID)
	want := map[types.ID]int{"r3": 1, "r1": 2, "r2": 3, "r4": 4}
	for id, o := range want {
		if got[id] != o {
			t.Errorf("route %s: order %d, want %d", id, got[id], o)
		}
	}
}

func TestSetFreeAndUpdateDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	d := f.draft(t, alice)
	f.add(t, alice, d.ID, "r1", 10)

	e, err := f.svc.SetFree(ctx, SetFreeCommand{Actor: alice, TripID: d.ID, RouteID: "r1", Free: true})
	if err != nil || !e.Free {
		t.Fatalf("set free: %+v, %v", e, err)
	}
	if _, err := f.svc.SetFree(ctx, SetFreeCommand{Actor: bob, TripID: d.ID, RouteID: "r1"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	owner, name := "Alice A.", "Weekend"
	got, err := f.svc.UpdateDraft(ctx, UpdateDraftCommand{Actor: alice, TripID: d.ID, Patch: DraftPatch{Owner: &owner, Name: &name}})
	if err != nil {
		t.Fatalf("update draft: %v", err)
	}
	if got.Owner != owner || got.Name != name {
		t.Fatalf("patch not applied: %+v", got)
	}
	stored := f.store.trip(d.ID)
	if stored.Owner != owner || stored.Name != name || stored.Description != "" {
		t.Fatalf("patch not stored: %+v", stored)
	}
}

func TestUpdateEntryIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	d := f.draft(t, alice)
	f.add(t, alice, d.ID, "r1", 10)
	f.add(t, alice, d.ID, "r2", 20)
	f.add(t, alice, d.ID, "r3", 30)
	before := f.orders(t, d.ID)

	bad, free := 9, true
	_, err := f.svc.UpdateEntry(ctx, UpdateEntryCommand{Actor: alice, TripID: d.ID, RouteID: "r3", Order: &bad, Free: &free})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if after := f.orders(t, d.ID); !maps.Equal(before, after) {
		t.Fatalf("orders changed %v -> %v", before, after)
	}
	entries, _ := f.store.ListEntries(ctx, d.ID)
	for _, e := range entries {
		if e.Free {
			t.Fatalf("free flag written by a rejected update: %+v", e)
		}
	}

	if _, err := f.svc.UpdateEntry(ctx, UpdateEntryCommand{Actor: alice, TripID: d.ID, RouteID: "r3"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("empty update: expected ErrInvalidArgument, got %v", err)
	}

	first := 1
	e, err := f.svc.UpdateEntry(ctx, UpdateEntryCommand{Actor: alice, TripID: d.ID, RouteID: "r3", Order: &first, Free: &free})
	if err != nil {
		t.Fatalf("update entry: %v", err)
	}
	if e.Order != 1 || !e.Free {
		t.Fatalf("entry = %+v", e)
	}
	want := map[types.ID]int{"r3": 1, "r1": 2, "r2": 3}
	if got := f.orders(t, d.ID); !maps.Equal(got, want) {
		t.Fatalf("orders = %v, want %v", got, want)
	}
	if !f.store.trip(d.ID).ManuallyOrdered {
		t.Fatal("combined move did not freeze ordering")
	}
}

func TestSequencingRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	d := f.draft(t, alice)

	f.store.conflicts = 2
	f.add(t, alice, d.ID, "r1", 10)
	if f.store.lockCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.store.lockCalls)
	}

	f.store.conflicts = 3
	duration := 20
	_, err := f.svc.AddRouteToDraft(ctx, AddRouteCommand{Actor: alice, TripID: d.ID, RouteID: "r2", Duration: &duration})
	if !errors.Is(err, ErrTxConflict) {
		t.Fatalf("expected ErrTxConflict after exhausting attempts, got %v", err)
	}
}
