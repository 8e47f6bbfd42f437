package trip

import (
	"errors"
	"testing"

	"metro/internal/types"
)

func entriesWith(orders map[types.ID]int, durations map[types.ID]int) []RouteEntry {
	var out []RouteEntry
	for id, o := range orders {
		out = append(out, RouteEntry{ID: id, Order: o, Duration: durations[id]})
	}
	SortByOrder(out)
	return out
}

func orderOf(entries []RouteEntry) map[types.ID]int {
	out := map[types.ID]int{}
	for _, e := range entries {
		out[e.ID] = e.Order
	}
	return out
}

func TestRankByDuration(t *testing.T) {
	// inserted in this order: 50, 200, 30
	entries := entriesWith(
		map[types.ID]int{"a": 1, "b": 2, "c": 3},
		map[types.ID]int{"a": 50, "b": 200, "c": 30},
	)
	got := orderOf(Apply(entries, RankByDuration(entries)))
	want := map[types.ID]int{"c": 1, "a": 2, "b": 3}
	for id, o := range want {
		if got[id] != o {
			t.Errorf("entry %s: order %d, want %d", id, got[id], o)
		}
	}
}

func TestRankByDurationTiesKeepCurrentOrder(t *testing.T) {
	entries := entriesWith(
		map[types.ID]int{"z": 1, "a": 2, "m": 3},
		map[types.ID]int{"z": 60, "a": 60, "m": 10},
	)
	got := orderOf(Apply(entries, RankByDuration(entries)))
	if got["m"] != 1 || got["z"] != 2 || got["a"] != 3 {
		t.Fatalf("unexpected ranking: %v", got)
	}
}

func TestRankByDurationOnlyReportsChanges(t *testing.T) {
	entries := entriesWith(
		map[types.ID]int{"a": 1, "b": 2, "c": 3},
		map[types.ID]int{"a": 10, "b": 20, "c": 30},
	)
	if changes := RankByDuration(entries); len(changes) != 0 {
		t.Fatalf("expected no changes, got %+v", changes)
	}
}

func TestShift(t *testing.T) {
	base := map[types.ID]int{"a": 1, "b": 2, "c": 3, "d": 4}

	tests := []struct {
		name  string
		id    types.ID
		to    int
		want  map[types.ID]int
		moved int
	}{
		{name: "move up", id: "d", to: 2, want: map[types.ID]int{"a": 1, "d": 2, "b": 3, "c": 4}, moved: 3},
		{name: "move down", id: "a", to: 3, want: map[types.ID]int{"b": 1, "c": 2, "a": 3, "d": 4}, moved: 3},
		{name: "to front", id: "c", to: 1, want: map[types.ID]int{"c": 1, "a": 2, "b": 3, "d": 4}, moved: 3},
		{name: "to back", id: "b", to: 4, want: map[types.ID]int{"a": 1, "c": 2, "d": 3, "b": 4}, moved: 3},
		{name: "same position", id: "b", to: 2, want: base, moved: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := entriesWith(base, nil)
			changes, err := Shift(entries, tt.id, tt.to)
			if err != nil {
				t.Fatalf("shift: %v", err)
			}
			if len(changes) != tt.moved {
				t.Errorf("got %d changes, want %d", len(changes), tt.moved)
			}
			got := orderOf(Apply(entries, changes))
			for id, o := range tt.want {
				if got[id] != o {
					t.Errorf("entry %s: order %d, want %d", id, got[id], o)
				}
			}
			if !Contiguous(entries) {
				t.Errorf("orders not contiguous: %v", got)
			}
		})
	}
}

func TestShiftRejects(t *testing.T) {
	entries := entriesWith(map[types.ID]int{"a": 1, "b": 2}, nil)
	for _, to := range []int{0, -1, 3} {
		if _, err := Shift(entries, "a", to); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("to=%d: expected ErrOutOfRange, got %v", to, err)
		}
	}
	if _, err := Shift(entries, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCompact(t *testing.T) {
	// entry at order 2 was removed from a, x, b, c
	rest := entriesWith(map[types.ID]int{"a": 1, "b": 3, "c": 4}, nil)
	got := orderOf(Apply(rest, Compact(rest, 2)))
	if got["a"] != 1 || got["b"] != 2 || got["c"] != 3 {
		t.Fatalf("unexpected orders after compaction: %v", got)
	}
}

func TestContiguous(t *testing.T) {
	tests := []struct {
		orders []int
		want   bool
	}{
		{nil, true},
		{[]int{1}, true},
		{[]int{2, 1, 3}, true},
		{[]int{1, 3}, false},
		{[]int{1, 1}, false},
		{[]int{0, 1}, false},
	}
	for _, tt := range tests {
		var entries []RouteEntry
		for _, o := range tt.orders {
			entries = append(entries, RouteEntry{Order: o})
		}
		if got := Contiguous(entries); got != tt.want {
			t.Errorf("Contiguous(%v) = %v, want %v", tt.orders, got, tt.want)
		}
	}
}
