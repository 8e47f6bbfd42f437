// README: Route sequencing keeps entry order a contiguous 1..N permutation.
package trip

import (
	"fmt"
	"sort"

	"metro/internal/types"
)

// OrderChange rewrites one entry's position.
type OrderChange struct {
	EntryID types.ID
	From    int
	To      int
}

// RankByDuration ranks every entry by ascending duration, breaking ties by
// current order and then by id, and returns a change for each entry whose rank
// differs from its current order.
func RankByDuration(entries []RouteEntry) []OrderChange {
	ranked := make([]RouteEntry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Duration != b.Duration {
			return a.Duration < b.Duration
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})
	var changes []OrderChange
	for i, e := range ranked {
		if rank := i + 1; e.Order != rank {
			changes = append(changes, OrderChange{EntryID: e.ID, From: e.Order, To: rank})
		}
	}
	return changes
}

// Shift moves entryID to newOrder, sliding the entries in between by one and
// leaving everything else untouched.
func Shift(entries []RouteEntry, entryID types.ID, newOrder int) ([]OrderChange, error) {
	n := len(entries)
	if newOrder < 1 || newOrder > n {
		return nil, fmt.Errorf("%w: order must be between 1 and %d", ErrOutOfRange, n)
	}
	old := -1
	for _, e := range entries {
		if e.ID == entryID {
			old = e.Order
			break
		}
	}
	if old < 0 {
		return nil, ErrNotFound
	}
	if newOrder == old {
		return nil, nil
	}

	var changes []OrderChange
	for _, e := range entries {
		switch {
		case e.ID == entryID:
			changes = append(changes, OrderChange{EntryID: e.ID, From: old, To: newOrder})
		case newOrder < old && e.Order >= newOrder && e.Order < old:
			changes = append(changes, OrderChange{EntryID: e.ID, From: e.Order, To: e.Order + 1})
		case newOrder > old && e.Order > old && e.Order <= newOrder:
			changes = append(changes, OrderChange{EntryID: e.ID, From: e.Order, To: e.Order - 1})
		}
	}
	return changes, nil
}

// Compact closes the gap left by removing the entry that sat at removedOrder.
// entries must no longer contain the removed entry.
func Compact(entries []RouteEntry, removedOrder int) []OrderChange {
	var changes []OrderChange
	for _, e := range entries {
		if e.Order > removedOrder {
			changes = append(changes, OrderChange{EntryID: e.ID, From: e.Order, To: e.Order - 1})
		}
	}
	return changes
}

// Apply rewrites orders in place and returns entries sorted by order.
func Apply(entries []RouteEntry, changes []OrderChange) []RouteEntry {
	to := make(map[types.ID]int, len(changes))
	for _, c := range changes {
		to[c.EntryID] = c.To
	}
	for i := range entries {
		if o, ok := to[entries[i].ID]; ok {
			entries[i].Order = o
		}
	}
	SortByOrder(entries)
	return entries
}

func SortByOrder(entries []RouteEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Order < entries[j].Order })
}

// Contiguous reports whether the orders are exactly {1..N}.
func Contiguous(entries []RouteEntry) bool {
	seen := make([]bool, len(entries)+1)
	for _, e := range entries {
		if e.Order < 1 || e.Order > len(entries) || seen[e.Order] {
			return false
		}
		seen[e.Order] = true
	}
	return true
}
