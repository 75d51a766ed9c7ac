package catalog

import (
	"encoding/json"
	"slices"
)

// Snapshot is an immutable, ordered view of the whole catalog at one instant.
// Every mutation produces a new Snapshot; accessors hand out copies so a
// published Snapshot can be shared freely between subscribers.
type Snapshot struct {
	items []Item
}

// NewSnapshot copies items into a new Snapshot.
func NewSnapshot(items []Item) Snapshot {
	return Snapshot{items: slices.Clone(items)}
}

func (s Snapshot) Len() int { return len(s.items) }

// Items returns a copy of the ordered item list.
func (s Snapshot) Items() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// At returns the item at position i.
func (s Snapshot) At(i int) Item { return s.items[i] }

func (s Snapshot) Get(id string) (Item, bool) {
	idx := s.index(id)
	if idx < 0 {
		return Item{}, false
	}
	return s.items[idx], true
}

// Equal reports whether both snapshots hold the same items in the same order.
func (s Snapshot) Equal(other Snapshot) bool {
	return slices.Equal(s.items, other.items)
}

func (s Snapshot) index(id string) int {
	return slices.IndexFunc(s.items, func(it Item) bool { return it.ID == id })
}

// MarshalJSON encodes the snapshot as a JSON array; an empty snapshot is [].
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

// UnmarshalJSON accepts a JSON array of items; null yields an empty snapshot.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	s.items = items
	return nil
}

// with returns a copy of s where fn has been applied to a cloned item list.
func (s Snapshot) with(fn func(items []Item) []Item) Snapshot {
	return Snapshot{items: fn(slices.Clone(s.items))}
}
