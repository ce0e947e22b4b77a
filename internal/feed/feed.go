// Package feed merges the post streams of several relays into one list,
// newest first and unique by event id.
package feed

import (
	"sort"

	"github.com/SnowCait/user-notes-search/internal/types"
)

// Feed is a list of events sorted by created_at descending. Events with
// equal created_at keep their arrival order.
type Feed struct {
	events []types.Event
	index  map[string]bool
}

// New returns an empty Feed
func New() *Feed {
	return &Feed{index: make(map[string]bool)}
}

// Insert adds evt at the position that keeps the order and returns that
// position. An id already present is rejected with ok == false.
func (f *Feed) Insert(evt types.Event) (idx int, ok bool) {
	if f.index[evt.ID] {
		return -1, false
	}
	f.index[evt.ID] = true

	// First event strictly older than evt, so ties land after existing ones
	idx = sort.Search(len(f.events), func(i int) bool {
		return f.events[i].CreatedAt < evt.CreatedAt
	})

	f.events = append(f.events, types.Event{})
	copy(f.events[idx+1:], f.events[idx:])
	f.events[idx] = evt
	return idx, true
}

// Len returns the number of events
func (f *Feed) Len() int {
	return len(f.events)
}

// Snapshot returns a copy of the events in feed order
func (f *Feed) Snapshot() []types.Event {
	out := make([]types.Event, len(f.events))
	copy(out, f.events)
	return out
}
