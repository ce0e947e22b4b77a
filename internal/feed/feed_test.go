package feed

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/SnowCait/user-notes-search/internal/types"
)

func ev(id string, createdAt int64) types.Event {
	return types.Event{ID: id, CreatedAt: createdAt, Kind: types.KindPost}
}

func ids(events []types.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestFeedInsert(t *testing.T) {
	tests := []struct {
		name    string
		in      []types.Event
		want    []string
		indexes []int
	}{
		{
			name:    "descending arrival",
			in:      []types.Event{ev("c", 30), ev("b", 20), ev("a", 10)},
			want:    []string{"c", "b", "a"},
			indexes: []int{0, 1, 2},
		},
		{
			name:    "ascending arrival",
			in:      []types.Event{ev("a", 10), ev("b", 20), ev("c", 30)},
			want:    []string{"c", "b", "a"},
			indexes: []int{0, 0, 0},
		},
		{
			name:    "ties keep arrival order",
			in:      []types.Event{ev("x", 10), ev("y", 10), ev("new", 20), ev("z", 10)},
			want:    []string{"new", "x", "y", "z"},
			indexes: []int{0, 1, 0, 3},
		},
		{
			name:    "duplicate rejected",
			in:      []types.Event{ev("a", 10), ev("b", 5), ev("a", 10)},
			want:    []string{"a", "b"},
			indexes: []int{0, 1, -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New()
			var got []int
			for _, e := range tt.in {
				idx, _ := f.Insert(e)
				got = append(got, idx)
			}
			if diff := cmp.Diff(tt.want, ids(f.Snapshot())); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.indexes, got); diff != "" {
				t.Errorf("insert index mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFeedSameEventTwice(t *testing.T) {
	f := New()
	if _, ok := f.Insert(ev("a", 1)); !ok {
		t.Fatal("first insert rejected")
	}
	if _, ok := f.Insert(ev("a", 1)); ok {
		t.Fatal("second insert of the same id accepted")
	}
	if f.Len() != 1 || f.Snapshot()[0].ID != "a" {
		t.Errorf("feed = %v, want exactly one copy of a", ids(f.Snapshot()))
	}
}

func TestFeedSnapshotIsACopy(t *testing.T) {
	f := New()
	f.Insert(ev("a", 1))
	snap := f.Snapshot()
	snap[0].ID = "changed"
	if got := f.Snapshot()[0].ID; got != "a" {
		t.Errorf("feed mutated through snapshot: %q", got)
	}
}

// Every observed snapshot of a random merge is sorted, duplicate free and
// keeps the arrival order of equal timestamps.
func TestFeedRandomMerge(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 50; round++ {
		f := New()
		arrival := make(map[string]int)

		for i := 0; i < 200; i++ {
			// Small id and time ranges force duplicates and ties
			id := fmt.Sprintf("e%d", rng.Intn(120))
			createdAt := int64(rng.Intn(20))
			if _, seen := arrival[id]; seen {
				createdAt = f.createdAt(id)
			}
			if _, ok := f.Insert(ev(id, createdAt)); ok {
				arrival[id] = i
			}

			snap := f.Snapshot()
			seen := make(map[string]bool, len(snap))
			for j, e := range snap {
				if seen[e.ID] {
					t.Fatalf("round %d: duplicate %s", round, e.ID)
				}
				seen[e.ID] = true
				if j == 0 {
					continue
				}
				prev := snap[j-1]
				if prev.CreatedAt < e.CreatedAt {
					t.Fatalf("round %d: %s (%d) before newer %s (%d)", round, prev.ID, prev.CreatedAt, e.ID, e.CreatedAt)
				}
				if prev.CreatedAt == e.CreatedAt && arrival[prev.ID] > arrival[e.ID] {
					t.Fatalf("round %d: tie order broken between %s and %s", round, prev.ID, e.ID)
				}
			}
		}
	}
}

func (f *Feed) createdAt(id string) int64 {
	for _, e := range f.events {
		if e.ID == id {
			return e.CreatedAt
		}
	}
	return 0
}
