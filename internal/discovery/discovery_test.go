package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/SnowCait/user-notes-search/internal/identity"
	"github.com/SnowCait/user-notes-search/internal/nostrtest"
	"github.com/SnowCait/user-notes-search/internal/relay/relaytest"
	"github.com/SnowCait/user-notes-search/internal/types"
)

const indexer = "wss://indexer.example"

var (
	alice    = nostrtest.KeyFromSeed("alice")
	bob      = nostrtest.KeyFromSeed("bob")
	defaults = []string{"wss://default-one.example", "wss://default-two.example/"}
)

func resolve(t *testing.T, src *relaytest.Source, input string) *Result {
	t.Helper()
	id, err := identity.Normalize(input)
	if err != nil {
		t.Fatalf("normalize %q: %v", input, err)
	}
	return NewResolver(src.Factory(), Options{}, nil).Resolve(context.Background(), id, []string{indexer}, defaults)
}

func TestResolveFromNpub(t *testing.T) {
	id, _ := identity.Normalize(alice.PubKey)
	npub := id.Npub()

	src := relaytest.New(
		relaytest.Event(indexer, alice.RelayList(100,
			[]string{"r", "wss://a.example", "write"},
			[]string{"r", "wss://b.example", "read"},
		)),
		relaytest.EOSE(indexer),
	)

	res := resolve(t, src, npub)
	if diff := cmp.Diff([]string{"wss://a.example"}, res.ContentRelays); diff != "" {
		t.Errorf("content relays (-want +got):\n%s", diff)
	}
	if res.UsedFallback {
		t.Error("fallback used although the relay list had a write relay")
	}

	opens := src.Opens()
	if len(opens) != 1 {
		t.Fatalf("Open called %d times, want 1", len(opens))
	}
	wantFilter := types.Filter{Authors: []string{alice.PubKey}, Kinds: []int{types.KindProfile, types.KindRelayList}}
	if diff := cmp.Diff(wantFilter, opens[0].Filter); diff != "" {
		t.Errorf("filter (-want +got):\n%s", diff)
	}
	if opens[0].Opts.Limit != defaultLimit {
		t.Errorf("limit = %d, want %d", opens[0].Opts.Limit, defaultLimit)
	}
	if src.Shutdowns() != 1 {
		t.Errorf("Shutdown called %d times, want 1", src.Shutdowns())
	}
}

func TestResolveReadOnlyListFallsBack(t *testing.T) {
	src := relaytest.New(relaytest.Event(indexer, alice.RelayList(100,
		[]string{"r", "wss://a.example", "read"},
		[]string{"r", "wss://b.example", "read"},
	)))

	res := resolve(t, src, alice.PubKey)
	want := []string{"wss://default-one.example", "wss://default-two.example"}
	if diff := cmp.Diff(want, res.ContentRelays); diff != "" {
		t.Errorf("content relays (-want +got):\n%s", diff)
	}
	if !res.UsedFallback {
		t.Error("UsedFallback not set")
	}
	if res.RelayList == nil {
		t.Error("relay list dropped although it was found")
	}
}

func TestResolveNewestWins(t *testing.T) {
	firstTie := alice.Profile(300, `{"name":"first"}`)
	src := relaytest.New(
		relaytest.Event(indexer, alice.Profile(200, `{"name":"old"}`)),
		relaytest.Event(indexer, firstTie),
		relaytest.Event(indexer, alice.Profile(300, `{"name":"second"}`)),
		relaytest.Event(indexer, alice.RelayList(50, []string{"r", "wss://old.example"})),
		relaytest.Event(indexer, alice.RelayList(60, []string{"r", "wss://new.example"})),
		relaytest.Event(indexer, alice.RelayList(55, []string{"r", "wss://middle.example"})),
	)

	res := resolve(t, src, alice.PubKey)

	snap := res.Profile(alice.PubKey)
	if snap == nil {
		t.Fatal("no profile snapshot")
	}
	if snap.Event.ID != firstTie.ID || snap.Profile.Name != "first" {
		t.Errorf("profile = %q (%s), want the first of the newest", snap.Profile.Name, snap.Event.ID)
	}
	if diff := cmp.Diff([]string{"wss://new.example"}, res.ContentRelays); diff != "" {
		t.Errorf("content relays (-want +got):\n%s", diff)
	}
}

func TestResolveIgnoresOtherAuthors(t *testing.T) {
	src := relaytest.New(
		relaytest.Event(indexer, alice.RelayList(100, []string{"r", "wss://alice.example"})),
		relaytest.Event(indexer, bob.RelayList(200, []string{"r", "wss://bob.example"})),
		relaytest.Event(indexer, bob.Profile(200, `{"name":"bob"}`)),
	)

	res := resolve(t, src, alice.PubKey)
	if diff := cmp.Diff([]string{"wss://alice.example"}, res.ContentRelays); diff != "" {
		t.Errorf("content relays (-want +got):\n%s", diff)
	}
	if res.Profile(alice.PubKey) != nil {
		t.Errorf("alice has bob's profile: %+v", res.Profile(alice.PubKey))
	}
	// A foreign profile stays under its own author
	if snap := res.Profile(bob.PubKey); snap == nil || snap.Profile.Name != "bob" {
		t.Errorf("bob's profile = %+v", snap)
	}
}

func TestResolveMalformedProfile(t *testing.T) {
	src := relaytest.New(relaytest.Event(indexer, alice.Profile(100, "not json")))

	res := resolve(t, src, alice.PubKey)
	snap := res.Profile(alice.PubKey)
	if snap == nil {
		t.Fatal("malformed profile dropped the snapshot")
	}
	if snap.Profile != nil {
		t.Errorf("Profile = %+v, want nil for malformed content", snap.Profile)
	}
	if !res.UsedFallback {
		t.Error("UsedFallback not set without a relay list")
	}
}

func TestResolveAllRelaysFail(t *testing.T) {
	src := relaytest.New(relaytest.Fail(indexer, errors.New("refused")))

	res := resolve(t, src, alice.PubKey)
	if !res.UsedFallback || len(res.ContentRelays) != 2 {
		t.Errorf("result = %+v, want the defaults", res)
	}
	if src.Shutdowns() != 1 {
		t.Errorf("Shutdown called %d times, want 1", src.Shutdowns())
	}
}

func TestResolveWithoutDiscoveryRelays(t *testing.T) {
	src := relaytest.New()
	id, _ := identity.Normalize(alice.PubKey)

	res := NewResolver(src.Factory(), Options{}, nil).Resolve(context.Background(), id, []string{"http://nope"}, defaults)
	if len(src.Opens()) != 0 || src.Shutdowns() != 0 {
		t.Error("network phase ran without discovery relays")
	}
	if !res.UsedFallback {
		t.Error("UsedFallback not set")
	}
}
