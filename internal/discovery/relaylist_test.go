package discovery

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/SnowCait/user-notes-search/internal/types"
)

func relayList(tags ...[]string) *types.Event {
	return &types.Event{Kind: types.KindRelayList, Tags: tags}
}

func TestSelectContentRelays(t *testing.T) {
	tests := []struct {
		name string
		evt  *types.Event
		want []string
	}{
		{
			name: "write and unmarked kept",
			evt: relayList(
				[]string{"r", "wss://w.example", "write"},
				[]string{"r", "wss://both.example"},
				[]string{"r", "wss://r.example", "read"},
			),
			want: []string{"wss://w.example", "wss://both.example"},
		},
		{
			name: "insecure and invalid dropped",
			evt: relayList(
				[]string{"r", "ws://plain.example"},
				[]string{"r", "ws://localhost:7777"},
				[]string{"r", "https://web.example"},
				[]string{"r", "wss://relay.onion"},
				[]string{"r", "not a url"},
				[]string{"r"},
				[]string{"p", "wss://tagged.example"},
				[]string{"r", "wss://ok.example"},
			),
			want: []string{"wss://ok.example"},
		},
		{
			name: "normalized duplicates collapse",
			evt: relayList(
				[]string{"r", "wss://Relay.Example/"},
				[]string{"r", "wss://relay.example", "write"},
				[]string{"r", " wss://relay.example "},
			),
			want: []string{"wss://relay.example"},
		},
		{
			name: "nil event",
			evt:  nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectContentRelays(tt.evt)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRelayList(t *testing.T) {
	got := ParseRelayList(relayList(
		[]string{"r", "wss://w.example", "write"},
		[]string{"r", "wss://both.example"},
		[]string{"r", "wss://r.example", "read"},
		[]string{"r", "garbage"},
	))
	want := types.RelayList{
		Read:  []string{"wss://both.example", "wss://r.example"},
		Write: []string{"wss://w.example", "wss://both.example"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
