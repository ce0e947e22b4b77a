package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/SnowCait/user-notes-search/internal/types"
)

func TestComputeEventID(t *testing.T) {
	event := &types.Event{
		PubKey:    "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec",
		CreatedAt: 1700000000,
		Kind:      1,
		Content:   "hello",
	}

	// sha256sum of [0,"bbde...",1700000000,1,[],"hello"]
	want := "7b3e3c855486c0483791b55157b096ebcd3271b1dbc66514725256abea63bdbb"
	if got := ComputeEventID(event); got != want {
		t.Errorf("ComputeEventID = %s, want %s", got, want)
	}
}

func TestComputeEventIDDoesNotEscapeHTML(t *testing.T) {
	event := &types.Event{
		PubKey:    "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec",
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      [][]string{{"t", "a&b"}},
		Content:   "<b>bold</b>",
	}

	serialized := `[0,"bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec",1700000000,1,[["t","a&b"]],"<b>bold</b>"]`
	hash := sha256.Sum256([]byte(serialized))
	want := hex.EncodeToString(hash[:])

	if got := ComputeEventID(event); got != want {
		t.Errorf("ComputeEventID = %s, want %s", got, want)
	}
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Frame
		wantErr bool
	}{
		{
			name: "event",
			data: `["EVENT","sub-1",{"id":"abc","pubkey":"pk","created_at":10,"kind":1,"tags":[["t","go"]],"content":"hi","sig":"s"}]`,
			want: Frame{
				Type:  FrameEvent,
				SubID: "sub-1",
				Event: &types.Event{
					ID: "abc", PubKey: "pk", CreatedAt: 10, Kind: 1,
					Tags: [][]string{{"t", "go"}}, Content: "hi", Sig: "s",
				},
			},
		},
		{
			name: "event without tags gets empty tag list",
			data: `["EVENT","sub-1",{"id":"abc","pubkey":"pk","created_at":10,"kind":1,"content":""}]`,
			want: Frame{
				Type:  FrameEvent,
				SubID: "sub-1",
				Event: &types.Event{ID: "abc", PubKey: "pk", CreatedAt: 10, Kind: 1, Tags: [][]string{}},
			},
		},
		{
			name: "eose",
			data: `["EOSE","sub-1"]`,
			want: Frame{Type: FrameEOSE, SubID: "sub-1"},
		},
		{
			name: "closed with reason",
			data: `["CLOSED","sub-1","error: rate limited"]`,
			want: Frame{Type: FrameClosed, SubID: "sub-1", Message: "error: rate limited"},
		},
		{
			name: "notice",
			data: `["NOTICE","slow down"]`,
			want: Frame{Type: FrameNotice, Message: "slow down"},
		},
		{
			name: "unknown type",
			data: `["AUTH","challenge"]`,
			want: Frame{Type: "AUTH"},
		},
		{name: "not json", data: `hello`, wantErr: true},
		{name: "too short", data: `["EOSE"]`, wantErr: true},
		{name: "event without id", data: `["EVENT","s",{"kind":1}]`, wantErr: true},
		{name: "event missing body", data: `["EVENT","s"]`, wantErr: true},
		{name: "mistyped created_at", data: `["EVENT","s",{"id":"x","created_at":"soon"}]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFrame([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseFrame(%s) succeeded, want error", tt.data)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFrame(%s) failed: %v", tt.data, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("frame mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("ShortID = %s", got)
	}
	if got := ShortID("abc"); got != "abc" {
		t.Errorf("ShortID(short) = %s", got)
	}
}
