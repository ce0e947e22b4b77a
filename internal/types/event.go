// Package types provides shared type definitions used across internal packages.
package types

// Document kinds this module reads from relays
const (
	KindProfile   = 0
	KindPost      = 1
	KindRelayList = 10002
)

// Event represents a Nostr event (NIP-01)
type Event struct {
	ID         string     `json:"id"`
	PubKey     string     `json:"pubkey"`
	CreatedAt  int64      `json:"created_at"`
	Kind       int        `json:"kind"`
	Tags       [][]string `json:"tags"`
	Content    string     `json:"content"`
	Sig        string     `json:"sig"`
	RelaysSeen []string   `json:"-"`
}

// Filter represents a Nostr subscription filter (NIP-01)
type Filter struct {
	Authors []string
	Kinds   []int
	Limit   int
	Until   *int64
}

// Map builds the filter object sent in a REQ message
func (f Filter) Map() map[string]interface{} {
	m := make(map[string]interface{})
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	return m
}
