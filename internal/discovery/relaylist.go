package discovery

import (
	"github.com/SnowCait/user-notes-search/internal/nostr"
	"github.com/SnowCait/user-notes-search/internal/types"
)

// ParseRelayList splits the r tags of a kind 10002 event by marker. A tag
// without a marker is both read and write.
func ParseRelayList(evt *types.Event) types.RelayList {
	list := types.RelayList{Read: []string{}, Write: []string{}}
	if evt == nil {
		return list
	}

	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}

		relayURL := nostr.NormalizeRelayURL(tag[1])
		if relayURL == "" {
			continue
		}
		marker := ""
		if len(tag) >= 3 {
			marker = tag[2]
		}

		switch marker {
		case types.RelayMarkerRead:
			list.Read = append(list.Read, relayURL)
		case types.RelayMarkerWrite:
			list.Write = append(list.Write, relayURL)
		default:
			list.Read = append(list.Read, relayURL)
			list.Write = append(list.Write, relayURL)
		}
	}
	return list
}

// SelectContentRelays returns the wss:// relays of a relay list that are
// not marked read, normalized and deduplicated in tag order
func SelectContentRelays(evt *types.Event) []string {
	if evt == nil {
		return nil
	}

	var selected []string
	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}
		if len(tag) >= 3 && tag[2] == types.RelayMarkerRead {
			continue
		}
		if nostr.IsSecureRelayURL(tag[1]) {
			selected = append(selected, tag[1])
		}
	}
	return nostr.NormalizeRelayURLs(selected)
}
