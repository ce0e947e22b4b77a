package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/SnowCait/user-notes-search/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// canonical serializes the id commitment without HTML escaping,
// relays hash the raw characters
var canonical = jsoniter.Config{EscapeHTML: false}.Froze()

// Relay-to-client message types (NIP-01)
const (
	FrameEvent  = "EVENT"
	FrameEOSE   = "EOSE"
	FrameClosed = "CLOSED"
	FrameNotice = "NOTICE"
)

var errShortFrame = errors.New("frame too short")

// Frame is one decoded relay-to-client message
type Frame struct {
	Type    string
	SubID   string
	Event   *types.Event
	Message string // NOTICE text or CLOSED reason
}

// ParseFrame decodes a raw websocket message from a relay.
// Unknown frame types are returned with only Type set.
func ParseFrame(data []byte) (Frame, error) {
	var parts []jsoniter.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if len(parts) < 2 {
		return Frame{}, errShortFrame
	}

	var f Frame
	if err := json.Unmarshal(parts[0], &f.Type); err != nil {
		return Frame{}, fmt.Errorf("decode frame type: %w", err)
	}

	switch f.Type {
	case FrameEvent:
		if len(parts) < 3 {
			return Frame{}, errShortFrame
		}
		if err := json.Unmarshal(parts[1], &f.SubID); err != nil {
			return Frame{}, fmt.Errorf("decode subscription id: %w", err)
		}
		evt, err := ParseEvent(parts[2])
		if err != nil {
			return Frame{}, err
		}
		f.Event = evt
	case FrameEOSE:
		if err := json.Unmarshal(parts[1], &f.SubID); err != nil {
			return Frame{}, fmt.Errorf("decode subscription id: %w", err)
		}
	case FrameClosed:
		if err := json.Unmarshal(parts[1], &f.SubID); err != nil {
			return Frame{}, fmt.Errorf("decode subscription id: %w", err)
		}
		if len(parts) >= 3 {
			json.Unmarshal(parts[2], &f.Message)
		}
	case FrameNotice:
		json.Unmarshal(parts[1], &f.Message)
	}
	return f, nil
}

// ParseEvent decodes a single event object. Events without an id are rejected.
func ParseEvent(data []byte) (*types.Event, error) {
	var evt types.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if evt.ID == "" {
		return nil, errors.New("event has no id")
	}
	if evt.Tags == nil {
		evt.Tags = [][]string{}
	}
	return &evt, nil
}

// ComputeEventID returns the NIP-01 id: sha256 of
// [0, pubkey, created_at, kind, tags, content]
func ComputeEventID(evt *types.Event) string {
	tags := evt.Tags
	if tags == nil {
		tags = [][]string{}
	}
	serialized, _ := canonical.Marshal([]interface{}{
		0,
		evt.PubKey,
		evt.CreatedAt,
		evt.Kind,
		tags,
		evt.Content,
	})
	hash := sha256.Sum256(serialized)
	return hex.EncodeToString(hash[:])
}

// ShortID truncates ID/pubkey to 12 chars for logging
func ShortID(id string) string {
	if len(id) >= 12 {
		return id[:12]
	}
	return id
}
