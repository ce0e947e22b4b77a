package nostr

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/SnowCait/user-notes-search/internal/types"
)

// DecodeProfile parses kind 0 content. Fields that are missing or not
// strings are left empty; content that is not a JSON object yields nil.
func DecodeProfile(content string) *types.ProfileInfo {
	var raw map[string]jsoniter.RawMessage
	if err := json.UnmarshalFromString(content, &raw); err != nil || raw == nil {
		return nil
	}

	field := func(name string) string {
		v, ok := raw[name]
		if !ok {
			return ""
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return ""
		}
		return s
	}

	return &types.ProfileInfo{
		Name:        field("name"),
		DisplayName: field("display_name"),
		Picture:     field("picture"),
		Nip05:       field("nip05"),
		About:       field("about"),
		Banner:      field("banner"),
		Lud16:       field("lud16"),
		Website:     field("website"),
	}
}
