package types

// Relay list markers (NIP-65 "r" tag, third element)
const (
	RelayMarkerRead  = "read"
	RelayMarkerWrite = "write"
)

// RelayList represents a user's NIP-65 relay list
type RelayList struct {
	Read  []string
	Write []string
}
