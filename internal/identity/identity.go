// Package identity normalizes user-entered author identities into
// canonical 32-byte public keys.
package identity

import (
	"encoding/hex"
	"errors"
	"strings"

	gonostr "github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/SnowCait/user-notes-search/internal/nostr"
)

// Size is the byte length of an identity
const Size = 32

// Reasons carried by InvalidIdentityError
const (
	ReasonMalformed    = "malformed encoded form"
	ReasonUnrecognized = "unrecognized format"
)

// ErrInvalidIdentity matches every *InvalidIdentityError via errors.Is
var ErrInvalidIdentity = errors.New("invalid identity")

// InvalidIdentityError reports why an input could not be normalized
type InvalidIdentityError struct {
	Input  string
	Reason string
}

func (e *InvalidIdentityError) Error() string {
	return "invalid identity: " + e.Reason
}

func (e *InvalidIdentityError) Is(target error) bool {
	return target == ErrInvalidIdentity
}

// Identity is a canonical author public key
type Identity [Size]byte

// Hex returns the lowercase hex form
func (id Identity) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id Identity) String() string {
	return id.Hex()
}

// Npub returns the NIP-19 npub form
func (id Identity) Npub() string {
	// 32 bytes of hex always encode
	npub, _ := nip19.EncodePublicKey(id.Hex())
	return npub
}

// Pointer is a decoded identity together with any relay hints it carried
type Pointer struct {
	Identity Identity
	Relays   []string
}

// recognized human-readable prefixes, including the bech32 separator
var prefixes = []string{"npub1", "nprofile1"}

// Normalize converts a user-entered identity into its canonical form.
// Accepts exactly 64 hex characters (any case) or an npub/nprofile string.
func Normalize(input string) (Identity, error) {
	p, err := Parse(input)
	if err != nil {
		return Identity{}, err
	}
	return p.Identity, nil
}

// Parse is Normalize that also returns nprofile relay hints
func Parse(input string) (Pointer, error) {
	s := strings.TrimSpace(input)

	if len(s) == Size*2 {
		if id, err := fromHex(s); err == nil {
			return Pointer{Identity: id}, nil
		}
	}

	lower := strings.ToLower(s)
	for _, prefix := range prefixes {
		if strings.HasPrefix(lower, prefix) {
			return decodeBech32(s, strings.TrimSuffix(prefix, "1"))
		}
	}

	return Pointer{}, &InvalidIdentityError{Input: input, Reason: ReasonUnrecognized}
}

func decodeBech32(s, wantPrefix string) (Pointer, error) {
	malformed := &InvalidIdentityError{Input: s, Reason: ReasonMalformed}

	prefix, value, err := nip19.Decode(s)
	if err != nil || prefix != wantPrefix {
		return Pointer{}, malformed
	}

	var (
		pubkey string
		relays []string
	)
	switch v := value.(type) {
	case string:
		pubkey = v
	case gonostr.ProfilePointer:
		pubkey, relays = v.PublicKey, v.Relays
	case *gonostr.ProfilePointer:
		pubkey, relays = v.PublicKey, v.Relays
	default:
		return Pointer{}, malformed
	}

	id, err := fromHex(pubkey)
	if err != nil {
		return Pointer{}, malformed
	}
	return Pointer{Identity: id, Relays: nostr.NormalizeRelayURLs(relays)}, nil
}

func fromHex(s string) (Identity, error) {
	var id Identity
	if len(s) != Size*2 {
		return id, errors.New("wrong length")
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// EncodeNote builds the note1... display reference for an event id
func EncodeNote(eventID string) (string, error) {
	return nip19.EncodeNote(eventID)
}
