// Package nostrtest provides fixtures for tests: real secp256k1 keys,
// signed events with content-addressed ids, and an in-process relay.
package nostrtest

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/SnowCait/user-notes-search/internal/nostr"
	"github.com/SnowCait/user-notes-search/internal/types"
)

// Key is a signing key with its x-only public key in hex
type Key struct {
	priv   *btcec.PrivateKey
	PubKey string
}

// NewKey generates a random key
func NewKey(t testing.TB) *Key {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return newKey(priv)
}

// KeyFromSeed derives a deterministic key from seed
func KeyFromSeed(seed string) *Key {
	sum := sha256.Sum256([]byte(seed))
	priv, _ := btcec.PrivKeyFromBytes(sum[:])
	return newKey(priv)
}

func newKey(priv *btcec.PrivateKey) *Key {
	return &Key{
		priv:   priv,
		PubKey: hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey())),
	}
}

// Event builds a signed event authored by k
func (k *Key) Event(kind int, createdAt int64, content string, tags ...[]string) *types.Event {
	if tags == nil {
		tags = [][]string{}
	}
	evt := &types.Event{
		PubKey:    k.PubKey,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	evt.ID = nostr.ComputeEventID(evt)

	idBytes, _ := hex.DecodeString(evt.ID)
	if sig, err := schnorr.Sign(k.priv, idBytes); err == nil {
		evt.Sig = hex.EncodeToString(sig.Serialize())
	}
	return evt
}

// Post builds a kind 1 event
func (k *Key) Post(createdAt int64, content string) *types.Event {
	return k.Event(types.KindPost, createdAt, content)
}

// Profile builds a kind 0 event with raw content
func (k *Key) Profile(createdAt int64, content string) *types.Event {
	return k.Event(types.KindProfile, createdAt, content)
}

// RelayList builds a kind 10002 event from r tags
func (k *Key) RelayList(createdAt int64, tags ...[]string) *types.Event {
	return k.Event(types.KindRelayList, createdAt, "", tags...)
}
