package main

import (
	"log/slog"
	"strings"

	"github.com/SnowCait/user-notes-search/internal/discovery"
	"github.com/SnowCait/user-notes-search/internal/identity"
	"github.com/SnowCait/user-notes-search/internal/nostr"
	"github.com/SnowCait/user-notes-search/internal/util"
)

// buildResolveKey creates a stable key for singleflight deduplication.
// Relays are sorted so the same set in any order shares a key.
func buildResolveKey(pubkey string, relays []string) string {
	return "resolve:" + pubkey + ":" + strings.Join(util.SortedCopy(relays), "|")
}

// resolveShared runs discovery for ptr, sharing the work with concurrent
// requests for the same identity and relays. Discovery runs under the
// server lifetime so one caller leaving does not cut it short for others.
func (s *server) resolveShared(ptr identity.Pointer) *discovery.Result {
	relays := util.AppendUnique(s.cfg.DiscoveryRelays, ptr.Relays...)
	key := buildResolveKey(ptr.Identity.Hex(), relays)

	result, _, shared := s.resolveGroup.Do(key, func() (interface{}, error) {
		return s.resolver.Resolve(s.base, ptr.Identity, relays, s.cfg.ContentRelays), nil
	})

	if shared {
		slog.Debug("singleflight: shared discovery", "pubkey", nostr.ShortID(ptr.Identity.Hex()))
	}
	return result.(*discovery.Result)
}
