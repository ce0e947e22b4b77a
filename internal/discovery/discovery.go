// Package discovery finds where a user publishes: it reads the user's
// profile and NIP-65 relay list from discovery relays and derives the
// relays to fetch posts from.
package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/SnowCait/user-notes-search/internal/identity"
	"github.com/SnowCait/user-notes-search/internal/nostr"
	"github.com/SnowCait/user-notes-search/internal/relay"
	"github.com/SnowCait/user-notes-search/internal/types"
)

const defaultLimit = 20

// ProfileSnapshot is the newest kind 0 event of an author. Profile is nil
// when the content is not a JSON object.
type ProfileSnapshot struct {
	Event   *types.Event
	Profile *types.ProfileInfo
}

// Result is the outcome of one discovery
type Result struct {
	Profiles map[string]*ProfileSnapshot
	// RelayList is the newest kind 10002 event of the author, if any
	RelayList *types.Event
	// Relays is RelayList split by marker
	Relays        types.RelayList
	ContentRelays []string
	UsedFallback  bool
	// Cached is set when the documents came from the Cache
	Cached bool
}

// Profile returns the snapshot for pubkey or nil
func (r *Result) Profile(pubkey string) *ProfileSnapshot {
	if r == nil {
		return nil
	}
	return r.Profiles[pubkey]
}

// Options bounds the discovery query
type Options struct {
	Limit       int
	EOSETimeout time.Duration
	// Cache, when set, serves repeated resolves of an author
	Cache *Cache
}

// Resolver runs discoveries, one Source per call
type Resolver struct {
	factory relay.Factory
	opts    Options
	logger  *slog.Logger
}

// NewResolver creates a Resolver
func NewResolver(factory relay.Factory, opts Options, logger *slog.Logger) *Resolver {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{factory: factory, opts: opts, logger: logger}
}

// Resolve queries discoveryRelays for the profile and relay list of id and
// picks the content relays. It reads until every relay finished or ctx is
// done and never fails: without a usable relay list the normalized
// contentDefaults are returned with UsedFallback set.
func (r *Resolver) Resolve(ctx context.Context, id identity.Identity, discoveryRelays, contentDefaults []string) *Result {
	result := &Result{Profiles: make(map[string]*ProfileSnapshot)}
	author := id.Hex()

	relays := nostr.NormalizeRelayURLs(discoveryRelays)
	if docs, ok := r.opts.Cache.get(ctx, author, r.logger); ok {
		for _, evt := range []*types.Event{docs.Profile, docs.RelayList} {
			if evt != nil {
				result.add(author, evt)
			}
		}
		result.Cached = true
	} else if len(relays) > 0 {
		r.collect(ctx, author, relays, result)
		// A cut-short discovery is not worth keeping
		if ctx.Err() == nil {
			r.opts.Cache.put(ctx, author, result, r.logger)
		}
	} else {
		r.logger.Debug("discovery: no discovery relays", "author", nostr.ShortID(author))
	}

	if result.RelayList != nil {
		result.Relays = ParseRelayList(result.RelayList)
		result.ContentRelays = SelectContentRelays(result.RelayList)
	}
	if len(result.ContentRelays) == 0 {
		result.ContentRelays = nostr.NormalizeRelayURLs(contentDefaults)
		result.UsedFallback = true
	}

	r.logger.Info("discovery: resolved",
		"author", nostr.ShortID(author),
		"profile", result.Profile(author) != nil,
		"relay_list", result.RelayList != nil,
		"content_relays", len(result.ContentRelays),
		"fallback", result.UsedFallback,
		"cached", result.Cached,
	)
	return result
}

func (r *Resolver) collect(ctx context.Context, author string, relays []string, result *Result) {
	src := r.factory()
	defer src.Shutdown()

	filter := types.Filter{
		Authors: []string{author},
		Kinds:   []int{types.KindProfile, types.KindRelayList},
	}
	opts := relay.BatchOptions{
		Limit:       r.opts.Limit,
		EOSETimeout: r.opts.EOSETimeout,
	}

	for msg := range src.Open(ctx, relays, filter, opts) {
		switch {
		case msg.Err != nil:
			r.logger.Debug("discovery: relay failed", "relay", msg.Relay, "error", msg.Err)
		case msg.Event != nil:
			result.add(author, msg.Event)
		}
	}
}

// add keeps the newest document per kind; on equal created_at the first
// one seen wins. Profiles are kept per author, the relay list only for
// author.
func (r *Result) add(author string, evt *types.Event) {
	switch evt.Kind {
	case types.KindProfile:
		if cur := r.Profiles[evt.PubKey]; cur != nil && evt.CreatedAt <= cur.Event.CreatedAt {
			return
		}
		r.Profiles[evt.PubKey] = &ProfileSnapshot{
			Event:   evt,
			Profile: nostr.DecodeProfile(evt.Content),
		}

	case types.KindRelayList:
		if evt.PubKey != author {
			return
		}
		if r.RelayList != nil && evt.CreatedAt <= r.RelayList.CreatedAt {
			return
		}
		r.RelayList = evt
	}
}
