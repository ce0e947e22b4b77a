// Package session runs the whole pipeline for one viewer: identity,
// discovery, then the post stream, with a live search over the result.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/SnowCait/user-notes-search/internal/discovery"
	"github.com/SnowCait/user-notes-search/internal/feed"
	"github.com/SnowCait/user-notes-search/internal/identity"
	"github.com/SnowCait/user-notes-search/internal/nostr"
	"github.com/SnowCait/user-notes-search/internal/search"
	"github.com/SnowCait/user-notes-search/internal/types"
	"github.com/SnowCait/user-notes-search/internal/util"
)

// Relays are the configured relay sets
type Relays struct {
	Discovery []string
	Content   []string
}

// Update is sent to the observer of a load after every insertion
type Update struct {
	Insertion feed.Insertion
	// Count is the feed size after the insertion
	Count  int
	stream *feed.Stream
}

// Feed copies the feed as of this update. It is only valid while the
// Inserted hook runs.
func (u Update) Feed() []types.Event {
	return u.stream.Feed()
}

// Hooks are optional callbacks of a load. They run on the loading
// goroutine.
type Hooks struct {
	// Resolved runs after discovery, before posts are requested
	Resolved func(identity.Identity, *discovery.Result)
	// Inserted runs after every merged post
	Inserted func(Update)
}

// Outcome describes a finished load
type Outcome struct {
	Identity  identity.Identity
	Discovery *discovery.Result
	// Relays the posts were requested from
	Relays   []string
	Feed     []types.Event
	Canceled bool
}

// Session serializes loads: starting one aborts the previous load and
// waits for its stream to close.
type Session struct {
	ID string

	resolver *discovery.Resolver
	engine   *feed.Engine
	relays   Relays
	logger   *slog.Logger
	ctrl     *feed.Controller
	live     *search.Live

	loadMu sync.Mutex

	mu   sync.Mutex
	gen  uint64
	last *Outcome
}

// New creates a Session. Canceling base stops any post fetch.
func New(base context.Context, resolver *discovery.Resolver, engine *feed.Engine, relays Relays, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		ID:       id,
		resolver: resolver,
		engine:   engine,
		relays:   relays,
		logger:   logger.With("session", id[:8]),
		ctrl:     feed.NewController(base),
		live:     search.NewLive(),
	}
}

// Resolve normalizes input and runs discovery without fetching posts
func (s *Session) Resolve(ctx context.Context, input string) (identity.Pointer, *discovery.Result, error) {
	ptr, err := identity.Parse(input)
	if err != nil {
		return identity.Pointer{}, nil, err
	}
	return ptr, s.discover(ctx, ptr), nil
}

func (s *Session) discover(ctx context.Context, ptr identity.Pointer) *discovery.Result {
	relays := util.AppendUnique(s.relays.Discovery, ptr.Relays...)
	return s.resolver.Resolve(ctx, ptr.Identity, relays, s.relays.Content)
}

// Load fetches the posts of input. ctx bounds the whole load; Abort only
// interrupts the post phase. An invalid identity fails before any network
// call. The returned Outcome holds whatever was merged, also when err is a
// *feed.EventSourceError.
func (s *Session) Load(ctx context.Context, input string, hooks Hooks) (*Outcome, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.ctrl.Abort()
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	ptr, err := identity.Parse(input)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Identity: ptr.Identity}
	if s.superseded(ctx, gen) {
		out.Canceled = true
		return out, nil
	}

	out.Discovery = s.discover(ctx, ptr)
	out.Relays = out.Discovery.ContentRelays
	if hooks.Resolved != nil {
		hooks.Resolved(ptr.Identity, out.Discovery)
	}

	token := s.ctrl.Begin()
	defer s.ctrl.End(token)
	// A newer load started before Begin, so its Abort missed this token
	if s.superseded(ctx, gen) {
		out.Canceled = true
		return out, nil
	}

	fetchCtx, cancel := context.WithCancel(token)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	stream, err := s.engine.FetchPosts(fetchCtx, ptr.Identity, out.Relays)
	if err != nil {
		return out, err
	}
	defer stream.Close()

	s.live.SetFeed(nil)
	for stream.Next() {
		ins := stream.Inserted()
		s.live.Insert(ins.Index, ins.Event)
		if hooks.Inserted != nil {
			hooks.Inserted(Update{Insertion: ins, Count: stream.Len(), stream: stream})
		}
		// AfterFunc cancels asynchronously; stop at this boundary
		if ctx.Err() != nil {
			cancel()
		}
	}

	out.Relays = stream.Relays()
	out.Feed = stream.Feed()
	out.Canceled = stream.Canceled()
	s.live.SetFeed(out.Feed)

	s.mu.Lock()
	s.last = out
	s.mu.Unlock()

	if err := stream.Err(); err != nil {
		s.logger.Warn("session: load failed", "author", nostr.ShortID(ptr.Identity.Hex()), "error", err)
		return out, err
	}
	return out, nil
}

func (s *Session) superseded(ctx context.Context, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.gen || ctx.Err() != nil
}

// Abort cancels the running post fetch. Discovery is not interrupted.
func (s *Session) Abort() {
	s.ctrl.Abort()
}

// Loading reports whether posts are being fetched
func (s *Session) Loading() bool {
	return s.ctrl.Active()
}

// Last returns the outcome of the last load that reached the post phase
func (s *Session) Last() *Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Search sets the query of the live search and returns its result
func (s *Session) Search(query string) search.Result {
	s.live.SetQuery(query)
	if res := s.live.Current(); res.Query == search.Compile(query).Query() {
		return res
	}
	// A feed update superseded the recompute before it was published
	return search.Search(s.live.Feed(), query)
}

// Live exposes the live search over the current feed
func (s *Session) Live() *search.Live {
	return s.live
}

// IsInvalidIdentity reports whether err came from identity normalization
func IsInvalidIdentity(err error) bool {
	return errors.Is(err, identity.ErrInvalidIdentity)
}
