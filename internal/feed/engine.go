package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/SnowCait/user-notes-search/internal/identity"
	"github.com/SnowCait/user-notes-search/internal/metrics"
	"github.com/SnowCait/user-notes-search/internal/nostr"
	"github.com/SnowCait/user-notes-search/internal/relay"
	"github.com/SnowCait/user-notes-search/internal/types"
)

// Options bounds the requests of a post fetch
type Options struct {
	BatchLimit  int
	MaxPages    int
	EOSETimeout time.Duration
}

// Engine opens post streams. Each stream gets its own Source.
type Engine struct {
	factory relay.Factory
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an Engine; m may be nil
func NewEngine(factory relay.Factory, opts Options, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		factory: factory,
		opts:    opts,
		logger:  logger,
		metrics: m,
	}
}

// FetchPosts subscribes to the posts of author on relays and returns the
// merged stream. It fails with ErrNoUsableRelays before opening anything
// when no relay is valid.
func (e *Engine) FetchPosts(ctx context.Context, author identity.Identity, relays []string) (*Stream, error) {
	usable := nostr.NormalizeRelayURLs(relays)
	if len(usable) == 0 {
		return nil, ErrNoUsableRelays
	}

	filter := types.Filter{
		Authors: []string{author.Hex()},
		Kinds:   []int{types.KindPost},
	}
	opts := relay.BatchOptions{
		Limit:       e.opts.BatchLimit,
		MaxPages:    e.opts.MaxPages,
		EOSETimeout: e.opts.EOSETimeout,
	}

	srcCtx, cancel := context.WithCancel(ctx)
	src := e.factory()

	e.logger.Debug("feed: fetch started", "author", nostr.ShortID(author.Hex()), "relays", len(usable))
	return &Stream{
		engine:  e,
		ctx:     ctx,
		cancel:  cancel,
		src:     src,
		msgs:    src.Open(srcCtx, usable, filter, opts),
		author:  author.Hex(),
		relays:  usable,
		feed:    New(),
		started: time.Now(),
	}, nil
}

// Insertion is one event added to the feed and the index it landed at
type Insertion struct {
	Index int
	Event types.Event
}

// Stream iterates over the insertions of one fetch:
//
//	stream, err := engine.FetchPosts(ctx, author, relays)
//	...
//	defer stream.Close()
//	for stream.Next() {
//		render(stream.Feed())
//	}
//	if err := stream.Err(); err != nil { ... }
//
// A Stream is used from one goroutine.
type Stream struct {
	engine  *Engine
	ctx     context.Context
	cancel  context.CancelFunc
	src     relay.Source
	msgs    <-chan relay.Message
	author  string
	relays  []string
	started time.Time

	feed     *Feed
	last     Insertion
	errs     *multierror.Error
	failed   int
	answered bool // some relay sent an event or EOSE

	done      bool
	canceled  bool
	err       error
	closeOnce sync.Once
}

// Next blocks until the next event is merged and reports whether one was.
// It returns false once every relay finished or the context was canceled,
// and closes the stream at that point.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	for {
		if s.ctx.Err() != nil {
			s.canceled = true
			s.finish()
			return false
		}

		select {
		case <-s.ctx.Done():
			s.canceled = true
			s.finish()
			return false

		case msg, ok := <-s.msgs:
			if !ok {
				s.finish()
				return false
			}
			if s.handle(msg) {
				return true
			}
		}
	}
}

// handle applies one message and reports whether it inserted an event
func (s *Stream) handle(msg relay.Message) bool {
	switch {
	case msg.Err != nil:
		s.failed++
		s.errs = multierror.Append(s.errs, fmt.Errorf("%s: %w", msg.Relay, msg.Err))
		s.engine.metrics.RelayFailed()
		s.engine.logger.Debug("feed: relay failed", "relay", msg.Relay, "error", msg.Err)
		return false

	case msg.EOSE:
		s.answered = true
		return false

	case msg.Event != nil:
		s.answered = true
		s.engine.metrics.EventReceived()

		evt := msg.Event
		if evt.Kind != types.KindPost || evt.PubKey != s.author {
			return false
		}
		idx, ok := s.feed.Insert(*evt)
		if !ok {
			s.engine.metrics.DuplicateDropped()
			return false
		}
		s.last = Insertion{Index: idx, Event: *evt}
		return true
	}
	return false
}

func (s *Stream) finish() {
	s.done = true

	outcome := metrics.OutcomeComplete
	switch {
	case s.canceled:
		outcome = metrics.OutcomeCanceled
	case !s.answered && s.errs != nil:
		s.err = &EventSourceError{Cause: s.errs.ErrorOrNil()}
		outcome = metrics.OutcomeFailed
	}

	took := time.Since(s.started)
	s.engine.metrics.FetchDone(outcome, took)
	s.engine.logger.Info("feed: fetch finished",
		"author", nostr.ShortID(s.author),
		"posts", s.feed.Len(),
		"relays", len(s.relays),
		"failed", s.failed,
		"outcome", outcome,
		"took", took.Round(time.Millisecond).String(),
	)
	if s.failed > 0 && s.failed == len(s.relays) && s.err == nil && !s.canceled {
		s.engine.logger.Warn("feed: every relay failed after delivering data", "author", nostr.ShortID(s.author))
	}

	s.Close()
}

// Feed returns a copy of the merged events after the last insertion
func (s *Stream) Feed() []types.Event {
	return s.feed.Snapshot()
}

// Len returns the number of events merged so far
func (s *Stream) Len() int {
	return s.feed.Len()
}

// Inserted returns the event merged by the last successful Next
func (s *Stream) Inserted() Insertion {
	return s.last
}

// Relays returns the normalized relays the stream subscribed to
func (s *Stream) Relays() []string {
	return append([]string(nil), s.relays...)
}

// Err returns the EventSourceError of a fetch where every relay failed
// without producing data. Cancellation is not an error.
func (s *Stream) Err() error {
	return s.err
}

// Canceled reports whether the stream ended because its context was done
func (s *Stream) Canceled() bool {
	return s.canceled
}

// Close stops the subscriptions and shuts the source down. It is safe to
// call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.done = true
		s.cancel()
		s.src.Shutdown()
	})
	return nil
}
