package search

import (
	"context"
	"sync"

	"github.com/SnowCait/user-notes-search/internal/types"
)

// Live keeps a Result current while the feed and the query change.
// Spans already computed for the current query are cached by event id,
// so a growing feed only scans its new posts. A change made while a
// recompute is running cancels that recompute.
type Live struct {
	// notifyMu orders publications so observers never go back in time
	notifyMu sync.Mutex

	mu      sync.Mutex
	feed    []types.Event
	matcher *Matcher
	cache   map[string][]Span
	current Result
	cancel  context.CancelFunc
	subs    map[int]func(Result)
	nextSub int

	// published is the gen of current; running counts recomputes in flight
	gen       uint64
	published uint64
	running   int
}

// NewLive returns a Live with an empty feed and query
func NewLive() *Live {
	return &Live{
		current: Result{Spans: map[string][]Span{}},
		subs:    make(map[int]func(Result)),
	}
}

// SetFeed replaces the feed and recomputes
func (l *Live) SetFeed(feed []types.Event) {
	l.update(func() {
		l.feed = feed
	})
}

// Insert adds evt to the feed at idx, the position Feed.Insert reported,
// and publishes the new result. Only evt is scanned unless a recompute is
// still in flight, in which case the whole feed is recomputed.
func (l *Live) Insert(idx int, evt types.Event) {
	l.notifyMu.Lock()
	l.mu.Lock()
	if l.running > 0 || l.published != l.gen {
		l.mu.Unlock()
		l.notifyMu.Unlock()
		l.update(func() {
			l.feed = insertAt(l.feed, idx, evt)
		})
		return
	}
	defer l.notifyMu.Unlock()

	idx = clamp(idx, len(l.feed))
	res := l.current
	if l.matcher == nil {
		res.Filtered = insertAt(l.feed, idx, evt)
	} else if spans := l.spansOf(evt); len(spans) > 0 {
		pos := 0
		for _, e := range l.feed[:idx] {
			if len(res.Spans[e.ID]) > 0 {
				pos++
			}
		}
		res.Filtered = insertAt(res.Filtered, pos, evt)
		res.Spans = make(map[string][]Span, len(l.current.Spans)+1)
		for id, sp := range l.current.Spans {
			res.Spans[id] = sp
		}
		res.Spans[evt.ID] = spans
	}
	if l.matcher == nil {
		l.feed = res.Filtered
	} else {
		l.feed = insertAt(l.feed, idx, evt)
	}
	l.gen++
	l.published = l.gen
	l.current = res
	subs := l.subscribers()
	l.mu.Unlock()

	for _, fn := range subs {
		fn(res)
	}
}

// spansOf returns the cached spans of evt, scanning it on a miss.
// l.mu must be held and no recompute may be running.
func (l *Live) spansOf(evt types.Event) []Span {
	if spans, ok := l.cache[evt.ID]; ok {
		return spans
	}
	spans := l.matcher.Find(evt.Content)
	if l.cache == nil {
		l.cache = make(map[string][]Span)
	}
	l.cache[evt.ID] = spans
	return spans
}

// SetQuery replaces the query and recomputes. Cached spans are dropped
// when the query differs from the current one.
func (l *Live) SetQuery(query string) {
	l.update(func() {
		m := Compile(query)
		if m.Query() != l.matcher.Query() {
			l.cache = nil
		}
		l.matcher = m
	})
}

// Query returns the current query
func (l *Live) Query() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.matcher.Query()
}

// Feed returns the current feed. It must not be modified.
func (l *Live) Feed() []types.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.feed
}

// FeedLen returns the size of the current feed
func (l *Live) FeedLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.feed)
}

// Current returns the last published Result
func (l *Live) Current() Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Subscribe calls fn with every published Result until unsubscribe is
// called. fn runs on the goroutine that made the change and must not call
// SetFeed or SetQuery.
func (l *Live) Subscribe(fn func(Result)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}

func (l *Live) update(change func()) {
	l.mu.Lock()
	change()
	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.gen++
	gen := l.gen
	l.running++
	feed, m, prev := l.feed, l.matcher, l.cache
	l.mu.Unlock()
	defer cancel()

	res, scanned, err := run(ctx, feed, m, prev)

	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	l.running--
	current := err == nil && gen == l.gen
	switch {
	case scanned == nil || m.Query() != l.matcher.Query():
		// spans of another query
	case current:
		l.cache = scanned
	default:
		// Keep what a superseded recompute already scanned
		l.cache = merge(l.cache, scanned)
	}
	if !current {
		l.mu.Unlock()
		return
	}
	l.current = res
	l.published = gen
	subs := l.subscribers()
	l.mu.Unlock()

	for _, fn := range subs {
		fn(res)
	}
}

func (l *Live) subscribers() []func(Result) {
	subs := make([]func(Result), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	return subs
}

// insertAt returns a new slice with evt at i; s is not modified
func insertAt(s []types.Event, i int, evt types.Event) []types.Event {
	i = clamp(i, len(s))
	out := make([]types.Event, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, evt)
	return append(out, s[i:]...)
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func merge(a, b map[string][]Span) map[string][]Span {
	out := make(map[string][]Span, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
