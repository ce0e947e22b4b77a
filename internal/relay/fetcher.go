package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/SnowCait/user-notes-search/internal/nostr"
	"github.com/SnowCait/user-notes-search/internal/types"
)

const defaultEOSETimeout = 5 * time.Second

// ErrEOSETimeout is reported for a relay that sent nothing before the page timeout
var ErrEOSETimeout = errors.New("timed out waiting for EOSE")

// Fetcher is the websocket Source. It owns a Pool for its whole lifetime.
type Fetcher struct {
	pool         *Pool
	logger       *slog.Logger
	shutdownOnce sync.Once
}

// NewFetcher creates a Fetcher with its own connection pool
func NewFetcher(opts PoolOptions, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		pool:   NewPool(opts, logger),
		logger: logger,
	}
}

// NewFactory returns a Factory producing Fetchers with opts
func NewFactory(opts PoolOptions, logger *slog.Logger) Factory {
	return func() Source {
		return NewFetcher(opts, logger)
	}
}

// Open implements Source
func (f *Fetcher) Open(ctx context.Context, relays []string, filter types.Filter, opts BatchOptions) <-chan Message {
	out := make(chan Message, len(relays))

	var wg sync.WaitGroup
	for _, relayURL := range relays {
		wg.Add(1)
		go func(relayURL string) {
			defer wg.Done()
			f.fetchRelay(ctx, relayURL, filter, opts, out)
		}(relayURL)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// Shutdown closes every connection opened by this Fetcher
func (f *Fetcher) Shutdown() {
	f.shutdownOnce.Do(func() {
		if err := f.pool.Close(); err != nil {
			f.logger.Debug("fetcher: shutdown", "error", err)
		}
	})
}

// fetchRelay pages through one relay with until while it returns full batches
func (f *Fetcher) fetchRelay(ctx context.Context, relayURL string, filter types.Filter, opts BatchOptions, out chan<- Message) {
	send := func(msg Message) bool {
		select {
		case out <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	maxPages := opts.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}
	page := filter
	if opts.Limit > 0 {
		page.Limit = opts.Limit
	}

	for n := 1; ; n++ {
		count, oldest, err := f.fetchPage(ctx, relayURL, page, opts, send)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			f.logger.Debug("fetcher: relay failed", "relay", relayURL, "page", n, "error", err)
			send(Message{Relay: relayURL, Err: err})
			return
		}

		more := page.Limit > 0 && count >= page.Limit && n < maxPages
		// An until that no longer moves back would return the same page
		if more && page.Until != nil && oldest >= *page.Until {
			more = false
		}
		if !more {
			send(Message{Relay: relayURL, EOSE: true})
			return
		}

		until := oldest
		page.Until = &until
		f.logger.Debug("fetcher: next page", "relay", relayURL, "page", n+1, "until", until)
	}
}

// fetchPage runs one REQ until EOSE and reports how many events arrived
// and the oldest created_at among them
func (f *Fetcher) fetchPage(ctx context.Context, relayURL string, filter types.Filter, opts BatchOptions, send func(Message) bool) (count int, oldest int64, err error) {
	sub, err := f.pool.Subscribe(ctx, relayURL, filter)
	if err != nil {
		return 0, 0, err
	}
	defer f.pool.Unsubscribe(relayURL, sub)

	timeout := opts.EOSETimeout
	if timeout <= 0 {
		timeout = defaultEOSETimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	deliver := func(evt *types.Event) bool {
		count++
		if count == 1 || evt.CreatedAt < oldest {
			oldest = evt.CreatedAt
		}
		return send(Message{Relay: relayURL, Event: evt})
	}
	// Events precede EOSE/CLOSED on the socket, so whatever is buffered
	// when either arrives belongs to this page
	drain := func() bool {
		for {
			select {
			case evt := <-sub.Events:
				if !deliver(evt) {
					return false
				}
			default:
				return true
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return count, oldest, nil

		case evt := <-sub.Events:
			if !deliver(evt) {
				return count, oldest, nil
			}

		case <-sub.EOSE:
			drain()
			return count, oldest, nil

		case <-sub.Done:
			drain()
			if err := sub.Err(); err != nil {
				return count, oldest, err
			}
			return count, oldest, nil

		case <-timer.C:
			if count == 0 {
				return 0, 0, ErrEOSETimeout
			}
			f.logger.Debug("fetcher: page timeout", "relay", relayURL, "events", count, "author", nostr.ShortID(firstAuthor(filter)))
			return count, oldest, nil
		}
	}
}

func firstAuthor(filter types.Filter) string {
	if len(filter.Authors) == 0 {
		return ""
	}
	return filter.Authors[0]
}
