// Package relay is the NIP-01 websocket transport: a connection pool and a
// fetcher that fans one filter out to many relays and merges what arrives.
package relay

import (
	"context"
	"time"

	"github.com/SnowCait/user-notes-search/internal/types"
)

// Message is one item of a merged relay stream. Exactly one of Event,
// EOSE or Err is set.
type Message struct {
	Relay string
	Event *types.Event
	EOSE  bool  // relay finished delivering stored events
	Err   error // relay failed; no further messages from it
}

// BatchOptions bounds each request sent to a relay
type BatchOptions struct {
	// Limit caps events per REQ
	Limit int
	// MaxPages is how many REQs a relay may receive while it keeps
	// returning full batches; values below 1 mean a single page
	MaxPages int
	// EOSETimeout bounds the wait for each page
	EOSETimeout time.Duration
}

// Source opens merged event streams. Shutdown must be called exactly once
// when no more streams from it will be consumed.
type Source interface {
	// Open subscribes filter on every relay. The returned channel is closed
	// once every relay has finished or ctx is done.
	Open(ctx context.Context, relays []string, filter types.Filter, opts BatchOptions) <-chan Message
	Shutdown()
}

// Factory creates a fresh Source for one operation
type Factory func() Source
