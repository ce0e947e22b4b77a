// Package relaytest provides a scripted relay.Source for tests.
package relaytest

import (
	"context"
	"sync"

	"github.com/SnowCait/user-notes-search/internal/relay"
	"github.com/SnowCait/user-notes-search/internal/types"
)

// OpenCall records the arguments of one Open
type OpenCall struct {
	Relays []string
	Filter types.Filter
	Opts   relay.BatchOptions
}

// Source replays Messages, in order and unbuffered, on every Open
type Source struct {
	Messages []relay.Message
	// Hold keeps each stream open after the script until its ctx is done,
	// like a relay subscription that stays live
	Hold bool

	mu        sync.Mutex
	opens     []OpenCall
	shutdowns int
}

// New returns a Source scripted with msgs
func New(msgs ...relay.Message) *Source {
	return &Source{Messages: msgs}
}

// Factory returns a relay.Factory that always hands out s
func (s *Source) Factory() relay.Factory {
	return func() relay.Source { return s }
}

// Open implements relay.Source
func (s *Source) Open(ctx context.Context, relays []string, filter types.Filter, opts relay.BatchOptions) <-chan relay.Message {
	s.mu.Lock()
	s.opens = append(s.opens, OpenCall{
		Relays: append([]string(nil), relays...),
		Filter: filter,
		Opts:   opts,
	})
	msgs := append([]relay.Message(nil), s.Messages...)
	hold := s.Hold
	s.mu.Unlock()

	out := make(chan relay.Message)
	go func() {
		defer close(out)
		for _, msg := range msgs {
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
		if hold {
			<-ctx.Done()
		}
	}()
	return out
}

// Shutdown implements relay.Source
func (s *Source) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdowns++
}

// Opens returns the recorded Open calls
func (s *Source) Opens() []OpenCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OpenCall(nil), s.opens...)
}

// Shutdowns returns how many times Shutdown was called
func (s *Source) Shutdowns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdowns
}

// Event wraps evt as a message from relayURL
func Event(relayURL string, evt *types.Event) relay.Message {
	return relay.Message{Relay: relayURL, Event: evt}
}

// EOSE is an end-of-stored-events message from relayURL
func EOSE(relayURL string) relay.Message {
	return relay.Message{Relay: relayURL, EOSE: true}
}

// Fail is a relay failure message
func Fail(relayURL string, err error) relay.Message {
	return relay.Message{Relay: relayURL, Err: err}
}
