package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/SnowCait/user-notes-search/internal/discovery"
	"github.com/SnowCait/user-notes-search/internal/identity"
	"github.com/SnowCait/user-notes-search/internal/session"
	"github.com/SnowCait/user-notes-search/internal/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SSE event types
const (
	SSEEventConnected = "connected"
	SSEEventPost      = "post"
	SSEEventDone      = "done"
	SSEEventError     = "error"
	SSEEventPing      = "ping"
)

const ssePingInterval = 30 * time.Second

// SSEEvent is one server-sent event
type SSEEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// postEvent is sent after every merged post. Index is where the post landed
// in the feed; Feed is only set when the client asked for snapshots.
type postEvent struct {
	Index int        `json:"index"`
	Count int        `json:"count"`
	Post  postView   `json:"post"`
	Feed  []postView `json:"feed,omitempty"`
}

type doneEvent struct {
	Canceled bool `json:"canceled"`
	Count    int  `json:"count"`
}

type loadResult struct {
	out *session.Outcome
	err error
}

// streamPostsHandler loads the posts of an identity and streams every
// insertion as it is merged.
// GET /api/posts/stream?identity=npub1...&session=...&snapshot=1
//
// Errors found before streaming starts are plain JSON responses: 400 for an
// invalid identity, 422 when no relay is usable. Once streaming, a total
// relay failure is sent as an error event after the posts already sent.
func (s *server) streamPostsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		util.RespondMethodNotAllowed(w, "Method not allowed")
		return
	}

	input := r.URL.Query().Get("identity")
	if _, err := identity.Parse(input); err != nil {
		respondLoadError(w, err)
		return
	}

	// Check if client supports SSE
	flusher, ok := w.(http.Flusher)
	if !ok {
		util.RespondInternalError(w, "SSE not supported")
		return
	}

	sess := s.sessions.Get(sessionID(r))
	logger := LoggerFromContext(r.Context()).With("session", sess.ID)
	defer s.metrics.SSEConnected()()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := make(chan SSEEvent, 16)
	emit := func(evt SSEEvent) {
		select {
		case events <- evt:
		case <-ctx.Done():
		}
	}

	snapshot := wantsSnapshot(r)
	hooks := session.Hooks{
		Resolved: func(id identity.Identity, res *discovery.Result) {
			// Without relays the load fails and gets a plain 422
			if len(res.ContentRelays) == 0 {
				return
			}
			resp := newResolveResponse(id, res)
			resp.Session = sess.ID
			emit(SSEEvent{Type: SSEEventConnected, Data: resp})
		},
		Inserted: func(u session.Update) {
			evt := postEvent{
				Index: u.Insertion.Index,
				Count: u.Count,
				Post:  newPostView(u.Insertion.Event, nil),
			}
			if snapshot {
				feed := u.Feed()
				evt.Feed = make([]postView, len(feed))
				for i, p := range feed {
					evt.Feed[i] = newPostView(p, nil)
				}
			}
			emit(SSEEvent{Type: SSEEventPost, Data: evt})
		},
	}

	results := make(chan loadResult, 1)
	go func() {
		out, err := sess.Load(ctx, input, hooks)
		results <- loadResult{out: out, err: err}
	}()

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set(sessionHeader, sess.ID)
		w.WriteHeader(http.StatusOK)
	}

	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()

	for {
		select {
		case evt := <-events:
			start()
			sendSSEEvent(w, flusher, evt.Type, evt.Data)

		case <-ticker.C:
			if started {
				sendSSEEvent(w, flusher, SSEEventPing, map[string]int64{"time": time.Now().Unix()})
			}

		case res := <-results:
			// Every event was queued before the result; flush them first
			for drained := false; !drained; {
				select {
				case evt := <-events:
					start()
					sendSSEEvent(w, flusher, evt.Type, evt.Data)
				default:
					drained = true
				}
			}

			if res.err != nil && !started {
				respondLoadError(w, res.err)
				return
			}
			start()
			if res.err != nil {
				logger.Warn("SSE: load failed", "error", res.err)
				sendSSEEvent(w, flusher, SSEEventError, map[string]string{"error": res.err.Error()})
				return
			}
			count := 0
			if res.out != nil {
				count = len(res.out.Feed)
			}
			sendSSEEvent(w, flusher, SSEEventDone, doneEvent{Canceled: res.out != nil && res.out.Canceled, Count: count})
			logger.Debug("SSE: stream done", "posts", count)
			return
		}
	}
}

// sendSSEEvent sends a JSON event over SSE
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		slog.Error("SSE: failed to marshal event", "error", err)
		return
	}

	// SSE format: "event: <type>\ndata: <json>\n\n"
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
