package nostrtest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/SnowCait/user-notes-search/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReqFilter is a REQ filter as received by Relay
type ReqFilter struct {
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	Limit   int      `json:"limit,omitempty"`
	Until   *int64   `json:"until,omitempty"`
}

// Relay is an in-process NIP-01 relay serving a fixed event set
type Relay struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu           sync.Mutex
	events       []*types.Event
	requests     []ReqFilter
	active       int
	skipEOSE     bool
	closedReason string
}

// NewRelay starts a relay holding events. It is closed with t.Cleanup.
func NewRelay(t testing.TB, events ...*types.Event) *Relay {
	t.Helper()
	r := &Relay{events: events}
	r.server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.server.Close)
	return r
}

// URL returns the ws:// address of the relay
func (r *Relay) URL() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

// SetSkipEOSE makes the relay never send EOSE
func (r *Relay) SetSkipEOSE(skip bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipEOSE = skip
}

// SetClosedReason makes the relay answer every REQ with CLOSED and reason
func (r *Relay) SetClosedReason(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closedReason = reason
}

// Requests returns the filters received so far
func (r *Relay) Requests() []ReqFilter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ReqFilter(nil), r.requests...)
}

// ActiveConnections returns the number of open client sockets
func (r *Relay) ActiveConnections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Relay) serve(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	r.mu.Lock()
	r.active++
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.active--
		r.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg []jsoniter.RawMessage
		if err := json.Unmarshal(data, &msg); err != nil || len(msg) < 2 {
			continue
		}
		var typ, subID string
		json.Unmarshal(msg[0], &typ)
		json.Unmarshal(msg[1], &subID)
		if typ != "REQ" || len(msg) < 3 {
			continue
		}

		var filter ReqFilter
		json.Unmarshal(msg[2], &filter)
		r.mu.Lock()
		r.requests = append(r.requests, filter)
		skipEOSE, closedReason := r.skipEOSE, r.closedReason
		r.mu.Unlock()

		if closedReason != "" {
			conn.WriteJSON([]interface{}{"CLOSED", subID, closedReason})
			continue
		}
		for _, evt := range r.match(filter) {
			if err := conn.WriteJSON([]interface{}{"EVENT", subID, evt}); err != nil {
				return
			}
		}
		if !skipEOSE {
			conn.WriteJSON([]interface{}{"EOSE", subID})
		}
	}
}

// match returns stored events matching filter, newest first, capped by limit
func (r *Relay) match(f ReqFilter) []*types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*types.Event
	for _, evt := range r.events {
		if len(f.Authors) > 0 && !containsString(f.Authors, evt.PubKey) {
			continue
		}
		if len(f.Kinds) > 0 && !containsInt(f.Kinds, evt.Kind) {
			continue
		}
		if f.Until != nil && evt.CreatedAt > *f.Until {
			continue
		}
		result = append(result, evt)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
