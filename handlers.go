package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/SnowCait/user-notes-search/internal/discovery"
	"github.com/SnowCait/user-notes-search/internal/feed"
	"github.com/SnowCait/user-notes-search/internal/identity"
	"github.com/SnowCait/user-notes-search/internal/search"
	"github.com/SnowCait/user-notes-search/internal/session"
	"github.com/SnowCait/user-notes-search/internal/types"
	"github.com/SnowCait/user-notes-search/internal/util"
)

// Session ids travel in this header or the "session" query parameter
const sessionHeader = "X-Session-ID"

// postView is a post as sent to the UI
type postView struct {
	types.Event
	Note   string        `json:"note,omitempty"`
	Relays []string      `json:"relays,omitempty"`
	Spans  []search.Span `json:"spans,omitempty"`
}

func newPostView(evt types.Event, spans []search.Span) postView {
	note, _ := identity.EncodeNote(evt.ID)
	return postView{
		Event:  evt,
		Note:   note,
		Relays: evt.RelaysSeen,
		Spans:  spans,
	}
}

// resolveResponse is the body of /api/resolve and the SSE connected event
type resolveResponse struct {
	Session       string             `json:"session,omitempty"`
	Pubkey        string             `json:"pubkey"`
	Npub          string             `json:"npub"`
	Profile       *types.ProfileInfo `json:"profile"`
	Name          string             `json:"name,omitempty"`
	ReadRelays    []string           `json:"readRelays"`
	WriteRelays   []string           `json:"writeRelays"`
	ContentRelays []string           `json:"contentRelays"`
	UsedFallback  bool               `json:"usedFallback"`
}

func newResolveResponse(id identity.Identity, res *discovery.Result) resolveResponse {
	out := resolveResponse{
		Pubkey:        id.Hex(),
		Npub:          id.Npub(),
		ReadRelays:    res.Relays.Read,
		WriteRelays:   res.Relays.Write,
		ContentRelays: res.ContentRelays,
		UsedFallback:  res.UsedFallback,
	}
	if snap := res.Profile(id.Hex()); snap != nil {
		out.Profile = snap.Profile
		out.Name = snap.Profile.BestName()
	}
	return out
}

// respondLoadError maps pipeline errors that happen before streaming
func respondLoadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidIdentity):
		util.RespondBadRequest(w, err.Error())
	case errors.Is(err, feed.ErrNoUsableRelays):
		util.RespondUnprocessable(w, err.Error())
	default:
		util.RespondError(w, http.StatusBadGateway, err.Error())
	}
}

func sessionID(r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id
	}
	return r.URL.Query().Get("session")
}

// lookupSession returns the session named by the request or responds 404
func (s *server) lookupSession(w http.ResponseWriter, r *http.Request) *session.Session {
	id := sessionID(r)
	if id == "" {
		util.RespondBadRequest(w, "missing session")
		return nil
	}
	sess := s.sessions.Lookup(id)
	if sess == nil {
		util.RespondNotFound(w, "unknown session")
	}
	return sess
}

// resolveHandler runs discovery for an identity
// GET /api/resolve?identity=npub1...
func (s *server) resolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		util.RespondMethodNotAllowed(w, "Method not allowed")
		return
	}

	ptr, err := identity.Parse(r.URL.Query().Get("identity"))
	if err != nil {
		respondLoadError(w, err)
		return
	}

	res := s.resolveShared(ptr)
	util.WriteJSON(w, http.StatusOK, newResolveResponse(ptr.Identity, res))
}

// abortHandler cancels the running post fetch of a session
// POST /api/posts/abort?session=...
func (s *server) abortHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		util.RespondMethodNotAllowed(w, "Method not allowed")
		return
	}
	sess := s.lookupSession(w, r)
	if sess == nil {
		return
	}

	loading := sess.Loading()
	sess.Abort()
	LoggerFromContext(r.Context()).Debug("abort requested", "session", sess.ID, "loading", loading)
	util.WriteJSON(w, http.StatusOK, map[string]bool{"aborted": loading})
}

// searchResponse is the body of /api/posts/search
type searchResponse struct {
	Query   string     `json:"query"`
	Total   int        `json:"total"`
	Count   int        `json:"count"`
	Loading bool       `json:"loading"`
	Posts   []postView `json:"posts"`
}

// searchHandler filters the last merged feed of a session
// GET /api/posts/search?session=...&q=...
func (s *server) searchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		util.RespondMethodNotAllowed(w, "Method not allowed")
		return
	}
	sess := s.lookupSession(w, r)
	if sess == nil {
		return
	}

	res := sess.Search(r.URL.Query().Get("q"))

	posts := make([]postView, 0, len(res.Filtered))
	for _, evt := range res.Filtered {
		posts = append(posts, newPostView(evt, res.Spans[evt.ID]))
	}
	util.WriteJSON(w, http.StatusOK, searchResponse{
		Query:   res.Query,
		Total:   sess.Live().FeedLen(),
		Count:   len(posts),
		Loading: sess.Loading(),
		Posts:   posts,
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func wantsSnapshot(r *http.Request) bool {
	v := strings.ToLower(r.URL.Query().Get("snapshot"))
	return v == "1" || v == "true"
}
