package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SnowCait/user-notes-search/internal/feed"
	"github.com/SnowCait/user-notes-search/internal/identity"
	"github.com/SnowCait/user-notes-search/internal/nostrtest"
	"github.com/SnowCait/user-notes-search/internal/relay/relaytest"
	"github.com/SnowCait/user-notes-search/internal/search"
)

const (
	indexer = "wss://indexer.example"
	home    = "wss://home.example"
)

const testConfig = `
discoveryRelays: ["wss://indexer.example"]
contentRelays: ["wss://default.example"]
batchLimit: 50
eoseTimeout: 1s
`

var alice = nostrtest.KeyFromSeed("alice")

// aliceRelays answers discovery and post requests alike; each side keeps
// only the kinds it asked for
func aliceRelays() *relaytest.Source {
	return relaytest.New(
		relaytest.Event(indexer, alice.Profile(10, `{"name":"alice","about":"writes\nthings"}`)),
		relaytest.Event(indexer, alice.RelayList(10, []string{"r", home, "write"})),
		relaytest.Event(home, alice.Post(100, "hello world")),
		relaytest.Event(home, alice.Post(300, "HELLO again")),
		relaytest.Event(home, alice.Post(200, "goodbye")),
		relaytest.EOSE(indexer),
		relaytest.EOSE(home),
	)
}

func execute(t *testing.T, src *relaytest.Source, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "notes.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o644))

	root := NewRootCmd(src.Factory())
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", cfgPath, "--log-level", "error"}, args...))
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func TestFetchPrintsNewestFirst(t *testing.T) {
	stdout, stderr, err := execute(t, aliceRelays(), "fetch", alice.PubKey)
	require.NoError(t, err)

	assert.Contains(t, stderr, "fetching posts of alice from 1 relays")
	newest := strings.Index(stdout, "HELLO again")
	middle := strings.Index(stdout, "goodbye")
	oldest := strings.Index(stdout, "hello world")
	require.True(t, newest >= 0 && middle >= 0 && oldest >= 0, stdout)
	assert.Less(t, newest, middle)
	assert.Less(t, middle, oldest)
	assert.Contains(t, stdout, "note1")
	assert.True(t, strings.HasSuffix(stdout, "3 posts\n"), stdout)
}

func TestFetchQueryHighlightsMatches(t *testing.T) {
	npub, err := nip19.EncodePublicKey(alice.PubKey)
	require.NoError(t, err)

	stdout, _, err := execute(t, aliceRelays(), "fetch", "-q", "hello ", npub)
	require.NoError(t, err)

	assert.Contains(t, stdout, "[HELLO ]again")
	assert.Contains(t, stdout, "[hello ]world")
	assert.NotContains(t, stdout, "goodbye")
	assert.Contains(t, stdout, `2 of 3 posts match "hello "`)
}

func TestFetchLimit(t *testing.T) {
	stdout, _, err := execute(t, aliceRelays(), "fetch", "-n", "1", alice.PubKey)
	require.NoError(t, err)

	assert.Contains(t, stdout, "HELLO again")
	assert.NotContains(t, stdout, "goodbye")
	assert.Contains(t, stdout, "3 posts")
}

func TestFetchJSON(t *testing.T) {
	stdout, _, err := execute(t, aliceRelays(), "fetch", "--json", "-q", "hello", alice.PubKey)
	require.NoError(t, err)

	var posts []postJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &posts))
	require.Len(t, posts, 2)
	assert.Equal(t, "HELLO again", posts[0].Content)
	assert.Equal(t, int64(300), posts[0].CreatedAt)
	assert.Equal(t, []search.Span{{Start: 0, End: 5}}, posts[0].Spans)
	assert.True(t, strings.HasPrefix(posts[0].Note, "note1"))
}

func TestFetchInvalidIdentity(t *testing.T) {
	src := aliceRelays()
	_, _, err := execute(t, src, "fetch", "npub1notvalid")

	assert.True(t, errors.Is(err, identity.ErrInvalidIdentity), "got %v", err)
	assert.Empty(t, src.Opens(), "no relay may be contacted")
}

func TestFetchAllRelaysFail(t *testing.T) {
	src := relaytest.New(
		relaytest.Fail(indexer, errors.New("connection refused")),
		relaytest.Fail("wss://default.example", errors.New("connection refused")),
	)
	stdout, _, err := execute(t, src, "fetch", alice.PubKey)

	var sourceErr *feed.EventSourceError
	require.True(t, errors.As(err, &sourceErr), "got %v", err)
	assert.Contains(t, stdout, "0 posts")

	opens := src.Opens()
	require.Len(t, opens, 2)
	assert.Equal(t, []string{"wss://default.example"}, opens[1].Relays)
}

func TestResolve(t *testing.T) {
	stdout, _, err := execute(t, aliceRelays(), "resolve", alice.PubKey)
	require.NoError(t, err)

	assert.Contains(t, stdout, alice.PubKey)
	assert.Contains(t, stdout, "alice")
	assert.Contains(t, stdout, "writes things")
	assert.Contains(t, stdout, "content   "+home+"\n")
	assert.NotContains(t, stdout, "(defaults)")
}

func TestHighlight(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		spans []search.Span
		want  string
	}{
		{"no spans", "hello", nil, "hello"},
		{"whole text", "hello", []search.Span{{Start: 0, End: 5}}, "[hello]"},
		{"adjacent", "catcat", []search.Span{{Start: 0, End: 3}, {Start: 3, End: 6}}, "[cat][cat]"},
		{"multibyte", "grüße gruß", []search.Span{{Start: 11, End: 13}}, "grüße gru[ß]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, highlight(tt.text, tt.spans, markOpen, markClose))
		})
	}
}
