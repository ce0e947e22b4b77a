package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/SnowCait/user-notes-search/internal/discovery"
	"github.com/SnowCait/user-notes-search/internal/feed"
	"github.com/SnowCait/user-notes-search/internal/identity"
	"github.com/SnowCait/user-notes-search/internal/relay"
	"github.com/SnowCait/user-notes-search/internal/search"
	"github.com/SnowCait/user-notes-search/internal/session"
	"github.com/SnowCait/user-notes-search/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Match markers
const (
	markOpen       = "["
	markClose      = "]"
	colorMarkOpen  = "\x1b[1;33m"
	colorMarkClose = "\x1b[0m"
)

type fetchFlags struct {
	query string
	limit int
	json  bool
	color bool
}

func newFetchCmd(opts *options, factory relay.Factory) *cobra.Command {
	flags := &fetchFlags{}
	c := &cobra.Command{
		Use:   "fetch <npub|nprofile|hex>",
		Short: "Fetch the posts of a user",
		Long: `Fetch the posts of a user from the relays they write to, newest first.

Interrupting while posts arrive stops the fetch and prints what was
merged so far.

Examples:
  notes fetch npub1...                  # all posts
  notes fetch -q "hello" npub1...       # posts containing hello, any case
  notes fetch --json -n 10 nprofile1... # ten newest posts as JSON`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts, factory, flags, args[0])
		},
	}
	c.Flags().StringVarP(&flags.query, "query", "q", "", "only show posts containing this text")
	c.Flags().IntVarP(&flags.limit, "limit", "n", 0, "show at most this many posts, 0 for all")
	c.Flags().BoolVar(&flags.json, "json", false, "output posts as JSON")
	c.Flags().BoolVar(&flags.color, "color", false, "highlight matches with terminal colors")
	return c
}

func runFetch(cmd *cobra.Command, opts *options, factory relay.Factory, flags *fetchFlags, input string) error {
	e, err := opts.setup(cmd, factory)
	if err != nil {
		return err
	}
	ctx, cancel := opts.context(cmd)
	defer cancel()

	sess := e.newSession(ctx)
	progress := cmd.ErrOrStderr()
	hooks := session.Hooks{
		Resolved: func(id identity.Identity, res *discovery.Result) {
			fmt.Fprintf(progress, "fetching posts of %s from %d relays\n", displayName(id, res), len(res.ContentRelays))
		},
	}

	interrupt, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var out *session.Outcome
	loaded := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		defer close(loaded)
		var err error
		out, err = sess.Load(ctx, input, hooks)
		return err
	})
	g.Go(func() error {
		select {
		case <-loaded:
		case <-interrupt.Done():
			// Posts so far are kept; before that there is nothing to keep
			if sess.Loading() {
				e.logger.Info("interrupted, stopping fetch")
				sess.Abort()
			} else {
				cancel()
			}
		}
		return nil
	})
	err = g.Wait()
	if out == nil || out.Discovery == nil || errors.Is(err, feed.ErrNoUsableRelays) {
		return err
	}

	res := sess.Search(flags.query)
	w := cmd.OutOrStdout()
	if flags.json {
		if werr := writePostsJSON(w, res, flags.limit); werr != nil {
			return werr
		}
		return err
	}

	openMark, closeMark := markOpen, markClose
	if flags.color {
		openMark, closeMark = colorMarkOpen, colorMarkClose
	}
	printPosts(w, res, flags.limit, openMark, closeMark, time.Now())
	printSummary(w, res, len(out.Feed), out.Canceled)
	return err
}

func displayName(id identity.Identity, res *discovery.Result) string {
	if snap := res.Profile(id.Hex()); snap != nil {
		if name := snap.Profile.BestName(); name != "" {
			return name
		}
	}
	return id.Npub()
}

func limited(posts []types.Event, limit int) []types.Event {
	if limit > 0 && len(posts) > limit {
		return posts[:limit]
	}
	return posts
}

func printPosts(w io.Writer, res search.Result, limit int, openMark, closeMark string, now time.Time) {
	for _, evt := range limited(res.Filtered, limit) {
		note, err := identity.EncodeNote(evt.ID)
		if err != nil {
			note = evt.ID
		}
		fmt.Fprintf(w, "%s  %s\n", humanize.RelTime(time.Unix(evt.CreatedAt, 0), now, "ago", "from now"), note)
		text := highlight(evt.Content, res.Spans[evt.ID], openMark, closeMark)
		fmt.Fprintf(w, "  %s\n\n", strings.ReplaceAll(text, "\n", "\n  "))
	}
}

func printSummary(w io.Writer, res search.Result, total int, canceled bool) {
	var line string
	if res.Query == "" {
		line = fmt.Sprintf("%s posts", humanize.Comma(int64(total)))
	} else {
		line = fmt.Sprintf("%s of %s posts match %q",
			humanize.Comma(int64(len(res.Filtered))), humanize.Comma(int64(total)), res.Query)
	}
	if canceled {
		line += " (interrupted)"
	}
	fmt.Fprintln(w, line)
}

// highlight wraps every span of text in openMark and closeMark. Spans are
// sorted, non-overlapping byte ranges.
func highlight(text string, spans []search.Span, openMark, closeMark string) string {
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, sp := range spans {
		b.WriteString(text[last:sp.Start])
		b.WriteString(openMark)
		b.WriteString(text[sp.Start:sp.End])
		b.WriteString(closeMark)
		last = sp.End
	}
	b.WriteString(text[last:])
	return b.String()
}

type postJSON struct {
	ID        string        `json:"id"`
	Note      string        `json:"note"`
	CreatedAt int64         `json:"created_at"`
	Content   string        `json:"content"`
	Spans     []search.Span `json:"spans,omitempty"`
}

func writePostsJSON(w io.Writer, res search.Result, limit int) error {
	posts := make([]postJSON, 0, len(res.Filtered))
	for _, evt := range limited(res.Filtered, limit) {
		note, _ := identity.EncodeNote(evt.ID)
		posts = append(posts, postJSON{
			ID:        evt.ID,
			Note:      note,
			CreatedAt: evt.CreatedAt,
			Content:   evt.Content,
			Spans:     res.Spans[evt.ID],
		})
	}
	data, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode posts: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
