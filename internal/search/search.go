// Package search filters a feed by a case-insensitive query and reports
// where the query occurs in each matching post.
package search

import (
	"context"
	"regexp"
	"strings"

	"github.com/SnowCait/user-notes-search/internal/types"
)

// Span is a half-open byte range [Start, End) of a post's content
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Result is a filtered view of a feed. Spans holds, per event id, every
// occurrence of the query; an event is in Filtered iff it has spans.
type Result struct {
	Query    string            `json:"query"`
	Filtered []types.Event     `json:"filtered"`
	Spans    map[string][]Span `json:"spans"`
}

// Matcher finds a query in text. A nil Matcher matches everything and
// reports no spans.
type Matcher struct {
	query string
	re    *regexp.Regexp
}

// Compile builds the Matcher for query as typed, spaces included. A blank
// query yields nil.
func Compile(query string) *Matcher {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	return &Matcher{
		query: query,
		re:    regexp.MustCompile("(?i)" + regexp.QuoteMeta(query)),
	}
}

// Query returns the query, or "" for a nil Matcher
func (m *Matcher) Query() string {
	if m == nil {
		return ""
	}
	return m.query
}

// Find returns the non-overlapping occurrences in text, left to right.
// Letters compare under Unicode simple case folding.
func (m *Matcher) Find(text string) []Span {
	if m == nil {
		return nil
	}
	locs := m.re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	spans := make([]Span, len(locs))
	for i, loc := range locs {
		spans[i] = Span{Start: loc[0], End: loc[1]}
	}
	return spans
}

// Search filters feed by query. It is pure: the same input always gives
// the same Result.
func Search(feed []types.Event, query string) Result {
	res, _ := SearchContext(context.Background(), feed, query)
	return res
}

// SearchContext is Search that stops between posts once ctx is done
func SearchContext(ctx context.Context, feed []types.Event, query string) (Result, error) {
	res, _, err := run(ctx, feed, Compile(query), nil)
	return res, err
}

// run scans feed with m, reusing the spans in prev. It also returns the
// spans of every post it got through, even when ctx stopped it early.
// prev is never modified.
func run(ctx context.Context, feed []types.Event, m *Matcher, prev map[string][]Span) (Result, map[string][]Span, error) {
	res := Result{Query: m.Query(), Spans: make(map[string][]Span)}
	if m == nil {
		res.Filtered = feed
		return res, nil, nil
	}

	scanned := make(map[string][]Span, len(feed))
	res.Filtered = make([]types.Event, 0, len(feed))
	for _, evt := range feed {
		if err := ctx.Err(); err != nil {
			return Result{}, scanned, err
		}

		spans, ok := prev[evt.ID]
		if !ok {
			spans = m.Find(evt.Content)
		}
		scanned[evt.ID] = spans
		if len(spans) == 0 {
			continue
		}
		res.Filtered = append(res.Filtered, evt)
		res.Spans[evt.ID] = spans
	}
	return res, scanned, nil
}
