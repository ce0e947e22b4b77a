package discovery

import (
	"context"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/SnowCait/user-notes-search/internal/cache"
	"github.com/SnowCait/user-notes-search/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Cache keeps the discovery documents of authors between resolves. Authors
// without a relay list are kept for missTTL only.
type Cache struct {
	backend cache.Backend
	ttl     time.Duration
	missTTL time.Duration
}

// cachedDocs is what Cache stores per author
type cachedDocs struct {
	Profile   *types.Event `json:"profile,omitempty"`
	RelayList *types.Event `json:"relayList,omitempty"`
}

// NewCache creates a Cache on backend
func NewCache(backend cache.Backend, ttl, missTTL time.Duration) *Cache {
	return &Cache{backend: backend, ttl: ttl, missTTL: missTTL}
}

func cacheKey(author string) string {
	return "discovery:" + author
}

func (c *Cache) get(ctx context.Context, author string, logger *slog.Logger) (*cachedDocs, bool) {
	if c == nil {
		return nil, false
	}
	data, found, err := c.backend.Get(ctx, cacheKey(author))
	if err != nil {
		logger.Warn("discovery cache: get failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var docs cachedDocs
	if err := json.Unmarshal(data, &docs); err != nil {
		logger.Warn("discovery cache: corrupt entry", "error", err)
		return nil, false
	}
	return &docs, true
}

func (c *Cache) put(ctx context.Context, author string, result *Result, logger *slog.Logger) {
	if c == nil {
		return
	}
	docs := cachedDocs{RelayList: result.RelayList}
	if snap := result.Profile(author); snap != nil {
		docs.Profile = snap.Event
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return
	}
	ttl := c.ttl
	if docs.RelayList == nil {
		ttl = c.missTTL
	}
	if err := c.backend.Set(ctx, cacheKey(author), data, ttl); err != nil {
		logger.Warn("discovery cache: set failed", "error", err)
	}
}
