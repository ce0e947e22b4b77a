package feed

import (
	"context"
	"sync"
)

// Controller owns the cancellation token of the running fetch. Tokens are
// never reused: Abort cancels the current one and installs a fresh one.
type Controller struct {
	parent context.Context

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	active bool
}

// NewController derives every token from parent
func NewController(parent context.Context) *Controller {
	c := &Controller{parent: parent}
	c.ctx, c.cancel = context.WithCancel(parent)
	return c
}

// Begin marks a fetch as running and returns its token
func (c *Controller) Begin() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	return c.ctx
}

// End marks the fetch holding ctx as finished. A stale token is ignored.
func (c *Controller) End(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx == c.ctx {
		c.active = false
	}
}

// Abort cancels the running fetch, if any, and installs a new token
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(c.parent)
	c.active = false
}

// Active reports whether a fetch is running
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
