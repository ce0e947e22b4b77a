package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"

	"github.com/SnowCait/user-notes-search/internal/nostr"
	"github.com/SnowCait/user-notes-search/internal/types"
	"github.com/SnowCait/user-notes-search/internal/util"
)

var (
	// ErrPoolClosed is returned by Subscribe after Close
	ErrPoolClosed = errors.New("relay pool closed")
	// ErrUnsafeRelay is returned for relay URLs pointing at private networks
	ErrUnsafeRelay = errors.New("relay URL blocked: unsafe destination")
	// ErrConnectionLost closes subscriptions whose socket went away
	ErrConnectionLost = errors.New("relay connection lost")
)

// checkRelayURL validates that a relay URL is safe to connect to.
// Allows loopback for development but blocks other private IP ranges.
func checkRelayURL(relayURL string) error {
	parsed, err := url.Parse(relayURL)
	if err != nil {
		return fmt.Errorf("parse relay URL: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return ErrUnsafeRelay
	}

	host := parsed.Hostname()
	if host == "" || util.IsInternalHost(host) {
		return ErrUnsafeRelay
	}
	if util.IsLoopbackHost(host) {
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		// Unresolvable hosts fail at dial time
		return nil
	}
	for _, ip := range ips {
		if !isRelayIPSafe(ip) {
			return ErrUnsafeRelay
		}
	}
	return nil
}

// isRelayIPSafe checks if an IP is safe for relay connections
func isRelayIPSafe(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	return !(ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsMulticast())
}

// Subscription represents an active subscription on a relay connection
type Subscription struct {
	ID     string
	Events chan *types.Event
	EOSE   chan struct{}
	Done   chan struct{}

	closeOnce sync.Once
	err       error
}

// Err returns why the subscription ended; nil after a local Unsubscribe
func (s *Subscription) Err() error {
	<-s.Done
	return s.err
}

// close records err and closes Done exactly once
func (s *Subscription) close(err error) {
	s.closeOnce.Do(func() {
		s.err = err
		close(s.Done)
	})
}

// RelayConn manages a single websocket connection with multiple subscriptions
type RelayConn struct {
	conn          *websocket.Conn
	relayURL      string
	logger        *slog.Logger
	mu            sync.Mutex
	writeMu       sync.Mutex
	subscriptions map[string]*Subscription
	closed        bool
}

// PoolOptions configures dialing
type PoolOptions struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

// Pool manages connections to multiple relays, one socket per relay URL
type Pool struct {
	opts   PoolOptions
	dialer *websocket.Dialer
	logger *slog.Logger

	mu          sync.Mutex
	connections map[string]*RelayConn
	closed      bool
}

// NewPool creates an empty connection pool
func NewPool(opts PoolOptions, logger *slog.Logger) *Pool {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: opts.ConnectTimeout,
		},
		logger:      logger,
		connections: make(map[string]*RelayConn),
	}
}

// getOrCreateConn gets an existing connection or dials a new one
func (p *Pool) getOrCreateConn(ctx context.Context, relayURL string) (*RelayConn, error) {
	if err := checkRelayURL(relayURL); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if rc := p.connections[relayURL]; rc != nil && !rc.isClosed() {
		p.mu.Unlock()
		return rc, nil
	}
	p.mu.Unlock()

	// Dial outside the lock so relays connect in parallel
	p.logger.Debug("pool: connecting", "relay", relayURL)
	dialCtx, cancel := context.WithTimeout(ctx, p.opts.ConnectTimeout)
	defer cancel()
	conn, _, err := p.dialer.DialContext(dialCtx, relayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", relayURL, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		conn.Close()
		return nil, ErrPoolClosed
	}
	// Another subscriber may have connected meanwhile
	if rc := p.connections[relayURL]; rc != nil && !rc.isClosed() {
		conn.Close()
		return rc, nil
	}

	rc := &RelayConn{
		conn:          conn,
		relayURL:      relayURL,
		logger:        p.logger,
		subscriptions: make(map[string]*Subscription),
	}
	p.connections[relayURL] = rc
	go rc.readLoop()

	return rc, nil
}

// Subscribe sends a REQ for filter and returns the subscription receiving its frames
func (p *Pool) Subscribe(ctx context.Context, relayURL string, filter types.Filter) (*Subscription, error) {
	rc, err := p.getOrCreateConn(ctx, relayURL)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:     "notes-" + uuid.NewString()[:8],
		Events: make(chan *types.Event, 100),
		EOSE:   make(chan struct{}, 1),
		Done:   make(chan struct{}),
	}

	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return nil, ErrConnectionLost
	}
	rc.subscriptions[sub.ID] = sub
	rc.mu.Unlock()

	if err := rc.writeJSON([]interface{}{"REQ", sub.ID, filter.Map()}, p.opts.WriteTimeout); err != nil {
		rc.markClosed(err)
		return nil, fmt.Errorf("send REQ to %s: %w", relayURL, err)
	}
	return sub, nil
}

// Unsubscribe sends CLOSE for sub (best effort) and releases it
func (p *Pool) Unsubscribe(relayURL string, sub *Subscription) {
	if sub == nil {
		return
	}

	p.mu.Lock()
	rc := p.connections[relayURL]
	p.mu.Unlock()

	if rc != nil {
		rc.mu.Lock()
		_, exists := rc.subscriptions[sub.ID]
		shouldSendClose := !rc.closed && exists
		delete(rc.subscriptions, sub.ID)
		rc.mu.Unlock()

		if shouldSendClose {
			rc.writeJSON([]interface{}{"CLOSE", sub.ID}, p.opts.WriteTimeout)
		}
	}

	sub.close(nil)
}

// Close closes every connection. Further Subscribe calls fail with ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := p.connections
	p.connections = make(map[string]*RelayConn)
	p.mu.Unlock()

	var result error
	for _, rc := range conns {
		if err := rc.markClosed(ErrPoolClosed); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", rc.relayURL, err))
		}
	}
	return result
}

// Len returns the number of open connections
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.connections)
}

func (rc *RelayConn) writeJSON(v interface{}, timeout time.Duration) error {
	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()

	rc.conn.SetWriteDeadline(time.Now().Add(timeout))
	defer rc.conn.SetWriteDeadline(time.Time{})
	return rc.conn.WriteJSON(v)
}

func (rc *RelayConn) isClosed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.closed
}

// readLoop continuously reads from the connection and routes frames
func (rc *RelayConn) readLoop() {
	for {
		_, data, err := rc.conn.ReadMessage()
		if err != nil {
			if !rc.isClosed() {
				rc.logger.Debug("pool: read error", "relay", rc.relayURL, "error", err)
			}
			rc.markClosed(fmt.Errorf("%w: %v", ErrConnectionLost, err))
			return
		}

		frame, err := nostr.ParseFrame(data)
		if err != nil {
			rc.logger.Debug("pool: bad frame", "relay", rc.relayURL, "error", err)
			continue
		}

		switch frame.Type {
		case nostr.FrameEvent:
			sub := rc.subscription(frame.SubID)
			if sub == nil {
				continue
			}
			frame.Event.RelaysSeen = []string{rc.relayURL}
			select {
			case sub.Events <- frame.Event:
			case <-sub.Done:
			}

		case nostr.FrameEOSE:
			if sub := rc.subscription(frame.SubID); sub != nil {
				select {
				case sub.EOSE <- struct{}{}:
				default:
				}
			}

		case nostr.FrameClosed:
			rc.mu.Lock()
			sub := rc.subscriptions[frame.SubID]
			delete(rc.subscriptions, frame.SubID)
			rc.mu.Unlock()
			if sub != nil {
				sub.close(fmt.Errorf("closed by relay: %s", frame.Message))
			}

		case nostr.FrameNotice:
			rc.logger.Debug("pool: NOTICE", "relay", rc.relayURL, "notice", frame.Message)
		}
	}
}

func (rc *RelayConn) subscription(id string) *Subscription {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.subscriptions[id]
}

// markClosed closes the socket and ends every subscription with cause
func (rc *RelayConn) markClosed(cause error) error {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return nil
	}
	rc.closed = true
	subs := rc.subscriptions
	rc.subscriptions = make(map[string]*Subscription)
	rc.mu.Unlock()

	err := rc.conn.Close()
	for _, sub := range subs {
		sub.close(cause)
	}
	return err
}
