// Package client maintains the persistent WebSocket connection of one
// reporter to the live-reporting gateway. It owns reconnection and the
// read/write pumps; room semantics live in the session package.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pitchside/livematch/internal/live/protocol"
)

// Config holds connection settings for a live-reporting client.
type Config struct {
	// URL is the gateway WebSocket endpoint, e.g. ws://host:8080/ws/live.
	URL      string
	UserID   string
	Username string

	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
	SendBuffer       int

	// Reconnect backoff. The client retries forever until Close or
	// context cancellation; backoff restarts from InitialBackoff after
	// every successful connection.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns connection tuning matching the gateway defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   64 * 1024,
		SendBuffer:       256,
		InitialBackoff:   time.Second,
		MaxBackoff:       30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = def.SendBuffer
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	return c
}

// Client is one reporter's connection to the gateway. Inbound envelopes
// are dispatched to registered handlers sequentially in arrival order on
// a single goroutine; transport drops trigger automatic reconnects and
// are surfaced through the OnDisconnect/OnConnect hooks, never as fatal
// errors.
type Client struct {
	config Config
	log    zerolog.Logger

	mu        sync.Mutex
	ep        *epoch
	handlers  map[protocol.MessageType][]protocol.Handler
	onConnect []func()
	onDrop    []func(error)
	started   bool
	closed    bool

	done chan struct{}
}

// epoch is the state of one connection attempt. A new epoch replaces the
// old one on every reconnect so stale pumps can never touch a live conn.
type epoch struct {
	conn   *websocket.Conn
	sendCh chan []byte
	stop   chan struct{}
	dead   chan error
	once   sync.Once
}

func (e *epoch) fail(err error) {
	e.once.Do(func() {
		e.conn.Close()
		close(e.stop)
		e.dead <- err
	})
}

// New returns an unconnected client for cfg.
func New(cfg Config) *Client {
	return &Client{
		config:   cfg.withDefaults(),
		log:      log.With().Str("component", "live_client").Str("user_id", cfg.UserID).Logger(),
		handlers: make(map[protocol.MessageType][]protocol.Handler),
		done:     make(chan struct{}),
	}
}

// Handle registers fn for inbound messages of type t. Registration is
// allowed at any time; handlers for one type run in registration order.
func (c *Client) Handle(t protocol.MessageType, fn protocol.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[t] = append(c.handlers[t], fn)
}

// OnConnect registers a hook fired after every successful connection,
// including reconnects. Sessions use it to re-issue their room join so a
// reconnect is always a full resync.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// OnDisconnect registers a hook fired when the transport drops, before
// the reconnect loop starts.
func (c *Client) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDrop = append(c.onDrop, fn)
}

// Connect dials the gateway, retrying with backoff until the first
// connection succeeds or ctx is cancelled. Once it returns nil the
// client keeps itself connected in the background until Close.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("client already connected")
	}
	c.started = true
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return err
	}

	ep := c.startEpoch(conn)
	c.fireConnect()
	go c.supervise(ctx, ep)
	return nil
}

// Send marshals env and queues it on the current connection. It fails
// fast while disconnected: the protocol is fire-and-forget and commands
// are never replayed after a resync.
func (c *Client) Send(env protocol.Envelope) error {
	c.mu.Lock()
	ep := c.ep
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if ep == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}

	select {
	case ep.sendCh <- data:
		return nil
	case <-ep.stop:
		return ErrNotConnected
	default:
		return ErrSendBufferFull
	}
}

// Connected reports whether a connection is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ep != nil
}

// Close tears the connection down and stops all reconnect attempts.
// It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ep := c.ep
	c.ep = nil
	close(c.done)
	c.mu.Unlock()

	if ep != nil {
		ep.fail(ErrClosed)
	}
	c.log.Info().Msg("client closed")
	return nil
}

// supervise waits for the current epoch to die, then reconnects with
// backoff. It exits only on Close or context cancellation.
func (c *Client) supervise(ctx context.Context, ep *epoch) {
	for {
		select {
		case <-ctx.Done():
			ep.fail(ctx.Err())
			return
		case <-c.done:
			return
		case err := <-ep.dead:
			c.mu.Lock()
			c.ep = nil
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}

			c.log.Warn().Err(err).Msg("connection lost, reconnecting")
			c.fireDisconnect(err)

			conn, derr := c.dial(ctx)
			if derr != nil {
				return
			}
			ep = c.startEpoch(conn)
			c.fireConnect()
		}
	}
}

// dial attempts the WebSocket handshake with exponential backoff and
// jitter until it succeeds, ctx is cancelled, or the client is closed.
// It never busy-loops and never gives up on its own.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialBackoff
	bo.MaxInterval = c.config.MaxBackoff
	bo.MaxElapsedTime = 0 // retry until cancelled

	for {
		conn, _, derr := dialer.DialContext(ctx, endpoint, nil)
		if derr == nil {
			c.log.Info().Str("url", c.config.URL).Msg("connected to gateway")
			return conn, nil
		}

		wait := bo.NextBackOff()
		c.log.Warn().Err(derr).Dur("retry_in", wait).Msg("dial failed")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrClosed
		case <-time.After(wait):
		}
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", c.config.UserID)
	q.Set("username", c.config.Username)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// startEpoch installs conn as the live connection and starts its pumps.
func (c *Client) startEpoch(conn *websocket.Conn) *epoch {
	ep := &epoch{
		conn:   conn,
		sendCh: make(chan []byte, c.config.SendBuffer),
		stop:   make(chan struct{}),
		dead:   make(chan error, 1),
	}

	c.mu.Lock()
	c.ep = ep
	c.mu.Unlock()

	go c.writePump(ep)
	go c.readPump(ep)
	return ep
}

// writePump drains the send buffer onto the connection and keeps the
// ping ticker going. Only the write pump touches the conn for writes.
func (c *Client) writePump(ep *epoch) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ep.stop:
			return
		case message := <-ep.sendCh:
			ep.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := ep.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				ep.fail(err)
				return
			}
		case <-ticker.C:
			ep.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := ep.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				ep.fail(err)
				return
			}
		}
	}
}

// readPump reads inbound envelopes and dispatches them to handlers. A
// payload that fails to decode is logged and dropped; the connection
// stays up.
func (c *Client) readPump(ep *epoch) {
	defer ep.fail(fmt.Errorf("read pump stopped"))

	ep.conn.SetReadLimit(c.config.MaxMessageSize)
	ep.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	ep.conn.SetPongHandler(func(string) error {
		ep.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := ep.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("unexpected websocket close")
			}
			ep.fail(err)
			return
		}
		ep.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		c.dispatch(message)
	}
}

// dispatch decodes one raw inbound frame and runs its handlers in
// sequence. Malformed frames fail soft.
func (c *Client) dispatch(message []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.log.Warn().Err(err).Msg("dropping malformed inbound message")
		return
	}
	if err := env.Validate(); err != nil {
		c.log.Warn().Err(err).Msg("dropping invalid inbound envelope")
		return
	}

	c.mu.Lock()
	handlers := make([]protocol.Handler, len(c.handlers[env.Type]))
	copy(handlers, c.handlers[env.Type])
	c.mu.Unlock()

	if len(handlers) == 0 {
		c.log.Debug().Str("type", string(env.Type)).Msg("no handler for inbound message")
		return
	}
	for _, fn := range handlers {
		fn(env)
	}
}

func (c *Client) fireConnect() {
	c.mu.Lock()
	hooks := make([]func(), len(c.onConnect))
	copy(hooks, c.onConnect)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (c *Client) fireDisconnect(err error) {
	c.mu.Lock()
	hooks := make([]func(error), len(c.onDrop))
	copy(hooks, c.onDrop)
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	for _, fn := range hooks {
		fn(err)
	}
}
