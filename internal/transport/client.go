// Package transport is the single-connection WebSocket client shared by the
// agent desk and the widget.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chat-app-client/internal/events"
	"chat-app-client/internal/logging"
	"chat-app-client/internal/model"
	"chat-app-client/internal/reconnect"
)

const (
	defaultSendBuffer   = 64
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	closeWait           = 2 * time.Second
	readLimit           = 512 * 1024
)

// Options configure a Client.
type Options struct {
	// URL is the ws(s) endpoint without query parameters.
	URL string
	// ClientType is sent as client_type (agent or customer).
	ClientType model.SenderRole
	// ConversationUUID binds the socket to a business conversation (widget only).
	ConversationUUID string
	Policy           reconnect.Policy
	Dialer           *websocket.Dialer
	Header           http.Header
	SendBuffer       int
	PingInterval     time.Duration
	Logger           *zap.Logger
}

// conn is one physical connection. done is closed once both pumps have exited.
type conn struct {
	ws        *websocket.Conn
	sessionID string
	send      chan []byte
	quit      chan struct{}
	done      chan struct{}
	quitOnce  sync.Once
}

func (cn *conn) stop() {
	cn.quitOnce.Do(func() { close(cn.quit) })
}

// Client owns at most one live socket at a time.
type Client struct {
	opts Options
	log  *zap.Logger

	openBus    *events.Bus[OpenEvent]
	messageBus *events.Bus[MessageEvent]
	closeBus   *events.Bus[CloseEvent]
	errorBus   *events.Bus[ErrorEvent]

	mu              sync.Mutex
	state           State
	token           string
	conn            *conn
	intentional     bool
	cancelReconnect context.CancelFunc
}

func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("transport: url is required")
	}
	if _, err := url.Parse(opts.URL); err != nil {
		return nil, fmt.Errorf("transport: parse url: %w", err)
	}
	if !opts.ClientType.Valid() {
		return nil, fmt.Errorf("transport: invalid client type %q", opts.ClientType)
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		}
	}

	log := logging.OrComponent(opts.Logger, "transport").With(zap.String("client_type", string(opts.ClientType)))
	return &Client{
		opts:       opts,
		log:        log,
		openBus:    events.NewBus[OpenEvent]("open", log),
		messageBus: events.NewBus[MessageEvent]("message", log),
		closeBus:   events.NewBus[CloseEvent]("close", log),
		errorBus:   events.NewBus[ErrorEvent]("error", log),
	}, nil
}

// OnOpen registers an open listener and returns its unsubscribe function.
func (c *Client) OnOpen(h events.Handler[OpenEvent]) func() { return c.openBus.Subscribe(h) }

// OnMessage registers a text-frame listener.
func (c *Client) OnMessage(h events.Handler[MessageEvent]) func() { return c.messageBus.Subscribe(h) }

// OnClose registers a close listener.
func (c *Client) OnClose(h events.Handler[CloseEvent]) func() { return c.closeBus.Subscribe(h) }

// OnError registers an error listener.
func (c *Client) OnError(h events.Handler[ErrorEvent]) func() { return c.errorBus.Subscribe(h) }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the id of the live connection, or "".
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.sessionID
}

// Connect opens the socket. It is a no-op while a connection is pending or
// open. A socket still closing is waited out before dialing, so two physical
// connections never coexist.
//
// When the dial fails and the reconnect policy is enabled, the policy keeps
// dialing in the background and Connect returns an error wrapping both
// ErrReconnectPending and the dial error. The eventual open is published with
// Reconnect set.
func (c *Client) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return c.connect(ctx, token, false)
}

func (c *Client) connect(ctx context.Context, token string, isReconnect bool) error {
	c.mu.Lock()
	for {
		if isReconnect && c.intentional {
			c.mu.Unlock()
			return ErrClosed
		}
		switch c.state {
		case StateConnecting, StateOpen:
			c.mu.Unlock()
			return nil
		case StateClosing:
			prev := c.conn
			c.mu.Unlock()
			if prev != nil {
				select {
				case <-prev.done:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			c.mu.Lock()
			continue
		}
		break
	}
	if !isReconnect {
		c.intentional = false
	}
	c.state = StateConnecting
	c.mu.Unlock()

	cn, err := c.dial(ctx, token)

	c.mu.Lock()
	if err != nil {
		c.state = StateClosed
		retry := !isReconnect && !c.intentional && c.opts.Policy.Enabled && ctx.Err() == nil
		c.mu.Unlock()
		c.log.Warn("websocket dial failed", zap.Error(err), zap.Bool("retrying", retry))
		c.errorBus.Publish(ErrorEvent{Err: err})
		if retry {
			c.scheduleReconnect(token)
			return fmt.Errorf("%w: %w", ErrReconnectPending, err)
		}
		return err
	}
	if c.intentional {
		c.state = StateClosed
		c.mu.Unlock()
		_ = cn.ws.Close()
		return ErrClosed
	}
	c.conn = cn
	c.state = StateOpen
	c.mu.Unlock()

	wsConnections.Inc()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump(cn)
	}()
	go func() {
		defer wg.Done()
		c.readPump(cn)
	}()
	go func() {
		wg.Wait()
		close(cn.done)
	}()

	c.log.Info("websocket connected", zap.String("session_id", cn.sessionID), zap.Bool("reconnect", isReconnect))
	c.openBus.Publish(OpenEvent{SessionID: cn.sessionID, Reconnect: isReconnect})
	return nil
}

func (c *Client) dial(ctx context.Context, token string) (*conn, error) {
	sessionID := uuid.NewString()

	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse url: %w", err)
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	q.Set("client_type", string(c.opts.ClientType))
	if token != "" {
		q.Set("token", token)
	}
	if c.opts.ConversationUUID != "" {
		q.Set("conversation_uuid", c.opts.ConversationUUID)
	}
	u.RawQuery = q.Encode()

	ws, res, err := c.opts.Dialer.DialContext(ctx, u.String(), c.opts.Header)
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("transport: dial: %s: %w", res.Status, err)
		}
		return nil, fmt.Errorf("transport: dial: %w", err)
	}

	return &conn{
		ws:        ws,
		sessionID: sessionID,
		send:      make(chan []byte, c.opts.SendBuffer),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Send queues payload for delivery. Strings and byte slices are sent as-is,
// anything else is JSON encoded. When the socket is not open the payload is
// dropped, logged, and ErrNotOpen is returned.
func (c *Client) Send(payload any) error {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("transport: encode payload: %w", err)
		}
		data = encoded
	}

	c.mu.Lock()
	cn := c.conn
	open := c.state == StateOpen && cn != nil
	c.mu.Unlock()

	if !open {
		wsSendsDropped.Inc()
		c.log.Warn("send dropped: socket not open", zap.Stringer("state", c.State()))
		return ErrNotOpen
	}

	select {
	case <-cn.quit:
		wsSendsDropped.Inc()
		c.log.Warn("send dropped: socket closing", zap.String("session_id", cn.sessionID))
		return ErrNotOpen
	default:
	}

	select {
	case cn.send <- data:
		return nil
	default:
		wsSendsDropped.Inc()
		c.log.Warn("send dropped: buffer full", zap.String("session_id", cn.sessionID))
		return ErrSendBufferFull
	}
}

// Close tears the socket down intentionally and cancels any pending
// reconnect. It waits briefly for the teardown to finish.
func (c *Client) Close() error {
	c.mu.Lock()
	c.intentional = true
	if c.cancelReconnect != nil {
		c.cancelReconnect()
		c.cancelReconnect = nil
	}
	cn := c.conn
	if cn == nil {
		if c.state != StateConnecting {
			c.state = StateClosed
		}
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed")
	if err := cn.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.log.Debug("close frame not written", zap.Error(err))
	}

	select {
	case <-cn.done:
	case <-time.After(closeWait):
		_ = cn.ws.Close()
		<-cn.done
	}
	return nil
}

func (c *Client) writePump(cn *conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = cn.ws.Close()
	}()

	for {
		select {
		case <-cn.quit:
			return
		case msg := <-cn.send:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cn.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn("websocket write failed", zap.String("session_id", cn.sessionID), zap.Error(err))
				return
			}
			wsFramesSent.Inc()
		case <-ticker.C:
			if err := cn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Warn("websocket ping failed", zap.String("session_id", cn.sessionID), zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) readPump(cn *conn) {
	pongWait := 2 * c.opts.PingInterval
	cn.ws.SetReadLimit(readLimit)
	_ = cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	cn.ws.SetPongHandler(func(string) error {
		return cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	var readErr error
	for {
		msgType, data, err := cn.ws.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		_ = cn.ws.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != websocket.TextMessage {
			continue
		}
		wsFramesReceived.Inc()
		c.messageBus.Publish(MessageEvent{SessionID: cn.sessionID, Data: data})
	}

	cn.stop()
	c.handleDisconnect(cn, readErr)
}

func (c *Client) handleDisconnect(cn *conn, err error) {
	c.mu.Lock()
	if c.conn != cn {
		c.mu.Unlock()
		return
	}
	intentional := c.intentional
	token := c.token
	c.conn = nil
	c.state = StateClosed
	c.mu.Unlock()

	wsConnections.Dec()

	code := websocket.CloseAbnormalClosure
	reason := ""
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code = closeErr.Code
		reason = closeErr.Text
	} else if err != nil {
		reason = err.Error()
	}

	if !intentional && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.log.Warn("websocket closed unexpectedly", zap.String("session_id", cn.sessionID), zap.Error(err))
		c.errorBus.Publish(ErrorEvent{SessionID: cn.sessionID, Err: err})
	}

	c.log.Info("websocket disconnected",
		zap.String("session_id", cn.sessionID),
		zap.Int("code", code),
		zap.Bool("intentional", intentional),
	)
	c.closeBus.Publish(CloseEvent{SessionID: cn.sessionID, Code: code, Reason: reason, Intentional: intentional})

	if !intentional {
		c.scheduleReconnect(token)
	}
}

func (c *Client) scheduleReconnect(token string) {
	if !c.opts.Policy.Enabled {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		cancel()
		return
	}
	if c.cancelReconnect != nil {
		c.cancelReconnect()
	}
	c.cancelReconnect = cancel
	c.mu.Unlock()

	go func() {
		defer cancel()
		err := c.opts.Policy.Retry(ctx, func(ctx context.Context) error {
			return c.connect(ctx, token, true)
		}, func(n int, delay time.Duration) {
			wsReconnectAttempts.Inc()
			c.log.Info("reconnect scheduled", zap.Int("attempt", n), zap.Duration("delay", delay))
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrClosed) {
			c.log.Error("reconnect gave up", zap.Error(err))
			c.errorBus.Publish(ErrorEvent{Err: fmt.Errorf("transport: reconnect: %w", err)})
		}
	}()
}
