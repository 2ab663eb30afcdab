package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClientClosed is returned for operations on a closed client.
var ErrClientClosed = errors.New("client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription id.
	SubscribeTimeout time.Duration
	// BufferSize is the per-subscription log buffer.
	BufferSize int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		BufferSize:        256,
	}
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   *zap.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64
	subKey    atomic.Uint64

	// subs maps server subscription id to subscription
	subs   map[string]*LogSubscription
	subsMu sync.RWMutex

	// pending maps request id to channel waiting for the response
	pending   map[uint64]chan wsResponse
	pendingMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig, logger *zap.Logger) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &WSClientImpl{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger.Named("ws"),
		subs:     make(map[string]*LogSubscription),
		pending:  make(map[uint64]chan wsResponse),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	// Start ping goroutine
	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return &TransportError{Err: fmt.Errorf("websocket dial: %w", err)}
	}

	// Pongs prove the link is alive on a quiet subscription.
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	c.conn = conn
	return nil
}

// SubscribeLogs subscribes to logs matching the filter.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogFilter) (*LogSubscription, error) {
	subID, err := c.subscribeLogsInternal(ctx, filter)
	if err != nil {
		return nil, err
	}

	sub := &LogSubscription{
		key:    c.subKey.Add(1),
		filter: filter,
		ch:     make(chan Log, c.config.BufferSize),
		done:   make(chan struct{}),
		client: c,

		resubscribed: make(chan struct{}, 1),
	}

	c.subsMu.Lock()
	c.subs[subID] = sub
	c.subsMu.Unlock()

	return sub, nil
}

// unsubscribe removes the subscription locally and tells the node.
func (c *WSClientImpl) unsubscribe(ctx context.Context, sub *LogSubscription) error {
	var serverID string
	c.subsMu.Lock()
	for id, s := range c.subs {
		if s == sub {
			serverID = id
			delete(c.subs, id)
			break
		}
	}
	c.subsMu.Unlock()

	if serverID == "" {
		return nil // Already removed
	}
	close(sub.done)

	if c.closed.Load() {
		return nil
	}

	var ok bool
	if err := c.request(ctx, "eth_unsubscribe", []interface{}{serverID}, &ok); err != nil {
		return fmt.Errorf("eth_unsubscribe: %w", err)
	}
	return nil
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	// Readers are gone; channels can be closed safely
	c.subsMu.Lock()
	for id, sub := range c.subs {
		close(sub.done)
		close(sub.ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	return nil
}

// subscribeLogsInternal sends eth_subscribe and returns the server id.
func (c *WSClientImpl) subscribeLogsInternal(ctx context.Context, filter LogFilter) (string, error) {
	var subID string
	if err := c.request(ctx, "eth_subscribe", []interface{}{"logs", filter.toArg(false)}, &subID); err != nil {
		return "", err
	}
	if subID == "" {
		return "", fmt.Errorf("empty subscription id")
	}
	return subID, nil
}

// request writes a JSON-RPC request and waits for its response.
func (c *WSClientImpl) request(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	respCh := make(chan wsResponse, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respCh
	c.pendingMu.Unlock()

	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		forget()
		return &TransportError{Err: fmt.Errorf("not connected")}
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		forget()
		return &TransportError{Err: fmt.Errorf("write %s: %w", method, err)}
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok {
			return ErrClientClosed
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	case <-timer.C:
		forget()
		return fmt.Errorf("%s timeout after %v", method, c.config.SubscribeTimeout)
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		forget()
		return ctx.Err()
	}
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			// A failed reconnect leaves no connection; try again.
			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
				reconnectDelay = c.nextDelay(reconnectDelay)
			}
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !c.reconnecting.Swap(true) {
				c.logger.Warn("connection lost, reconnecting",
					zap.Duration("delay", reconnectDelay),
					zap.Error(err))
				go c.reconnect(reconnectDelay)
				reconnectDelay = c.nextDelay(reconnectDelay)
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

func (c *WSClientImpl) nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > c.config.MaxReconnectDelay {
		d = c.config.MaxReconnectDelay
	}
	return d
}

// reconnect attempts to reconnect and resubscribe.
func (c *WSClientImpl) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// readLoop retries while the connection is nil
		c.logger.Warn("reconnect failed", zap.Error(err))
		return
	}
	c.logger.Info("reconnected")

	// Resubscribe in the background: responses arrive through readLoop
	go c.resubscribeAll()
}

// resubscribeAll resubscribes all active subscriptions after reconnect.
func (c *WSClientImpl) resubscribeAll() {
	c.subsMu.RLock()
	subs := make(map[string]*LogSubscription, len(c.subs))
	for id, s := range c.subs {
		subs[id] = s
	}
	c.subsMu.RUnlock()

	for oldID, sub := range subs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newID, err := c.subscribeLogsInternal(ctx, sub.filter)
		cancel()

		if err != nil {
			// Drop the connection so readLoop reconnects and retries.
			c.logger.Warn("resubscribe failed", zap.String("subscription", oldID), zap.Error(err))
			c.dropConn()
			return
		}

		c.subsMu.Lock()
		current := c.subs[oldID] == sub
		if current {
			delete(c.subs, oldID)
			c.subs[newID] = sub
		}
		c.subsMu.Unlock()

		if current {
			select {
			case sub.resubscribed <- struct{}{}:
			default:
			}
		}
	}
}

// dropConn closes the current connection; the next read fails and reconnects.
func (c *WSClientImpl) dropConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Debug("discarding malformed message", zap.Error(err))
		return
	}

	if msg.Method == "eth_subscription" {
		c.handleNotification(msg.Params)
		return
	}

	if msg.ID == nil {
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[*msg.ID]
	if ok {
		delete(c.pending, *msg.ID)
	}
	c.pendingMu.Unlock()

	if !ok {
		if msg.Error != nil {
			c.logger.Warn("error response", zap.Int("code", msg.Error.Code), zap.String("message", msg.Error.Message))
		}
		return
	}

	select {
	case ch <- wsResponse{Result: msg.Result, Error: msg.Error}:
	default:
	}
}

// handleNotification dispatches a log notification to its subscriber.
func (c *WSClientImpl) handleNotification(params *wsNotificationParams) {
	if params == nil {
		return
	}

	var raw rawLog
	if err := json.Unmarshal(params.Result, &raw); err != nil {
		c.logger.Debug("discarding malformed log", zap.Error(err))
		return
	}

	c.subsMu.RLock()
	sub, ok := c.subs[params.Subscription]
	c.subsMu.RUnlock()

	if !ok {
		return
	}

	// Block until the subscriber reads - never drop events
	select {
	case sub.ch <- raw.toLog():
	case <-sub.done:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// Connection might be dead, reader will handle reconnect
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type wsResponse struct {
	Result json.RawMessage
	Error  *RPCError
}

type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      *uint64               `json:"id,omitempty"`
	Method  string                `json:"method,omitempty"`
	Result  json.RawMessage       `json:"result,omitempty"`
	Error   *RPCError             `json:"error,omitempty"`
	Params  *wsNotificationParams `json:"params,omitempty"`
}

type wsNotificationParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}
