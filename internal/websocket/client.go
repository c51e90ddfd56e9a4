package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"notifier/internal/config"
	"notifier/internal/logging"
	"notifier/pkg/interfaces"
	"notifier/pkg/protocol"
)

// AccessTokenParam carries the credential in the query string for transports that
// cannot set headers
const AccessTokenParam = "access_token"

// Dialer opens client connections to the notification hub
type Dialer struct {
	config config.WebSocketConfig
	logger *logging.Logger
	ws     *websocket.Dialer
}

// NewDialer creates a hub dialer
func NewDialer(cfg config.WebSocketConfig, logger *logging.Logger) *Dialer {
	return &Dialer{
		config: cfg,
		logger: logging.OrNop(logger).Named("hub-client"),
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.BufferSize,
			WriteBufferSize:  cfg.BufferSize,
		},
	}
}

// Dial connects to endpoint, presents token and completes the hub handshake
// FUNCTIONAL DISCOVERY: The token travels both as a bearer header and as a query
// parameter; browsers and some proxies strip one or the other
func (d *Dialer) Dial(ctx context.Context, endpoint, token string) (interfaces.HubConnection, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	header := http.Header{}
	if token != "" {
		q := u.Query()
		q.Set(AccessTokenParam, token)
		u.RawQuery = q.Encode()
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := d.ws.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial hub: %w", err)
	}

	rest, err := d.handshake(ctx, ws)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}

	conn := newHubConn(NewConnection(ws, d.config.WriteTimeout), d.config, d.logger)
	go conn.run(rest)
	return conn, nil
}

// handshake sends the protocol request and waits for the reply
func (d *Dialer) handshake(ctx context.Context, ws *websocket.Conn) ([][]byte, error) {
	timeout := d.config.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	req, err := protocol.Encode(protocol.HandshakeRequest{Protocol: protocol.Name, Version: protocol.Version})
	if err != nil {
		return nil, err
	}
	if err := ws.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := ws.WriteMessage(websocket.TextMessage, req); err != nil {
		return nil, fmt.Errorf("failed to send handshake: %w", err)
	}

	if err := ws.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read handshake: %w", err)
	}
	resp, rest, err := protocol.DecodeHandshakeResponse(data)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrHandshakeRejected, resp.Error)
	}
	return rest, ws.SetReadDeadline(time.Time{})
}

// HubConn is an established client connection to the hub
type HubConn struct {
	conn   *Connection
	config config.WebSocketConfig
	logger *logging.Logger

	mu       sync.Mutex
	handlers map[string][]interfaces.Handler
	pending  map[string]chan *protocol.Message

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func newHubConn(conn *Connection, cfg config.WebSocketConfig, logger *logging.Logger) *HubConn {
	return &HubConn{
		conn:     conn,
		config:   cfg,
		logger:   logger,
		handlers: make(map[string][]interfaces.Handler),
		pending:  make(map[string]chan *protocol.Message),
		done:     make(chan struct{}),
	}
}

// On registers handler for target
func (h *HubConn) On(target string, handler interfaces.Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[target] = append(h.handlers[target], handler)
}

// Off removes every handler for target
func (h *HubConn) Off(target string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, target)
}

// Invoke calls method on the hub and waits for its completion
func (h *HubConn) Invoke(ctx context.Context, method string, args ...interface{}) error {
	id := uuid.NewString()
	msg, err := protocol.NewInvocation(id, method, args...)
	if err != nil {
		return err
	}

	reply := make(chan *protocol.Message, 1)
	h.mu.Lock()
	h.pending[id] = reply
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	}()

	if err := h.conn.Send(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case completion := <-reply:
		if completion.Error != "" {
			return fmt.Errorf("%w: %s: %s", ErrInvocationFailed, method, completion.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		if err := h.Err(); err != nil {
			return err
		}
		return ErrConnectionClosed
	}
}

// Done is closed once the connection has terminated
func (h *HubConn) Done() <-chan struct{} {
	return h.done
}

// Err reports why the connection terminated; nil while open or after Close
func (h *HubConn) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Close terminates the connection locally
func (h *HubConn) Close() error {
	h.terminate(nil)
	return nil
}

func (h *HubConn) terminate(err error) {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		_ = h.conn.Close()
		close(h.done)
	})
}

// run owns the read side; handlers execute here so one target sees frames in send order
func (h *HubConn) run(buffered [][]byte) {
	go h.pingLoop()

	for _, frame := range buffered {
		if err := h.handleFrame(frame); err != nil {
			h.terminate(err)
			return
		}
	}

	for {
		frames, err := h.conn.Read(h.config.ReadTimeout)
		if err != nil {
			select {
			case <-h.done:
			default:
				h.logger.Debug("hub read failed", logging.Fields{"error": err})
			}
			h.terminate(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			return
		}
		for _, frame := range frames {
			if err := h.handleFrame(frame); err != nil {
				h.terminate(err)
				return
			}
		}
	}
}

func (h *HubConn) handleFrame(frame []byte) error {
	msg, err := protocol.Decode(frame)
	if err != nil {
		h.logger.Warn("dropping malformed hub frame", logging.Fields{"error": err})
		return nil
	}

	switch msg.Type {
	case protocol.TypeInvocation:
		h.dispatch(msg)
	case protocol.TypeCompletion:
		h.mu.Lock()
		reply, ok := h.pending[msg.InvocationID]
		h.mu.Unlock()
		if ok {
			reply <- msg
		}
	case protocol.TypePing:
	case protocol.TypeClose:
		err := ErrServerClosed
		if !msg.AllowReconnect {
			err = fmt.Errorf("%w: %w", ErrServerClosed, protocol.ErrReconnectNotAllowed)
		}
		if msg.Error != "" {
			return fmt.Errorf("%w: %s", err, msg.Error)
		}
		return err
	default:
		h.logger.Debug("ignoring hub message", logging.Fields{"type": int(msg.Type)})
	}
	return nil
}

func (h *HubConn) dispatch(msg *protocol.Message) {
	h.mu.Lock()
	handlers := append([]interfaces.Handler(nil), h.handlers[msg.Target]...)
	h.mu.Unlock()

	for _, handler := range handlers {
		h.invokeHandler(msg.Target, handler, msg)
	}
}

func (h *HubConn) invokeHandler(target string, handler interfaces.Handler, msg *protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("hub handler panicked", logging.Fields{"target": target, "panic": fmt.Sprint(r)})
		}
	}()
	handler(msg.Arguments)
}

// pingLoop keeps intermediaries from idling the socket out
func (h *HubConn) pingLoop() {
	if h.config.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := h.conn.Send(protocol.NewPing()); err != nil && !errors.Is(err, ErrConnectionClosed) {
				h.logger.Debug("hub ping failed", logging.Fields{"error": err})
			}
		case <-h.done:
			return
		}
	}
}
