// Package websocket carries hub protocol frames over gorilla websocket connections.
//
// Connection is the frame level wrapper shared by the hub server and the client;
// HubConn and Dialer build the client side on top of it.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"notifier/pkg/protocol"
)

// writeBuffer bounds frames queued ahead of the writer goroutine
const writeBuffer = 100

// Connection serializes writes to a websocket
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions;
// one writer goroutine owns the socket for writing, readers run on the caller's goroutine
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	writeMu      sync.Mutex
}

// NewConnection wraps conn and starts its writer goroutine
func NewConnection(conn *websocket.Conn, writeTimeout time.Duration) *Connection {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, writeBuffer),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop never closes writeCh; senders observe ctx instead
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.write(data); err != nil {
				_ = c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Send encodes msg as one hub frame and queues it for the writer
func (c *Connection) Send(msg interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return ErrInvalidJSON
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Read blocks for the next websocket payload and splits it into frames
// A zero timeout disables the read deadline
func (c *Connection) Read(timeout time.Duration) ([][]byte, error) {
	if timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.Split(data), nil
}

// Done is closed once the connection is closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// CloseWith writes msg as the final frame, bypassing the queue, then closes
func (c *Connection) CloseWith(msg interface{}) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return ErrInvalidJSON
	}
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}
	if c.conn != nil {
		_ = c.write(data)
	}
	return c.Close()
}

// Close stops the writer and closes the socket; safe to call more than once
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			err = c.conn.Close()
		}
	})
	return err
}
