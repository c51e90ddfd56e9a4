package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Client hub errors
var (
	ErrInvalidEndpoint   = errors.New("invalid hub endpoint")
	ErrUnauthorized      = errors.New("hub rejected credentials")
	ErrHandshakeRejected = errors.New("hub handshake rejected")
	ErrInvocationFailed  = errors.New("hub invocation failed")
	ErrServerClosed      = errors.New("hub closed the connection")
)
