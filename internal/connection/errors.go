package connection

import "errors"

var (
	ErrNotConnected       = errors.New("hub connection is not connected")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrInvalidEndpoint    = errors.New("invalid hub endpoint")
)
