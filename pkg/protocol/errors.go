package protocol

import "errors"

var (
	ErrMalformedFrame      = errors.New("malformed hub frame")
	ErrMalformedHandshake  = errors.New("malformed hub handshake")
	ErrUnsupportedProtocol = errors.New("unsupported hub protocol")
	ErrReconnectNotAllowed = errors.New("hub does not allow reconnecting")
)
