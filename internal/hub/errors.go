package hub

import "errors"

// Hub lifecycle errors
var (
	ErrHubAlreadyRunning    = errors.New("hub is already running")
	ErrHubNotRunning        = errors.New("hub is not running")
	ErrBroadcastChannelFull = errors.New("broadcast channel is full")
)

// Invocation errors, reported to the caller in the completion message
var (
	ErrUnknownMethod    = errors.New("unknown hub method")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrForbidden        = errors.New("not authorized to join this group")
	ErrRateLimited      = errors.New("rate limit exceeded: 100 invocations per minute")
)

// Registry errors
var (
	ErrNilClient = errors.New("client cannot be nil")
)
