package interfaces

import (
	"context"
	"encoding/json"
)

// Handler receives the raw arguments of a server invocation
type Handler func(args []json.RawMessage)

// HubConnection represents one established channel to the notification hub
// ARCHITECTURAL DISCOVERY: Pure abstraction without transport details so the connection
// manager can be driven by websocket connections in production and fakes in tests
type HubConnection interface {
	// On registers handler for invocations of target; handlers for one target run
	// in server send order
	On(target string, handler Handler)

	// Off removes every handler registered for target
	Off(target string)

	// Invoke calls a hub method and waits for its completion
	Invoke(ctx context.Context, method string, args ...interface{}) error

	// Done is closed once the connection has terminated for any reason
	Done() <-chan struct{}

	// Err reports why the connection terminated; nil after a local Close
	Err() error

	// Close tears the connection down; safe to call more than once
	Close() error
}

// Dialer opens hub connections
// FUNCTIONAL DISCOVERY: The credential is passed per dial so every (re)connect attempt
// presents the currently stored token instead of a captured copy
type Dialer interface {
	Dial(ctx context.Context, endpoint string, token string) (HubConnection, error)
}
