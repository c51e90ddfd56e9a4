package groups

import "errors"

var (
	// ErrInvalidState is returned when a group operation is attempted while not connected
	ErrInvalidState = errors.New("group operation invalid in current connection state")
)
