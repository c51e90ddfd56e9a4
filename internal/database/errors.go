package database

import "errors"

var (
	ErrClosed       = errors.New("database manager is closed")
	ErrWriteTimeout = errors.New("database write timed out")
)
