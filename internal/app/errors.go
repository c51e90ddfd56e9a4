package app

import "errors"

var (
	ErrMissingSecret  = errors.New("auth.jwt_secret is required to serve")
	ErrAlreadyStarted = errors.New("application already started")
)
