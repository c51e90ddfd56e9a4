package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable errors.Is checks across packages
var (
	ErrInvalidGroupKind = errors.New("group kind must be admin, student or teacher")
	ErrInvalidEntityID  = errors.New("entity id must be a positive integer")
	ErrInvalidGroupName = errors.New("group name must be 1-64 characters, alphanumeric + underscore/colon/hyphen only")
	ErrInvalidChannel   = errors.New("invalid notification channel")
	ErrPayloadTooLarge  = errors.New("notification payload exceeds 64KB limit")
	ErrInvalidPayload   = errors.New("invalid JSON payload")
)
