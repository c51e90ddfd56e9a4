package ingest

import "errors"

var (
	ErrNoBrokers      = errors.New("kafka brokers are not configured")
	ErrMalformedEvent = errors.New("malformed domain event")
)
