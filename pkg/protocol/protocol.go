// Package protocol implements the JSON hub protocol spoken over the notification websocket.
//
// Every frame is a JSON document terminated by the ASCII record separator (0x1e). A
// connection starts with a handshake request from the client, answered by an empty
// object (or one carrying "error"). After that both sides exchange typed messages:
// invocations, completions, pings and a final close.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RecordSeparator terminates every frame on the wire
const RecordSeparator byte = 0x1e

// Name and Version are sent in the client handshake
const (
	Name    = "json"
	Version = 1
)

// MessageType discriminates hub messages
type MessageType int

const (
	TypeInvocation MessageType = 1
	TypeCompletion MessageType = 3
	TypePing       MessageType = 6
	TypeClose      MessageType = 7
)

// Client to server hub methods
const (
	MethodJoinGroup        = "JoinGroup"
	MethodLeaveGroup       = "LeaveGroup"
	MethodJoinStudentGroup = "JoinStudentGroup"
	MethodJoinTeacherGroup = "JoinTeacherGroup"
	MethodJoinAdminGroup   = "JoinAdminGroup"
)

// HandshakeRequest is the first frame a client sends
type HandshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

// HandshakeResponse answers the handshake; a non-empty Error rejects the connection
type HandshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// Message is the envelope for every post-handshake frame
// ARCHITECTURAL DISCOVERY: One flat struct for all message types keeps decoding to a
// single json.Unmarshal; unused fields are omitted on the wire
type Message struct {
	Type           MessageType       `json:"type"`
	InvocationID   string            `json:"invocationId,omitempty"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Result         json.RawMessage   `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

// NewInvocation builds an invocation of target with JSON encoded args
// An empty invocationID makes it a fire-and-forget (non-blocking) invocation
func NewInvocation(invocationID, target string, args ...interface{}) (*Message, error) {
	encoded := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to encode argument %d of %s: %w", i, target, err)
		}
		encoded = append(encoded, data)
	}
	return &Message{
		Type:         TypeInvocation,
		InvocationID: invocationID,
		Target:       target,
		Arguments:    encoded,
	}, nil
}

// NewCompletion builds the reply to an invocation; a non-empty errText marks failure
func NewCompletion(invocationID string, errText string) *Message {
	return &Message{
		Type:         TypeCompletion,
		InvocationID: invocationID,
		Error:        errText,
	}
}

// NewPing builds a keep-alive message
func NewPing() *Message {
	return &Message{Type: TypePing}
}

// NewClose builds the final message of a connection
func NewClose(errText string, allowReconnect bool) *Message {
	return &Message{Type: TypeClose, Error: errText, AllowReconnect: allowReconnect}
}

// Encode marshals v and appends the record separator
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, RecordSeparator), nil
}

// Split returns the frames contained in a websocket payload
// TECHNICAL DISCOVERY: One websocket message may carry several frames; empty
// segments (including the trailing one) are dropped
func Split(data []byte) [][]byte {
	parts := bytes.Split(data, []byte{RecordSeparator})
	frames := make([][]byte, 0, len(parts))
	for _, part := range parts {
		if len(bytes.TrimSpace(part)) == 0 {
			continue
		}
		frames = append(frames, part)
	}
	return frames
}

// Decode parses one frame into a Message
func Decode(frame []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if msg.Type == 0 {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return &msg, nil
}

// DecodeHandshakeRequest parses the client handshake frame
func DecodeHandshakeRequest(data []byte) (*HandshakeRequest, error) {
	frames := Split(data)
	if len(frames) == 0 {
		return nil, ErrMalformedHandshake
	}
	var req HandshakeRequest
	if err := json.Unmarshal(frames[0], &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHandshake, err)
	}
	if req.Protocol != Name {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, req.Protocol)
	}
	if req.Version != Version {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedProtocol, req.Version)
	}
	return &req, nil
}

// DecodeHandshakeResponse parses the server handshake reply
// Any frames following the response in the same payload are returned as rest
func DecodeHandshakeResponse(data []byte) (*HandshakeResponse, [][]byte, error) {
	frames := Split(data)
	if len(frames) == 0 {
		return nil, nil, ErrMalformedHandshake
	}
	var resp HandshakeResponse
	if err := json.Unmarshal(frames[0], &resp); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedHandshake, err)
	}
	return &resp, frames[1:], nil
}
