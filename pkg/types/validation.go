package types

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
var groupNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_:-]+$`)

// maxPayloadBytes bounds a single broadcast payload
const maxPayloadBytes = 65536

// IsValidGroupName checks if a free-form group name meets format requirements
func IsValidGroupName(name string) bool {
	if len(name) < 1 || len(name) > 64 {
		return false
	}
	return groupNameRegex.MatchString(name)
}

// IsValidChannel checks if channel is one of the named server channels
func IsValidChannel(channel string) bool {
	_, ok := KindForChannel(channel)
	return ok
}

// ParseGroupName converts a wire group name back into a Group
// Names outside the admin/student/teacher families return ok=false
func ParseGroupName(name string) (Group, bool) {
	if name == AdminGroupName {
		return AdminGroup(), true
	}
	kind, rawID, found := strings.Cut(name, ":")
	if !found {
		return Group{}, false
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return Group{}, false
	}
	group := Group{Kind: GroupKind(kind), ID: id}
	if group.Kind == GroupAdmin || group.Validate() != nil {
		return Group{}, false
	}
	return group, true
}

// Validate ensures the broadcast can be fanned out
// ARCHITECTURAL DISCOVERY: Validation at type level keeps the API, the Kafka ingest and
// the hub agreeing on the same rules
func (b *Broadcast) Validate() error {
	if !IsValidGroupName(b.Group) {
		return ErrInvalidGroupName
	}
	if !IsValidChannel(b.Channel) {
		return ErrInvalidChannel
	}
	// TECHNICAL DISCOVERY: Size check requires marshaling to get an accurate byte count
	data, err := json.Marshal(b.Payload)
	if err != nil {
		return ErrInvalidPayload
	}
	if len(data) > maxPayloadBytes {
		return ErrPayloadTooLarge
	}
	return nil
}
