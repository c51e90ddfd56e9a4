package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"

	"notifier/pkg/types"
)

// Actions carried by domain events
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
	ActionNotice  = "notice"
)

// Event is a domain event published by the rest of the school backend,
// e.g. {"type":"student.registered","action":"created","entity":"student","entity_id":42}
type Event struct {
	Type     string        `json:"type"`
	Action   string        `json:"action"`
	Entity   string        `json:"entity,omitempty"`
	EntityID int64         `json:"entity_id,omitempty"`
	Groups   []string      `json:"groups,omitempty"`
	Payload  types.Payload `json:"payload,omitempty"`
}

// DecodeEvent parses a Kafka message value
func DecodeEvent(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if _, err := channelFor(evt.Action); err != nil {
		return Event{}, err
	}
	return evt, nil
}

// Key partitions events of one entity together
func (e Event) Key() string {
	if e.Entity == "" {
		return e.Type
	}
	return e.Entity + ":" + strconv.FormatInt(e.EntityID, 10)
}

// Broadcasts expands the event into one broadcast per target group
// FUNCTIONAL DISCOVERY: Without explicit groups an event reaches the administrators and,
// for students and teachers, the entity's own group
func (e Event) Broadcasts() ([]*types.Broadcast, error) {
	channel, err := channelFor(e.Action)
	if err != nil {
		return nil, err
	}

	groups := e.Groups
	if len(groups) == 0 {
		groups = []string{types.AdminGroupName}
		kind := types.GroupKind(e.Entity)
		if (kind == types.GroupStudent || kind == types.GroupTeacher) && e.EntityID > 0 {
			groups = append(groups, types.EntityGroup(kind, e.EntityID).Name())
		}
	}

	out := make([]*types.Broadcast, 0, len(groups))
	for _, group := range groups {
		payload := e.Payload.Clone()
		if e.EntityID > 0 {
			if payload == nil {
				payload = types.Payload{}
			}
			if _, ok := payload["id"]; !ok {
				payload["id"] = e.EntityID
			}
		}
		out = append(out, &types.Broadcast{Group: group, Channel: channel, Payload: payload})
	}
	return out, nil
}

func channelFor(action string) (string, error) {
	switch action {
	case ActionCreated:
		return types.ChannelEntityCreated, nil
	case ActionUpdated:
		return types.ChannelEntityUpdated, nil
	case ActionDeleted:
		return types.ChannelEntityDeleted, nil
	case ActionNotice, "":
		return types.ChannelReceiveNotification, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrMalformedEvent, action)
	}
}
