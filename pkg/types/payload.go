package types

import (
	"encoding/json"
	"math"
	"strconv"
)

// Payload is the untyped structural body of a notification
// ARCHITECTURAL DISCOVERY: map[string]interface{} keeps arbitrary producer fields intact
// while staying JSON compatible for the websocket transport; a nil Payload means "absent"
type Payload map[string]interface{}

// Well-known optional payload keys
const (
	FieldID      = "id"
	FieldMessage = "message"
	FieldName    = "name"
	FieldEntity  = "entity"
	FieldGrade   = "grade"
	FieldSection = "section"
	FieldValue   = "value"
)

// Message returns the human readable message field, or "" when absent or not a string
func (p Payload) Message() string {
	return p.String(FieldMessage)
}

// String returns key as a string, or "" when absent or of another type
func (p Payload) String(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// Int64 returns key as an int64 when it holds an integral JSON number
func (p Payload) Int64(key string) (int64, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p[key].(type) {
	case float64:
		// 2^63 is exact in float64; MaxInt64 is not
		if v != math.Trunc(v) || v < math.MinInt64 || v >= 1<<63 {
			return 0, false
		}
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Clone returns a shallow copy of the payload
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// EntityFields is the explicit optional-field schema shared by the entity kinds
// FUNCTIONAL DISCOVERY: Producers send ad hoc fields; only these are interpreted, every
// other key stays in the Payload untouched
type EntityFields struct {
	ID      *int64
	Entity  string
	Name    string
	Message string
	Grade   string
	Section string
}

// ParseEntityFields extracts the known optional fields from a payload
func ParseEntityFields(p Payload) EntityFields {
	fields := EntityFields{
		Entity:  p.String(FieldEntity),
		Name:    p.String(FieldName),
		Message: p.String(FieldMessage),
		Grade:   p.String(FieldGrade),
		Section: p.String(FieldSection),
	}
	if id, ok := p.Int64(FieldID); ok {
		fields.ID = &id
	}
	return fields
}

// Label renders the grouped context of an entity, e.g. "Amani Kabila (Grade 5 - B)"
func (f EntityFields) Label() string {
	label := f.Name
	context := f.Grade
	if f.Section != "" {
		if context != "" {
			context += " - "
		}
		context += f.Section
	}
	if context == "" {
		return label
	}
	if label == "" {
		return context
	}
	return label + " (Grade " + context + ")"
}

// DecodePayload turns the first argument of a wire event into a Payload
// TECHNICAL DISCOVERY: null or absent becomes nil, a bare string becomes {"message": s},
// any other non-object value is kept under "value"
func DecodePayload(raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, ErrInvalidPayload
	}
	switch v := value.(type) {
	case map[string]interface{}:
		return Payload(v), nil
	case string:
		return Payload{FieldMessage: v}, nil
	case nil:
		return nil, nil
	default:
		return Payload{FieldValue: v}, nil
	}
}
