package types

import (
	"fmt"
	"strconv"
	"time"
)

// TimestampLayout is the ISO-8601 form stamped on every received notification:
// UTC with millisecond precision, e.g. 2024-05-01T08:30:00.000Z
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// NotificationKind is the closed taxonomy of notifications a session can receive
// ARCHITECTURAL DISCOVERY: The concrete entity (student, teacher, registration) is carried
// in the payload, never as a new kind, so routing and presentation stay table driven
type NotificationKind string

const (
	KindEntityCreated NotificationKind = "EntityCreated"
	KindEntityUpdated NotificationKind = "EntityUpdated"
	KindEntityDeleted NotificationKind = "EntityDeleted"
	KindGeneral       NotificationKind = "General"
)

// Kinds lists every NotificationKind in display order
func Kinds() []NotificationKind {
	return []NotificationKind{KindEntityCreated, KindEntityUpdated, KindEntityDeleted, KindGeneral}
}

// IsValid reports whether k belongs to the closed set
func (k NotificationKind) IsValid() bool {
	switch k {
	case KindEntityCreated, KindEntityUpdated, KindEntityDeleted, KindGeneral:
		return true
	default:
		return false
	}
}

// NotificationMessage is the canonical shape every inbound event is normalized into
// FUNCTIONAL DISCOVERY: The wire event carries no timestamp, so the receiving side stamps it
type NotificationMessage struct {
	Type      NotificationKind `json:"type"`
	Data      Payload          `json:"data,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// NewNotificationMessage builds a message stamped with t in TimestampLayout
func NewNotificationMessage(kind NotificationKind, data Payload, t time.Time) NotificationMessage {
	return NotificationMessage{
		Type:      kind,
		Data:      data,
		Timestamp: FormatTimestamp(t),
	}
}

// FormatTimestamp renders t as UTC in TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Time parses the message timestamp
func (m NotificationMessage) Time() (time.Time, error) {
	return time.Parse(TimestampLayout, m.Timestamp)
}

// Text returns the human readable body of the message, if any
func (m NotificationMessage) Text() string {
	return m.Data.Message()
}

// ConnectionState describes the lifecycle of the notification channel
// TECHNICAL DISCOVERY: Exactly one value at any instant; only the connection manager writes it
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the lowercase name of the state
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// GroupKind identifies the routing scope family a group belongs to
type GroupKind string

const (
	GroupAdmin   GroupKind = "admin"
	GroupStudent GroupKind = "student"
	GroupTeacher GroupKind = "teacher"
)

// AdminGroupName is the wire name of the singleton admin group
const AdminGroupName = "admins"

// Group is a server-side routing scope used to target broadcasts
// ARCHITECTURAL DISCOVERY: Admin is a singleton; entity groups are keyed by a numeric id
type Group struct {
	Kind GroupKind `json:"kind"`
	ID   int64     `json:"id,omitempty"`
}

// AdminGroup returns the singleton admin group
func AdminGroup() Group {
	return Group{Kind: GroupAdmin}
}

// EntityGroup returns the group scoped to a single student or teacher
func EntityGroup(kind GroupKind, id int64) Group {
	return Group{Kind: kind, ID: id}
}

// Name returns the wire name the server uses for the group
func (g Group) Name() string {
	if g.Kind == GroupAdmin {
		return AdminGroupName
	}
	return string(g.Kind) + ":" + strconv.FormatInt(g.ID, 10)
}

func (g Group) String() string {
	return g.Name()
}

// Validate checks the group is the admin group or a well-formed entity group
func (g Group) Validate() error {
	switch g.Kind {
	case GroupAdmin:
		return nil
	case GroupStudent, GroupTeacher:
		if g.ID <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidEntityID, g.ID)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidGroupKind, g.Kind)
	}
}

// Identity is what the rest of the application knows about the logged-in session
// FUNCTIONAL DISCOVERY: Group membership is derived from identity only; the core never
// fetches user records itself
type Identity struct {
	Authenticated bool     `json:"authenticated"`
	Username      string   `json:"username,omitempty"`
	IsAdmin       bool     `json:"is_admin"`
	StudentID     int64    `json:"student_id,omitempty"`
	TeacherID     int64    `json:"teacher_id,omitempty"`
	Roles         []string `json:"roles,omitempty"`
}

// HasAdminCapability reports whether the session may join the admin group
func (i Identity) HasAdminCapability() bool {
	if i.IsAdmin {
		return true
	}
	for _, role := range i.Roles {
		if role == "admin" || role == "superadmin" {
			return true
		}
	}
	return false
}

// Groups returns every group the identity is entitled to join, admin first
func (i Identity) Groups() []Group {
	if !i.Authenticated {
		return nil
	}
	var groups []Group
	if i.HasAdminCapability() {
		groups = append(groups, AdminGroup())
	}
	if i.StudentID > 0 {
		groups = append(groups, EntityGroup(GroupStudent, i.StudentID))
	}
	if i.TeacherID > 0 {
		groups = append(groups, EntityGroup(GroupTeacher, i.TeacherID))
	}
	return groups
}

// Broadcast is a server-side fan-out request addressed to one group
type Broadcast struct {
	ID        string    `json:"id" db:"id"`
	Group     string    `json:"group" db:"group_name"`
	Channel   string    `json:"channel" db:"channel"`
	Payload   Payload   `json:"payload,omitempty" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
