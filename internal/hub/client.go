package hub

import (
	"github.com/google/uuid"

	"notifier/internal/auth"
	"notifier/internal/websocket"
	"notifier/pkg/protocol"
	"notifier/pkg/types"
)

// Client is one authenticated hub connection
type Client struct {
	id     string
	conn   *websocket.Connection
	claims *auth.Claims
}

// NewClient wraps an established connection
func NewClient(conn *websocket.Connection, claims *auth.Claims) *Client {
	return &Client{id: uuid.NewString(), conn: conn, claims: claims}
}

// ID is the server assigned connection id
func (c *Client) ID() string { return c.id }

// Identity is the identity carried by the client's token
func (c *Client) Identity() types.Identity {
	if c.claims == nil {
		return types.Identity{}
	}
	return c.claims.Identity()
}

// Send queues a hub message for the client
func (c *Client) Send(msg *protocol.Message) error {
	return c.conn.Send(msg)
}

// Close closes the client's connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Shutdown tells the client why the connection ends, then closes it
func (c *Client) Shutdown(reason string, allowReconnect bool) error {
	return c.conn.CloseWith(protocol.NewClose(reason, allowReconnect))
}

// mayJoin reports whether the client may join group
// FUNCTIONAL DISCOVERY: Admins may join any group; entity groups are otherwise limited to
// the id carried in the token; free-form groups are open to every authenticated client
func (c *Client) mayJoin(name string) bool {
	identity := c.Identity()
	if identity.HasAdminCapability() {
		return true
	}
	if name == types.AdminGroupName {
		return false
	}
	group, ok := types.ParseGroupName(name)
	if !ok {
		return true
	}
	switch group.Kind {
	case types.GroupStudent:
		return identity.StudentID == group.ID
	case types.GroupTeacher:
		return identity.TeacherID == group.ID
	default:
		return false
	}
}
