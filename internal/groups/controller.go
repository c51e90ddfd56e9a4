// Package groups issues the hub calls that place a session into broadcast groups.
package groups

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"notifier/internal/logging"
	"notifier/pkg/protocol"
	"notifier/pkg/types"
)

// Invoker is the slice of the connection manager the controller needs
type Invoker interface {
	State() types.ConnectionState
	Invoke(ctx context.Context, method string, args ...interface{}) error
}

// Controller joins and leaves groups on the live connection
// TECHNICAL DISCOVERY: Calling while not connected is a caller bug and fails with
// ErrInvalidState before anything reaches the wire
type Controller struct {
	invoker Invoker
	logger  *logging.Logger

	mu     sync.Mutex
	joined map[string]struct{}
}

// NewController creates a controller bound to invoker
func NewController(invoker Invoker, logger *logging.Logger) *Controller {
	return &Controller{
		invoker: invoker,
		logger:  logging.OrNop(logger).Named("groups"),
		joined:  make(map[string]struct{}),
	}
}

// JoinAdminGroup joins the singleton admin group
func (c *Controller) JoinAdminGroup(ctx context.Context) error {
	if err := c.call(ctx, protocol.MethodJoinAdminGroup); err != nil {
		return err
	}
	c.remember(types.AdminGroupName)
	return nil
}

// JoinGroup joins the group of one student or teacher
func (c *Controller) JoinGroup(ctx context.Context, kind types.GroupKind, id int64) error {
	group := types.EntityGroup(kind, id)
	if err := group.Validate(); err != nil {
		return err
	}

	var method string
	switch kind {
	case types.GroupAdmin:
		return c.JoinAdminGroup(ctx)
	case types.GroupStudent:
		method = protocol.MethodJoinStudentGroup
	case types.GroupTeacher:
		method = protocol.MethodJoinTeacherGroup
	}
	if err := c.call(ctx, method, id); err != nil {
		return err
	}
	c.remember(group.Name())
	return nil
}

// JoinNamedGroup joins a group by its wire name
func (c *Controller) JoinNamedGroup(ctx context.Context, name string) error {
	if !types.IsValidGroupName(name) {
		return fmt.Errorf("%w: %q", types.ErrInvalidGroupName, name)
	}
	if err := c.call(ctx, protocol.MethodJoinGroup, name); err != nil {
		return err
	}
	c.remember(name)
	return nil
}

// LeaveGroup removes the session from group
func (c *Controller) LeaveGroup(ctx context.Context, group types.Group) error {
	if err := group.Validate(); err != nil {
		return err
	}
	if err := c.call(ctx, protocol.MethodLeaveGroup, group.Name()); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.joined, group.Name())
	c.mu.Unlock()
	return nil
}

// LeaveNamedGroup removes the session from a group given by wire name
func (c *Controller) LeaveNamedGroup(ctx context.Context, name string) error {
	if !types.IsValidGroupName(name) {
		return fmt.Errorf("%w: %q", types.ErrInvalidGroupName, name)
	}
	if err := c.call(ctx, protocol.MethodLeaveGroup, name); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.joined, name)
	c.mu.Unlock()
	return nil
}

// JoinForIdentity joins every group the identity is entitled to
// FUNCTIONAL DISCOVERY: Joins are independent; one refused join does not prevent the
// others, and all failures are reported together
func (c *Controller) JoinForIdentity(ctx context.Context, identity types.Identity) error {
	var errs error
	for _, group := range identity.Groups() {
		var err error
		if group.Kind == types.GroupAdmin {
			err = c.JoinAdminGroup(ctx)
		} else {
			err = c.JoinGroup(ctx, group.Kind, group.ID)
		}
		if err != nil {
			c.logger.Warn("group join failed", logging.Fields{"group": group.Name(), "error": err})
			errs = multierr.Append(errs, fmt.Errorf("join %s: %w", group.Name(), err))
			continue
		}
		c.logger.Debug("joined group", logging.Fields{"group": group.Name()})
	}
	return errs
}

// Joined lists the wire names of groups joined on the current connection, sorted
func (c *Controller) Joined() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.joined))
	for name := range c.joined {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset forgets joined groups; server side membership ends with the connection
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = make(map[string]struct{})
}

func (c *Controller) call(ctx context.Context, method string, args ...interface{}) error {
	if state := c.invoker.State(); state != types.StateConnected {
		return fmt.Errorf("%w: %s while %s", ErrInvalidState, method, state)
	}
	if err := c.invoker.Invoke(ctx, method, args...); err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	return nil
}

// remember records a join only while the connection it was made on is still up; a
// Reset racing the call must not be undone
func (c *Controller) remember(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state := c.invoker.State(); state != types.StateConnected {
		c.logger.Debug("connection ended during join, not recording", logging.Fields{"group": name, "state": state.String()})
		return
	}
	c.joined[name] = struct{}{}
}
