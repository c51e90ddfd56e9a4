package groups

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"notifier/pkg/protocol"
	"notifier/pkg/types"
)

type call struct {
	method string
	args   []interface{}
}

type fakeInvoker struct {
	state    types.ConnectionState
	calls    []call
	fail     map[string]error
	onInvoke func()
}

func (f *fakeInvoker) State() types.ConnectionState { return f.state }

func (f *fakeInvoker) Invoke(ctx context.Context, method string, args ...interface{}) error {
	f.calls = append(f.calls, call{method: method, args: args})
	if f.onInvoke != nil {
		f.onInvoke()
	}
	return f.fail[method]
}

func connected() *fakeInvoker {
	return &fakeInvoker{state: types.StateConnected, fail: map[string]error{}}
}

func TestJoin_RequiresConnectedState(t *testing.T) {
	for _, state := range []types.ConnectionState{
		types.StateDisconnected, types.StateConnecting, types.StateReconnecting,
	} {
		t.Run(state.String(), func(t *testing.T) {
			inv := &fakeInvoker{state: state}
			c := NewController(inv, nil)
			ctx := context.Background()

			assert.ErrorIs(t, c.JoinAdminGroup(ctx), ErrInvalidState)
			assert.ErrorIs(t, c.JoinGroup(ctx, types.GroupStudent, 4), ErrInvalidState)
			assert.ErrorIs(t, c.JoinNamedGroup(ctx, "staff"), ErrInvalidState)
			assert.ErrorIs(t, c.LeaveGroup(ctx, types.AdminGroup()), ErrInvalidState)
			assert.Empty(t, inv.calls, "nothing reaches the wire")
			assert.Empty(t, c.Joined())
		})
	}
}

func TestJoin_WhileConnected(t *testing.T) {
	inv := connected()
	c := NewController(inv, nil)
	ctx := context.Background()

	require.NoError(t, c.JoinAdminGroup(ctx))
	require.NoError(t, c.JoinGroup(ctx, types.GroupStudent, 42))
	require.NoError(t, c.JoinGroup(ctx, types.GroupTeacher, 7))
	require.NoError(t, c.JoinNamedGroup(ctx, "staff-room"))
	require.NoError(t, c.JoinAdminGroup(ctx), "joining twice is allowed")

	assert.Equal(t, []call{
		{method: protocol.MethodJoinAdminGroup},
		{method: protocol.MethodJoinStudentGroup, args: []interface{}{int64(42)}},
		{method: protocol.MethodJoinTeacherGroup, args: []interface{}{int64(7)}},
		{method: protocol.MethodJoinGroup, args: []interface{}{"staff-room"}},
		{method: protocol.MethodJoinAdminGroup},
	}, inv.calls)
	assert.Equal(t, []string{"admins", "staff-room", "student:42", "teacher:7"}, c.Joined())
}

func TestJoinGroup_RejectsInvalidGroups(t *testing.T) {
	inv := connected()
	c := NewController(inv, nil)
	ctx := context.Background()

	assert.ErrorIs(t, c.JoinGroup(ctx, types.GroupStudent, 0), types.ErrInvalidEntityID)
	assert.ErrorIs(t, c.JoinGroup(ctx, types.GroupKind("parent"), 3), types.ErrInvalidGroupKind)
	assert.ErrorIs(t, c.JoinNamedGroup(ctx, "bad name!"), types.ErrInvalidGroupName)
	assert.Empty(t, inv.calls)
}

func TestLeaveGroup(t *testing.T) {
	inv := connected()
	c := NewController(inv, nil)
	ctx := context.Background()

	require.NoError(t, c.JoinGroup(ctx, types.GroupStudent, 42))
	require.NoError(t, c.LeaveGroup(ctx, types.EntityGroup(types.GroupStudent, 42)))
	require.NoError(t, c.JoinNamedGroup(ctx, "staff"))
	require.NoError(t, c.LeaveNamedGroup(ctx, "staff"))

	assert.Equal(t, call{method: protocol.MethodLeaveGroup, args: []interface{}{"student:42"}}, inv.calls[1])
	assert.Empty(t, c.Joined())
}

func TestJoinForIdentity(t *testing.T) {
	inv := connected()
	c := NewController(inv, nil)

	err := c.JoinForIdentity(context.Background(), types.Identity{
		Authenticated: true,
		Roles:         []string{"admin"},
		TeacherID:     11,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"admins", "teacher:11"}, c.Joined())
}

func TestJoinForIdentity_CollectsFailures(t *testing.T) {
	inv := connected()
	inv.fail[protocol.MethodJoinAdminGroup] = errors.New("forbidden")
	inv.fail[protocol.MethodJoinStudentGroup] = errors.New("unknown student")
	c := NewController(inv, nil)

	err := c.JoinForIdentity(context.Background(), types.Identity{
		Authenticated: true,
		IsAdmin:       true,
		StudentID:     3,
		TeacherID:     8,
	})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, []string{"teacher:8"}, c.Joined(), "successful joins are kept")
}

func TestJoinForIdentity_Anonymous(t *testing.T) {
	inv := connected()
	c := NewController(inv, nil)

	require.NoError(t, c.JoinForIdentity(context.Background(), types.Identity{}))
	assert.Empty(t, inv.calls)
}

func TestReset(t *testing.T) {
	c := NewController(connected(), nil)
	require.NoError(t, c.JoinAdminGroup(context.Background()))
	c.Reset()
	assert.Empty(t, c.Joined())
}

func TestInvokeErrorsAreWrapped(t *testing.T) {
	inv := connected()
	boom := fmt.Errorf("hub said no")
	inv.fail[protocol.MethodJoinTeacherGroup] = boom
	c := NewController(inv, nil)

	err := c.JoinGroup(context.Background(), types.GroupTeacher, 2)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), protocol.MethodJoinTeacherGroup)
}

func TestJoin_DisconnectDuringCallIsNotRecorded(t *testing.T) {
	inv := connected()
	c := NewController(inv, nil)
	inv.onInvoke = func() {
		inv.state = types.StateDisconnected
		c.Reset()
	}
	ctx := context.Background()

	require.NoError(t, c.JoinAdminGroup(ctx))
	inv.state = types.StateConnected
	require.NoError(t, c.JoinGroup(ctx, types.GroupStudent, 5))
	inv.state = types.StateConnected
	require.NoError(t, c.JoinNamedGroup(ctx, "staff"))

	assert.Len(t, inv.calls, 3)
	assert.Empty(t, c.Joined())
}
