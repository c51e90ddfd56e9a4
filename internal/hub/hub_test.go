package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/internal/auth"
	"notifier/internal/config"
	"notifier/internal/websocket"
	"notifier/pkg/interfaces"
	"notifier/pkg/protocol"
	"notifier/pkg/types"
)

const testSecret = "hub-test-secret"

type testServer struct {
	hub      *Hub
	registry *Registry
	url      string
	issuer   *auth.Issuer
	recorded []*types.Broadcast
	mu       sync.Mutex
}

func (s *testServer) RecordBroadcast(ctx context.Context, b *types.Broadcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, b)
	return nil
}

func wsConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:     time.Second,
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     time.Second,
		HandshakeTimeout: 2 * time.Second,
		BufferSize:       1024,
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	verifier, err := auth.NewVerifier(testSecret)
	require.NoError(t, err)
	issuer, err := auth.NewIssuer(testSecret, "school", time.Hour)
	require.NoError(t, err)

	s := &testServer{registry: NewRegistry(), issuer: issuer}
	s.hub = NewHub(s.registry, NewLocalBackplane(), s, nil)
	require.NoError(t, s.hub.Start(context.Background()))
	t.Cleanup(func() { _ = s.hub.Stop() })

	server := httptest.NewServer(NewHandler(s.registry, verifier, wsConfig(), nil))
	t.Cleanup(server.Close)
	s.url = "ws" + strings.TrimPrefix(server.URL, "http")
	return s
}

func (s *testServer) token(t *testing.T, claims *auth.Claims) string {
	t.Helper()
	token, err := s.issuer.Issue(claims)
	require.NoError(t, err)
	return token
}

func (s *testServer) dial(t *testing.T, claims *auth.Claims) interfaces.HubConnection {
	t.Helper()
	conn, err := websocket.NewDialer(wsConfig(), nil).Dial(context.Background(), s.url, s.token(t, claims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func receive(conn interfaces.HubConnection, channel string) <-chan types.Payload {
	out := make(chan types.Payload, 10)
	conn.On(channel, func(args []json.RawMessage) {
		payload, _ := types.DecodePayload(args[0])
		out <- payload
	})
	return out
}

func TestHub_StartStop(t *testing.T) {
	h := NewHub(NewRegistry(), NewLocalBackplane(), nil, nil)

	require.NoError(t, h.Start(context.Background()))
	assert.ErrorIs(t, h.Start(context.Background()), ErrHubAlreadyRunning)
	require.NoError(t, h.Stop())
	assert.ErrorIs(t, h.Stop(), ErrHubNotRunning)

	err := h.Publish(context.Background(), testBroadcast())
	assert.ErrorIs(t, err, ErrHubNotRunning)

	require.NoError(t, h.Start(context.Background()), "hub can be restarted")
	require.NoError(t, h.Stop())
}

func TestHub_PublishValidates(t *testing.T) {
	s := newTestServer(t)

	err := s.hub.Publish(context.Background(), &types.Broadcast{Group: "bad group", Channel: types.ChannelEntityCreated})
	assert.ErrorIs(t, err, types.ErrInvalidGroupName)

	err = s.hub.Publish(context.Background(), &types.Broadcast{Group: "admins", Channel: "Shout"})
	assert.ErrorIs(t, err, types.ErrInvalidChannel)
	assert.Empty(t, s.recorded)
}

func TestHandler_RejectsMissingOrBadToken(t *testing.T) {
	s := newTestServer(t)
	dialer := websocket.NewDialer(wsConfig(), nil)

	_, err := dialer.Dial(context.Background(), s.url, "")
	assert.ErrorIs(t, err, websocket.ErrUnauthorized)

	forger, err := auth.NewIssuer("someone-else", "school", time.Hour)
	require.NoError(t, err)
	forged, err := forger.Issue(&auth.Claims{IsAdmin: true})
	require.NoError(t, err)
	_, err = dialer.Dial(context.Background(), s.url, forged)
	assert.ErrorIs(t, err, websocket.ErrUnauthorized)
}

func TestHandler_RejectsUnsupportedProtocol(t *testing.T) {
	s := newTestServer(t)
	header := http.Header{"Authorization": []string{"Bearer " + s.token(t, &auth.Claims{})}}

	ws, _, err := gorilla.DefaultDialer.Dial(s.url, header)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(gorilla.TextMessage, append([]byte(`{"protocol":"messagepack","version":1}`), protocol.RecordSeparator)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	resp, _, err := protocol.DecodeHandshakeResponse(data)
	require.NoError(t, err)
	assert.Contains(t, resp.Error, "unsupported hub protocol")
}

func TestHandler_GroupAuthorization(t *testing.T) {
	s := newTestServer(t)
	student := s.dial(t, &auth.Claims{Username: "amani", IsStudent: true, StudentID: 42})
	ctx := context.Background()

	assert.NoError(t, student.Invoke(ctx, protocol.MethodJoinStudentGroup, 42))
	assert.NoError(t, student.Invoke(ctx, protocol.MethodJoinGroup, "assembly"))

	err := student.Invoke(ctx, protocol.MethodJoinStudentGroup, 43)
	assert.ErrorIs(t, err, websocket.ErrInvocationFailed)
	assert.Contains(t, err.Error(), ErrForbidden.Error())

	err = student.Invoke(ctx, protocol.MethodJoinAdminGroup)
	assert.ErrorIs(t, err, websocket.ErrInvocationFailed)

	err = student.Invoke(ctx, protocol.MethodJoinStudentGroup, "forty-two")
	assert.Contains(t, err.Error(), ErrInvalidArguments.Error())

	err = student.Invoke(ctx, "DropTables")
	assert.Contains(t, err.Error(), ErrUnknownMethod.Error())

	require.Eventually(t, func() bool { return s.registry.Count() == 1 }, time.Second, 5*time.Millisecond)
	client := s.registry.Members("student:42")
	require.Len(t, client, 1)
	assert.Equal(t, []string{"assembly", "student:42"}, s.registry.GroupsOf(client[0]))

	require.NoError(t, student.Invoke(ctx, protocol.MethodLeaveGroup, "assembly"))
	assert.Equal(t, []string{"student:42"}, s.registry.GroupsOf(client[0]))
}

func TestHub_BroadcastReachesOnlyGroupMembers(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	admin := s.dial(t, &auth.Claims{Username: "head", IsAdmin: true})
	student := s.dial(t, &auth.Claims{Username: "amani", IsStudent: true, StudentID: 42})
	adminInbox := receive(admin, types.ChannelEntityCreated)
	studentInbox := receive(student, types.ChannelEntityCreated)

	require.NoError(t, admin.Invoke(ctx, protocol.MethodJoinAdminGroup))
	require.NoError(t, student.Invoke(ctx, protocol.MethodJoinStudentGroup, 42))

	require.NoError(t, s.hub.Publish(ctx, &types.Broadcast{
		Group:   types.AdminGroupName,
		Channel: types.ChannelEntityCreated,
		Payload: types.Payload{"name": "Amani Kabila", "message": "registered"},
	}))

	select {
	case payload := <-adminInbox:
		assert.Equal(t, "registered", payload.Message())
	case <-time.After(2 * time.Second):
		t.Fatal("admin did not receive the broadcast")
	}
	select {
	case <-studentInbox:
		t.Fatal("student received an admin broadcast")
	case <-time.After(100 * time.Millisecond):
	}

	s.mu.Lock()
	require.Len(t, s.recorded, 1)
	assert.NotEmpty(t, s.recorded[0].ID)
	assert.False(t, s.recorded[0].CreatedAt.IsZero())
	s.mu.Unlock()

	assert.Eventually(t, func() bool { return s.hub.Stats().Delivered == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_NilPayloadIsSentAsNull(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	teacher := s.dial(t, &auth.Claims{IsTeacher: true, TeacherID: 5})
	inbox := make(chan []json.RawMessage, 1)
	teacher.On(types.ChannelReceiveNotification, func(args []json.RawMessage) { inbox <- args })
	require.NoError(t, teacher.Invoke(ctx, protocol.MethodJoinTeacherGroup, 5))

	require.NoError(t, s.hub.Publish(ctx, &types.Broadcast{Group: "teacher:5", Channel: types.ChannelReceiveNotification}))

	select {
	case args := <-inbox:
		require.Len(t, args, 1)
		assert.JSONEq(t, `null`, string(args[0]))
	case <-time.After(2 * time.Second):
		t.Fatal("teacher did not receive the broadcast")
	}
}

func TestHandler_UnregistersOnDisconnect(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t, &auth.Claims{IsStudent: true, StudentID: 1})
	require.NoError(t, conn.Invoke(context.Background(), protocol.MethodJoinStudentGroup, 1))
	require.Equal(t, 1, s.registry.Count())

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return s.registry.Count() == 0 && s.registry.GroupCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

type failingRecorder struct{}

func (failingRecorder) RecordBroadcast(context.Context, *types.Broadcast) error {
	return errors.New("disk full")
}

func TestHub_PublishFailsWhenRecordingFails(t *testing.T) {
	h := NewHub(NewRegistry(), NewLocalBackplane(), failingRecorder{}, nil)
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	err := h.Publish(context.Background(), testBroadcast())
	assert.ErrorContains(t, err, "failed to persist broadcast")
}

func TestRegistry_CloseAllDropsClients(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t, &auth.Claims{IsStudent: true, StudentID: 3})
	require.Eventually(t, func() bool { return s.registry.Count() == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, s.registry.CloseAll())

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client connection was not closed")
	}
	assert.ErrorIs(t, conn.Err(), websocket.ErrServerClosed)
	assert.NotErrorIs(t, conn.Err(), protocol.ErrReconnectNotAllowed, "shutdown close allows reconnecting")
	assert.ErrorContains(t, conn.Err(), ShutdownReason)
	require.Eventually(t, func() bool { return s.registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
