package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"notifier/internal/app"
	"notifier/internal/auth"
	"notifier/internal/config"
	"notifier/internal/connection"
	"notifier/internal/groups"
	"notifier/internal/presentation"
	"notifier/internal/router"
	"notifier/internal/store"
	"notifier/internal/websocket"
	"notifier/pkg/interfaces"
)

const testSecret = "integration-secret"

type server struct {
	app    *app.Application
	cfg    *config.Config
	issuer *auth.Issuer
}

// startServer runs the full server on a free port with an audit log in a temp dir
func startServer(t *testing.T) *server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Database.Path = filepath.Join(t.TempDir(), "notifier.db")
	cfg.Auth.JWTSecret = testSecret
	cfg.WebSocket.PingInterval = 200 * time.Millisecond
	cfg.WebSocket.ReadTimeout = 2 * time.Second

	application, err := app.NewApplication(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	t.Cleanup(func() { _ = application.Stop(context.Background()) })

	issuer, err := auth.NewIssuer(testSecret, cfg.Auth.Issuer, time.Hour)
	require.NoError(t, err)
	return &server{app: application, cfg: cfg, issuer: issuer}
}

func (s *server) token(t *testing.T, claims *auth.Claims) string {
	t.Helper()
	token, err := s.issuer.Issue(claims)
	require.NoError(t, err)
	return token
}

func (s *server) baseURL() string {
	return "http://" + s.app.Addr()
}

// publish posts a broadcast through the REST API as an administrator
func (s *server) publish(t *testing.T, group, channel string, payload map[string]interface{}) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"group": group, "channel": channel, "payload": payload})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, s.baseURL()+"/api/notifications", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token(t, &auth.Claims{Username: "head", IsAdmin: true}))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

type client struct {
	manager *connection.Manager
	groups  *groups.Controller
	store   *store.Store
	adapter *presentation.Adapter
}

// newClient assembles the client core exactly as the listen command does
func newClient(t *testing.T, s *server, credentials interfaces.CredentialSource, delays ...time.Duration) *client {
	t.Helper()
	if len(delays) == 0 {
		delays = []time.Duration{0, 20 * time.Millisecond, 20 * time.Millisecond}
	}
	clientCfg := *s.cfg.Client
	clientCfg.BaseURL = s.baseURL()

	manager := connection.NewManager(connection.Options{
		Dialer:      websocket.NewDialer(*s.cfg.WebSocket, nil),
		Credentials: credentials,
		Endpoint:    connection.NewResolver(clientCfg).Resolve,
		Retry:       connection.RetryPolicy{Delays: delays},
	})
	c := &client{
		manager: manager,
		groups:  groups.NewController(manager, nil),
		store:   store.New(store.DefaultCapacity),
	}
	c.adapter = presentation.NewAdapter(presentation.Options{
		Manager:       manager,
		Groups:        c.groups,
		Router:        router.New(manager, router.Options{}),
		Store:         c.store,
		Identity:      auth.NewTokenIdentity(credentials),
		Renderer:      presentation.NopRenderer{},
		PollInterval:  10 * time.Millisecond,
		ToastDuration: time.Second,
		InvokeTimeout: 2 * time.Second,
	})
	t.Cleanup(func() {
		c.adapter.Disconnect()
		c.adapter.Close()
	})
	return c
}
