package hub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	gorilla "github.com/gorilla/websocket"

	"notifier/internal/auth"
	"notifier/internal/config"
	"notifier/internal/logging"
	"notifier/internal/ratelimit"
	"notifier/internal/websocket"
	"notifier/pkg/protocol"
	"notifier/pkg/types"
)

// Invocation limit per client
const (
	InvocationLimit  = 100
	InvocationWindow = time.Minute
)

// Handler is the hub websocket endpoint
// ARCHITECTURAL DISCOVERY: Multi-stage validation (token -> upgrade -> protocol handshake ->
// registration) keeps invalid connections from consuming hub resources
type Handler struct {
	registry *Registry
	verifier *auth.Verifier
	config   config.WebSocketConfig
	limiter  *ratelimit.Limiter
	logger   *logging.Logger
	upgrader gorilla.Upgrader
}

// NewHandler creates the endpoint
func NewHandler(registry *Registry, verifier *auth.Verifier, cfg config.WebSocketConfig, logger *logging.Logger) *Handler {
	return &Handler{
		registry: registry,
		verifier: verifier,
		config:   cfg,
		limiter:  ratelimit.New(InvocationLimit, InvocationWindow),
		logger:   logging.OrNop(logger).Named("hub-handler"),
		upgrader: gorilla.Upgrader{
			// FUNCTIONAL DISCOVERY: Browser sessions connect from the school portal origin;
			// the bearer token, not the origin, is what authorizes the connection
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.BufferSize,
			WriteBufferSize:  cfg.BufferSize,
		},
	}
}

// ServeHTTP authenticates, upgrades and serves one hub connection
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get(websocket.AccessTokenParam)
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Debug("rejected hub connection", logging.Fields{"error": err, "remote": r.RemoteAddr})
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Fields{"error": err})
		return
	}

	if err := h.handshake(ws); err != nil {
		h.logger.Debug("hub handshake failed", logging.Fields{"error": err})
		_ = ws.Close()
		return
	}

	client := NewClient(websocket.NewConnection(ws, h.config.WriteTimeout), claims)
	if err := h.registry.Register(client); err != nil {
		_ = client.Close()
		return
	}
	h.logger.Info("hub client connected", logging.Fields{"client": client.ID(), "user": claims.Username})

	go h.serve(client)
}

// handshake runs on the raw socket so a rejection is written before the close
func (h *Handler) handshake(ws *gorilla.Conn) error {
	timeout := h.config.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if err := ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		return err
	}

	resp := protocol.HandshakeResponse{}
	_, handshakeErr := protocol.DecodeHandshakeRequest(data)
	if handshakeErr != nil {
		resp.Error = handshakeErr.Error()
	}
	reply, err := protocol.Encode(resp)
	if err != nil {
		return err
	}
	if err := ws.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if err := ws.WriteMessage(gorilla.TextMessage, reply); err != nil {
		return err
	}
	if handshakeErr != nil {
		return handshakeErr
	}
	return ws.SetReadDeadline(time.Time{})
}

// serve owns the client's read side until the connection ends
func (h *Handler) serve(client *Client) {
	defer func() {
		h.registry.Unregister(client)
		h.limiter.Forget(client.ID())
		_ = client.Close()
		h.logger.Info("hub client disconnected", logging.Fields{"client": client.ID()})
	}()

	go h.pingLoop(client)

	for {
		frames, err := client.conn.Read(h.config.ReadTimeout)
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseGoingAway, gorilla.CloseNormalClosure) {
				h.logger.Debug("hub read failed", logging.Fields{"client": client.ID(), "error": err})
			}
			return
		}
		for _, frame := range frames {
			msg, err := protocol.Decode(frame)
			if err != nil {
				h.logger.Warn("dropping malformed frame", logging.Fields{"client": client.ID(), "error": err})
				continue
			}
			switch msg.Type {
			case protocol.TypeInvocation:
				h.invoke(client, msg)
			case protocol.TypeClose:
				return
			}
		}
	}
}

func (h *Handler) invoke(client *Client, msg *protocol.Message) {
	err := h.dispatch(client, msg)
	if err != nil {
		h.logger.Debug("invocation failed", logging.Fields{"client": client.ID(), "method": msg.Target, "error": err})
	}
	if msg.InvocationID == "" {
		return
	}
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	if err := client.Send(protocol.NewCompletion(msg.InvocationID, errText)); err != nil {
		h.logger.Debug("completion not sent", logging.Fields{"client": client.ID(), "error": err})
	}
}

func (h *Handler) dispatch(client *Client, msg *protocol.Message) error {
	if !h.limiter.Allow(client.ID()) {
		return ErrRateLimited
	}

	switch msg.Target {
	case protocol.MethodJoinAdminGroup:
		return h.join(client, types.AdminGroupName)
	case protocol.MethodJoinStudentGroup, protocol.MethodJoinTeacherGroup:
		var id int64
		if err := decodeArg(msg.Arguments, &id); err != nil {
			return err
		}
		kind := types.GroupStudent
		if msg.Target == protocol.MethodJoinTeacherGroup {
			kind = types.GroupTeacher
		}
		group := types.EntityGroup(kind, id)
		if err := group.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
		return h.join(client, group.Name())
	case protocol.MethodJoinGroup:
		name, err := groupArg(msg.Arguments)
		if err != nil {
			return err
		}
		return h.join(client, name)
	case protocol.MethodLeaveGroup:
		name, err := groupArg(msg.Arguments)
		if err != nil {
			return err
		}
		h.registry.Leave(client, name)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMethod, msg.Target)
	}
}

func (h *Handler) join(client *Client, group string) error {
	if !client.mayJoin(group) {
		return ErrForbidden
	}
	h.registry.Join(client, group)
	h.logger.Debug("client joined group", logging.Fields{"client": client.ID(), "group": group})
	return nil
}

// pingLoop keeps idle connections alive through proxies
func (h *Handler) pingLoop(client *Client) {
	if h.config.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := client.Send(protocol.NewPing()); err != nil {
				return
			}
		case <-client.conn.Done():
			return
		}
	}
}

func decodeArg(args []json.RawMessage, v interface{}) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected 1 argument, got %d", ErrInvalidArguments, len(args))
	}
	if err := json.Unmarshal(args[0], v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func groupArg(args []json.RawMessage) (string, error) {
	var name string
	if err := decodeArg(args, &name); err != nil {
		return "", err
	}
	if !types.IsValidGroupName(name) {
		return "", fmt.Errorf("%w: %v", ErrInvalidArguments, types.ErrInvalidGroupName)
	}
	return name, nil
}
