// Package api serves the REST endpoints and mounts the hub websocket endpoint.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"notifier/internal/auth"
	"notifier/internal/hub"
	"notifier/internal/logging"
	"notifier/pkg/types"
)

const claimsKey = "claims"

// Publisher is the hub as seen by the API
type Publisher interface {
	Publish(ctx context.Context, b *types.Broadcast) error
	Stats() hub.Stats
}

// History is the broadcast audit log; it may be absent
type History interface {
	RecentBroadcasts(ctx context.Context, group string, limit int) ([]*types.Broadcast, error)
	HealthCheck(ctx context.Context) error
}

// Options wires the server's collaborators
type Options struct {
	Publisher  Publisher
	History    History
	Verifier   *auth.Verifier
	HubPath    string
	HubHandler http.Handler
	Logger     *logging.Logger
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients
// and internal components; no business logic beyond validation
type Server struct {
	echo      *echo.Echo
	publisher Publisher
	history   History
	verifier  *auth.Verifier
	logger    *logging.Logger
}

// PublishRequest is the body of POST /api/notifications
type PublishRequest struct {
	Group   string        `json:"group" validate:"required,max=64"`
	Channel string        `json:"channel" validate:"required,oneof=EntityCreated EntityUpdated EntityDeleted ReceiveNotification"`
	Payload types.Payload `json:"payload"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Hub       hub.Stats `json:"hub"`
}

// ListResponse is the body of GET /api/notifications
type ListResponse struct {
	Broadcasts []*types.Broadcast `json:"broadcasts"`
}

type requestValidator struct {
	validate *validator.Validate
}

func (v requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// NewServer builds the echo instance and its routes
func NewServer(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		publisher: opts.Publisher,
		history:   opts.History,
		verifier:  opts.Verifier,
		logger:    logging.OrNop(opts.Logger).Named("api"),
	}

	e.Validator = requestValidator{validate: validator.New()}
	e.HTTPErrorHandler = s.errorHandler
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(s.requestLogger())
	// ARCHITECTURAL DISCOVERY: CORS enables the school portal to call the API from the browser
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		MaxAge:       86400,
	}))

	e.GET("/health", s.healthCheck)
	if opts.HubHandler != nil && opts.HubPath != "" {
		e.GET(opts.HubPath, echo.WrapHandler(opts.HubHandler))
	}

	notifications := e.Group("/api/notifications", s.authenticate, adminOnly)
	notifications.GET("", s.listNotifications)
	notifications.POST("", s.publishNotification)

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// FUNCTIONAL DISCOVERY: GET /api/notifications - newest broadcasts first, optionally per group
func (s *Server) listNotifications(c echo.Context) error {
	if s.history == nil {
		return errHistoryUnavailable
	}

	group := c.QueryParam("group")
	if group != "" && !types.IsValidGroupName(group) {
		return newBadRequestError(types.ErrInvalidGroupName)
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}

	broadcasts, err := s.history.RecentBroadcasts(c.Request().Context(), group, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ListResponse{Broadcasts: broadcasts})
}

// FUNCTIONAL DISCOVERY: POST /api/notifications - validate, then hand to the hub
func (s *Server) publishNotification(c echo.Context) error {
	req := new(PublishRequest)
	if err := c.Bind(req); err != nil {
		return err
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	b := &types.Broadcast{Group: req.Group, Channel: req.Channel, Payload: req.Payload}
	if err := s.publisher.Publish(c.Request().Context(), b); err != nil {
		return publishError(err)
	}

	claims, _ := c.Get(claimsKey).(*auth.Claims)
	s.logger.Info("broadcast published", logging.Fields{"id": b.ID, "group": b.Group, "channel": b.Channel, "by": claims.Username})
	return c.JSON(http.StatusAccepted, b)
}

// FUNCTIONAL DISCOVERY: GET /health - 503 when any component is unhealthy
func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Database:  "disabled",
		Hub:       s.publisher.Stats(),
	}
	if s.history != nil {
		resp.Database = "healthy"
		if err := s.history.HealthCheck(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Database = "error: " + err.Error()
		}
	}
	if !resp.Hub.Running {
		resp.Status = "unhealthy"
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}
