// Package app wires the notification server together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/multierr"

	"notifier/internal/api"
	"notifier/internal/auth"
	"notifier/internal/config"
	"notifier/internal/database"
	"notifier/internal/hub"
	"notifier/internal/ingest"
	"notifier/internal/logging"
)

// Application coordinates all server components
// ARCHITECTURAL DISCOVERY: Clean dependency injection with a strict initialization order:
// Database -> Backplane -> Registry -> Hub -> Handler -> API -> HTTP -> Ingest
type Application struct {
	config     *config.Config
	logger     *logging.Logger
	dbManager  *database.Manager
	backplane  hub.Backplane
	registry   *hub.Registry
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server
	consumer   *ingest.Consumer

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewApplication creates the application with every component initialized
func NewApplication(cfg *config.Config, logger *logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, ErrMissingSecret
	}
	logger = logging.OrNop(logger)

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, err
	}

	app := &Application{config: cfg, logger: logger.Named("app")}

	// STEP 1: Audit log (optional foundation layer)
	var (
		recorder hub.Recorder
		history  api.History
	)
	if cfg.Database.Enabled {
		app.dbManager, err = database.NewManager(*cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database manager: %w", err)
		}
		recorder, history = app.dbManager, app.dbManager
	}

	// STEP 2: Backplane; Redis when configured so several instances share broadcasts
	if cfg.Redis.Addr != "" {
		redis, err := hub.NewRedisBackplane(*cfg.Redis, logger)
		if err != nil {
			_ = app.closeStores()
			return nil, fmt.Errorf("failed to initialize redis backplane: %w", err)
		}
		app.backplane = redis
	} else {
		app.backplane = hub.NewLocalBackplane()
	}

	// STEP 3: Registry, hub and the websocket endpoint
	app.registry = hub.NewRegistry()
	app.hub = hub.NewHub(app.registry, app.backplane, recorder, logger)
	hubHandler := hub.NewHandler(app.registry, verifier, *cfg.WebSocket, logger)

	// STEP 4: REST API hosting the hub endpoint
	app.apiServer = api.NewServer(api.Options{
		Publisher:  app.hub,
		History:    history,
		Verifier:   verifier,
		HubPath:    cfg.Server.HubPath,
		HubHandler: hubHandler,
		Logger:     logger,
	})
	app.httpServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      app.apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// STEP 5: Domain-event ingest when brokers are configured
	if len(cfg.Kafka.Brokers) > 0 {
		app.consumer, err = ingest.NewConsumer(*cfg.Kafka, app.hub, logger)
		if err != nil {
			_ = app.closeStores()
			return nil, fmt.Errorf("failed to initialize kafka consumer: %w", err)
		}
	}

	return app, nil
}

// Start brings the hub up, then accepts connections, then starts ingest
func (app *Application) Start(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return ErrAlreadyStarted
	}

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	runCtx, cancel := context.WithCancel(ctx)
	app.cancel = cancel

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("http server failed", logging.Fields{"error": err})
		}
	}()

	if app.consumer != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := app.consumer.Run(runCtx); err != nil {
				app.logger.Error("kafka ingest stopped", logging.Fields{"error": err})
			}
		}()
	}

	app.logger.Info("notification server started", logging.Fields{
		"addr":     listener.Addr().String(),
		"hub_path": app.config.Server.HubPath,
		"redis":    app.config.Redis.Addr != "",
		"kafka":    app.consumer != nil,
		"database": app.dbManager != nil,
	})
	return nil
}

// Stop shuts down in reverse dependency order: HTTP -> Ingest -> Hub -> Backplane -> Database
func (app *Application) Stop(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	var err error
	if app.listener != nil {
		if shutdownErr := app.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("http shutdown: %w", shutdownErr))
		}
		if n := app.registry.CloseAll(); n > 0 {
			app.logger.Info("closed hub connections", logging.Fields{"clients": n})
		}
		app.cancel()
		app.wg.Wait()
		if stopErr := app.hub.Stop(); stopErr != nil && !errors.Is(stopErr, hub.ErrHubNotRunning) {
			err = multierr.Append(err, fmt.Errorf("hub stop: %w", stopErr))
		}
	}
	if app.consumer != nil {
		err = multierr.Append(err, app.consumer.Close())
	}
	err = multierr.Append(err, app.closeStores())

	app.logger.Info("notification server stopped")
	return err
}

// Addr returns the bound address once started, the configured one before
func (app *Application) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Hub exposes the running hub, for in-process publishers
func (app *Application) Hub() *hub.Hub {
	return app.hub
}

func (app *Application) closeStores() error {
	var err error
	if app.backplane != nil {
		err = multierr.Append(err, app.backplane.Close())
	}
	if app.dbManager != nil {
		err = multierr.Append(err, app.dbManager.Close())
	}
	return err
}
