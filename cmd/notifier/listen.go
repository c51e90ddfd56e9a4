package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"notifier/internal/auth"
	"notifier/internal/connection"
	"notifier/internal/credentials"
	"notifier/internal/groups"
	"notifier/internal/logging"
	"notifier/internal/presentation"
	"notifier/internal/router"
	"notifier/internal/store"
	"notifier/internal/websocket"
	"notifier/pkg/interfaces"
	"notifier/pkg/types"
)

type listenOptions struct {
	token     string
	tokenEnv  string
	tokenFile string
	groups    []string
	alerts    bool
	noColor   bool
}

func newListenCommand(c *cli) *cobra.Command {
	opts := &listenOptions{}
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Connect to the hub and print notifications as they arrive",
		Long: `Connect to the notification hub with the signed-in user's token, join the
user's groups and print notifications, the unread badge and toasts.

The token is taken from --token, else from --token-file (reloaded when the
file changes), else from the environment variable named by --token-env.

Examples:
  notifier listen --token-env SCHOOL_TOKEN
  notifier listen --token-file ~/.school/token --group assembly --alerts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListen(cmd, c, opts)
		},
	}

	cmd.Flags().StringVar(&opts.token, "token", "", "Access token")
	cmd.Flags().StringVar(&opts.tokenEnv, "token-env", "NOTIFIER_TOKEN", "Environment variable holding the access token")
	cmd.Flags().StringVar(&opts.tokenFile, "token-file", "", "File holding the access token (defaults to client.token_file)")
	cmd.Flags().StringSliceVar(&opts.groups, "group", nil, "Extra named groups to join")
	cmd.Flags().BoolVar(&opts.alerts, "alerts", false, "Ring the terminal bell for each notification")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	return cmd
}

func runListen(cmd *cobra.Command, c *cli, opts *listenOptions) error {
	defer func() { _ = c.logger.Sync() }()
	cfg := c.cfg.Client
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		source    interfaces.CredentialSource
		fileStore *credentials.FileStore
	)
	tokenFile := opts.tokenFile
	if tokenFile == "" {
		tokenFile = cfg.TokenFile
	}
	switch {
	case opts.token != "":
		source = credentials.Static(opts.token)
	case tokenFile != "":
		fs, err := credentials.NewFileStore(tokenFile, c.logger)
		if err != nil {
			return err
		}
		source, fileStore = fs, fs
	default:
		source = credentials.Env(opts.tokenEnv)
	}

	manager := connection.NewManager(connection.Options{
		Dialer:      websocket.NewDialer(*c.cfg.WebSocket, c.logger),
		Credentials: source,
		Endpoint:    connection.NewResolver(*cfg).Resolve,
		Retry:       connection.RetryPolicy{Delays: cfg.ReconnectDelays},
		Logger:      c.logger,
	})
	controller := groups.NewController(manager, c.logger)
	rt := router.New(manager, router.Options{
		Alerter: presentation.NewTerminalAlerter(out, opts.alerts),
		// FUNCTIONAL DISCOVERY: A terminal has no focus signal; alerts are opt-in instead
		Visible: func() bool { return !opts.alerts },
		Title:   func(kind types.NotificationKind) string { return presentation.StyleFor(kind).Title },
		Logger:  c.logger,
	})
	adapter := presentation.NewAdapter(presentation.Options{
		Manager:       manager,
		Groups:        controller,
		Router:        rt,
		Store:         store.New(cfg.BufferCapacity),
		Identity:      auth.NewTokenIdentity(source),
		Renderer:      presentation.NewTerminalRenderer(out, !opts.noColor),
		PollInterval:  cfg.PollInterval,
		ToastDuration: cfg.ToastDuration,
		InvokeTimeout: cfg.InvokeTimeout,
		Logger:        c.logger,
	})
	defer adapter.Close()

	if len(opts.groups) > 0 {
		manager.OnConnected(func(ctx context.Context) {
			for _, name := range opts.groups {
				if err := controller.JoinNamedGroup(ctx, name); err != nil {
					c.logger.Warn("failed to join group", logging.Fields{"group": name, "error": err})
				}
			}
		})
	}

	if fileStore != nil {
		err := fileStore.Watch(ctx, func(token string) {
			c.logger.Info("access token changed, reconnecting")
			adapter.Disconnect()
			adapter.Connect(ctx)
		})
		if err != nil {
			return err
		}
	}

	adapter.Connect(ctx)
	<-ctx.Done()
	adapter.Disconnect()
	rt.Wait()
	return nil
}
