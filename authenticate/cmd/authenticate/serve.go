package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hsklearn/vocab-auth/authenticate/internal/handlers"
	"github.com/hsklearn/vocab-auth/authenticate/internal/server"
	"github.com/hsklearn/vocab-auth/common/logging"
	"github.com/hsklearn/vocab-auth/common/middleware"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP action endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg := opts.cfg
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{sinks: true, logTo: os.Stdout})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Error("shutdown cleanup failed", logging.Error(err))
		}
	}()
	logging.SetDefault(a.logger)

	loc, err := cfg.Auth.DisplayLocation()
	if err != nil {
		return err
	}
	actions := handlers.NewActionHandler(a.svc, handlers.Options{
		AuditBlockedAttempts: cfg.Auth.AuditBlockedAttempts,
		Location:             loc,
	}, a.logger)

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		cors.AllowedOrigins = cfg.Server.AllowedOrigins
	}
	routerCfg := server.RouterConfig{
		Backend: cfg.Database.Type,
		CORS:    cors,
		Logger:  a.logger.Logger,
	}
	if a.publisher != nil {
		routerCfg.Publisher = a.publisher
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(actions, routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	a.logger.Info("authenticate service listening",
		slog.String("addr", srv.Addr),
		logging.Backend(cfg.Database.Type),
		slog.Bool("audit_blocked_attempts", cfg.Auth.AuditBlockedAttempts),
		slog.String("display_timezone", loc.String()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}
