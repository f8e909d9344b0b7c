package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"blogchat/internal/config"
	"blogchat/internal/di"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, WebSocket and gRPC servers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	app, cleanup, err := di.InitializeApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize chat service: %w", err)
	}
	defer cleanup()
	log := app.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port %s: %w", cfg.Server.GRPCPort, err)
	}

	errCh := make(chan error, 3)

	go func() {
		if err := app.Hub.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	go func() {
		log.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := app.GRPCServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	go func() {
		log.Info("HTTP server listening", "addr", app.HTTPServer.Addr, "env", cfg.Server.Environment)
		if err := app.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down chat service")
	case runErr = <-errCh:
		log.Error("chat service failed", "error", runErr)
	}

	shutdown(app)
	log.Info("chat service stopped")
	return runErr
}

// shutdown stops accepting HTTP requests, closes every live subscriber so
// open streams return, then drains gRPC.
func shutdown(app *di.Application) {
	log := app.Logger
	app.Health.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.HTTPServer.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", "error", err)
	}

	if err := app.Hub.Close(); err != nil {
		log.Warn("closing fanout hub", "error", err)
	}

	stopped := make(chan struct{})
	go func() {
		app.GRPCServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		log.Warn("gRPC graceful stop timed out, forcing")
		app.GRPCServer.Stop()
	}
}
