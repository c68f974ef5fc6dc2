package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/temario/internal/app"
	"github.com/felixgeelhaar/temario/internal/config"
	mcpserver "github.com/felixgeelhaar/temario/internal/mcp"
)

// cmdMCP serves the selection tools over stdio. It wires its own engine
// against the configured storage, so the daemon does not need to run.
func cmdMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// stdout carries the protocol
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	application, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return fmt.Errorf("wire application: %w", err)
	}
	defer application.Close()

	if err := application.Start(ctx); err != nil {
		return err
	}

	mcpserver.Version = Version
	mcpSrv := mcpserver.NewServer(mcpserver.Config{
		Sessions: application.Sessions,
	})

	return mcpSrv.ServeStdio(ctx)
}
