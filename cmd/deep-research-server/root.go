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
	"time"

	"github.com/spf13/cobra"

	mcp "github.com/TangGee/deep-research-mcp"
	"github.com/TangGee/deep-research-mcp/servers/research"
)

const shutdownTimeout = 5 * time.Second

// Execute runs the deep-research-server command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   serverName,
		Short: "Deep research MCP server",
		Long: "deep-research-server serves a deep-research prompt and the research notes and data " +
			"it collects over the Model Context Protocol, on stdio by default or over HTTP with SSE.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServer,
	}

	bindFlags(rootCmd)
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := research.NewStore(logger)
	handlers := research.NewServer(store, research.WithLogger(logger))

	info := mcp.Info{Name: serverName, Version: serverVersion}
	serverOpts := []mcp.ServerOption{
		mcp.WithPromptServer(handlers),
		mcp.WithResourceServer(handlers),
		mcp.WithToolServer(handlers),
		mcp.WithServerLogger(logger),
		mcp.WithServerOnClientConnected(func(id string, client mcp.Info) {
			logger.Info("client connected",
				slog.String("sessionID", id),
				slog.String("client", client.Name))
		}),
		mcp.WithServerOnClientDisconnected(func(id string) {
			logger.Info("client disconnected", slog.String("sessionID", id))
		}),
	}

	switch cfg.Transport {
	case transportSSE:
		return serveSSE(ctx, cfg, logger, info, serverOpts)
	default:
		transport := mcp.NewStdIO(cmd.InOrStdin(), cmd.OutOrStdout(), mcp.WithStdIOLogger(logger))
		return serveStdIO(ctx, logger, mcp.NewServer(info, transport, serverOpts...))
	}
}

// serveStdIO serves until the input stream ends or ctx is cancelled.
func serveStdIO(ctx context.Context, logger *slog.Logger, srv mcp.Server) error {
	logger.Info("serving on stdio")

	served := make(chan struct{})
	go func() {
		defer close(served)
		srv.Serve()
	}()

	select {
	case <-served:
		logger.Info("input closed, exiting")
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return shutdown(srv)
}

func serveSSE(ctx context.Context, cfg config, logger *slog.Logger, info mcp.Info, opts []mcp.ServerOption) error {
	transport := mcp.NewSSEServer(cfg.BaseURL+"/message", mcp.WithSSELogger(logger))
	srv := mcp.NewServer(info, transport, opts...)

	mux := http.NewServeMux()
	mux.Handle("/sse", transport.HandleSSE())
	mux.Handle("/message", transport.HandleMessage())

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	listenErrs := make(chan error, 1)
	go func() {
		logger.Info("serving on sse", slog.String("addr", cfg.Addr), slog.String("baseURL", cfg.BaseURL))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrs <- err
		}
		close(listenErrs)
	}()

	go srv.Serve()

	var listenErr error
	select {
	case <-ctx.Done():
	case listenErr = <-listenErrs:
	}

	logger.Info("shutting down")
	if err := shutdown(srv); err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}

	if listenErr != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr, listenErr)
	}
	return nil
}

func shutdown(srv mcp.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
