package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"youapp/internal/config"
	"youapp/internal/logging"
	"youapp/internal/proxy"

	"github.com/spf13/cobra"
)

func NewProxyCommand() *cobra.Command {
	var (
		port   int
		target string
	)

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Forward /api to the upstream API with CORS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := config.LoadProxy(envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.ProxyPort = port
			}
			if cmd.Flags().Changed("target") {
				cfg.ProxyTarget = target
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runProxy(ctx, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 3000, "Listen port, overrides PROXY_PORT")
	cmd.Flags().StringVar(&target, "target", "", "Upstream base URL, overrides PROXY_TARGET")

	return cmd
}

func runProxy(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(os.Stdout, cfg.LogLevel)

	handler, err := proxy.New(cfg.ProxyTarget, logger)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.ProxyPort)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("proxy starting", "addr", server.Addr, "target", cfg.ProxyTarget)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("proxy failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
