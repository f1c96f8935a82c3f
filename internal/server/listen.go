package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"
)

const (
	// connsPerThread bounds open connections per request handler so idle
	// keep-alive connections cannot starve new clients.
	connsPerThread = 16

	shutdownTimeout = 10 * time.Second
)

// ListenAndServe listens on addr and serves h until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, threads int) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return Serve(ctx, ln, h, threads)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. When threads > 0 the listener admits at most
// threads*connsPerThread concurrent connections.
func Serve(ctx context.Context, ln net.Listener, h http.Handler, threads int) error {
	if threads > 0 {
		ln = netutil.LimitListener(ln, threads*connsPerThread)
	}
	// Cancelling the base context on shutdown ends open change streams.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "err", err)
		_ = srv.Close()
	}
	slog.Info("HTTP server stopped")
	return nil
}
