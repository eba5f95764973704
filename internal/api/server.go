package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ShutdownTimeout bounds how long Serve waits for open connections to drain.
const ShutdownTimeout = 30 * time.Second

// ServeOption adjusts the http.Server built by Serve.
type ServeOption func(*http.Server)

// WithWriteTimeout overrides the default 30s write timeout. The compute
// backend answers only once a fit finishes, so it needs the task time limit.
func WithWriteTimeout(d time.Duration) ServeOption {
	return func(s *http.Server) { s.WriteTimeout = d }
}

// Serve runs an HTTP server on port until ctx is cancelled, then shuts it
// down gracefully.
func Serve(ctx context.Context, port int, h http.Handler, opts ...ServeOption) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	for _, opt := range opts {
		opt(srv)
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
