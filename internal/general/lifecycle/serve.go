// Package lifecycle runs a service's HTTP server next to its background workers.
package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ride-settlement/internal/general/logger"
)

// ShutdownTimeout bounds the graceful drain of the HTTP server.
const ShutdownTimeout = 10 * time.Second

// Await blocks until ctx is cancelled or a worker reports an error on errCh, then shuts
// srv down. Nil values on errCh come from workers that stopped cleanly and are skipped.
func Await(ctx context.Context, log *logger.Logger, service string, srv *http.Server, errCh <-chan error) error {
	var runErr error
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case err := <-errCh:
			if err != nil {
				runErr = err
				log.Error(ctx, "service_failed", service+" terminated with error", err, nil)
				break wait
			}
		}
	}

	shCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	log.Info(ctx, "service_stopping", "Starting graceful shutdown", nil)
	if err := srv.Shutdown(shCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
	}
	return runErr
}
