package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"ride-settlement/internal/general/logger"

	"github.com/stretchr/testify/require"
)

func TestAwait_CleanWorkerExitStillShutsDownServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0"}
	errCh := make(chan error, 2)
	errCh <- nil

	done := make(chan error, 1)
	go func() { done <- Await(ctx, logger.Discard(), "test", srv, errCh) }()

	select {
	case err := <-done:
		t.Fatalf("returned on a clean worker exit: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
	require.ErrorIs(t, srv.ListenAndServe(), http.ErrServerClosed)
}

func TestAwait_WorkerErrorShutsDownServer(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0"}
	errCh := make(chan error, 1)
	boom := errors.New("consumer stopped")
	errCh <- boom

	err := Await(context.Background(), logger.Discard(), "test", srv, errCh)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, srv.ListenAndServe(), http.ErrServerClosed)
}
