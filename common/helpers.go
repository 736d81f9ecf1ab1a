package common

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/verilayer/verilayer/log"
)

// How long a server gets to drain in-flight requests after its context is canceled.
const shutdownTimeout = 5 * time.Second

func CloseOrLog(c io.Closer, logger *log.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("close failed", "err", err)
	}
}

// RunServer serves until ctx is canceled, then shuts the server down.
func RunServer(ctx context.Context, server *http.Server, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "endpoint", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server", "endpoint", server.Addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
