package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HTTPWorker serves the websocket endpoint and its side routes until its context ends.
type HTTPWorker struct {
	log             *slog.Logger
	server          *Server
	address         string
	handler         http.Handler
	shutdownTimeout time.Duration
}

func NewHTTPWorker(log *slog.Logger, server *Server, address string, handler http.Handler,
	shutdownTimeout time.Duration) *HTTPWorker {
	return &HTTPWorker{
		log:             log,
		server:          server,
		address:         address,
		handler:         handler,
		shutdownTimeout: shutdownTimeout,
	}
}

// CreateServer sets timeouts suited to long-lived websocket connections.
// WriteTimeout is left unset because hijacked connections manage their own deadlines.
func CreateServer(address string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (w *HTTPWorker) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", w.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", w.address, err)
	}

	httpServer := CreateServer(w.address, w.handler)
	httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting HTTP server", "address", listener.Addr().String(), "at", time.Now().UTC())
		if err := httpServer.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errChan:
		if ok {
			return err
		}
		return nil
	}

	w.log.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		w.log.Warn("HTTP server shutdown error", "error", err)
	}
	if err := w.server.CloseAll(w.shutdownTimeout); err != nil {
		w.log.Warn("Websocket clients did not close in time", "error", err)
	}
	w.log.Info("HTTP server shutdown completed")
	return nil
}
