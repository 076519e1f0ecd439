package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	grpc2 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// RelayServiceName is the service name reported by the health endpoint besides the overall "".
const RelayServiceName = "chat_relay.Relay"

// HealthWorker exposes grpc.health.v1.Health and server reflection.
// The relay reports SERVING while the worker runs and NOT_SERVING while shutting down.
// Each Run builds its own health server, so a restarted worker serves again.
type HealthWorker struct {
	log     *slog.Logger
	address string
	ready   chan net.Addr
}

func NewHealthWorker(log *slog.Logger, address string) *HealthWorker {
	return &HealthWorker{
		log:     log,
		address: address,
		ready:   make(chan net.Addr, 1),
	}
}

// Ready yields the bound address once the listener is up.
func (w *HealthWorker) Ready() <-chan net.Addr {
	return w.ready
}

func (w *HealthWorker) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", w.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", w.address, err)
	}

	healthServer := health.NewServer()
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc2.UnaryLoggingInterceptor(w.log)))
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	reflection.Register(s)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(RelayServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting gRPC server", "address", listener.Addr().String(), "at", time.Now().UTC())
		for serviceName := range s.GetServiceInfo() {
			w.log.Debug("gRPC exposed services", "name", serviceName)
		}
		if err := s.Serve(listener); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	select {
	case w.ready <- listener.Addr():
	default:
	}

	select {
	case <-ctx.Done():
	case err := <-errChan:
		healthServer.Shutdown()
		return err
	}

	healthServer.Shutdown()
	s.GracefulStop()
	w.log.Info("gRPC server stopped")
	return nil
}
