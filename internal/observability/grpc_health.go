// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealth serves the standard grpc.health.v1 service for orchestrators
// that probe over gRPC. Serving status follows the readiness checker.
type GRPCHealth struct {
	addr     string
	service  string
	isReady  ReadinessChecker
	interval time.Duration

	health   *health.Server
	server   *grpc.Server
	listener net.Listener

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewGRPCHealth creates a health endpoint that re-evaluates readiness every
// interval and reports it for service and the empty (server-wide) name.
func NewGRPCHealth(addr, service string, isReady ReadinessChecker, interval time.Duration) *GRPCHealth {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &GRPCHealth{
		addr:     addr,
		service:  service,
		isReady:  isReady,
		interval: interval,
		health:   health.NewServer(),
	}
}

// Start listens and serves until Stop.
func (g *GRPCHealth) Start(ctx context.Context) (<-chan error, error) {
	listener, err := net.Listen("tcp", g.addr)
	if err != nil {
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", g.addr).Wrap(err)
	}
	g.listener = listener
	g.server = grpc.NewServer()
	healthpb.RegisterHealthServer(g.server, g.health)
	g.stop = make(chan struct{})

	g.update(ctx)

	errCh := make(chan error, 1)
	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		defer close(errCh)
		if serveErr := g.server.Serve(listener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			slog.Error("grpc health server error", "error", serveErr)
			errCh <- serveErr
		}
	}()
	go func() {
		defer g.wg.Done()
		g.poll(context.WithoutCancel(ctx))
	}()

	slog.Info("grpc health server started", "addr", listener.Addr().String())
	return errCh, nil
}

func (g *GRPCHealth) poll(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.update(ctx)
		}
	}
}

func (g *GRPCHealth) update(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if g.isReady != nil && !g.isReady(ctx) {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(g.service, status)
}

// Addr returns the listening address, or "" if not started.
func (g *GRPCHealth) Addr() string {
	if g.listener != nil {
		return g.listener.Addr().String()
	}
	return ""
}

// Stop marks every service NOT_SERVING and shuts the server down.
func (g *GRPCHealth) Stop() {
	if g.server == nil {
		return
	}
	g.health.Shutdown()
	close(g.stop)
	g.server.GracefulStop()
	g.wg.Wait()
	g.server = nil
	slog.Info("grpc health server stopped")
}
