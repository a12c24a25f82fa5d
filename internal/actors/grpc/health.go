package grpc

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name under which the referral service reports its health.
const ServiceName = "referralhub.v1.ReferralService"

// Checker probes a dependency. A nil error means the dependency is usable.
type Checker func(ctx context.Context) error

// HealthServiceArgs are the mandatory arguments for the creation of a HealthService.
type HealthServiceArgs struct {
	// Checker probes the store backing the service.
	Checker Checker
}

// HealthServiceOptArgs are the optional arguments for building a HealthService
type HealthServiceOptArgs = func(*HealthService)

// WithInterval overrides the probing interval.
func WithInterval(interval time.Duration) HealthServiceOptArgs {
	return func(h *HealthService) {
		h.interval = interval
	}
}

// HealthService implements grpc.health.v1.Health, driven by periodic probes of the store.
type HealthService struct {
	server   *health.Server
	checker  Checker
	interval time.Duration
}

// NewHealthService creates a HealthService. Both the overall and the service status start as NOT_SERVING.
func NewHealthService(args HealthServiceArgs, optArgs ...HealthServiceOptArgs) (*HealthService, error) {
	if args.Checker == nil {
		return nil, errors.New("nil health checker")
	}
	h := &HealthService{
		server:   health.NewServer(),
		checker:  args.Checker,
		interval: 10 * time.Second,
	}
	for _, opt := range optArgs {
		opt(h)
	}
	h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return h, nil
}

// Register exposes the health service on the gRPC server.
func (h *HealthService) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Probe runs the checker once and publishes the result.
func (h *HealthService) Probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()
	if err := h.checker(ctx); err != nil {
		log.WithError(err).Warn("health probe failed")
		h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.setStatus(healthpb.HealthCheckResponse_SERVING)
}

// Run probes at every interval until the context is cancelled. It then reports NOT_SERVING for good.
func (h *HealthService) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	h.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Probe(ctx)
		}
	}
}

func (h *HealthService) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}
