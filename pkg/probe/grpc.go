package probe

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/slipway-io/slipway/pkg/types"
)

// GRPCProber probes the standard gRPC health service (grpc.health.v1).
//
// Classification:
//   - connection or RPC error: unreachable
//   - NOT_SERVING: critical (process is up and explicitly refusing traffic)
//   - UNKNOWN or SERVICE_UNKNOWN: degraded
//   - SERVING: healthy
type GRPCProber struct {
	// Address is the gRPC target to connect to (e.g., "127.0.0.1:8001")
	Address string

	// Service is the service name passed to the health check
	// (empty checks overall server health)
	Service string

	// Timeout is the per-probe deadline (default: 5 seconds)
	Timeout time.Duration

	// Slot stamps samples with the slot under observation
	Slot types.SlotID
}

// NewGRPCProber creates a new gRPC health prober
func NewGRPCProber(address string) *GRPCProber {
	return &GRPCProber{
		Address: address,
		Timeout: 5 * time.Second,
	}
}

// Probe performs the gRPC health probe
func (g *GRPCProber) Probe(ctx context.Context) types.HealthSample {
	start := time.Now()

	conn, err := grpc.NewClient(g.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return sample(g.Address, g.Slot, start, types.HealthUnreachable,
			fmt.Sprintf("failed to create client: %v", err))
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{
		Service: g.Service,
	})
	if err != nil {
		return sample(g.Address, g.Slot, start, types.HealthUnreachable,
			fmt.Sprintf("health check failed: %v", err))
	}

	switch resp.Status {
	case healthpb.HealthCheckResponse_SERVING:
		return sample(g.Address, g.Slot, start, types.HealthHealthy, "SERVING")
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return sample(g.Address, g.Slot, start, types.HealthCritical, "NOT_SERVING")
	default:
		return sample(g.Address, g.Slot, start, types.HealthDegraded, resp.Status.String())
	}
}

// Kind returns the health probe type
func (g *GRPCProber) Kind() Kind {
	return KindGRPC
}

// Target returns the probed address
func (g *GRPCProber) Target() string {
	return g.Address
}

// WithService sets the health service name to check
func (g *GRPCProber) WithService(service string) *GRPCProber {
	g.Service = service
	return g
}

// WithTimeout sets the per-probe deadline
func (g *GRPCProber) WithTimeout(timeout time.Duration) *GRPCProber {
	g.Timeout = timeout
	return g
}

// ForSlot stamps samples with the given slot
func (g *GRPCProber) ForSlot(slot types.SlotID) *GRPCProber {
	g.Slot = slot
	return g
}
