package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/slipway-io/slipway/pkg/types"
)

// TCPProber performs TCP-based health probes. A successful connect is
// healthy; anything else is unreachable. TCP cannot distinguish degraded
// from critical, so it never reports either.
type TCPProber struct {
	// Address is the TCP address to connect to (e.g., "127.0.0.1:8001")
	Address string

	// Timeout is the connection timeout (default: 5 seconds)
	Timeout time.Duration

	// Slot stamps samples with the slot under observation
	Slot types.SlotID
}

// NewTCPProber creates a new TCP health prober
func NewTCPProber(address string) *TCPProber {
	return &TCPProber{
		Address: address,
		Timeout: 5 * time.Second,
	}
}

// Probe performs the TCP health probe
func (t *TCPProber) Probe(ctx context.Context) types.HealthSample {
	start := time.Now()

	dialer := &net.Dialer{
		Timeout: t.Timeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return sample(t.Address, t.Slot, start, types.HealthUnreachable,
			fmt.Sprintf("connection failed: %v", err))
	}
	defer conn.Close()

	return sample(t.Address, t.Slot, start, types.HealthHealthy,
		fmt.Sprintf("TCP connection to %s successful", t.Address))
}

// Kind returns the health probe type
func (t *TCPProber) Kind() Kind {
	return KindTCP
}

// Target returns the probed address
func (t *TCPProber) Target() string {
	return t.Address
}

// WithTimeout sets the connection timeout
func (t *TCPProber) WithTimeout(timeout time.Duration) *TCPProber {
	t.Timeout = timeout
	return t
}

// ForSlot stamps samples with the given slot
func (t *TCPProber) ForSlot(slot types.SlotID) *TCPProber {
	t.Slot = slot
	return t
}
