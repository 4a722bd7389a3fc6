package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/slipway-io/slipway/pkg/types"
)

// AwaitHealthy polls a prober until it observes a healthy sample or the
// bound expires. It probes immediately, then on every interval tick. The
// bound holds regardless of probe outcomes: a probe that hangs is cut off
// by the deadline through its context.
//
// On success the healthy sample is returned. On timeout the last observed
// sample is returned together with an error wrapping
// context.DeadlineExceeded, so callers can distinguish "never became
// healthy" from operational failures.
func AwaitHealthy(ctx context.Context, p Prober, maxWait, interval time.Duration) (types.HealthSample, error) {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Probe immediately
	last := p.Probe(ctx)
	if last.State == types.HealthHealthy {
		return last, nil
	}

	for {
		select {
		case <-ctx.Done():
			return last, fmt.Errorf("target %s not healthy after %v (last: %s, %s): %w",
				p.Target(), maxWait, last.State, last.Detail, ctx.Err())
		case <-ticker.C:
			last = p.Probe(ctx)
			if last.State == types.HealthHealthy {
				return last, nil
			}
		}
	}
}

// AwaitUnreachable polls a prober until the target stops answering or the
// bound expires. Used when stopping a slot to confirm the port was released.
func AwaitUnreachable(ctx context.Context, p Prober, maxWait, interval time.Duration) (types.HealthSample, error) {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := p.Probe(ctx)
	if last.State == types.HealthUnreachable {
		return last, nil
	}

	for {
		select {
		case <-ctx.Done():
			return last, fmt.Errorf("target %s still answering after %v (last: %s): %w",
				p.Target(), maxWait, last.State, ctx.Err())
		case <-ticker.C:
			last = p.Probe(ctx)
			if last.State == types.HealthUnreachable {
				return last, nil
			}
		}
	}
}
