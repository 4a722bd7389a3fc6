package cutover

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/slipway-io/slipway/pkg/log"
	"github.com/slipway-io/slipway/pkg/probe"
	"github.com/slipway-io/slipway/pkg/router"
	"github.com/slipway-io/slipway/pkg/types"
)

// Phase represents where a cutover is in its lifecycle
type Phase string

const (
	PhasePreSwitch Phase = "pre_switch"
	PhaseSwitching Phase = "switching"
	PhaseSwitched  Phase = "switched"
	PhaseAborted   Phase = "aborted"
)

// Coordinator moves live traffic from the active slot to the candidate and
// watches the candidate through a gradual window before declaring the
// switch done. It is the only component that writes router state, and it is
// driven by a single control flow; probes are the only thing that runs
// concurrently, and they are read-only.
type Coordinator struct {
	router   router.Router
	probers  probe.Factory
	window   time.Duration
	interval time.Duration
	logger   zerolog.Logger

	phase    Phase
	previous *types.Slot
}

// NewCoordinator creates a cutover coordinator. The window is how long the
// candidate is watched after the router points at it; the interval is the
// probe cadence inside that window.
func NewCoordinator(r router.Router, probers probe.Factory, window, interval time.Duration) *Coordinator {
	if window <= 0 {
		window = 15 * time.Second
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Coordinator{
		router:   r,
		probers:  probers,
		window:   window,
		interval: interval,
		logger:   log.WithComponent("cutover"),
		phase:    PhasePreSwitch,
	}
}

// Phase reports the coordinator's current phase
func (c *Coordinator) Phase() Phase {
	return c.phase
}

// Switch points the router at the candidate slot and probes it on a fixed
// cadence for the gradual window. Any unreachable or critical sample inside
// the window aborts the switch and reverts the router to the previous slot
// before returning; degraded samples are logged and tolerated. A cancelled
// context is treated the same as a failing sample.
func (c *Coordinator) Switch(ctx context.Context, from *types.Slot, to types.Slot) error {
	c.phase = PhasePreSwitch
	c.previous = from

	logger := c.logger.With().Str("candidate", string(to.ID)).Logger()

	if err := c.router.SetUpstream(to.Port); err != nil {
		c.phase = PhaseAborted
		return fmt.Errorf("failed to point router at slot %s: %w", to.ID, err)
	}
	if err := c.router.TestConfig(); err != nil {
		return c.abort(fmt.Errorf("router config test failed: %w", err))
	}
	if err := c.router.Reload(); err != nil {
		return c.abort(fmt.Errorf("router reload failed: %w", err))
	}

	c.phase = PhaseSwitching
	logger.Info().
		Dur("window", c.window).
		Dur("interval", c.interval).
		Msg("traffic switching, watching candidate")

	prober := c.probers(to)
	deadline := time.NewTimer(c.window)
	defer deadline.Stop()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	start := time.Now()
	samples := 0
	for {
		s := prober.Probe(ctx)
		samples++

		if s.State.Failing() {
			// A probe that failed because the deploy context expired is an
			// interruption, not a candidate failure
			if ctx.Err() != nil {
				return c.abort(fmt.Errorf("switch interrupted: %w", ctx.Err()))
			}
			return c.abort(fmt.Errorf("candidate went %s %v into the switch window: %s",
				s.State, time.Since(start).Round(time.Millisecond), s.Detail))
		}
		if s.State == types.HealthDegraded {
			logger.Warn().
				Dur("latency", s.Latency).
				Str("detail", s.Detail).
				Msg("candidate degraded during switch window")
		}

		select {
		case <-ctx.Done():
			return c.abort(fmt.Errorf("switch interrupted: %w", ctx.Err()))
		case <-deadline.C:
			c.phase = PhaseSwitched
			logger.Info().
				Int("samples", samples).
				Dur("window", c.window).
				Msg("traffic switched")
			return nil
		case <-ticker.C:
		}
	}
}

// abort reverts the router and records the aborted phase. The cause stays
// unwrappable; a revert problem is attached to the message.
func (c *Coordinator) abort(cause error) error {
	c.phase = PhaseAborted
	c.logger.Error().Err(cause).Msg("switch aborted, reverting traffic")
	if err := c.Revert(); err != nil {
		return fmt.Errorf("%w (and revert failed: %v)", cause, err)
	}
	return cause
}

// Revert points the router back at the slot that carried traffic before the
// switch. It only touches router configuration, so it succeeds even when the
// candidate is already down, and calling it repeatedly lands in the same
// state as calling it once. With no previous slot recorded (bootstrap
// deployment) there is nothing to revert to and the call is a no-op.
func (c *Coordinator) Revert() error {
	if c.previous == nil {
		c.logger.Warn().Msg("no previous slot recorded, nothing to revert to")
		return nil
	}
	if err := c.router.SetUpstream(c.previous.Port); err != nil {
		return fmt.Errorf("failed to revert router to slot %s: %w", c.previous.ID, err)
	}
	if err := c.router.Reload(); err != nil {
		return fmt.Errorf("failed to reload router after revert: %w", err)
	}
	c.logger.Info().
		Str("slot", string(c.previous.ID)).
		Int("port", c.previous.Port).
		Msg("traffic reverted")
	return nil
}
