package probe

import (
	"context"
	"time"

	"github.com/slipway-io/slipway/pkg/types"
)

// Kind represents the type of health probe
type Kind string

const (
	KindHTTP Kind = "http"
	KindTCP  Kind = "tcp"
	KindGRPC Kind = "grpc"
)

// Prober is the interface that all health probers must implement
type Prober interface {
	// Probe performs one health observation and returns the sample
	Probe(ctx context.Context) types.HealthSample

	// Kind returns the type of health probe
	Kind() Kind

	// Target returns the address or URL the prober observes
	Target() string
}

// Factory builds the prober for a given slot. Slot and cutover management
// take a Factory so tests can substitute probers without real listeners.
type Factory func(slot types.Slot) Prober

// Config contains common configuration for all probes
type Config struct {
	// Timeout is the maximum time to wait for one probe to complete
	Timeout time.Duration

	// DegradedAfter is the latency budget: a successful response slower
	// than this is classified degraded instead of healthy
	DegradedAfter time.Duration

	// Interval is the time between probes when polling
	Interval time.Duration

	// MaxWait bounds a polling loop regardless of probe outcomes
	MaxWait time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Second,
		DegradedAfter: 1 * time.Second,
		Interval:      1 * time.Second,
		MaxWait:       60 * time.Second,
	}
}

// sample builds a HealthSample for a target, stamping the observation time
// and elapsed latency.
func sample(target string, slot types.SlotID, start time.Time, state types.HealthState, detail string) types.HealthSample {
	return types.HealthSample{
		Target:  target,
		Slot:    slot,
		State:   state,
		Latency: time.Since(start),
		Detail:  detail,
		Taken:   start,
	}
}
