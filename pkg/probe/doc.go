/*
Package probe provides health probing for the two Slipway runtime slots.

This package implements three probe types: HTTP, TCP, and gRPC. Probes
classify each observation into one of four states so that the orchestrator
can tell "slow but alive" apart from "answering with errors" and "gone":
degraded tolerates a cutover in flight, critical and unreachable abort it.

# Architecture

Slipway's probing system follows a modular prober design:

	┌─────────────────────────────────────────────────────┐
	│                  Prober Interface                   │
	│  • Probe(ctx) types.HealthSample                    │
	│  • Kind() Kind                                      │
	│  • Target() string                                  │
	└────────┬────────────────────────────────────────────┘
	         │
	    ┌────┴───────┬───────────┐
	    ▼            ▼           ▼
	┌────────┐  ┌────────┐  ┌────────┐
	│  HTTP  │  │  TCP   │  │  gRPC  │
	│ Prober │  │ Prober │  │ Prober │
	└────────┘  └────────┘  └────────┘
	     │           │           │
	     ▼           ▼           ▼
	  GET /      Connect    grpc.health.v1
	  /health     :port      Check()

# Classification

Every probe maps its observation to a HealthState:

	HTTP:
	├── transport error (refused, reset, timeout) → unreachable
	├── 5xx                                       → critical
	├── 3xx/4xx                                   → degraded
	├── 2xx slower than the latency budget        → degraded
	└── 2xx within budget                         → healthy

	TCP:
	├── connect failed → unreachable
	└── connect ok     → healthy

	gRPC:
	├── connection or RPC error      → unreachable
	├── NOT_SERVING                  → critical
	├── UNKNOWN / SERVICE_UNKNOWN    → degraded
	└── SERVING                      → healthy

TCP can only prove a listener exists, so it never reports degraded or
critical. Prefer HTTP or gRPC probes for services that expose them.

# Polling

AwaitHealthy polls a prober until a healthy sample arrives or a hard bound
expires. The loop probes immediately and then on every interval tick; the
bound holds regardless of probe outcomes. On timeout the last observed
sample is returned with an error wrapping context.DeadlineExceeded:

	prober := probe.NewHTTPProber("http://127.0.0.1:8002/health").
		ForSlot(types.SlotB).
		WithTimeout(3 * time.Second)

	sample, err := probe.AwaitHealthy(ctx, prober, 60*time.Second, time.Second)
	if err != nil {
		// candidate never became healthy; sample holds the final state
	}

AwaitUnreachable is the inverse: it confirms a stopped slot released its
port before the next process binds it.

# Integration Points

This package integrates with:

  - pkg/slot: Detects the active slot and confirms candidate startup
  - pkg/cutover: Watches candidate health during the traffic switch
  - pkg/validate: Backs the service-response validation checks
  - pkg/orchestrator: Final health confirmation after rollback
*/
package probe
