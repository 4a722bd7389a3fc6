/*
Package slot manages the two fixed deployment slots and the service
processes that run inside them.

SLOT MODEL:

There are exactly two slots, A and B, each bound to a fixed localhost
port. At any moment at most one slot carries live traffic (the active
slot); the other is either empty or holds a candidate being prepared.
Deployments alternate between them:

	┌────────────────┐         ┌────────────────┐
	│    Slot A      │         │    Slot B      │
	│  port 8001     │  swap   │  port 8002     │
	│  (active)      │ ◄─────► │  (candidate)   │
	└────────────────┘         └────────────────┘

The Manager never guesses which slot is active. DetectActive probes
both ports concurrently and trusts only what is observed:

  - neither answers: first bootstrap, no active slot
  - one answers: that slot is active (any non-unreachable state counts,
    a degraded active slot is still the active slot)
  - both answer: refuse and report, something external broke the
    invariant and guessing could route traffic to the wrong build

PROCESS SUPERVISION:

Service processes are launched detached (their own session) so they
survive the deployment tool exiting. Stdout and stderr go to a per-slot
log file under the data directory, and the PID is recorded in a per-slot
pid file so later invocations can re-attach:

	<data-dir>/slot-a.pid    recorded PID for slot A
	<data-dir>/slot-a.log    process output for slot A

The literal token {port} in the configured command is replaced with the
slot's port, and PORT is set in the environment, so one launch command
serves both slots.

LIFECYCLE:

Start terminates any stale recorded process, waits for the port to come
free, launches the new process, and polls until it reports healthy
within a bounded startup window. A candidate that never becomes healthy
is terminated and its pid file removed; the failure is reported with the
last observed probe state and the log file path.

Stop sends SIGTERM, waits through a grace period, escalates to SIGKILL
if needed, and then confirms the port was actually released. Stopping an
already-stopped slot is a no-op. A bound port with no recorded PID is
refused: the process is not ours to kill.
*/
package slot
