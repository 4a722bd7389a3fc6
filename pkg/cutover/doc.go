/*
Package cutover coordinates the traffic switch from the active slot to the
candidate.

STATE MACHINE:

	PRE_SWITCH ──► SWITCHING ──► SWITCHED    (full window, no failing sample)
	                   │
	                   └───────► ABORTED     (failing sample / interrupt)

ALGORITHM:

 1. Point the router's upstream at the candidate's port, test the router
    configuration, reload.
 2. For the gradual window, probe the candidate on a fixed cadence. An
    unreachable or critical sample aborts the switch; degraded is logged
    and tolerated (a slow candidate is watched, not abandoned).
 3. If the full window elapses with no failing sample, the switch is done.

On abort the coordinator reverts the router to the previous slot before
returning, so the caller's rollback path never races live traffic. Revert
only writes router configuration: it succeeds even when the candidate is
already dead, and repeating it is harmless. Rollback logic reverts again
on top of the abort's own revert for exactly that reason.

The coordinator holds the only write path to router state. Runs are
serialized by the orchestrator, so writes are last-write-wins without
locking; the watchdog probes are read-only.
*/
package cutover
