/*
Package orchestrator drives the top-level deployment state machine: one
run takes the service from its current slot to the other with a backup
behind it, a validation gate in front of traffic, and an automatic
rollback path for everything that can fail after state was mutated.

STATE MACHINE:

	DETECT ──► BACKUP ──► START_CANDIDATE ──► VALIDATE_CANDIDATE ──► SWITCH_TRAFFIC ──► VALIDATE_POST_SWITCH ──► STOP_OLD ──► SUCCESS
	   │          │              │                    │                    │                     │
	   │          │              └────────────────────┴────────────────────┴─────────────────────┘
	   │          │                                   │
	   │          │                                ROLLBACK ──► ROLLED_BACK
	   │          │                                   │
	   └──────────┴──► ROLLED_BACK (no rollback       └───────► ROLLBACK_FAILED
	                   edge: nothing was mutated)

STAGES:

  - DETECT: probe both fixed ports; the answering slot is active, the
    other is the candidate. Neither answering means bootstrap: slot A
    becomes the first candidate and there is no old slot to stop. Both
    answering is a conflict and aborts the run.
  - BACKUP: capture the configured components. A failure here aborts
    before any mutation, so there is nothing to roll back: the run goes
    straight to ROLLED_BACK with the original state intact.
  - START_CANDIDATE: launch the service on the candidate slot and wait,
    time-bounded, for it to become healthy.
  - VALIDATE_CANDIDATE: run the full validation battery against the
    started candidate. not_ready sends the run to ROLLBACK before any
    traffic has moved.
  - SWITCH_TRAFFIC: hand off to the cutover coordinator. On abort the
    coordinator has already pointed traffic back; rollback reverts
    again, which is safe because revert is idempotent.
  - VALIDATE_POST_SWITCH: the battery again, now with traffic on the
    candidate. A failure here reverts the router immediately, before the
    rest of the rollback runs, because every second counts once live
    requests hit a bad deployment.
  - STOP_OLD: retire the previous slot. Best-effort: traffic is already
    safe on the new slot, so a stop failure is logged and noted in the
    audit trail, never escalated.

ROLLBACK POLICY:

Revert traffic first, tear down the candidate, restore the backup only
when traffic actually reached the candidate (before the switch it never
served a request, so it never wrote live state), then confirm the
original slot is serving again. The rollback runs on a fresh context:
an operator interrupt cancels the deployment, not the recovery. If the
final health check fails the run ends ROLLBACK_FAILED, which is never
retried automatically and is surfaced as loudly as the logger allows.

FAILURE TAXONOMY:

	precondition_failure     nothing mutated, fail fast
	candidate_start_failure  candidate never became healthy
	validation_failure       gate said not_ready
	switch_abort             candidate failed mid-cutover
	post_switch_failure      failed with traffic fully moved
	rollback_failure         recovery itself failed, terminal

Every transition appends a timestamped record to the run's audit trail,
and the run is persisted after every edge so a crash mid-run leaves a
readable trail. Finished runs are additionally written as standalone
JSON reports under <data-dir>/reports/.

CONCURRENCY:

The state machine runs on the calling goroutine, strictly sequential.
Runs are serialized by an exclusive lock file in the data directory;
stale locks from dead processes are detected by PID liveness and
replaced. Concurrency exists only inside collaborators: health probing
and the cutover watchdog, both read-only and both time-bounded.
*/
package orchestrator
