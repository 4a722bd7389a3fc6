/*
Package store persists deployment run records in BoltDB.

Runs are stored as JSON under their ID in the runs bucket; a meta bucket
tracks the most recently saved run. The orchestrator upserts the run after
every state transition, so the audit trail on disk is always current up to
the last completed transition even if the process dies mid-run.

The database lives at <data-dir>/slipway.db. Opens take a short lock
timeout so a concurrent invocation fails fast instead of hanging on the
file lock.
*/
package store
