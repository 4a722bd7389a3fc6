/*
Package types defines the core data structures used throughout Slipway.

This package contains the fundamental types that represent Slipway's domain
model: runtime slots, health samples, validation reports, backups, and
deployment runs. These types are used by all other packages for state
management, persistence, and orchestration logic.

# Architecture

The types package is the foundation of Slipway's data model. It defines:

  - Slot topology (the two fixed slots A and B with their ports)
  - Health classification (healthy, degraded, critical, unreachable)
  - Validation checks, categories, and gate decisions
  - Backup artifacts and finalization metadata
  - The deployment state machine and its audit trail

# Core Types

Slot Management:
  - Slot: One of the two fixed runtime slots with its port and process
  - SlotID: A or B; Other() yields the deployment candidate
  - SlotState: Stopped, starting, running, draining, failed

Health:
  - HealthSample: Single probe observation with latency and detail
  - HealthState: Healthy, degraded, critical, unreachable

Validation:
  - ValidationCheck: One executed check with outcome and weight
  - ValidationReport: Aggregated pass with score and gate decision
  - GateDecision: Ready or not_ready
  - ValidationPhase: Pre- or post-deployment polarity for port checks

Backups:
  - Backup: Point-in-time snapshot directory with completeness flag
  - BackupMeta: Finalization record; absence marks a backup incomplete
  - BackupComponent: Named file or directory captured by a backup

Deployment:
  - DeploymentRun: Aggregate for one deploy-or-rollback lifecycle
  - DeployStage: States of the deployment state machine
  - RunOutcome: Success, rolled_back, rollback_failed
  - TransitionRecord: Timestamped state machine edge with reason
  - LaunchSpec: Command, environment, and directory to start a slot

# State Machine

Deployment runs follow a state machine:

	Detect → Backup → StartCandidate → ValidateCandidate → SwitchTraffic
	                                                            ↓
	          Success ← StopOld ← ValidatePostSwitch ←──────────┘

	Any stage failure after Backup:
	          → Rollback → RolledBack
	                     → RollbackFailed

Valid terminal stages are Success, RolledBack, and RollbackFailed; a failed
Backup stage aborts the run before any mutation, so there is nothing to
roll back.

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants for safety and clarity:
	  type DeployStage string
	  const (
	      StageDetect DeployStage = "detect"
	      StageBackup DeployStage = "backup"
	  )

Optional Fields:

	Optional results use pointers:
	  - *ValidationReport: nil = phase never ran

# Thread Safety

All types in this package are designed to be:
  - Read-safe: Can be read concurrently from multiple goroutines
  - Write-unsafe: Mutations must be synchronized by callers

The orchestrator's single control goroutine owns each DeploymentRun for the
run's duration; the store persists immutable copies afterward.

# See Also

  - pkg/store for persistence of runs and audit records
  - pkg/orchestrator for the state machine logic
  - pkg/probe for health sample production
  - pkg/validate for report construction
*/
package types
