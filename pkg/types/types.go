package types

import (
	"fmt"
	"time"
)

// SlotID identifies one of the two fixed runtime slots
type SlotID string

const (
	SlotA SlotID = "A"
	SlotB SlotID = "B"
)

// Other returns the opposite slot, the implied candidate for a deployment
func (s SlotID) Other() SlotID {
	if s == SlotA {
		return SlotB
	}
	return SlotA
}

// SlotState represents the lifecycle state of a runtime slot
type SlotState string

const (
	SlotStateStopped  SlotState = "stopped"
	SlotStateStarting SlotState = "starting"
	SlotStateRunning  SlotState = "running"
	SlotStateDraining SlotState = "draining"
	SlotStateFailed   SlotState = "failed"
)

// Slot binds a slot to its fixed port and the process occupying it.
// At steady state exactly one slot is active; during first bootstrap none is.
type Slot struct {
	ID    SlotID
	Port  int
	PID   int
	State SlotState
}

// Addr returns the loopback address the slot's process listens on
func (s *Slot) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.Port)
}

// HealthState classifies a single probe observation
type HealthState string

const (
	HealthHealthy     HealthState = "healthy"
	HealthDegraded    HealthState = "degraded"
	HealthCritical    HealthState = "critical"
	HealthUnreachable HealthState = "unreachable"
)

// Failing reports whether the state must abort an in-flight traffic switch.
// Degraded is tolerated during cutover; critical and unreachable are not.
func (h HealthState) Failing() bool {
	return h == HealthCritical || h == HealthUnreachable
}

// HealthSample is a single probe observation of one target
type HealthSample struct {
	Target  string
	Slot    SlotID
	State   HealthState
	Latency time.Duration
	Detail  string
	Taken   time.Time
}

// CheckOutcome is the tagged outcome of a single validation check
type CheckOutcome string

const (
	CheckPass CheckOutcome = "pass"
	CheckFail CheckOutcome = "fail"
	CheckWarn CheckOutcome = "warn"
)

// CheckCategory groups validation checks. Categories run in a fixed order,
// cheap filesystem checks before network round-trips.
type CheckCategory string

const (
	CategorySystem    CheckCategory = "system"
	CategoryStructure CheckCategory = "structure"
	CategoryDeps      CheckCategory = "dependencies"
	CategoryDatabase  CheckCategory = "database"
	CategoryService   CheckCategory = "service"
	CategoryNetwork   CheckCategory = "network"
	CategorySecurity  CheckCategory = "security"
)

// ValidationCheck records the result of one executed check
type ValidationCheck struct {
	Name     string
	Category CheckCategory
	Outcome  CheckOutcome
	Detail   string
	Critical bool
	Weight   int
}

// GateDecision is the binary outcome of a validation pass
type GateDecision string

const (
	GateReady    GateDecision = "ready"
	GateNotReady GateDecision = "not_ready"
)

// ValidationPhase selects the expected polarity of phase-sensitive checks
// (a candidate port must be free before a deployment and bound after one)
type ValidationPhase string

const (
	PhasePreDeploy  ValidationPhase = "pre"
	PhasePostDeploy ValidationPhase = "post"
)

// ValidationReport aggregates one validation pass. The engine builds it,
// consumers only read it.
type ValidationReport struct {
	Phase     ValidationPhase
	Strict    bool
	Checks    []ValidationCheck
	Passed    int
	Failed    int
	Warned    int
	Score     float64
	Decision  GateDecision
	StartedAt time.Time
	Duration  time.Duration
}

// Ready reports whether the gate passed
func (r *ValidationReport) Ready() bool {
	return r != nil && r.Decision == GateReady
}

// BackupComponent names one unit of persistent state captured by a backup:
// a datastore file or a configuration directory
type BackupComponent struct {
	Name string
	Path string
}

// BackupMeta is the finalization record written after all artifacts are
// copied. A backup directory without a parseable metadata record is
// incomplete and must never be restored.
type BackupMeta struct {
	ID          string
	CreatedAt   time.Time
	GitCommit   string
	GitBranch   string
	Environment string
	Hostname    string
	Components  []string
}

// Backup is a point-in-time snapshot of the service's persistent state.
// Backups are never mutated after finalization, only deleted by pruning.
type Backup struct {
	ID        string
	Dir       string
	CreatedAt time.Time
	Complete  bool
	Meta      BackupMeta
}

// DeployStage names a state of the deployment state machine
type DeployStage string

const (
	StageDetect             DeployStage = "detect"
	StageBackup             DeployStage = "backup"
	StageStartCandidate     DeployStage = "start_candidate"
	StageValidateCandidate  DeployStage = "validate_candidate"
	StageSwitchTraffic      DeployStage = "switch_traffic"
	StageValidatePostSwitch DeployStage = "validate_post_switch"
	StageStopOld            DeployStage = "stop_old"
	StageSuccess            DeployStage = "success"
	StageRollback           DeployStage = "rollback"
	StageRolledBack         DeployStage = "rolled_back"
	StageRollbackFailed     DeployStage = "rollback_failed"
)

// Terminal reports whether the stage ends the run
func (s DeployStage) Terminal() bool {
	return s == StageSuccess || s == StageRolledBack || s == StageRollbackFailed
}

// RunOutcome is the top-level result of a deployment run
type RunOutcome string

const (
	OutcomeSuccess        RunOutcome = "success"
	OutcomeRolledBack     RunOutcome = "rolled_back"
	OutcomeRollbackFailed RunOutcome = "rollback_failed"
)

// TransitionRecord is one audit entry: a timestamped edge of the state
// machine and the reason the edge was taken
type TransitionRecord struct {
	At     time.Time
	From   DeployStage
	To     DeployStage
	Reason string
}

// DeploymentRun is the aggregate for one deploy-or-rollback lifecycle.
// The orchestrator's control goroutine owns it for the run's duration and
// persists it as an immutable report afterward.
type DeploymentRun struct {
	ID         string
	Service    string
	StartedAt  time.Time
	FinishedAt time.Time

	Stage         DeployStage
	ActiveSlot    SlotID
	CandidateSlot SlotID

	BackupID       string
	Validation     *ValidationReport
	PostValidation *ValidationReport

	Outcome       RunOutcome
	FailureStage  DeployStage
	FailureReason string

	Transitions []TransitionRecord
}

// LaunchSpec describes how to start the service process in a slot. The
// literal "{port}" in Command is replaced with the slot's port, and
// PORT=<port> is appended to Env, so either convention works.
type LaunchSpec struct {
	Command []string
	Env     []string
	Dir     string
}
