package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/slipway-io/slipway/pkg/config"
	"github.com/slipway-io/slipway/pkg/events"
	"github.com/slipway-io/slipway/pkg/log"
	"github.com/slipway-io/slipway/pkg/metrics"
	"github.com/slipway-io/slipway/pkg/store"
	"github.com/slipway-io/slipway/pkg/types"
	"github.com/slipway-io/slipway/pkg/validate"
)

// Slots is the slot lifecycle surface the orchestrator drives
type Slots interface {
	Slot(id types.SlotID) types.Slot
	DetectActive(ctx context.Context) (*types.Slot, error)
	Start(ctx context.Context, id types.SlotID) (*types.Slot, error)
	Stop(ctx context.Context, id types.SlotID) error
	Status(ctx context.Context, id types.SlotID) types.Slot
}

// Backups captures and restores persisted service state around a run
type Backups interface {
	Create(ctx context.Context, only ...string) (*types.Backup, error)
	Restore(ctx context.Context, id string, only ...string) error
	List() ([]types.Backup, error)
	Pin(id string)
	Unpin(id string)
	Prune(retainCount, retainDays int) ([]string, error)
}

// Gate runs the validation battery for one phase
type Gate interface {
	Run(ctx context.Context, env *validate.Env) *types.ValidationReport
}

// Switcher moves live traffic between slots and can point it back
type Switcher interface {
	Switch(ctx context.Context, from *types.Slot, to types.Slot) error
	Revert() error
}

// RunStore persists deployment runs as they progress
type RunStore interface {
	SaveRun(run *types.DeploymentRun) error
}

// Options adjusts a single deployment run
type Options struct {
	// SkipBackup skips the backup stage entirely. A failure after the
	// switch then has no state to restore, only traffic to revert.
	SkipBackup bool

	// NoAutoRollback leaves the system as-is on failure instead of
	// rolling back, for operators who want to inspect the wreckage
	NoAutoRollback bool

	// DryRun stops after detection and the preflight battery without
	// mutating anything
	DryRun bool

	// Components narrows the backup to named components
	Components []string
}

// Orchestrator drives the deployment state machine. All transitions run
// on the calling goroutine, strictly sequential; concurrency lives only
// inside the collaborators it calls (probing, the cutover window).
type Orchestrator struct {
	cfg      *config.Config
	slots    Slots
	backups  Backups
	gate     Gate
	switcher Switcher
	runs     RunStore
	broker   *events.Broker
	logger   zerolog.Logger
}

// NewOrchestrator wires the orchestrator to its collaborators. The
// broker may be nil when no one listens for events.
func NewOrchestrator(cfg *config.Config, slots Slots, backups Backups, gate Gate, switcher Switcher, runs RunStore, broker *events.Broker) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		slots:    slots,
		backups:  backups,
		gate:     gate,
		switcher: switcher,
		runs:     runs,
		broker:   broker,
		logger:   log.WithComponent("orchestrator"),
	}
}

// Deploy runs one full deployment: detect the active slot, back up
// persisted state, start the candidate on the idle slot, validate it,
// switch traffic over, validate again, then retire the old slot. Any
// failure after the backup stage rolls back automatically unless
// disabled in opts.
//
// The returned run is always non-nil once a run ID was assigned, even
// on failure, so callers can render the audit trail.
func (o *Orchestrator) Deploy(ctx context.Context, opts Options) (*types.DeploymentRun, error) {
	if opts.DryRun {
		return o.dryRun(ctx)
	}

	lock, err := acquireLock(o.cfg.DataDir)
	if err != nil {
		return nil, newStageError(KindPrecondition, types.StageDetect, err)
	}
	defer lock.Release()

	now := time.Now()
	run := &types.DeploymentRun{
		ID:        store.NewRunID(now),
		Service:   o.cfg.Service,
		StartedAt: now,
	}

	o.emit(events.EventRunStarted, run.ID, fmt.Sprintf("Deployment of %s started", run.Service), nil)
	o.transition(run, types.StageDetect, "deployment started")

	// DETECT
	active, err := o.slots.DetectActive(ctx)
	if err != nil {
		return o.failBeforeMutation(run, types.StageDetect, err)
	}

	candidateID := types.SlotA
	if active != nil {
		run.ActiveSlot = active.ID
		candidateID = active.ID.Other()
		o.logger.Info().
			Str("run_id", run.ID).
			Str("active", string(active.ID)).
			Str("candidate", string(candidateID)).
			Msg("Active slot detected")
	} else {
		o.logger.Info().
			Str("run_id", run.ID).
			Str("candidate", string(candidateID)).
			Msg("No active slot, bootstrap deployment")
	}
	run.CandidateSlot = candidateID
	candidate := o.slots.Slot(candidateID)

	// BACKUP
	if opts.SkipBackup {
		o.transition(run, types.StageBackup, "backup skipped by operator request")
	} else {
		o.transition(run, types.StageBackup, "capturing pre-deployment backup")

		timer := metrics.NewTimer()
		b, err := o.backups.Create(ctx, opts.Components...)
		if err != nil {
			return o.failBeforeMutation(run, types.StageBackup, fmt.Errorf("backup failed: %w", err))
		}
		timer.ObserveDuration(metrics.BackupDuration)

		run.BackupID = b.ID
		o.backups.Pin(b.ID)
		defer o.backups.Unpin(b.ID)

		o.emit(events.EventBackupCreated, run.ID, fmt.Sprintf("Backup %s captured", b.ID),
			map[string]string{"backup_id": b.ID})
	}

	// START_CANDIDATE
	o.transition(run, types.StageStartCandidate,
		fmt.Sprintf("starting candidate slot %s on port %d", candidateID, candidate.Port))
	started, err := o.slots.Start(ctx, candidateID)
	if err != nil {
		return o.rollback(run, opts, active,
			newStageError(KindCandidateStart, types.StageStartCandidate, err))
	}
	candidate = *started
	o.emit(events.EventSlotStarted, run.ID,
		fmt.Sprintf("Candidate slot %s running (pid %d)", candidateID, candidate.PID),
		map[string]string{"slot": string(candidateID)})

	// VALIDATE_CANDIDATE
	o.transition(run, types.StageValidateCandidate, "validating candidate before switch")
	report := o.gate.Run(ctx, o.validationEnv(types.PhasePostDeploy, candidate, active))
	run.Validation = report
	o.recordValidation(run, report)
	if !report.Ready() {
		cause := &StageError{
			Kind:   KindValidation,
			Stage:  types.StageValidateCandidate,
			Err:    fmt.Errorf("candidate not ready: %d failed, %d warned, score %.0f", report.Failed, report.Warned, report.Score),
			Detail: validationDetail(report),
		}
		return o.rollback(run, opts, active, cause)
	}

	// SWITCH_TRAFFIC
	o.transition(run, types.StageSwitchTraffic,
		fmt.Sprintf("switching traffic to slot %s", candidateID))
	if err := o.switcher.Switch(ctx, active, candidate); err != nil {
		// The coordinator has already pointed the router back at the
		// previous slot before returning
		metrics.SwitchAbortsTotal.Inc()
		return o.rollback(run, opts, active,
			newStageError(KindSwitchAbort, types.StageSwitchTraffic, err))
	}
	o.emit(events.EventTrafficSwitched, run.ID,
		fmt.Sprintf("Traffic now on slot %s (port %d)", candidateID, candidate.Port),
		map[string]string{"slot": string(candidateID)})

	// VALIDATE_POST_SWITCH
	o.transition(run, types.StageValidatePostSwitch, "validating deployment after switch")
	post := o.gate.Run(ctx, o.validationEnv(types.PhasePostDeploy, candidate, active))
	run.PostValidation = post
	o.recordValidation(run, post)
	if !post.Ready() {
		// Traffic has fully moved; point the router back before the
		// rest of the rollback runs
		if err := o.switcher.Revert(); err != nil {
			o.logger.Error().Err(err).Str("run_id", run.ID).Msg("Emergency traffic revert failed")
		} else {
			o.emit(events.EventTrafficReverted, run.ID,
				"Traffic reverted after failed post-switch validation", nil)
		}
		cause := &StageError{
			Kind:   KindPostSwitch,
			Stage:  types.StageValidatePostSwitch,
			Err:    fmt.Errorf("post-switch validation not ready: %d failed, %d warned", post.Failed, post.Warned),
			Detail: validationDetail(post),
		}
		return o.rollback(run, opts, active, cause)
	}

	// STOP_OLD
	if active != nil {
		o.transition(run, types.StageStopOld,
			fmt.Sprintf("stopping previous slot %s", active.ID))
		if err := o.slots.Stop(ctx, active.ID); err != nil {
			// Traffic already serves from the candidate; a lingering old
			// process is operational debt, not a deployment failure
			o.logger.Warn().Err(err).
				Str("run_id", run.ID).
				Str("slot", string(active.ID)).
				Msg("Failed to stop previous slot")
			o.note(run, fmt.Sprintf("stop of previous slot %s failed: %v", active.ID, err))
		} else {
			o.emit(events.EventSlotStopped, run.ID,
				fmt.Sprintf("Previous slot %s stopped", active.ID),
				map[string]string{"slot": string(active.ID)})
		}
	} else {
		o.transition(run, types.StageStopOld, "bootstrap deployment, no previous slot to stop")
	}

	// SUCCESS
	o.transition(run, types.StageSuccess,
		fmt.Sprintf("deployment complete, slot %s active", candidateID))
	o.finishRun(run, types.OutcomeSuccess)

	if pruned, err := o.backups.Prune(o.cfg.Backup.RetainCount, o.cfg.Backup.RetainDays); err != nil {
		o.logger.Warn().Err(err).Msg("Backup pruning failed")
	} else if len(pruned) > 0 {
		o.logger.Info().Int("pruned", len(pruned)).Msg("Old backups pruned")
	}

	return run, nil
}

// dryRun previews a deployment: slot detection plus the preflight
// battery. Nothing is locked or mutated and the run is not persisted.
func (o *Orchestrator) dryRun(ctx context.Context) (*types.DeploymentRun, error) {
	now := time.Now()
	run := &types.DeploymentRun{
		ID:        store.NewRunID(now),
		Service:   o.cfg.Service,
		StartedAt: now,
		Stage:     types.StageDetect,
	}

	active, err := o.slots.DetectActive(ctx)
	if err != nil {
		return nil, newStageError(KindPrecondition, types.StageDetect, err)
	}

	candidateID := types.SlotA
	if active != nil {
		run.ActiveSlot = active.ID
		candidateID = active.ID.Other()
	}
	run.CandidateSlot = candidateID

	report := o.gate.Run(ctx, o.validationEnv(types.PhasePreDeploy, o.slots.Slot(candidateID), active))
	run.Validation = report
	run.FinishedAt = time.Now()

	if !report.Ready() {
		return run, &StageError{
			Kind:   KindValidation,
			Stage:  types.StageDetect,
			Err:    fmt.Errorf("preflight not ready: %d failed, %d warned", report.Failed, report.Warned),
			Detail: validationDetail(report),
		}
	}
	return run, nil
}

// transition advances the run to the next stage, recording the audit
// edge and emitting a stage event. Persisting on every edge keeps the
// audit trail durable across a crash mid-run.
func (o *Orchestrator) transition(run *types.DeploymentRun, to types.DeployStage, reason string) {
	from := run.Stage

	if len(run.Transitions) > 0 && from != "" {
		entered := run.Transitions[len(run.Transitions)-1].At
		metrics.StageDuration.WithLabelValues(string(from)).Observe(time.Since(entered).Seconds())
	}

	run.Stage = to
	run.Transitions = append(run.Transitions, types.TransitionRecord{
		At:     time.Now(),
		From:   from,
		To:     to,
		Reason: reason,
	})

	if err := o.runs.SaveRun(run); err != nil {
		o.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to persist run state")
	}

	o.emit(events.EventStageEntered, run.ID, reason,
		map[string]string{"from": string(from), "to": string(to)})

	o.logger.Info().
		Str("run_id", run.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg(reason)
}

// note appends an audit entry without changing stage
func (o *Orchestrator) note(run *types.DeploymentRun, reason string) {
	run.Transitions = append(run.Transitions, types.TransitionRecord{
		At:     time.Now(),
		From:   run.Stage,
		To:     run.Stage,
		Reason: reason,
	})
	if err := o.runs.SaveRun(run); err != nil {
		o.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to persist run state")
	}
}

// failBeforeMutation finalizes a run that failed while nothing had been
// mutated yet. There is no rollback edge: the original state is still
// intact, so the run goes straight to rolled_back.
func (o *Orchestrator) failBeforeMutation(run *types.DeploymentRun, stage types.DeployStage, cause error) (*types.DeploymentRun, error) {
	run.FailureStage = stage
	run.FailureReason = cause.Error()

	o.emit(events.EventStageFailed, run.ID, fmt.Sprintf("Stage %s failed: %v", stage, cause),
		map[string]string{"stage": string(stage)})
	o.transition(run, types.StageRolledBack, fmt.Sprintf("aborted before mutation: %v", cause))
	o.finishRun(run, types.OutcomeRolledBack)

	return run, newStageError(KindPrecondition, stage, cause)
}

// finishRun stamps the terminal outcome, records run metrics, persists
// the run, and writes its report file
func (o *Orchestrator) finishRun(run *types.DeploymentRun, outcome types.RunOutcome) {
	run.Outcome = outcome
	run.FinishedAt = time.Now()

	metrics.DeploymentsTotal.WithLabelValues(string(outcome)).Inc()
	metrics.DeploymentDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())

	if err := o.runs.SaveRun(run); err != nil {
		o.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to persist finished run")
	}

	if path, err := writeReport(o.cfg.DataDir, run); err != nil {
		o.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to write run report")
	} else {
		o.logger.Info().Str("run_id", run.ID).Str("report", path).Msg("Run report written")
	}

	o.emit(events.EventRunCompleted, run.ID,
		fmt.Sprintf("Run finished: %s", outcome),
		map[string]string{"outcome": string(outcome)})
}

// recordValidation pushes gate results into metrics and events
func (o *Orchestrator) recordValidation(run *types.DeploymentRun, report *types.ValidationReport) {
	for _, check := range report.Checks {
		metrics.ValidationChecksTotal.WithLabelValues(string(check.Outcome)).Inc()
	}
	metrics.ValidationScore.WithLabelValues(string(report.Phase)).Set(report.Score)

	o.emit(events.EventValidationDone, run.ID,
		fmt.Sprintf("Validation %s: %d passed, %d failed, %d warned, score %.0f",
			report.Decision, report.Passed, report.Failed, report.Warned, report.Score),
		map[string]string{
			"phase":    string(report.Phase),
			"decision": string(report.Decision),
		})
}

// validationEnv builds the gate environment for one phase. The active
// slot may be nil during bootstrap.
func (o *Orchestrator) validationEnv(phase types.ValidationPhase, candidate types.Slot, active *types.Slot) *validate.Env {
	return ValidationEnv(o.cfg, phase, candidate, active)
}

// ValidationEnv assembles the gate environment for a slot pair the same way
// a deployment does, so standalone validation sees identical inputs.
func ValidationEnv(cfg *config.Config, phase types.ValidationPhase, candidate types.Slot, active *types.Slot) *validate.Env {
	env := &validate.Env{
		Phase:         phase,
		Service:       cfg.Service,
		CandidateSlot: candidate,
		ActiveSlot:    active,
		DataDir:       cfg.DataDir,
		DatastorePath: cfg.Validation.DatastorePath,
		Components:    cfg.Components(),
		MinFreeDiskMB: cfg.Validation.MinFreeDiskMB,
	}
	if len(cfg.Launch.Command) > 0 {
		env.RequiredCommands = []string{cfg.Launch.Command[0]}
	}
	if cfg.Health.Scheme == "http" {
		env.HealthURL = fmt.Sprintf("http://%s%s", candidate.Addr(), cfg.Health.Path)
	}
	return env
}

// validationDetail names the checks behind a not_ready decision,
// separating hard failures from warnings escalated by strict mode
func validationDetail(report *types.ValidationReport) string {
	var failed, warned []string
	for _, check := range report.Checks {
		switch check.Outcome {
		case types.CheckFail:
			failed = append(failed, check.Name)
		case types.CheckWarn:
			warned = append(warned, check.Name)
		}
	}

	if len(failed) > 0 {
		return "failed checks: " + strings.Join(failed, ", ")
	}
	if len(warned) > 0 {
		return "warnings escalated by strict mode: " + strings.Join(warned, ", ")
	}
	return ""
}

func (o *Orchestrator) emit(eventType events.EventType, runID, message string, metadata map[string]string) {
	if o.broker == nil {
		return
	}
	o.broker.Emit(eventType, runID, message, metadata)
}
