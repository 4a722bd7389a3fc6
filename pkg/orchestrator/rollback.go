package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/slipway-io/slipway/pkg/events"
	"github.com/slipway-io/slipway/pkg/metrics"
	"github.com/slipway-io/slipway/pkg/store"
	"github.com/slipway-io/slipway/pkg/types"
)

// rollbackTimeout bounds the whole recovery path. It runs on a fresh
// context because the deployment's own context may already be cancelled,
// and an interrupted run must still be wound back.
const rollbackTimeout = 2 * time.Minute

// rollback drives the recovery path after a failed stage: revert
// traffic, tear down the candidate, restore persisted state when the
// candidate could have written to it, and confirm the original slot is
// serving again. Returns the original cause on success, or a rollback
// failure when recovery itself did not restore service.
func (o *Orchestrator) rollback(run *types.DeploymentRun, opts Options, original *types.Slot, cause *StageError) (*types.DeploymentRun, error) {
	run.FailureStage = cause.Stage
	run.FailureReason = cause.Error()

	o.emit(events.EventStageFailed, run.ID, fmt.Sprintf("Stage %s failed: %v", cause.Stage, cause.Err),
		map[string]string{"stage": string(cause.Stage), "kind": string(cause.Kind)})

	if opts.NoAutoRollback {
		o.logger.Error().
			Str("run_id", run.ID).
			Str("stage", string(cause.Stage)).
			Msg("Automatic rollback disabled, system left in failed state")
		o.transition(run, types.StageRollbackFailed,
			fmt.Sprintf("automatic rollback disabled by operator, failure left in place: %v", cause))
		o.finishRun(run, types.OutcomeRollbackFailed)
		return run, cause
	}

	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()

	metrics.RollbacksTotal.Inc()
	o.emit(events.EventRollbackStarted, run.ID, fmt.Sprintf("Rolling back: %v", cause),
		map[string]string{"failure_stage": string(cause.Stage)})
	o.transition(run, types.StageRollback, fmt.Sprintf("rolling back: %v", cause))

	failed := false

	// Traffic first. Revert is idempotent, so it is safe even when the
	// switch coordinator already pointed the router back on abort.
	if trafficTouched(cause.Stage) {
		if err := o.switcher.Revert(); err != nil {
			o.logger.Error().Err(err).Str("run_id", run.ID).Msg("Router revert failed during rollback")
			o.note(run, fmt.Sprintf("router revert failed: %v", err))
			failed = true
		} else {
			o.emit(events.EventTrafficReverted, run.ID, "Router pointer reverted", nil)
		}
	}

	// Tear down the candidate. The original holds traffic either way,
	// so a candidate that will not die is noted, not fatal.
	if err := o.slots.Stop(ctx, run.CandidateSlot); err != nil {
		o.logger.Warn().Err(err).
			Str("run_id", run.ID).
			Str("slot", string(run.CandidateSlot)).
			Msg("Failed to stop candidate during rollback")
		o.note(run, fmt.Sprintf("candidate slot %s did not stop: %v", run.CandidateSlot, err))
	}

	// Persisted state is restored only when traffic reached the
	// candidate: before the switch it never served requests, so live
	// state was never written by it
	if run.BackupID != "" && trafficTouched(cause.Stage) {
		if err := o.backups.Restore(ctx, run.BackupID); err != nil {
			o.logger.Error().Err(err).
				Str("run_id", run.ID).
				Str("backup_id", run.BackupID).
				Msg("Backup restore failed during rollback")
			o.note(run, fmt.Sprintf("restore of backup %s failed: %v", run.BackupID, err))
			failed = true
		} else {
			o.note(run, fmt.Sprintf("backup %s restored", run.BackupID))
		}
	}

	// The original slot must be serving again. During bootstrap there
	// is no original and tearing down the candidate is the whole job.
	if original != nil && !failed {
		status := o.slots.Status(ctx, original.ID)
		if status.State != types.SlotStateRunning {
			o.logger.Warn().
				Str("run_id", run.ID).
				Str("slot", string(original.ID)).
				Msg("Original slot not running, restarting it")
			if _, err := o.slots.Start(ctx, original.ID); err != nil {
				o.logger.Error().Err(err).
					Str("run_id", run.ID).
					Str("slot", string(original.ID)).
					Msg("Failed to restart original slot")
				failed = true
			}
		}

		// Final health check
		if !failed {
			if status := o.slots.Status(ctx, original.ID); status.State != types.SlotStateRunning {
				o.note(run, fmt.Sprintf("original slot %s is %s after rollback", original.ID, status.State))
				failed = true
			}
		}
	}

	if failed {
		o.transition(run, types.StageRollbackFailed, "rollback incomplete, manual intervention required")
		o.finishRun(run, types.OutcomeRollbackFailed)
		o.logger.Error().
			Str("run_id", run.ID).
			Str("backup_id", run.BackupID).
			Msg("ROLLBACK FAILED: service state is inconsistent, manual intervention required")
		return run, &StageError{
			Kind:  KindRollback,
			Stage: types.StageRollback,
			Err:   fmt.Errorf("rollback did not restore service after %v", cause),
		}
	}

	o.transition(run, types.StageRolledBack, "rollback complete, original state restored")
	o.finishRun(run, types.OutcomeRolledBack)
	return run, cause
}

// trafficTouched reports whether the failure stage means requests may
// have reached the candidate
func trafficTouched(stage types.DeployStage) bool {
	return stage == types.StageSwitchTraffic || stage == types.StageValidatePostSwitch
}

// Rollback restores a backup outside a deployment run: the operator's
// manual lever when a bad deploy surfaced only after the run finished.
// With an empty backupID the newest complete backup is used. The active
// slot is restarted afterward so the restored state takes effect.
func (o *Orchestrator) Rollback(ctx context.Context, backupID string, components ...string) (*types.DeploymentRun, error) {
	lock, err := acquireLock(o.cfg.DataDir)
	if err != nil {
		return nil, newStageError(KindPrecondition, types.StageRollback, err)
	}
	defer lock.Release()

	now := time.Now()
	run := &types.DeploymentRun{
		ID:        store.NewRunID(now),
		Service:   o.cfg.Service,
		StartedAt: now,
	}

	o.emit(events.EventRunStarted, run.ID, "Manual rollback started", nil)
	o.transition(run, types.StageDetect, "manual rollback requested")

	active, err := o.slots.DetectActive(ctx)
	if err != nil {
		return o.failBeforeMutation(run, types.StageDetect, err)
	}
	if active != nil {
		run.ActiveSlot = active.ID
	}

	if backupID == "" {
		backups, err := o.backups.List()
		if err != nil {
			return o.failBeforeMutation(run, types.StageDetect, fmt.Errorf("failed to list backups: %w", err))
		}
		for _, b := range backups {
			if b.Complete {
				backupID = b.ID
				break
			}
		}
		if backupID == "" {
			return o.failBeforeMutation(run, types.StageDetect, fmt.Errorf("no complete backup to roll back to"))
		}
	}
	run.BackupID = backupID

	metrics.RollbacksTotal.Inc()
	o.emit(events.EventRollbackStarted, run.ID, fmt.Sprintf("Restoring backup %s", backupID),
		map[string]string{"backup_id": backupID})
	o.transition(run, types.StageRollback, fmt.Sprintf("restoring backup %s", backupID))

	o.backups.Pin(backupID)
	defer o.backups.Unpin(backupID)

	if err := o.backups.Restore(ctx, backupID, components...); err != nil {
		return o.failRollback(run, fmt.Errorf("restore of backup %s failed: %w", backupID, err))
	}
	o.note(run, fmt.Sprintf("backup %s restored", backupID))

	// The running service still holds the pre-restore state; bounce it
	// so the restored files take effect
	if active != nil {
		if err := o.slots.Stop(ctx, active.ID); err != nil {
			return o.failRollback(run, fmt.Errorf("failed to stop slot %s for restart: %w", active.ID, err))
		}
		if _, err := o.slots.Start(ctx, active.ID); err != nil {
			return o.failRollback(run, fmt.Errorf("slot %s did not come back after restore: %w", active.ID, err))
		}
		o.emit(events.EventSlotStarted, run.ID,
			fmt.Sprintf("Slot %s restarted on restored state", active.ID),
			map[string]string{"slot": string(active.ID)})
	}

	o.transition(run, types.StageRolledBack, "manual rollback complete")
	o.finishRun(run, types.OutcomeRolledBack)
	return run, nil
}

// failRollback finalizes a manual rollback that could not restore
// service. Never retried automatically.
func (o *Orchestrator) failRollback(run *types.DeploymentRun, cause error) (*types.DeploymentRun, error) {
	run.FailureStage = types.StageRollback
	run.FailureReason = cause.Error()

	o.transition(run, types.StageRollbackFailed, cause.Error())
	o.finishRun(run, types.OutcomeRollbackFailed)
	o.logger.Error().
		Str("run_id", run.ID).
		Str("backup_id", run.BackupID).
		Msg("ROLLBACK FAILED: service state is inconsistent, manual intervention required")

	return run, &StageError{Kind: KindRollback, Stage: types.StageRollback, Err: cause}
}
