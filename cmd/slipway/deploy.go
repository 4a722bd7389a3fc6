package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/slipway-io/slipway/pkg/config"
	"github.com/slipway-io/slipway/pkg/events"
	"github.com/slipway-io/slipway/pkg/orchestrator"
	"github.com/slipway-io/slipway/pkg/store"
	"github.com/slipway-io/slipway/pkg/types"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the current build through the idle slot",
	Long: `Deploy runs the full pipeline: back up persistent state, start the
new build in the idle slot, validate it while the old build keeps
serving, switch live traffic, validate again, then retire the old slot.

Any failure after the backup rolls the system back to its pre-deployment
state unless --no-auto-rollback is set.

Examples:
  # Full deployment
  slipway deploy

  # Back up only the database component
  slipway deploy --component database

  # Preflight checks only, mutate nothing
  slipway deploy --dry-run`,
	RunE: runDeploy,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore a backup and restart the active slot",
	Long: `Rollback restores persistent state from a backup and bounces the
active slot so the restored state takes effect. Without --backup-id the
newest complete backup is used.

Examples:
  # Roll back to the newest complete backup
  slipway rollback

  # Roll back a specific backup, database component only
  slipway rollback --backup-id backup-20260301-120000 --component database`,
	RunE: runRollback,
}

func init() {
	deployCmd.Flags().StringArray("component", nil, "Back up only this component (repeatable)")
	deployCmd.Flags().Bool("skip-backup", false, "Skip the backup stage")
	deployCmd.Flags().Bool("no-auto-rollback", false, "Leave the system as-is on failure instead of rolling back")
	deployCmd.Flags().Bool("dry-run", false, "Run detection and preflight checks without mutating anything")
	deployCmd.Flags().Duration("timeout", 10*time.Minute, "Overall deployment deadline")

	rollbackCmd.Flags().String("backup-id", "", "Backup to restore (default: newest complete)")
	rollbackCmd.Flags().StringArray("component", nil, "Restore only this component (repeatable)")
	rollbackCmd.Flags().Duration("timeout", 5*time.Minute, "Overall rollback deadline")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(rollbackCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	components, _ := cmd.Flags().GetStringArray("component")
	skipBackup, _ := cmd.Flags().GetBool("skip-backup")
	noAutoRollback, _ := cmd.Flags().GetBool("no-auto-rollback")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.broker.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := orchestrator.Options{
		SkipBackup:     skipBackup,
		NoAutoRollback: noAutoRollback,
		DryRun:         dryRun,
		Components:     components,
	}

	if dryRun {
		fmt.Printf("Preflight for %s (nothing will be changed)\n\n", app.cfg.Service)
		run, err := app.orchestrator(nil).Deploy(ctx, opts)
		if run != nil && run.Validation != nil {
			printReport(run.Validation)
		}
		if err != nil {
			return err
		}
		fmt.Printf("✓ Preflight passed: slot %s is ready to receive the next deployment\n", run.CandidateSlot)
		return nil
	}

	runs, err := store.Open(app.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open run store: %v", err)
	}
	defer runs.Close()

	fmt.Printf("Deploying %s...\n", app.cfg.Service)

	unwatch := watchEvents(app.broker)
	run, deployErr := app.orchestrator(runs).Deploy(ctx, opts)
	unwatch()

	if run != nil {
		printRunResult(app.cfg, run)
	}
	return deployErr
}

func runRollback(cmd *cobra.Command, args []string) error {
	backupID, _ := cmd.Flags().GetString("backup-id")
	components, _ := cmd.Flags().GetStringArray("component")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.broker.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runs, err := store.Open(app.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open run store: %v", err)
	}
	defer runs.Close()

	fmt.Printf("Rolling back %s...\n", app.cfg.Service)

	unwatch := watchEvents(app.broker)
	run, rollbackErr := app.orchestrator(runs).Rollback(ctx, backupID, components...)
	unwatch()

	if run != nil {
		printRunResult(app.cfg, run)
	}
	return rollbackErr
}

// watchEvents streams broker events to stdout until the returned stop
// function is called
func watchEvents(broker *events.Broker) func() {
	sub := broker.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range sub {
			fmt.Printf("  %s  %s\n", ev.Timestamp.Format("15:04:05"), ev.Message)
		}
	}()

	return func() {
		// Give the broker a beat to flush events queued by the final stage
		time.Sleep(100 * time.Millisecond)
		broker.Unsubscribe(sub)
		<-done
	}
}

func printRunResult(cfg *config.Config, run *types.DeploymentRun) {
	fmt.Println()
	switch run.Outcome {
	case types.OutcomeSuccess:
		fmt.Printf("✓ %s completed: slot %s is live\n", run.ID, run.CandidateSlot)
	case types.OutcomeRolledBack:
		fmt.Printf("Run %s failed at %s and was rolled back\n", run.ID, run.FailureStage)
	case types.OutcomeRollbackFailed:
		fmt.Printf("Run %s FAILED at %s and could not be rolled back cleanly\n", run.ID, run.FailureStage)
		fmt.Println("  The service may be in an inconsistent state. Inspect it before retrying.")
	default:
		fmt.Printf("Run %s ended in stage %s\n", run.ID, run.Stage)
	}

	if run.FailureReason != "" {
		fmt.Printf("  Cause: %s\n", run.FailureReason)
	}
	if run.BackupID != "" {
		fmt.Printf("  Backup: %s\n", run.BackupID)
	}
	if !run.FinishedAt.IsZero() {
		fmt.Printf("  Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(100*time.Millisecond))
		fmt.Printf("  Report: %s\n", filepath.Join(cfg.DataDir, "reports", run.ID+".json"))
	}
}
