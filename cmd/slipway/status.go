package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/slipway-io/slipway/pkg/store"
	"github.com/slipway-io/slipway/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show slot states, live traffic, and the last run",
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history [RUN_ID]",
	Short: "List recorded runs, or show one run's full audit trail",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Show at most this many runs")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.broker.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Service: %s\n", app.cfg.Service)
	if app.cfg.Environment != "" {
		fmt.Printf("Environment: %s\n", app.cfg.Environment)
	}
	fmt.Println()

	upstream, routed := app.router.Upstream()
	for _, id := range []types.SlotID{types.SlotA, types.SlotB} {
		s := app.slots.Status(ctx, id)
		marker := " "
		if routed && s.Port == upstream {
			marker = "*"
		}
		line := fmt.Sprintf("%s slot %s  port %-6d %s", marker, s.ID, s.Port, s.State)
		if s.PID > 0 {
			line += fmt.Sprintf("  (pid %d)", s.PID)
		}
		fmt.Println(line)
	}

	if routed {
		fmt.Printf("\nTraffic: port %d\n", upstream)
	} else {
		fmt.Println("\nTraffic: not routed")
	}

	last, err := store.ReadLastRun(app.cfg.DataDir)
	if err != nil {
		return err
	}
	if last != nil {
		fmt.Printf("\nLast run: %s\n", last.ID)
		fmt.Printf("  Started: %s\n", last.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Outcome: %s\n", runLabel(last))
		if last.FailureReason != "" {
			fmt.Printf("  Failure: %s\n", last.FailureReason)
		}
	} else {
		fmt.Println("\nLast run: none recorded")
	}

	if backups, err := app.backups.List(); err == nil && len(backups) > 0 {
		fmt.Printf("\nBackups: %d (newest %s)\n", len(backups), backups[0].ID)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.broker.Stop()

	runs, err := store.ReadRuns(app.cfg.DataDir)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		for _, r := range runs {
			if r.ID == args[0] {
				printRunDetail(r)
				return nil
			}
		}
		return fmt.Errorf("run %s not found", args[0])
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}

	fmt.Printf("%-32s %-20s %-16s %-10s %s\n", "RUN", "STARTED", "OUTCOME", "DURATION", "FAILURE STAGE")
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(100 * time.Millisecond).String()
		}
		fmt.Printf("%-32s %-20s %-16s %-10s %s\n",
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			runLabel(r),
			duration,
			r.FailureStage)
	}
	return nil
}

func printRunDetail(r *types.DeploymentRun) {
	fmt.Printf("Run %s\n", r.ID)
	fmt.Printf("  Service: %s\n", r.Service)
	fmt.Printf("  Started: %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	if !r.FinishedAt.IsZero() {
		fmt.Printf("  Finished: %s (%s)\n",
			r.FinishedAt.Format("2006-01-02 15:04:05"),
			r.FinishedAt.Sub(r.StartedAt).Round(100*time.Millisecond))
	}
	fmt.Printf("  Outcome: %s\n", runLabel(r))
	if r.ActiveSlot != "" {
		fmt.Printf("  Slots: active %s, candidate %s\n", r.ActiveSlot, r.CandidateSlot)
	} else {
		fmt.Printf("  Slots: bootstrap, candidate %s\n", r.CandidateSlot)
	}
	if r.BackupID != "" {
		fmt.Printf("  Backup: %s\n", r.BackupID)
	}
	if r.FailureReason != "" {
		fmt.Printf("  Failure: %s\n", r.FailureReason)
	}

	fmt.Println("\nTransitions:")
	for _, tr := range r.Transitions {
		edge := fmt.Sprintf("%s → %s", tr.From, tr.To)
		if tr.From == "" {
			edge = fmt.Sprintf("→ %s", tr.To)
		} else if tr.From == tr.To {
			// In-place audit note, not a stage change
			edge = string(tr.To)
		}
		fmt.Printf("  %s  %-38s %s\n", tr.At.Format("15:04:05"), edge, tr.Reason)
	}

	if r.Validation != nil {
		fmt.Printf("\nValidation (%s): score %.0f, %s\n",
			r.Validation.Phase, r.Validation.Score, r.Validation.Decision)
	}
	if r.PostValidation != nil {
		fmt.Printf("Post-switch validation: score %.0f, %s\n",
			r.PostValidation.Score, r.PostValidation.Decision)
	}
}

func runLabel(r *types.DeploymentRun) string {
	if r.Outcome != "" {
		return string(r.Outcome)
	}
	return "in progress"
}
