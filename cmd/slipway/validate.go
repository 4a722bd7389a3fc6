package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slipway-io/slipway/pkg/orchestrator"
	"github.com/slipway-io/slipway/pkg/types"
	"github.com/slipway-io/slipway/pkg/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the readiness gate without deploying",
	Long: `Validate runs the same check battery a deployment runs, without
touching anything. The pre phase checks that the idle slot is ready to
receive a candidate; the post phase checks that the slot serving live
traffic is healthy.

Examples:
  # Can the next deployment proceed?
  slipway validate --phase pre

  # Is the live deployment healthy?
  slipway validate --phase post --strict`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().String("phase", "pre", "Validation phase: pre or post")
	validateCmd.Flags().Bool("strict", false, "Escalate warnings to failures")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	phaseArg, _ := cmd.Flags().GetString("phase")
	strictFlag, _ := cmd.Flags().GetBool("strict")

	var phase types.ValidationPhase
	switch phaseArg {
	case "pre":
		phase = types.PhasePreDeploy
	case "post":
		phase = types.PhasePostDeploy
	default:
		return fmt.Errorf("unknown phase %q (want pre or post)", phaseArg)
	}

	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.broker.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	active, err := app.slots.DetectActive(ctx)
	if err != nil {
		return err
	}

	// The pre phase examines the slot the next deployment would use, the
	// post phase examines the slot serving right now
	var candidate types.Slot
	switch {
	case phase == types.PhasePostDeploy:
		if active == nil {
			return fmt.Errorf("no active slot: nothing is serving, so there is nothing to validate post-deployment")
		}
		candidate = *active
	case active != nil:
		candidate = app.slots.Slot(active.ID.Other())
	default:
		candidate = app.slots.Slot(types.SlotA)
	}

	strict := strictFlag || app.cfg.Validation.Strict
	gate := validate.DefaultEngine(strict)

	fmt.Printf("Validating %s (phase %s, slot %s)\n\n", app.cfg.Service, phase, candidate.ID)

	report := gate.Run(ctx, orchestrator.ValidationEnv(app.cfg, phase, candidate, active))
	printReport(report)

	if !report.Ready() {
		return fmt.Errorf("validation gate: not ready (%d failed, %d warned)", report.Failed, report.Warned)
	}
	fmt.Println("✓ Validation gate: ready")
	return nil
}

func printReport(report *types.ValidationReport) {
	for _, check := range report.Checks {
		marker := "✓"
		switch check.Outcome {
		case types.CheckFail:
			marker = "✗"
		case types.CheckWarn:
			marker = "!"
		}
		if check.Detail != "" {
			fmt.Printf("  %s %-24s %s\n", marker, check.Name, check.Detail)
		} else {
			fmt.Printf("  %s %s\n", marker, check.Name)
		}
	}
	fmt.Println()
	fmt.Printf("Score: %.0f/100 (%d passed, %d failed, %d warned)\n",
		report.Score, report.Passed, report.Failed, report.Warned)
	fmt.Printf("Decision: %s\n\n", report.Decision)
}
