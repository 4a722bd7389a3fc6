package validate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/slipway-io/slipway/pkg/log"
	"github.com/slipway-io/slipway/pkg/types"
)

// Env carries the deployment context checks run against. The orchestrator
// fills it per phase; checks only read it.
type Env struct {
	Phase         types.ValidationPhase
	Service       string
	CandidateSlot types.Slot

	// ActiveSlot is nil during first bootstrap
	ActiveSlot *types.Slot

	DataDir       string
	DatastorePath string
	Components    []types.BackupComponent
	MinFreeDiskMB int64

	// HealthURL is the candidate's health endpoint (post phase)
	HealthURL string

	// RequiredCommands must resolve on PATH
	RequiredCommands []string
}

// CheckFunc runs one check and reports its outcome with a detail line
type CheckFunc func(ctx context.Context, env *Env) (types.CheckOutcome, string)

// CheckSpec declares one registered check
type CheckSpec struct {
	// Name uniquely identifies the check within the engine
	Name string

	// Category orders execution: cheap filesystem categories run before
	// network round-trips
	Category types.CheckCategory

	// Weight is the check's share of the readiness score (default 1)
	Weight int

	// Critical marks checks whose failure warrants operator attention
	// first; it does not change the gate decision
	Critical bool

	// Phases restricts the check to given phases (empty = all)
	Phases []types.ValidationPhase

	// Run executes the check
	Run CheckFunc
}

// categoryRank fixes the execution order of categories
var categoryRank = map[types.CheckCategory]int{
	types.CategorySystem:    0,
	types.CategoryStructure: 1,
	types.CategorySecurity:  2,
	types.CategoryDeps:      3,
	types.CategoryDatabase:  4,
	types.CategoryNetwork:   5,
	types.CategoryService:   6,
}

// Engine runs a registered battery of checks and aggregates the outcome
// into a gate decision. Every applicable check always runs: a failure
// never short-circuits the battery, so one pass reports everything wrong
// at once.
type Engine struct {
	checks []CheckSpec
	strict bool
	logger zerolog.Logger
}

// NewEngine creates an empty validation engine
func NewEngine(strict bool) *Engine {
	return &Engine{
		strict: strict,
		logger: log.WithComponent("validate"),
	}
}

// Register adds a check to the battery
func (e *Engine) Register(spec CheckSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("check name is required")
	}
	if spec.Run == nil {
		return fmt.Errorf("check %s has no run function", spec.Name)
	}
	if _, ok := categoryRank[spec.Category]; !ok {
		return fmt.Errorf("check %s has unknown category %q", spec.Name, spec.Category)
	}
	for _, existing := range e.checks {
		if existing.Name == spec.Name {
			return fmt.Errorf("check %s already registered", spec.Name)
		}
	}
	if spec.Weight <= 0 {
		spec.Weight = 1
	}

	e.checks = append(e.checks, spec)
	return nil
}

// MustRegister registers a check and panics on a bad spec. Intended for
// the built-in battery where a bad spec is a programming error.
func (e *Engine) MustRegister(spec CheckSpec) {
	if err := e.Register(spec); err != nil {
		panic(err)
	}
}

// Checks returns the registered specs in execution order
func (e *Engine) Checks() []CheckSpec {
	ordered := append([]CheckSpec(nil), e.checks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return categoryRank[ordered[i].Category] < categoryRank[ordered[j].Category]
	})
	return ordered
}

// Run executes every check applicable to the phase and aggregates the
// report. A panicking check is recorded as failed, never propagated.
func (e *Engine) Run(ctx context.Context, env *Env) *types.ValidationReport {
	started := time.Now()

	report := &types.ValidationReport{
		Phase:     env.Phase,
		Strict:    e.strict,
		StartedAt: started,
	}

	for _, spec := range e.Checks() {
		if !spec.applies(env.Phase) {
			continue
		}

		outcome, detail := e.runOne(ctx, spec, env)

		report.Checks = append(report.Checks, types.ValidationCheck{
			Name:     spec.Name,
			Category: spec.Category,
			Outcome:  outcome,
			Detail:   detail,
			Critical: spec.Critical,
			Weight:   spec.Weight,
		})

		e.logger.Debug().
			Str("check", spec.Name).
			Str("outcome", string(outcome)).
			Str("detail", detail).
			Msg("check complete")
	}

	report.Passed = lo.CountBy(report.Checks, func(c types.ValidationCheck) bool {
		return c.Outcome == types.CheckPass
	})
	report.Failed = lo.CountBy(report.Checks, func(c types.ValidationCheck) bool {
		return c.Outcome == types.CheckFail
	})
	report.Warned = lo.CountBy(report.Checks, func(c types.ValidationCheck) bool {
		return c.Outcome == types.CheckWarn
	})

	report.Score = score(report.Checks)
	report.Decision = e.decide(report)
	report.Duration = time.Since(started)

	e.logger.Info().
		Str("phase", string(env.Phase)).
		Int("passed", report.Passed).
		Int("failed", report.Failed).
		Int("warned", report.Warned).
		Float64("score", report.Score).
		Str("decision", string(report.Decision)).
		Msg("validation complete")

	return report
}

// runOne executes a single check, converting a panic into a failure
func (e *Engine) runOne(ctx context.Context, spec CheckSpec, env *Env) (outcome types.CheckOutcome, detail string) {
	defer func() {
		if r := recover(); r != nil {
			outcome = types.CheckFail
			detail = fmt.Sprintf("check panicked: %v", r)
			e.logger.Error().
				Str("check", spec.Name).
				Interface("panic", r).
				Msg("check panicked")
		}
	}()

	return spec.Run(ctx, env)
}

// score is the weighted share of passing checks, in percent. An empty
// battery scores 100: nothing objected.
func score(checks []types.ValidationCheck) float64 {
	total := lo.SumBy(checks, func(c types.ValidationCheck) int { return c.Weight })
	if total == 0 {
		return 100
	}

	passed := lo.SumBy(
		lo.Filter(checks, func(c types.ValidationCheck, _ int) bool {
			return c.Outcome == types.CheckPass
		}),
		func(c types.ValidationCheck) int { return c.Weight },
	)

	return 100 * float64(passed) / float64(total)
}

// decide maps aggregate outcomes to the gate decision. Any failure blocks;
// in strict mode warnings block too.
func (e *Engine) decide(report *types.ValidationReport) types.GateDecision {
	if report.Failed > 0 {
		return types.GateNotReady
	}
	if e.strict && report.Warned > 0 {
		return types.GateNotReady
	}
	return types.GateReady
}

func (s CheckSpec) applies(phase types.ValidationPhase) bool {
	if len(s.Phases) == 0 {
		return true
	}
	return lo.Contains(s.Phases, phase)
}
