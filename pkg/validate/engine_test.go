package validate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipway-io/slipway/pkg/types"
)

func passCheck(name string, weight int) CheckSpec {
	return CheckSpec{
		Name:     name,
		Category: types.CategorySystem,
		Weight:   weight,
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			return types.CheckPass, "ok"
		},
	}
}

func failCheck(name string, weight int) CheckSpec {
	return CheckSpec{
		Name:     name,
		Category: types.CategoryStructure,
		Weight:   weight,
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			return types.CheckFail, "broken"
		},
	}
}

func warnCheck(name string) CheckSpec {
	return CheckSpec{
		Name:     name,
		Category: types.CategorySystem,
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			return types.CheckWarn, "iffy"
		},
	}
}

func TestRun_AllChecksAlwaysRun(t *testing.T) {
	ran := []string{}
	e := NewEngine(false)

	for _, name := range []string{"first", "second", "third"} {
		name := name
		outcome := types.CheckPass
		if name == "first" {
			outcome = types.CheckFail
		}
		require.NoError(t, e.Register(CheckSpec{
			Name:     name,
			Category: types.CategorySystem,
			Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
				ran = append(ran, name)
				return outcome, ""
			},
		}))
	}

	report := e.Run(context.Background(), &Env{Phase: types.PhasePreDeploy})

	// The early failure does not short-circuit the battery
	assert.Len(t, ran, 3)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Passed)
	assert.Equal(t, types.GateNotReady, report.Decision)
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	e := NewEngine(false)
	require.NoError(t, e.Register(passCheck("fine", 1)))
	require.NoError(t, e.Register(CheckSpec{
		Name:     "explosive",
		Category: types.CategoryDatabase,
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			panic("boom")
		},
	}))
	require.NoError(t, e.Register(passCheck("also-fine", 1)))

	report := e.Run(context.Background(), &Env{Phase: types.PhasePreDeploy})

	require.Len(t, report.Checks, 3)
	assert.Equal(t, 2, report.Passed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, types.GateNotReady, report.Decision)

	for _, c := range report.Checks {
		if c.Name == "explosive" {
			assert.Equal(t, types.CheckFail, c.Outcome)
			assert.Contains(t, c.Detail, "panicked")
		}
	}
}

func TestRun_WeightedScore(t *testing.T) {
	e := NewEngine(false)
	require.NoError(t, e.Register(passCheck("heavy", 3)))
	require.NoError(t, e.Register(failCheck("light", 1)))

	report := e.Run(context.Background(), &Env{Phase: types.PhasePreDeploy})

	// 3 of 4 weight passed
	assert.InDelta(t, 75.0, report.Score, 0.001)
}

func TestRun_WarningsDoNotCountAsPassed(t *testing.T) {
	e := NewEngine(false)
	require.NoError(t, e.Register(passCheck("good", 1)))
	require.NoError(t, e.Register(warnCheck("meh")))

	report := e.Run(context.Background(), &Env{Phase: types.PhasePreDeploy})

	assert.InDelta(t, 50.0, report.Score, 0.001)
	assert.Equal(t, types.GateReady, report.Decision)
}

func TestRun_StrictEscalatesWarnings(t *testing.T) {
	relaxed := NewEngine(false)
	require.NoError(t, relaxed.Register(warnCheck("meh")))
	assert.Equal(t, types.GateReady,
		relaxed.Run(context.Background(), &Env{Phase: types.PhasePreDeploy}).Decision)

	strict := NewEngine(true)
	require.NoError(t, strict.Register(warnCheck("meh")))
	assert.Equal(t, types.GateNotReady,
		strict.Run(context.Background(), &Env{Phase: types.PhasePreDeploy}).Decision)
}

func TestRun_EmptyBattery(t *testing.T) {
	e := NewEngine(true)
	report := e.Run(context.Background(), &Env{Phase: types.PhasePreDeploy})

	assert.Equal(t, types.GateReady, report.Decision)
	assert.InDelta(t, 100.0, report.Score, 0.001)
}

func TestRun_PhaseFiltering(t *testing.T) {
	e := NewEngine(false)
	require.NoError(t, e.Register(passCheck("both-phases", 1)))
	require.NoError(t, e.Register(CheckSpec{
		Name:     "post-only",
		Category: types.CategoryService,
		Phases:   []types.ValidationPhase{types.PhasePostDeploy},
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			return types.CheckPass, ""
		},
	}))

	pre := e.Run(context.Background(), &Env{Phase: types.PhasePreDeploy})
	assert.Len(t, pre.Checks, 1)

	post := e.Run(context.Background(), &Env{Phase: types.PhasePostDeploy})
	assert.Len(t, post.Checks, 2)
}

func TestRun_AddingPassingCheckNeverHurts(t *testing.T) {
	base := NewEngine(false)
	require.NoError(t, base.Register(passCheck("a", 1)))
	require.NoError(t, base.Register(warnCheck("w")))
	before := base.Run(context.Background(), &Env{Phase: types.PhasePreDeploy})

	grown := NewEngine(false)
	require.NoError(t, grown.Register(passCheck("a", 1)))
	require.NoError(t, grown.Register(warnCheck("w")))
	require.NoError(t, grown.Register(passCheck("b", 2)))
	after := grown.Run(context.Background(), &Env{Phase: types.PhasePreDeploy})

	assert.GreaterOrEqual(t, after.Score, before.Score)
	assert.Equal(t, types.GateReady, after.Decision)
}

func TestRegister_Validation(t *testing.T) {
	e := NewEngine(false)

	assert.Error(t, e.Register(CheckSpec{Category: types.CategorySystem}), "nameless check")
	assert.Error(t, e.Register(CheckSpec{Name: "norun", Category: types.CategorySystem}), "check without Run")
	assert.Error(t, e.Register(CheckSpec{
		Name:     "badcat",
		Category: "astrology",
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			return types.CheckPass, ""
		},
	}), "unknown category")

	require.NoError(t, e.Register(passCheck("dup", 1)))
	assert.Error(t, e.Register(passCheck("dup", 1)), "duplicate name")
}

func TestChecks_CategoryOrder(t *testing.T) {
	e := NewEngine(false)
	require.NoError(t, e.Register(CheckSpec{
		Name:     "net",
		Category: types.CategoryNetwork,
		Run:      func(ctx context.Context, env *Env) (types.CheckOutcome, string) { return types.CheckPass, "" },
	}))
	require.NoError(t, e.Register(CheckSpec{
		Name:     "sys",
		Category: types.CategorySystem,
		Run:      func(ctx context.Context, env *Env) (types.CheckOutcome, string) { return types.CheckPass, "" },
	}))

	ordered := e.Checks()
	require.Len(t, ordered, 2)
	assert.Equal(t, "sys", ordered[0].Name, "system runs before network")
	assert.Equal(t, "net", ordered[1].Name)
}
