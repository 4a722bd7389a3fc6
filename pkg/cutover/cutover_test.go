package cutover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipway-io/slipway/pkg/probe"
	"github.com/slipway-io/slipway/pkg/types"
)

// fakeRouter records upstream writes so tests can assert on revert behavior
type fakeRouter struct {
	mu      sync.Mutex
	port    int
	history []int

	failSet    bool
	failTest   bool
	failReload bool
}

func (f *fakeRouter) SetUpstream(port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return fmt.Errorf("set refused")
	}
	f.port = port
	f.history = append(f.history, port)
	return nil
}

func (f *fakeRouter) Upstream() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.port, f.port != 0
}

func (f *fakeRouter) TestConfig() error {
	if f.failTest {
		return fmt.Errorf("config test refused")
	}
	return nil
}

func (f *fakeRouter) Reload() error {
	if f.failReload {
		return fmt.Errorf("reload refused")
	}
	return nil
}

// scriptProber replays a fixed sequence of states, repeating the last one
type scriptProber struct {
	mu     sync.Mutex
	states []types.HealthState
	calls  int
}

func (s *scriptProber) Probe(ctx context.Context) types.HealthSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.states) {
		i = len(s.states) - 1
	}
	s.calls++
	return types.HealthSample{State: s.states[i], Taken: time.Now()}
}

func (s *scriptProber) Kind() probe.Kind { return probe.KindHTTP }
func (s *scriptProber) Target() string   { return "script" }

func factoryOf(p probe.Prober) probe.Factory {
	return func(types.Slot) probe.Prober { return p }
}

var (
	slotA = types.Slot{ID: types.SlotA, Port: 8001}
	slotB = types.Slot{ID: types.SlotB, Port: 8002}
)

func TestSwitchSuccess(t *testing.T) {
	r := &fakeRouter{}
	p := &scriptProber{states: []types.HealthState{types.HealthHealthy}}
	c := NewCoordinator(r, factoryOf(p), 300*time.Millisecond, 50*time.Millisecond)

	start := time.Now()
	err := c.Switch(context.Background(), &slotA, slotB)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, PhaseSwitched, c.Phase())

	port, ok := r.Upstream()
	require.True(t, ok)
	assert.Equal(t, slotB.Port, port)

	// The full window must elapse before the switch is declared done
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)

	// More than one watchdog sample was taken inside the window
	assert.Greater(t, p.calls, 2)
}

func TestSwitchAbortsOnCritical(t *testing.T) {
	r := &fakeRouter{}
	p := &scriptProber{states: []types.HealthState{
		types.HealthHealthy,
		types.HealthHealthy,
		types.HealthCritical,
	}}
	c := NewCoordinator(r, factoryOf(p), 5*time.Second, 20*time.Millisecond)

	err := c.Switch(context.Background(), &slotA, slotB)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "critical")
	assert.Equal(t, PhaseAborted, c.Phase())

	// Traffic went back to the previous slot before Switch returned
	port, _ := r.Upstream()
	assert.Equal(t, slotA.Port, port)
}

func TestSwitchAbortsOnUnreachable(t *testing.T) {
	r := &fakeRouter{}
	p := &scriptProber{states: []types.HealthState{types.HealthUnreachable}}
	c := NewCoordinator(r, factoryOf(p), 5*time.Second, 20*time.Millisecond)

	start := time.Now()
	err := c.Switch(context.Background(), &slotA, slotB)

	require.Error(t, err)
	assert.Equal(t, PhaseAborted, c.Phase())

	// The very first sample aborts, long before the window ends
	assert.Less(t, time.Since(start), time.Second)

	port, _ := r.Upstream()
	assert.Equal(t, slotA.Port, port)
}

func TestSwitchToleratesDegraded(t *testing.T) {
	r := &fakeRouter{}
	p := &scriptProber{states: []types.HealthState{types.HealthDegraded}}
	c := NewCoordinator(r, factoryOf(p), 200*time.Millisecond, 50*time.Millisecond)

	err := c.Switch(context.Background(), &slotA, slotB)

	require.NoError(t, err)
	assert.Equal(t, PhaseSwitched, c.Phase())
	port, _ := r.Upstream()
	assert.Equal(t, slotB.Port, port)
}

func TestSwitchAbortsOnRouterTestFailure(t *testing.T) {
	r := &fakeRouter{failTest: true}
	p := &scriptProber{states: []types.HealthState{types.HealthHealthy}}
	c := NewCoordinator(r, factoryOf(p), 200*time.Millisecond, 50*time.Millisecond)

	err := c.Switch(context.Background(), &slotA, slotB)

	require.Error(t, err)
	assert.Equal(t, PhaseAborted, c.Phase())
	assert.Zero(t, p.calls, "no watchdog probes before the router is sound")

	port, _ := r.Upstream()
	assert.Equal(t, slotA.Port, port)
}

func TestSwitchCancelledMidWindow(t *testing.T) {
	r := &fakeRouter{}
	p := &scriptProber{states: []types.HealthState{types.HealthHealthy}}
	c := NewCoordinator(r, factoryOf(p), 10*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := c.Switch(ctx, &slotA, slotB)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, PhaseAborted, c.Phase())
	assert.Less(t, time.Since(start), 2*time.Second)

	port, _ := r.Upstream()
	assert.Equal(t, slotA.Port, port)
}

func TestRevertIdempotent(t *testing.T) {
	r := &fakeRouter{}
	p := &scriptProber{states: []types.HealthState{types.HealthCritical}}
	c := NewCoordinator(r, factoryOf(p), time.Second, 20*time.Millisecond)

	err := c.Switch(context.Background(), &slotA, slotB)
	require.Error(t, err)

	afterAbort, _ := r.Upstream()
	require.Equal(t, slotA.Port, afterAbort)

	// Rollback reverts again on top of the abort's revert; the router must
	// land in the identical state every time
	for i := 0; i < 2; i++ {
		require.NoError(t, c.Revert())
		port, _ := r.Upstream()
		assert.Equal(t, slotA.Port, port)
	}
}

func TestRevertWithoutPrevious(t *testing.T) {
	r := &fakeRouter{}
	p := &scriptProber{states: []types.HealthState{types.HealthCritical}}
	c := NewCoordinator(r, factoryOf(p), time.Second, 20*time.Millisecond)

	// Bootstrap deployment: no slot carried traffic before the switch
	err := c.Switch(context.Background(), nil, slotB)
	require.Error(t, err)
	assert.Equal(t, PhaseAborted, c.Phase())

	// Nothing to revert to; the no-op revert must not error
	require.NoError(t, c.Revert())
}
