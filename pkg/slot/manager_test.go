package slot

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/slipway-io/slipway/pkg/probe"
	"github.com/slipway-io/slipway/pkg/types"
)

// stubProber reports a controllable state, decoupling manager tests from
// real listeners
type stubProber struct {
	target string

	mu    sync.Mutex
	state types.HealthState
}

func newStub(target string, state types.HealthState) *stubProber {
	return &stubProber{target: target, state: state}
}

func (s *stubProber) Probe(ctx context.Context) types.HealthSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.HealthSample{
		Target: s.target,
		State:  s.state,
		Taken:  time.Now(),
	}
}

func (s *stubProber) Kind() probe.Kind { return probe.KindTCP }
func (s *stubProber) Target() string   { return s.target }

func (s *stubProber) set(state types.HealthState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

type stubFactory struct {
	a *stubProber
	b *stubProber
}

func (f *stubFactory) factory(slot types.Slot) probe.Prober {
	if slot.ID == types.SlotA {
		return f.a
	}
	return f.b
}

func newTestManager(t *testing.T, f *stubFactory) *Manager {
	t.Helper()
	return NewManager(
		types.Slot{ID: types.SlotA, Port: 18001},
		types.Slot{ID: types.SlotB, Port: 18002},
		f.factory,
		Config{
			DataDir:         t.TempDir(),
			Launch:          types.LaunchSpec{Command: []string{"sleep", "30"}},
			StopGrace:       2 * time.Second,
			PortReleaseWait: 500 * time.Millisecond,
			StartupMaxWait:  2 * time.Second,
			PollInterval:    50 * time.Millisecond,
		},
	)
}

func TestDetectActive_OneSlotAnswering(t *testing.T) {
	f := &stubFactory{
		a: newStub("a", types.HealthHealthy),
		b: newStub("b", types.HealthUnreachable),
	}
	m := newTestManager(t, f)

	active, err := m.DetectActive(context.Background())
	if err != nil {
		t.Fatalf("DetectActive failed: %v", err)
	}
	if active == nil || active.ID != types.SlotA {
		t.Fatalf("Expected slot A active, got %+v", active)
	}
	if active.State != types.SlotStateRunning {
		t.Errorf("Expected running state, got %s", active.State)
	}
}

func TestDetectActive_DegradedStillCountsAsOccupied(t *testing.T) {
	// A struggling active slot is still the active slot
	f := &stubFactory{
		a: newStub("a", types.HealthUnreachable),
		b: newStub("b", types.HealthCritical),
	}
	m := newTestManager(t, f)

	active, err := m.DetectActive(context.Background())
	if err != nil {
		t.Fatalf("DetectActive failed: %v", err)
	}
	if active == nil || active.ID != types.SlotB {
		t.Fatalf("Expected slot B active, got %+v", active)
	}
}

func TestDetectActive_Bootstrap(t *testing.T) {
	f := &stubFactory{
		a: newStub("a", types.HealthUnreachable),
		b: newStub("b", types.HealthUnreachable),
	}
	m := newTestManager(t, f)

	active, err := m.DetectActive(context.Background())
	if err != nil {
		t.Fatalf("DetectActive failed: %v", err)
	}
	if active != nil {
		t.Errorf("Expected no active slot on bootstrap, got %+v", active)
	}
}

func TestDetectActive_BothAnswering(t *testing.T) {
	f := &stubFactory{
		a: newStub("a", types.HealthHealthy),
		b: newStub("b", types.HealthHealthy),
	}
	m := newTestManager(t, f)

	if _, err := m.DetectActive(context.Background()); err == nil {
		t.Error("Expected error when both slots answer")
	}
}

func TestStart_BecomesHealthy(t *testing.T) {
	f := &stubFactory{
		a: newStub("a", types.HealthUnreachable),
		b: newStub("b", types.HealthHealthy),
	}
	m := newTestManager(t, f)

	slot, err := m.Start(context.Background(), types.SlotB)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		f.b.set(types.HealthUnreachable)
		_ = m.Stop(context.Background(), types.SlotB)
	}()

	if slot.PID <= 0 {
		t.Error("Expected a recorded PID")
	}
	if slot.State != types.SlotStateRunning {
		t.Errorf("Expected running state, got %s", slot.State)
	}
	if !Attach(slot.PID).Alive() {
		t.Error("Expected slot process alive")
	}

	pid, err := m.readPIDFile(types.SlotB)
	if err != nil || pid != slot.PID {
		t.Errorf("Expected pid file with %d, got %d (%v)", slot.PID, pid, err)
	}
}

func TestStart_NeverHealthy(t *testing.T) {
	f := &stubFactory{
		a: newStub("a", types.HealthUnreachable),
		b: newStub("b", types.HealthCritical),
	}
	m := newTestManager(t, f)

	_, err := m.Start(context.Background(), types.SlotB)
	if err == nil {
		t.Fatal("Expected error for a candidate that never becomes healthy")
	}

	// The failed candidate is cleaned up, not leaked
	if _, err := m.readPIDFile(types.SlotB); err == nil {
		t.Error("Expected pid file removed after failed start")
	}
}

func TestStart_PortBusy(t *testing.T) {
	f := &stubFactory{
		a: newStub("a", types.HealthUnreachable),
		b: newStub("b", types.HealthHealthy),
	}
	m := newTestManager(t, f)

	// A process the manager never started owns the slot port
	squatter, err := net.Listen("tcp", "127.0.0.1:18002")
	if err != nil {
		t.Fatalf("Failed to bind squatter listener: %v", err)
	}
	defer squatter.Close()

	_, err = m.Start(context.Background(), types.SlotB)
	if !errors.Is(err, ErrPortBusy) {
		t.Fatalf("Expected ErrPortBusy, got: %v", err)
	}
}

func TestStart_TerminatesStaleProcess(t *testing.T) {
	f := &stubFactory{
		a: newStub("a", types.HealthUnreachable),
		b: newStub("b", types.HealthHealthy),
	}
	m := newTestManager(t, f)

	// A crashed earlier run left a live process and its pid file behind
	stale, err := Launch(types.LaunchSpec{Command: []string{"sleep", "30"}}, 18002, m.logPath(types.SlotB))
	if err != nil {
		t.Fatalf("Failed to launch stale process: %v", err)
	}
	if err := m.writePIDFile(types.SlotB, stale.PID()); err != nil {
		t.Fatalf("Failed to write stale pid file: %v", err)
	}

	slot, err := m.Start(context.Background(), types.SlotB)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		f.b.set(types.HealthUnreachable)
		_ = m.Stop(context.Background(), types.SlotB)
	}()

	if stale.Alive() {
		t.Error("Expected stale process terminated")
	}
	if slot.PID == stale.PID() {
		t.Error("Expected a fresh process, not the stale one")
	}
}

func TestStop_Idempotent(t *testing.T) {
	f := &stubFactory{
		a: newStub("a", types.HealthUnreachable),
		b: newStub("b", types.HealthUnreachable),
	}
	m := newTestManager(t, f)

	// No pid file, silent port: nothing to do
	if err := m.Stop(context.Background(), types.SlotA); err != nil {
		t.Errorf("Stopping a stopped slot must be a no-op, got: %v", err)
	}
	if err := m.Stop(context.Background(), types.SlotA); err != nil {
		t.Errorf("Second stop must also be a no-op, got: %v", err)
	}
}

func TestStop_RefusesUnmanagedProcess(t *testing.T) {
	// Port answers but no pid file: not ours to kill
	f := &stubFactory{
		a: newStub("a", types.HealthHealthy),
		b: newStub("b", types.HealthUnreachable),
	}
	m := newTestManager(t, f)

	if err := m.Stop(context.Background(), types.SlotA); err == nil {
		t.Error("Expected error for unmanaged process on slot port")
	}
}

func TestStop_TerminatesRecordedProcess(t *testing.T) {
	f := &stubFactory{
		a: newStub("a", types.HealthUnreachable),
		b: newStub("b", types.HealthHealthy),
	}
	m := newTestManager(t, f)

	slot, err := m.Start(context.Background(), types.SlotB)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Process stops answering once terminated
	f.b.set(types.HealthUnreachable)

	if err := m.Stop(context.Background(), types.SlotB); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if Attach(slot.PID).Alive() {
		t.Error("Expected process dead after stop")
	}
	if _, err := os.Stat(filepath.Join(m.cfg.DataDir, "slot-b.pid")); !os.IsNotExist(err) {
		t.Error("Expected pid file removed after stop")
	}
}

func TestStatus(t *testing.T) {
	f := &stubFactory{
		a: newStub("a", types.HealthHealthy),
		b: newStub("b", types.HealthUnreachable),
	}
	m := newTestManager(t, f)

	a := m.Status(context.Background(), types.SlotA)
	if a.State != types.SlotStateRunning {
		t.Errorf("Expected A running, got %s", a.State)
	}

	b := m.Status(context.Background(), types.SlotB)
	if b.State != types.SlotStateStopped {
		t.Errorf("Expected B stopped, got %s", b.State)
	}
}
