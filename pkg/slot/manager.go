package slot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/slipway-io/slipway/pkg/log"
	"github.com/slipway-io/slipway/pkg/probe"
	"github.com/slipway-io/slipway/pkg/types"
)

// ErrPortBusy reports a slot port bound by a process the manager does not
// own, so nothing can be started there safely.
var ErrPortBusy = errors.New("slot port busy")

// Config tunes the manager's timing
type Config struct {
	// DataDir holds PID files and slot logs
	DataDir string

	// Launch describes how to start the service process
	Launch types.LaunchSpec

	// StopGrace is the SIGTERM-to-SIGKILL window
	StopGrace time.Duration

	// PortReleaseWait bounds waiting for a port to free up
	PortReleaseWait time.Duration

	// StartupMaxWait bounds waiting for a started slot to become healthy
	StartupMaxWait time.Duration

	// PollInterval is the cadence of startup and release polling
	PollInterval time.Duration
}

// Manager owns the two runtime slots: it detects which one serves live
// traffic and drives candidate starts and drained-slot stops. All process
// handling goes through supervised handles; the manager never guesses at
// PIDs it did not record.
type Manager struct {
	slotA   types.Slot
	slotB   types.Slot
	probers probe.Factory
	cfg     Config
	logger  zerolog.Logger
}

// NewManager creates a slot manager for the two fixed slots. The prober
// factory carries how each slot is health checked; the manager never
// decides that itself.
func NewManager(slotA, slotB types.Slot, probers probe.Factory, cfg Config) *Manager {
	if cfg.StopGrace == 0 {
		cfg.StopGrace = 10 * time.Second
	}
	if cfg.PortReleaseWait == 0 {
		cfg.PortReleaseWait = 5 * time.Second
	}
	if cfg.StartupMaxWait == 0 {
		cfg.StartupMaxWait = 60 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Second
	}

	return &Manager{
		slotA:   slotA,
		slotB:   slotB,
		probers: probers,
		cfg:     cfg,
		logger:  log.WithComponent("slot"),
	}
}

// Slot returns the configured slot value for an ID
func (m *Manager) Slot(id types.SlotID) types.Slot {
	if id == types.SlotA {
		return m.slotA
	}
	return m.slotB
}

// DetectActive probes both slots concurrently and reports which one is
// serving. Exactly one slot answering is the steady state; none answering
// means first bootstrap (nil, nil). Both answering is a split state the
// orchestrator must refuse to deploy into.
func (m *Manager) DetectActive(ctx context.Context) (*types.Slot, error) {
	slots := []types.Slot{m.slotA, m.slotB}
	samples := make([]types.HealthSample, len(slots))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range slots {
		g.Go(func() error {
			samples[i] = m.probers(s).Probe(gctx)
			return nil
		})
	}
	_ = g.Wait()

	occupied := []int{}
	for i, sample := range samples {
		if sample.State != types.HealthUnreachable {
			occupied = append(occupied, i)
		}
	}

	switch len(occupied) {
	case 0:
		m.logger.Info().Msg("no slot answering, first bootstrap")
		return nil, nil
	case 1:
		active := slots[occupied[0]]
		active.State = types.SlotStateRunning
		if pid, err := m.readPIDFile(active.ID); err == nil {
			active.PID = pid
		}
		m.logger.Info().
			Str("slot", string(active.ID)).
			Str("health", string(samples[occupied[0]].State)).
			Msg("active slot detected")
		return &active, nil
	default:
		return nil, fmt.Errorf("both slots answering (ports %d and %d), refusing to guess",
			m.slotA.Port, m.slotB.Port)
	}
}

// Start launches the service process in a slot and waits for it to become
// healthy. A stale process recorded for the slot is terminated first, and
// the port is given a bounded grace window to free up before launch.
func (m *Manager) Start(ctx context.Context, id types.SlotID) (*types.Slot, error) {
	slot := m.Slot(id)
	logger := m.logger.With().Str("slot", string(id)).Logger()

	// A failed earlier run may have left its candidate behind
	if pid, err := m.readPIDFile(id); err == nil {
		stale := Attach(pid)
		if stale.Alive() {
			logger.Warn().Int("pid", pid).Msg("terminating stale slot process")
			if err := stale.Terminate(m.cfg.StopGrace); err != nil {
				return nil, fmt.Errorf("stale process in slot %s would not die: %w", id, err)
			}
		}
		_ = m.removePIDFile(id)
	}

	// Give a just-stopped predecessor time to release the port
	tcp := probe.NewTCPProber(slot.Addr()).WithTimeout(time.Second)
	if _, err := probe.AwaitUnreachable(ctx, tcp, m.cfg.PortReleaseWait, m.cfg.PollInterval); err != nil {
		return nil, fmt.Errorf("%w: port %d held by an unmanaged process: %w", ErrPortBusy, slot.Port, err)
	}

	proc, err := Launch(m.cfg.Launch, slot.Port, m.logPath(id))
	if err != nil {
		return nil, fmt.Errorf("failed to launch slot %s: %w", id, err)
	}
	logger.Info().Int("pid", proc.PID()).Int("port", slot.Port).Msg("slot process launched")

	if err := m.writePIDFile(id, proc.PID()); err != nil {
		_ = proc.Terminate(m.cfg.StopGrace)
		return nil, err
	}

	sample, err := probe.AwaitHealthy(ctx, m.probers(slot), m.cfg.StartupMaxWait, m.cfg.PollInterval)
	if err != nil {
		logger.Error().
			Str("last_state", string(sample.State)).
			Str("detail", sample.Detail).
			Str("log", m.logPath(id)).
			Msg("slot never became healthy, terminating")
		_ = proc.Terminate(m.cfg.StopGrace)
		_ = m.removePIDFile(id)
		return nil, fmt.Errorf("slot %s failed to become healthy: %w", id, err)
	}

	logger.Info().
		Dur("latency", sample.Latency).
		Msg("slot healthy")

	slot.PID = proc.PID()
	slot.State = types.SlotStateRunning
	return &slot, nil
}

// Stop drains a slot: graceful SIGTERM with a KILL escalation, then a
// bounded wait for the port to be released. Stopping a slot with no
// recorded process and a silent port is a no-op.
func (m *Manager) Stop(ctx context.Context, id types.SlotID) error {
	slot := m.Slot(id)
	logger := m.logger.With().Str("slot", string(id)).Logger()

	pid, err := m.readPIDFile(id)
	if err != nil {
		// Nothing recorded. If the port is silent the slot is already
		// stopped; if something is bound there it is not ours to kill.
		sample := m.probers(slot).Probe(ctx)
		if sample.State == types.HealthUnreachable {
			return nil
		}
		return fmt.Errorf("slot %s port %d bound but no recorded process", id, slot.Port)
	}

	proc := Attach(pid)
	if proc.Alive() {
		logger.Info().Int("pid", pid).Msg("stopping slot process")
		if err := proc.Terminate(m.cfg.StopGrace); err != nil {
			return fmt.Errorf("failed to stop slot %s: %w", id, err)
		}
	}

	if err := m.removePIDFile(id); err != nil {
		return err
	}

	// Confirm the port actually came free before anyone reuses it
	tcp := probe.NewTCPProber(slot.Addr()).WithTimeout(time.Second)
	if _, err := probe.AwaitUnreachable(ctx, tcp, m.cfg.PortReleaseWait, m.cfg.PollInterval); err != nil {
		return fmt.Errorf("slot %s stopped but port %d still bound: %w", id, slot.Port, err)
	}

	logger.Info().Msg("slot stopped")
	return nil
}

// Status reports a slot's current state from its port and recorded PID
func (m *Manager) Status(ctx context.Context, id types.SlotID) types.Slot {
	slot := m.Slot(id)

	sample := m.probers(slot).Probe(ctx)
	if sample.State == types.HealthUnreachable {
		slot.State = types.SlotStateStopped
	} else {
		slot.State = types.SlotStateRunning
	}

	if pid, err := m.readPIDFile(id); err == nil {
		slot.PID = pid
		if slot.State == types.SlotStateStopped && Attach(pid).Alive() {
			// Process exists but is not answering its port
			slot.State = types.SlotStateFailed
		}
	}

	return slot
}

// LogPath returns the slot's process log file
func (m *Manager) LogPath(id types.SlotID) string {
	return m.logPath(id)
}

func (m *Manager) logPath(id types.SlotID) string {
	return filepath.Join(m.cfg.DataDir, fmt.Sprintf("slot-%s.log", strings.ToLower(string(id))))
}

func (m *Manager) pidPath(id types.SlotID) string {
	return filepath.Join(m.cfg.DataDir, fmt.Sprintf("slot-%s.pid", strings.ToLower(string(id))))
}

func (m *Manager) writePIDFile(id types.SlotID, pid int) error {
	if err := os.MkdirAll(m.cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.WriteFile(m.pidPath(id), []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

func (m *Manager) readPIDFile(id types.SlotID) (int, error) {
	data, err := os.ReadFile(m.pidPath(id))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("corrupt pid file for slot %s: %w", id, err)
	}
	return pid, nil
}

func (m *Manager) removePIDFile(id types.SlotID) error {
	if err := os.Remove(m.pidPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pid file: %w", err)
	}
	return nil
}
