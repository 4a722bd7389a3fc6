package slot

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/slipway-io/slipway/pkg/types"
)

// Process is a supervised handle on a slot's service process. A handle is
// either owned (launched by this invocation) or attached (recovered from a
// PID file written by an earlier invocation); both stop the same way.
//
// Launched processes run in their own session with output redirected to a
// log file, so they survive Slipway exiting.
type Process struct {
	pid     int
	cmd     *exec.Cmd
	logPath string
}

// Launch starts the service process for a slot. The literal "{port}" in
// the command is replaced with the port, and PORT=<port> is appended to
// the environment. Stdout and stderr go to logPath.
func Launch(spec types.LaunchSpec, port int, logPath string) (*Process, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("empty launch command")
	}

	argv := substitutePort(spec.Command, port)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("PORT=%d", port))

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open slot log: %w", err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	// Own session: the service must outlive the deploy invocation
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	// The child holds its own descriptor
	logFile.Close()

	p := &Process{
		pid:     cmd.Process.Pid,
		cmd:     cmd,
		logPath: logPath,
	}

	// Reap the child if it exits while we are still around
	go func() {
		_ = cmd.Wait()
	}()

	return p, nil
}

// Attach recovers a handle on a process from its recorded PID
func Attach(pid int) *Process {
	return &Process{pid: pid}
}

// PID returns the process ID
func (p *Process) PID() int {
	return p.pid
}

// LogPath returns the slot log file, when launched by this invocation
func (p *Process) LogPath() string {
	return p.logPath
}

// Alive reports whether the process still exists
func (p *Process) Alive() bool {
	if p.pid <= 0 {
		return false
	}
	return syscall.Kill(p.pid, syscall.Signal(0)) == nil
}

// Terminate stops the process: SIGTERM, a bounded wait for exit, then
// SIGKILL. Terminating an already-gone process is not an error.
func (p *Process) Terminate(grace time.Duration) error {
	if !p.Alive() {
		return nil
	}

	if err := syscall.Kill(p.pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !p.Alive() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := syscall.Kill(p.pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}

	for i := 0; i < 50; i++ {
		if !p.Alive() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("process %d survived SIGKILL", p.pid)
}

// substitutePort replaces the "{port}" placeholder in every argument
func substitutePort(command []string, port int) []string {
	argv := make([]string, len(command))
	for i, arg := range command {
		argv[i] = strings.ReplaceAll(arg, "{port}", strconv.Itoa(port))
	}
	return argv
}
