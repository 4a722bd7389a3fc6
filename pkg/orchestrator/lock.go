package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/slipway-io/slipway/pkg/log"
	"github.com/slipway-io/slipway/pkg/slot"
)

// lockFile serializes deployments per data directory. A second deploy
// or rollback fails fast instead of queueing behind a running one.
const lockFile = "deploy.lock"

type deployLock struct {
	path string
}

// acquireLock takes the exclusive deployment lock. The lock file holds
// the owner's PID; a file left behind by a dead process is detected by
// PID liveness and replaced.
func acquireLock(dataDir string) (*deployLock, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	path := filepath.Join(dataDir, lockFile)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return &deployLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		pid, readErr := readLockPID(path)
		if readErr == nil && pid > 0 && slot.Attach(pid).Alive() {
			return nil, fmt.Errorf("deployment already in progress (pid %d holds %s)", pid, path)
		}

		// Stale lock from a dead process
		logger := log.WithComponent("orchestrator")
		logger.Warn().
			Str("lock", path).
			Int("pid", pid).
			Msg("Removing stale deployment lock")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	return nil, fmt.Errorf("failed to acquire deployment lock at %s", path)
}

// Release removes the lock file
func (l *deployLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func readLockPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
