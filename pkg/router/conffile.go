package router

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/slipway-io/slipway/pkg/log"
)

const confHeader = "# Managed by slipway. Edits are overwritten on every deployment."

// ConfFileRouter drives an external reverse proxy (nginx or compatible) by
// rewriting an upstream include file and invoking the proxy's own test and
// reload commands.
type ConfFileRouter struct {
	path      string
	service   string
	testCmd   []string
	reloadCmd []string
	logger    zerolog.Logger

	mu      sync.Mutex
	current int
}

// NewConfFileRouter creates a router writing to the given conf file path. An
// existing file is parsed so the current upstream survives across
// invocations.
func NewConfFileRouter(path string) *ConfFileRouter {
	r := &ConfFileRouter{
		path:    path,
		service: "slipway",
		logger:  log.WithComponent("router"),
	}
	if port, err := parseUpstream(path); err == nil {
		r.current = port
	}
	return r
}

// WithService sets the service name used for the upstream block.
func (r *ConfFileRouter) WithService(name string) *ConfFileRouter {
	if name != "" {
		r.service = name
	}
	return r
}

// WithTestCommand sets the command run by TestConfig, e.g. ["nginx", "-t"].
func (r *ConfFileRouter) WithTestCommand(cmd []string) *ConfFileRouter {
	r.testCmd = cmd
	return r
}

// WithReloadCommand sets the command run by Reload, e.g.
// ["nginx", "-s", "reload"].
func (r *ConfFileRouter) WithReloadCommand(cmd []string) *ConfFileRouter {
	r.reloadCmd = cmd
	return r
}

// SetUpstream rewrites the conf file to point at the given port. The file is
// written to a temp name and renamed so the proxy never reads a half-written
// config.
func (r *ConfFileRouter) SetUpstream(port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	content := fmt.Sprintf("%s\nupstream %s_upstream {\n    server 127.0.0.1:%d;\n}\n",
		confHeader, r.service, port)

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create router conf directory: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write router conf: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to install router conf: %w", err)
	}

	r.current = port
	r.logger.Info().Int("port", port).Str("conf", r.path).Msg("upstream updated")
	return nil
}

// Upstream reports the port the conf file currently points at.
func (r *ConfFileRouter) Upstream() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.current != 0
}

// TestConfig runs the configured test command. With no command configured it
// only verifies the conf file exists.
func (r *ConfFileRouter) TestConfig() error {
	if len(r.testCmd) == 0 {
		if _, err := os.Stat(r.path); err != nil {
			return fmt.Errorf("router conf missing: %w", err)
		}
		return nil
	}

	out, err := exec.Command(r.testCmd[0], r.testCmd[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("router config test failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Reload runs the configured reload command. With no command configured the
// rewrite alone is assumed sufficient (the proxy re-reads the file itself).
func (r *ConfFileRouter) Reload() error {
	if len(r.reloadCmd) == 0 {
		return nil
	}

	out, err := exec.Command(r.reloadCmd[0], r.reloadCmd[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("router reload failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	r.logger.Debug().Msg("router reloaded")
	return nil
}

// parseUpstream extracts the server port from a previously written conf file.
func parseUpstream(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "server 127.0.0.1:") {
			continue
		}
		portStr := strings.TrimSuffix(strings.TrimPrefix(line, "server 127.0.0.1:"), ";")
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return 0, fmt.Errorf("unparseable upstream line %q: %w", line, err)
		}
		return port, nil
	}
	return 0, fmt.Errorf("no upstream server line in %s", path)
}
