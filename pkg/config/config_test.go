package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/slipway-io/slipway/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slipway.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
service: payments
environment: production
data_dir: /tmp/slipway-test
slots:
  a:
    port: 9001
  b:
    port: 9002
launch:
  command: ["./payments", "--port", "{port}"]
  env:
    APP_ENV: production
  dir: /opt/payments
health:
  scheme: http
  path: /healthz
  timeout: 2s
  degraded_after: 750ms
  startup_max_wait: 90s
  poll_interval: 500ms
router:
  mode: conffile
  conf_path: /etc/nginx/upstream.conf
  reload_cmd: ["nginx", "-s", "reload"]
cutover:
  window: 20s
  interval: 1s
backup:
  dir: /tmp/slipway-test/backups
  components:
    - name: database
      path: /opt/payments/data.db
  retain_count: 5
  retain_days: 14
validation:
  strict: true
  min_free_disk_mb: 1024
stop:
  grace_period: 15s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Service != "payments" {
		t.Errorf("Expected service payments, got %q", cfg.Service)
	}
	if cfg.Slots.A.Port != 9001 || cfg.Slots.B.Port != 9002 {
		t.Errorf("Unexpected slot ports: %d/%d", cfg.Slots.A.Port, cfg.Slots.B.Port)
	}
	if cfg.Health.Timeout.Std() != 2*time.Second {
		t.Errorf("Expected timeout 2s, got %v", cfg.Health.Timeout.Std())
	}
	if cfg.Health.DegradedAfter.Std() != 750*time.Millisecond {
		t.Errorf("Expected degraded_after 750ms, got %v", cfg.Health.DegradedAfter.Std())
	}
	if cfg.Cutover.Window.Std() != 20*time.Second {
		t.Errorf("Expected cutover window 20s, got %v", cfg.Cutover.Window.Std())
	}
	if !cfg.Validation.Strict {
		t.Error("Expected strict validation")
	}
	if len(cfg.Backup.Components) != 1 || cfg.Backup.Components[0].Name != "database" {
		t.Errorf("Unexpected backup components: %+v", cfg.Backup.Components)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
service: payments
launch:
  command: ["./payments"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Slots.A.Port != 8001 || cfg.Slots.B.Port != 8002 {
		t.Errorf("Expected default ports 8001/8002, got %d/%d", cfg.Slots.A.Port, cfg.Slots.B.Port)
	}
	if cfg.Health.Scheme != "http" || cfg.Health.Path != "/health" {
		t.Errorf("Unexpected health defaults: %s %s", cfg.Health.Scheme, cfg.Health.Path)
	}
	if cfg.Health.StartupMaxWait.Std() != 60*time.Second {
		t.Errorf("Expected startup_max_wait 60s, got %v", cfg.Health.StartupMaxWait.Std())
	}
	if cfg.Cutover.Window.Std() != 15*time.Second {
		t.Errorf("Expected cutover window 15s, got %v", cfg.Cutover.Window.Std())
	}
	if cfg.Cutover.Interval.Std() != 500*time.Millisecond {
		t.Errorf("Expected cutover interval 500ms, got %v", cfg.Cutover.Interval.Std())
	}
	if cfg.Stop.GracePeriod.Std() != 10*time.Second {
		t.Errorf("Expected grace period 10s, got %v", cfg.Stop.GracePeriod.Std())
	}
	if cfg.Backup.RetainCount != 10 {
		t.Errorf("Expected retain_count 10, got %d", cfg.Backup.RetainCount)
	}
}

func TestLoad_IntegerDurations(t *testing.T) {
	// Bare integers are seconds
	path := writeConfig(t, `
service: payments
launch:
  command: ["./payments"]
health:
  timeout: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Health.Timeout.Std() != 5*time.Second {
		t.Errorf("Expected 5s from bare integer, got %v", cfg.Health.Timeout.Std())
	}
}

func TestLoad_MissingService(t *testing.T) {
	path := writeConfig(t, `
launch:
  command: ["./payments"]
`)

	if _, err := Load(path); err == nil {
		t.Error("Expected error for missing service name")
	}
}

func TestLoad_MissingCommand(t *testing.T) {
	path := writeConfig(t, `
service: payments
`)

	if _, err := Load(path); err == nil {
		t.Error("Expected error for missing launch command")
	}
}

func TestLoad_SamePorts(t *testing.T) {
	path := writeConfig(t, `
service: payments
launch:
  command: ["./payments"]
slots:
  a:
    port: 9000
  b:
    port: 9000
`)

	if _, err := Load(path); err == nil {
		t.Error("Expected error for identical slot ports")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
service: payments
launch:
  command: ["./payments"]
health:
  timeout: "not-a-duration"
`)

	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed duration")
	}
}

func TestLoad_UnknownRouterMode(t *testing.T) {
	path := writeConfig(t, `
service: payments
launch:
  command: ["./payments"]
router:
  mode: dns
`)

	if _, err := Load(path); err == nil {
		t.Error("Expected error for unknown router mode")
	}
}

func TestConfig_Slot(t *testing.T) {
	cfg := Default()
	cfg.Slots.A.Port = 9001
	cfg.Slots.B.Port = 9002

	a := cfg.Slot(types.SlotA)
	if a.Port != 9001 || a.ID != types.SlotA {
		t.Errorf("Unexpected slot A: %+v", a)
	}

	b := cfg.Slot(types.SlotB)
	if b.Port != 9002 || b.ID != types.SlotB {
		t.Errorf("Unexpected slot B: %+v", b)
	}
}

func TestLaunchConfig_Spec(t *testing.T) {
	launch := LaunchConfig{
		Command: []string{"./svc", "--port", "{port}"},
		Env:     map[string]string{"APP_ENV": "test"},
		Dir:     "/opt/svc",
	}

	spec := launch.Spec()

	if len(spec.Command) != 3 || spec.Command[2] != "{port}" {
		t.Errorf("Unexpected command: %v", spec.Command)
	}
	if len(spec.Env) != 1 || spec.Env[0] != "APP_ENV=test" {
		t.Errorf("Unexpected env: %v", spec.Env)
	}
	if spec.Dir != "/opt/svc" {
		t.Errorf("Unexpected dir: %q", spec.Dir)
	}
}
