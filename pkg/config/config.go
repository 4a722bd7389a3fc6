package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slipway-io/slipway/pkg/types"
)

// Duration wraps time.Duration so YAML values like "30s" or "500ms" parse
// naturally. Bare integers are treated as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %v", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %q", value.Value)
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// SlotConfig holds the fixed port of one runtime slot
type SlotConfig struct {
	Port int `yaml:"port"`
}

// SlotsConfig holds the two fixed slots
type SlotsConfig struct {
	A SlotConfig `yaml:"a"`
	B SlotConfig `yaml:"b"`
}

// LaunchConfig describes how to start the service process in a slot
type LaunchConfig struct {
	// Command is the argv to run; the literal "{port}" is replaced with
	// the slot's port
	Command []string `yaml:"command"`

	// Env holds extra environment variables; PORT is always appended
	Env map[string]string `yaml:"env,omitempty"`

	// Dir is the working directory for the process
	Dir string `yaml:"dir,omitempty"`
}

// Spec converts the launch configuration into a LaunchSpec
func (l LaunchConfig) Spec() types.LaunchSpec {
	env := make([]string, 0, len(l.Env))
	for k, v := range l.Env {
		env = append(env, k+"="+v)
	}
	return types.LaunchSpec{
		Command: append([]string(nil), l.Command...),
		Env:     env,
		Dir:     l.Dir,
	}
}

// HealthConfig configures slot health probing
type HealthConfig struct {
	// Scheme selects the probe type: http, tcp, or grpc
	Scheme string `yaml:"scheme"`

	// Path is the HTTP health endpoint (http scheme only)
	Path string `yaml:"path"`

	// GRPCService is the service name for grpc.health.v1 checks
	GRPCService string `yaml:"grpc_service,omitempty"`

	// Timeout bounds a single probe
	Timeout Duration `yaml:"timeout"`

	// DegradedAfter is the latency budget for a healthy classification
	DegradedAfter Duration `yaml:"degraded_after"`

	// StartupMaxWait bounds the wait for a candidate to become healthy
	StartupMaxWait Duration `yaml:"startup_max_wait"`

	// PollInterval is the cadence of startup polling
	PollInterval Duration `yaml:"poll_interval"`
}

// RouterConfig configures how live traffic is pointed at a slot
type RouterConfig struct {
	// Mode selects the router implementation: conffile or embedded
	Mode string `yaml:"mode"`

	// ConfPath is the upstream config file rewritten on switch (conffile mode)
	ConfPath string `yaml:"conf_path,omitempty"`

	// TestCmd validates the rewritten config before reload (conffile mode)
	TestCmd []string `yaml:"test_cmd,omitempty"`

	// ReloadCmd applies the rewritten config (conffile mode)
	ReloadCmd []string `yaml:"reload_cmd,omitempty"`

	// Listen is the frontend address of the embedded reverse proxy
	Listen string `yaml:"listen,omitempty"`
}

// CutoverConfig configures the gradual traffic switch
type CutoverConfig struct {
	// Window is how long the candidate is watched before the switch commits
	Window Duration `yaml:"window"`

	// Interval is the probe cadence inside the window
	Interval Duration `yaml:"interval"`
}

// ComponentConfig names one file or directory captured by backups
type ComponentConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// BackupConfig configures backup capture and pruning
type BackupConfig struct {
	// Dir is where backup directories are created
	Dir string `yaml:"dir"`

	// Components are the files and directories captured per backup
	Components []ComponentConfig `yaml:"components"`

	// RetainCount keeps the newest N complete backups when pruning
	RetainCount int `yaml:"retain_count"`

	// RetainDays additionally drops backups older than this many days
	RetainDays int `yaml:"retain_days"`
}

// ValidationConfig configures the readiness gate
type ValidationConfig struct {
	// Strict escalates warnings to a not_ready decision
	Strict bool `yaml:"strict"`

	// MinFreeDiskMB is the free-space floor for the disk check
	MinFreeDiskMB int64 `yaml:"min_free_disk_mb"`

	// DatastorePath points the datastore connectivity check at the
	// service's own database file. Empty skips the check.
	DatastorePath string `yaml:"datastore_path,omitempty"`
}

// StopConfig configures process shutdown
type StopConfig struct {
	// GracePeriod is how long to wait after SIGTERM before SIGKILL
	GracePeriod Duration `yaml:"grace_period"`

	// PortReleaseWait bounds the wait for a stopped slot to free its port
	PortReleaseWait Duration `yaml:"port_release_wait"`
}

// LogConfig configures logging output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the root Slipway configuration
type Config struct {
	// Service is the deployed service's name, used in reports and metrics
	Service string `yaml:"service"`

	// Environment tags backups and reports (e.g. "production")
	Environment string `yaml:"environment"`

	// DataDir holds Slipway's own state: run store, reports, lock file
	DataDir string `yaml:"data_dir"`

	Slots      SlotsConfig      `yaml:"slots"`
	Launch     LaunchConfig     `yaml:"launch"`
	Health     HealthConfig     `yaml:"health"`
	Router     RouterConfig     `yaml:"router"`
	Cutover    CutoverConfig    `yaml:"cutover"`
	Backup     BackupConfig     `yaml:"backup"`
	Validation ValidationConfig `yaml:"validation"`
	Stop       StopConfig       `yaml:"stop"`
	Log        LogConfig        `yaml:"log"`
}

// Default returns a Config with all defaults applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, parses, validates, and defaults a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %v", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "/var/lib/slipway"
	}
	if c.Slots.A.Port == 0 {
		c.Slots.A.Port = 8001
	}
	if c.Slots.B.Port == 0 {
		c.Slots.B.Port = 8002
	}
	if c.Health.Scheme == "" {
		c.Health.Scheme = "http"
	}
	if c.Health.Path == "" {
		c.Health.Path = "/health"
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = Duration(3 * time.Second)
	}
	if c.Health.DegradedAfter == 0 {
		c.Health.DegradedAfter = Duration(1 * time.Second)
	}
	if c.Health.StartupMaxWait == 0 {
		c.Health.StartupMaxWait = Duration(60 * time.Second)
	}
	if c.Health.PollInterval == 0 {
		c.Health.PollInterval = Duration(1 * time.Second)
	}
	if c.Router.Mode == "" {
		c.Router.Mode = "conffile"
	}
	if c.Router.ConfPath == "" {
		c.Router.ConfPath = filepath.Join(c.DataDir, "upstream.conf")
	}
	if c.Router.Listen == "" {
		c.Router.Listen = "127.0.0.1:8000"
	}
	if c.Cutover.Window == 0 {
		c.Cutover.Window = Duration(15 * time.Second)
	}
	if c.Cutover.Interval == 0 {
		c.Cutover.Interval = Duration(500 * time.Millisecond)
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = filepath.Join(c.DataDir, "backups")
	}
	if c.Backup.RetainCount == 0 {
		c.Backup.RetainCount = 10
	}
	if c.Backup.RetainDays == 0 {
		c.Backup.RetainDays = 30
	}
	if c.Validation.MinFreeDiskMB == 0 {
		c.Validation.MinFreeDiskMB = 500
	}
	if c.Stop.GracePeriod == 0 {
		c.Stop.GracePeriod = Duration(10 * time.Second)
	}
	if c.Stop.PortReleaseWait == 0 {
		c.Stop.PortReleaseWait = Duration(5 * time.Second)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the configuration for contradictions
func (c *Config) Validate() error {
	if c.Service == "" {
		return fmt.Errorf("service name is required")
	}
	if len(c.Launch.Command) == 0 {
		return fmt.Errorf("launch command is required")
	}
	if c.Slots.A.Port <= 0 || c.Slots.B.Port <= 0 {
		return fmt.Errorf("slot ports must be positive")
	}
	if c.Slots.A.Port == c.Slots.B.Port {
		return fmt.Errorf("slot ports must differ (both %d)", c.Slots.A.Port)
	}
	switch c.Health.Scheme {
	case "http", "tcp", "grpc":
	default:
		return fmt.Errorf("unknown health scheme: %q", c.Health.Scheme)
	}
	switch c.Router.Mode {
	case "conffile", "embedded":
	default:
		return fmt.Errorf("unknown router mode: %q", c.Router.Mode)
	}
	for i, comp := range c.Backup.Components {
		if comp.Name == "" {
			return fmt.Errorf("backup component %d has no name", i)
		}
		if comp.Path == "" {
			return fmt.Errorf("backup component %q has no path", comp.Name)
		}
	}
	return nil
}

// Slot returns the configured Slot value for an ID
func (c *Config) Slot(id types.SlotID) types.Slot {
	port := c.Slots.A.Port
	if id == types.SlotB {
		port = c.Slots.B.Port
	}
	return types.Slot{ID: id, Port: port, State: types.SlotStateStopped}
}

// Components converts the backup component configs to domain values
func (c *Config) Components() []types.BackupComponent {
	out := make([]types.BackupComponent, 0, len(c.Backup.Components))
	for _, comp := range c.Backup.Components {
		out = append(out, types.BackupComponent{Name: comp.Name, Path: comp.Path})
	}
	return out
}
