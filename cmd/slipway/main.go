package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slipway-io/slipway/pkg/backup"
	"github.com/slipway-io/slipway/pkg/config"
	"github.com/slipway-io/slipway/pkg/cutover"
	"github.com/slipway-io/slipway/pkg/events"
	"github.com/slipway-io/slipway/pkg/log"
	"github.com/slipway-io/slipway/pkg/orchestrator"
	"github.com/slipway-io/slipway/pkg/probe"
	"github.com/slipway-io/slipway/pkg/router"
	"github.com/slipway-io/slipway/pkg/slot"
	"github.com/slipway-io/slipway/pkg/types"
	"github.com/slipway-io/slipway/pkg/validate"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, context.DeadlineExceeded) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "slipway",
	Short: "Slipway - Zero-downtime blue/green deployments for single-host services",
	Long: `Slipway deploys a service by starting the new build in the idle
runtime slot, validating it while the old build keeps serving, and
switching live traffic only after the candidate proves itself healthy.
Every run is backed up first, audited as it progresses, and rolled back
to the exact pre-deployment state when anything goes wrong.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Slipway version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "/etc/slipway/slipway.yaml", "Configuration file")
}

// app bundles the subsystems a command wires up from configuration. The
// run store is deliberately absent: commands that record runs open it
// only for the duration of the invocation, so read-only surfaces like
// status and monitor never contend for its lock.
type app struct {
	cfg      *config.Config
	slots    *slot.Manager
	backups  *backup.Manager
	router   router.Router
	switcher *cutover.Coordinator
	broker   *events.Broker
}

func buildApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

	probers := proberFactory(cfg)

	slots := slot.NewManager(cfg.Slot(types.SlotA), cfg.Slot(types.SlotB), probers, slot.Config{
		DataDir:         cfg.DataDir,
		Launch:          cfg.Launch.Spec(),
		StopGrace:       cfg.Stop.GracePeriod.Std(),
		PortReleaseWait: cfg.Stop.PortReleaseWait.Std(),
		StartupMaxWait:  cfg.Health.StartupMaxWait.Std(),
		PollInterval:    cfg.Health.PollInterval.Std(),
	})

	backups := backup.NewManager(cfg.Backup.Dir, cfg.Components()).
		WithEnvironment(cfg.Environment)

	rtr := buildRouter(cfg)
	switcher := cutover.NewCoordinator(rtr, probers,
		cfg.Cutover.Window.Std(), cfg.Cutover.Interval.Std())

	broker := events.NewBroker()
	broker.Start()

	return &app{
		cfg:      cfg,
		slots:    slots,
		backups:  backups,
		router:   rtr,
		switcher: switcher,
		broker:   broker,
	}, nil
}

// orchestrator binds the app's subsystems to a run store the caller has
// opened for this invocation
func (a *app) orchestrator(runs orchestrator.RunStore) *orchestrator.Orchestrator {
	gate := validate.DefaultEngine(a.cfg.Validation.Strict)
	return orchestrator.NewOrchestrator(a.cfg, a.slots, a.backups, gate, a.switcher, runs, a.broker)
}

func buildRouter(cfg *config.Config) router.Router {
	if cfg.Router.Mode == "embedded" {
		return router.NewEmbeddedRouter(cfg.Router.Listen)
	}

	r := router.NewConfFileRouter(cfg.Router.ConfPath).WithService(cfg.Service)
	if len(cfg.Router.TestCmd) > 0 {
		r = r.WithTestCommand(cfg.Router.TestCmd)
	}
	if len(cfg.Router.ReloadCmd) > 0 {
		r = r.WithReloadCommand(cfg.Router.ReloadCmd)
	}
	return r
}

func proberFactory(cfg *config.Config) probe.Factory {
	return func(s types.Slot) probe.Prober {
		switch cfg.Health.Scheme {
		case "tcp":
			return probe.NewTCPProber(s.Addr()).
				WithTimeout(cfg.Health.Timeout.Std()).
				ForSlot(s.ID)
		case "grpc":
			return probe.NewGRPCProber(s.Addr()).
				WithService(cfg.Health.GRPCService).
				WithTimeout(cfg.Health.Timeout.Std()).
				ForSlot(s.ID)
		default:
			return probe.NewHTTPProber("http://" + s.Addr() + cfg.Health.Path).
				WithTimeout(cfg.Health.Timeout.Std()).
				WithDegradedAfter(cfg.Health.DegradedAfter.Std()).
				ForSlot(s.ID)
		}
	}
}
