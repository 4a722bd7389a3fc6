package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/slipway-io/slipway/pkg/log"
	"github.com/slipway-io/slipway/pkg/metrics"
	"github.com/slipway-io/slipway/pkg/router"
	"github.com/slipway-io/slipway/pkg/store"
	"github.com/slipway-io/slipway/pkg/types"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Serve Prometheus metrics and health endpoints",
	Long: `Monitor runs the long-lived observability sidecar: it samples slot
health, traffic routing, backups, and the run store on a fixed cadence
and serves the results over HTTP.

Endpoints:
  /metrics   Prometheus metrics
  /healthz   Aggregate component health
  /ready     Readiness (critical components only)
  /live      Liveness
  /status    Slots, traffic, and the last run as JSON

In embedded router mode the traffic frontend is served by this process
as well.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().String("listen", "127.0.0.1:9090", "Monitor listen address")

	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	listen, _ := cmd.Flags().GetString("listen")

	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.broker.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("slot-a", false, "not yet sampled")
	metrics.RegisterComponent("slot-b", false, "not yet sampled")
	metrics.RegisterComponent("router", false, "not yet sampled")
	metrics.RegisterComponent("datastore", false, "not yet sampled")

	collector := metrics.NewCollector(
		app.cfg.Slot(types.SlotA),
		app.cfg.Slot(types.SlotB),
		proberFactory(app.cfg),
		app.backups,
		app.router,
		filepath.Join(app.cfg.DataDir, "slipway.db"),
	)
	collector.Start()
	defer collector.Stop()

	// In embedded mode this process hosts the traffic frontend too
	if embedded, ok := app.router.(*router.EmbeddedRouter); ok {
		go func() {
			if err := embedded.Serve(ctx); err != nil {
				logger := log.WithComponent("monitor")
				logger.Error().Err(err).Msg("Embedded router stopped")
			}
		}()
		fmt.Printf("✓ Embedded router serving on %s\n", app.cfg.Router.Listen)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	mux.HandleFunc("/status", statusHandler(app))

	srv := &http.Server{
		Addr:         listen,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	fmt.Printf("✓ Monitor listening on %s\n", listen)
	fmt.Println("Press Ctrl+C to stop.")

	select {
	case <-ctx.Done():
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		return fmt.Errorf("monitor server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %v", err)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}

func statusHandler(a *app) http.HandlerFunc {
	type slotStatus struct {
		Slot  string `json:"slot"`
		Port  int    `json:"port"`
		State string `json:"state"`
		PID   int    `json:"pid,omitempty"`
		Live  bool   `json:"live"`
	}
	type lastRun struct {
		ID       string     `json:"id"`
		Stage    string     `json:"stage"`
		Outcome  string     `json:"outcome,omitempty"`
		Started  time.Time  `json:"started_at"`
		Finished *time.Time `json:"finished_at,omitempty"`
	}
	type response struct {
		Service     string       `json:"service"`
		Environment string       `json:"environment,omitempty"`
		Slots       []slotStatus `json:"slots"`
		TrafficPort int          `json:"traffic_port,omitempty"`
		LastRun     *lastRun     `json:"last_run,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		resp := response{
			Service:     a.cfg.Service,
			Environment: a.cfg.Environment,
		}

		port, routed := a.router.Upstream()
		if routed {
			resp.TrafficPort = port
		}

		for _, id := range []types.SlotID{types.SlotA, types.SlotB} {
			s := a.slots.Status(ctx, id)
			resp.Slots = append(resp.Slots, slotStatus{
				Slot:  string(s.ID),
				Port:  s.Port,
				State: string(s.State),
				PID:   s.PID,
				Live:  routed && s.Port == port,
			})
		}

		if run, err := store.ReadLastRun(a.cfg.DataDir); err == nil && run != nil {
			lr := &lastRun{
				ID:      run.ID,
				Stage:   string(run.Stage),
				Outcome: string(run.Outcome),
				Started: run.StartedAt,
			}
			if !run.FinishedAt.IsZero() {
				lr.Finished = &run.FinishedAt
			}
			resp.LastRun = lr
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
