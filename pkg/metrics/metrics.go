package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Deployment metrics
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slipway_deployments_total",
			Help: "Total number of deployment runs by outcome",
		},
		[]string{"outcome"},
	)

	DeploymentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slipway_deployment_duration_seconds",
			Help:    "End-to-end deployment run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slipway_stage_duration_seconds",
			Help:    "Duration of individual deployment stages in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slipway_rollbacks_total",
			Help: "Total number of rollbacks triggered",
		},
	)

	// Cutover metrics
	SwitchAbortsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slipway_switch_aborts_total",
			Help: "Total number of traffic switches aborted by the watchdog",
		},
	)

	// Validation metrics
	ValidationChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slipway_validation_checks_total",
			Help: "Total number of validation checks executed by outcome",
		},
		[]string{"outcome"},
	)

	ValidationScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slipway_validation_score",
			Help: "Readiness score of the most recent validation pass (0-100)",
		},
		[]string{"phase"},
	)

	// Backup metrics
	BackupsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slipway_backups_total",
			Help: "Number of complete backups currently retained",
		},
	)

	BackupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slipway_backup_duration_seconds",
			Help:    "Backup creation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Slot metrics
	ActiveSlot = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slipway_active_slot",
			Help: "Which slot currently serves traffic (1 = active, 0 = idle)",
		},
		[]string{"slot"},
	)

	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slipway_probes_total",
			Help: "Total number of health probes by observed state",
		},
		[]string{"state"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(DeploymentDuration)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(SwitchAbortsTotal)
	prometheus.MustRegister(ValidationChecksTotal)
	prometheus.MustRegister(ValidationScore)
	prometheus.MustRegister(BackupsTotal)
	prometheus.MustRegister(BackupDuration)
	prometheus.MustRegister(ActiveSlot)
	prometheus.MustRegister(ProbesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
