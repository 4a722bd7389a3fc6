/*
Package metrics provides Prometheus metrics and monitor health endpoints.

All metrics are registered at init time under the slipway_ prefix and
exposed through Handler() for scraping. The package also carries the
component health registry backing the monitor's /healthz and /ready
endpoints.

# Metrics

Deployment:
  - slipway_deployments_total{outcome}       runs by success/rolled_back/rollback_failed
  - slipway_deployment_duration_seconds      end-to-end run duration
  - slipway_stage_duration_seconds{stage}    per-stage durations
  - slipway_rollbacks_total                  rollbacks triggered

Cutover:
  - slipway_switch_aborts_total              switches aborted by the watchdog

Validation:
  - slipway_validation_checks_total{outcome} checks by pass/fail/warn
  - slipway_validation_score{phase}          last readiness score per phase

Backups:
  - slipway_backups_total                    complete backups retained
  - slipway_backup_duration_seconds          backup creation time

Slots:
  - slipway_active_slot{slot}                which slot carries traffic
  - slipway_probes_total{state}              probe observations by state

# Collector

The Collector samples live state every 15 seconds for the monitor: it
probes both slots, reads the router upstream, counts complete backups, and
checks the datastore file. Each sample updates the gauges above and the
component health registry, so /healthz reflects what was actually observed
rather than what the last deployment believed.

# Timing

	timer := metrics.NewTimer()
	... stage work ...
	timer.ObserveDurationVec(metrics.StageDuration, "backup")
*/
package metrics
