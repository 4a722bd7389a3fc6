/*
Package config loads and validates Slipway's YAML configuration.

One file describes everything a deployment needs: the service name, the two
slot ports, how to launch the process, how to probe it, how traffic is
routed, and what the backup captures. Load applies defaults before
validation, so a minimal config only names the service and its launch
command:

	service: payments
	launch:
	  command: ["./payments", "--port", "{port}"]

Durations accept Go syntax ("30s", "500ms"); bare integers are seconds.
Validation rejects contradictions up front (identical slot ports, unknown
router mode) so a deployment never discovers them mid-run.
*/
package config
