/*
Package log provides structured logging for Slipway using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level for production debugging.

# Architecture

Slipway's logging system provides structured JSON logging with minimal
overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐           │
	│  │            Global Logger                   │           │
	│  │  - Zerolog instance                        │           │
	│  │  - Initialized via log.Init()              │           │
	│  │  - Thread-safe for concurrent use          │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │         Component Loggers                  │           │
	│  │  - WithComponent("orchestrator")           │           │
	│  │  - WithRunID("run-abc123")                 │           │
	│  │  - WithSlot("B")                           │           │
	│  │  - WithBackupID("backup-20260825-1500")    │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │            Log Output                      │           │
	│  │  JSON (machine) or console (human) format  │           │
	│  └────────────────────────────────────────────┘           │
	└───────────────────────────────────────────────────────────┘

# Usage

Initializing the Logger:

	import "github.com/slipway-io/slipway/pkg/log"

	// JSON output (when driven by automation)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

	// Console output (interactive deploys)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
	})

Logs default to stderr so that command output on stdout (status JSON,
backup listings) stays parseable.

Simple Logging:

	log.Info("backup finalized")
	log.Warn("old slot did not stop cleanly")
	log.Error("traffic switch aborted")

Structured Logging:

	log.Logger.Info().
		Str("slot", "B").
		Int("port", 8002).
		Msg("candidate started")

	log.Logger.Error().
		Err(err).
		Str("stage", "switch_traffic").
		Msg("deployment failed")

Component Loggers:

	proberLog := log.WithComponent("probe")
	proberLog.Debug().Str("target", "127.0.0.1:8002").Msg("probing")

	runLog := log.WithRunID(run.ID)
	runLog.Info().Str("stage", "backup").Msg("stage complete")

# Integration Points

This package integrates with:

  - pkg/orchestrator: Logs stage transitions and rollback decisions
  - pkg/slot: Logs process start, stop, and kill escalation
  - pkg/backup: Logs artifact capture and restore safety copies
  - pkg/cutover: Logs watchdog probes during the traffic switch
  - pkg/router: Logs upstream changes and reloads

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing

Context Logger Pattern:
  - Create child loggers with context fields
  - Automatically includes context in all logs

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Consistent error format across codebase

# Best Practices

Do:
  - Use Info level for production deploys
  - Use structured fields for queryable data
  - Include context (run ID, slot, backup ID)

Don't:
  - Log sensitive data from launch environments
  - Use Debug level when driven by automation
  - Concatenate strings (use .Str, .Int)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
