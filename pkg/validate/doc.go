/*
Package validate runs the readiness gate that decides whether a deployment
may proceed.

The engine holds a typed registry of checks grouped into categories. One
Run executes every check applicable to the phase, aggregates outcomes into
a weighted score, and produces a binary gate decision. Checks observe and
report; only the engine decides.

# Execution Model

Three rules shape the engine:

  - Every applicable check always runs. A failure never short-circuits
    the battery, so a single pass reports everything wrong at once
    instead of one problem per attempt.
  - A panicking check is a failing check. The panic is recovered,
    recorded with its message, and the battery continues.
  - Categories run in a fixed order, cheap filesystem checks before
    network round-trips:

	system → structure → security → dependencies → database → network → service

# Scoring and Decision

The readiness score is the weighted share of passing checks, in percent.
Warnings do not count toward the score. The decision is binary:

	failed > 0                 → not_ready
	strict and warned > 0      → not_ready
	otherwise                  → ready

The score never influences the decision; it exists for trend lines and
report readability.

# Phase Polarity

The same battery runs before a deployment (pre) and after the traffic
switch (post). Phase-sensitive checks flip their expectation: the
candidate port must be free in pre and bound in post. Checks restricted
to one phase declare it in their spec; the engine filters.

# Built-In Battery

DefaultEngine registers the standard checks:

	disk-space        system     free space in the data dir vs floor
	data-dir          structure  data dir exists and is writable
	component-paths   structure  backup components present on disk
	permissions       security   no world-writable component state
	commands          deps       required executables on PATH
	datastore         database   bolt file opens read-only and walks
	candidate-port    network    phase-polar free/bound check
	active-slot       network    live slot still answers
	service-response  service    candidate health endpoint (post only)

Custom checks register through the same CheckSpec path:

	e := validate.DefaultEngine(cfg.Validation.Strict)
	err := e.Register(validate.CheckSpec{
		Name:     "migrations",
		Category: types.CategoryDatabase,
		Weight:   2,
		Run: func(ctx context.Context, env *validate.Env) (types.CheckOutcome, string) {
			// ...
		},
	})
*/
package validate
