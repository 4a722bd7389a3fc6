package router

// Router is the narrow contract the cutover coordinator drives. The
// coordinator never assumes a specific proxy technology: anything that can
// point its upstream at a port, check its own configuration, and reload
// qualifies.
type Router interface {
	// SetUpstream points the router at the given local port. Repeated
	// identical writes are safe.
	SetUpstream(port int) error

	// Upstream reports the currently configured port, false when no
	// upstream has been set.
	Upstream() (int, bool)

	// TestConfig verifies the router's configuration is sound before a
	// reload is attempted.
	TestConfig() error

	// Reload makes the configured upstream take effect.
	Reload() error
}
