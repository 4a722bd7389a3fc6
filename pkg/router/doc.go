/*
Package router abstracts the traffic-routing collaborator behind a narrow
contract so the cutover coordinator never assumes a specific proxy
technology.

CONTRACT:

	SetUpstream(port)   point the router at a local port (idempotent)
	Upstream()          the currently configured port
	TestConfig()        verify the configuration before reload
	Reload()            make the configured upstream take effect

Upstream writes are last-write-wins. Repeating a write, including the
revert performed during an aborted cutover, always lands in the same state
as performing it once.

IMPLEMENTATIONS:

ConfFileRouter drives an external reverse proxy (nginx or compatible). It
rewrites an upstream include file atomically (temp file + rename) and runs
the proxy's own test and reload commands when configured:

	upstream <service>_upstream {
	    server 127.0.0.1:<port>;
	}

The file doubles as persistent state: a fresh invocation parses it to learn
which slot currently carries traffic.

EmbeddedRouter is an in-process reverse proxy for installations without an
external proxy. The upstream port is held in an atomic and swapped without
interrupting in-flight requests; TestConfig and Reload are trivial because
the swap itself cannot be malformed. Serve runs the listener until the
context is cancelled, then shuts down gracefully.
*/
package router
