package router

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/slipway-io/slipway/pkg/log"
)

// EmbeddedRouter is an in-process HTTP reverse proxy. The upstream port is
// swapped atomically, so in-flight requests finish against the slot they
// started on while new requests go to the new upstream.
type EmbeddedRouter struct {
	listen string
	port   atomic.Int64
	server *http.Server
	logger zerolog.Logger
}

// NewEmbeddedRouter creates a reverse proxy that will listen on the given
// address once Serve is called.
func NewEmbeddedRouter(listen string) *EmbeddedRouter {
	return &EmbeddedRouter{
		listen: listen,
		logger: log.WithComponent("router"),
	}
}

// SetUpstream atomically points new requests at the given local port.
func (r *EmbeddedRouter) SetUpstream(port int) error {
	if port <= 0 {
		return fmt.Errorf("invalid upstream port %d", port)
	}
	r.port.Store(int64(port))
	r.logger.Info().Int("port", port).Msg("upstream updated")
	return nil
}

// Upstream reports the port new requests are routed to.
func (r *EmbeddedRouter) Upstream() (int, bool) {
	port := int(r.port.Load())
	return port, port != 0
}

// TestConfig verifies an upstream has been configured. The swap itself
// cannot be malformed.
func (r *EmbeddedRouter) TestConfig() error {
	if _, ok := r.Upstream(); !ok {
		return fmt.Errorf("no upstream configured")
	}
	return nil
}

// Reload is a no-op: SetUpstream already takes effect atomically.
func (r *EmbeddedRouter) Reload() error {
	return nil
}

// ServeHTTP proxies the request to the current upstream port.
func (r *EmbeddedRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	port, ok := r.Upstream()
	if !ok {
		http.Error(w, "Service not found", http.StatusNotFound)
		return
	}

	targetURL, err := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", port))
	if err != nil {
		http.Error(w, "Bad gateway", http.StatusBadGateway)
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(targetURL)

	originalDirector := proxy.Director
	proxy.Director = func(out *http.Request) {
		originalDirector(out)
		// Preserve original Host header for virtual hosting
		out.Host = req.Host
		out.Header.Set("X-Forwarded-For", req.RemoteAddr)
		out.Header.Set("X-Forwarded-Proto", "http")
		out.Header.Set("X-Forwarded-Host", req.Host)
	}

	logger := r.logger
	proxy.ErrorHandler = func(w http.ResponseWriter, _ *http.Request, err error) {
		logger.Error().Err(err).Int("port", port).Msg("proxy error")
		http.Error(w, "Bad gateway", http.StatusBadGateway)
	}

	proxy.ServeHTTP(w, req)
}

// Serve runs the proxy until the context is cancelled, then shuts down
// gracefully.
func (r *EmbeddedRouter) Serve(ctx context.Context) error {
	r.server = &http.Server{
		Addr:         r.listen,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", r.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.listen, err)
	}

	r.logger.Info().Str("listen", r.listen).Msg("embedded router listening")

	errCh := make(chan error, 1)
	go func() {
		if err := r.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	r.logger.Info().Msg("shutting down embedded router")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.server.Shutdown(shutdownCtx)
}
