package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/slipway-io/slipway/pkg/types"
)

// HTTPProber performs HTTP-based health probes.
//
// Classification:
//   - transport error (refused, reset, timeout): unreachable
//   - 5xx response: critical
//   - 2xx response slower than the latency budget: degraded
//   - 3xx/4xx response: degraded (process is up but not serving correctly)
//   - 2xx response within budget: healthy
type HTTPProber struct {
	// URL is the full HTTP URL to probe (e.g., "http://127.0.0.1:8001/health")
	URL string

	// Method is the HTTP method to use (default: GET)
	Method string

	// Headers are custom HTTP headers to include in the request
	Headers map[string]string

	// DegradedAfter is the latency budget for a healthy classification
	DegradedAfter time.Duration

	// Client is the HTTP client to use (allows custom configuration)
	Client *http.Client

	// Slot stamps samples with the slot under observation
	Slot types.SlotID
}

// NewHTTPProber creates a new HTTP health prober
func NewHTTPProber(url string) *HTTPProber {
	return &HTTPProber{
		URL:           url,
		Method:        "GET",
		Headers:       make(map[string]string),
		DegradedAfter: 1 * time.Second,
		Client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Probe performs the HTTP health probe
func (h *HTTPProber) Probe(ctx context.Context) types.HealthSample {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, h.Method, h.URL, nil)
	if err != nil {
		return sample(h.URL, h.Slot, start, types.HealthUnreachable,
			fmt.Sprintf("failed to create request: %v", err))
	}

	for key, value := range h.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return sample(h.URL, h.Slot, start, types.HealthUnreachable,
			fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	latency := time.Since(start)
	detail := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))

	switch {
	case resp.StatusCode >= 500:
		return sample(h.URL, h.Slot, start, types.HealthCritical, detail)
	case resp.StatusCode >= 300:
		return sample(h.URL, h.Slot, start, types.HealthDegraded, detail)
	case latency > h.DegradedAfter:
		return sample(h.URL, h.Slot, start, types.HealthDegraded,
			fmt.Sprintf("%s (slow: %v > %v)", detail, latency.Round(time.Millisecond), h.DegradedAfter))
	default:
		return sample(h.URL, h.Slot, start, types.HealthHealthy, detail)
	}
}

// Kind returns the health probe type
func (h *HTTPProber) Kind() Kind {
	return KindHTTP
}

// Target returns the probed URL
func (h *HTTPProber) Target() string {
	return h.URL
}

// WithMethod sets the HTTP method
func (h *HTTPProber) WithMethod(method string) *HTTPProber {
	h.Method = method
	return h
}

// WithHeader adds a custom HTTP header
func (h *HTTPProber) WithHeader(key, value string) *HTTPProber {
	h.Headers[key] = value
	return h
}

// WithTimeout sets the HTTP client timeout
func (h *HTTPProber) WithTimeout(timeout time.Duration) *HTTPProber {
	h.Client.Timeout = timeout
	return h
}

// WithDegradedAfter sets the latency budget
func (h *HTTPProber) WithDegradedAfter(budget time.Duration) *HTTPProber {
	h.DegradedAfter = budget
	return h
}

// ForSlot stamps samples with the given slot
func (h *HTTPProber) ForSlot(slot types.SlotID) *HTTPProber {
	h.Slot = slot
	return h
}
