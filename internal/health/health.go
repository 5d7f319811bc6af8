// Package health serves liveness and readiness probes for the Parlance
// gateway.
//
//   - GET /healthz answers 200 whenever the process can serve HTTP.
//   - GET /readyz answers 200 only when every registered check passes, and
//     503 with per-check detail otherwise.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DefaultCheckTimeout bounds each readiness check.
const DefaultCheckTimeout = 5 * time.Second

// Check probes one dependency. It must honour ctx cancellation and return
// nil when the dependency is usable.
type Check func(ctx context.Context) error

// Pinger is anything with a Ping method, such as the kvstore backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger into a Check.
func PingCheck(p Pinger) Check {
	return p.Ping
}

// response is the probe body.
type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler evaluates named readiness checks. Checks are fixed after
// construction; the handler is safe for concurrent use.
type Handler struct {
	names   []string
	checks  map[string]Check
	timeout time.Duration
}

// New creates an empty Handler with the default check timeout.
func New() *Handler {
	return &Handler{
		checks:  make(map[string]Check),
		timeout: DefaultCheckTimeout,
	}
}

// Add registers a named readiness check. Call before serving; names appear
// in the /readyz response in registration order.
func (h *Handler) Add(name string, check Check) *Handler {
	if _, exists := h.checks[name]; !exists {
		h.names = append(h.names, name)
	}
	h.checks[name] = check
	return h
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz evaluates every check in order, each with its own timeout derived
// from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]string, len(h.names))
	ready := true

	for _, name := range h.names {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		err := h.checks[name](ctx)
		cancel()
		if err != nil {
			results[name] = "fail: " + err.Error()
			ready = false
			continue
		}
		results[name] = "ok"
	}

	res := response{Status: "ok", Checks: results}
	status := http.StatusOK
	if !ready {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
