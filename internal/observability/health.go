package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HealthChecker manages liveness and readiness state.
// Readiness also requires every registered dependency check to pass.
type HealthChecker struct {
	ready     atomic.Bool
	startTime time.Time

	mu     sync.RWMutex
	checks map[string]func() error
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		checks:    make(map[string]func() error),
	}
}

// SetReady marks the service as ready to accept traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the service is ready.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// AddCheck registers a named dependency check (postgres, nats).
func (h *HealthChecker) AddCheck(name string, check func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// LivenessHandler returns HTTP 200 if the process is alive.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns HTTP 200 once recovery is done and every check
// passes, 503 otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	failures := h.runChecks()
	if h.IsReady() && len(failures) == 0 {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ready",
		})
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "not_ready",
		"failures": failures,
	})
}

func (h *HealthChecker) runChecks() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	failures := make(map[string]string)
	for name, check := range h.checks {
		if err := check(); err != nil {
			failures[name] = err.Error()
		}
	}
	return failures
}
