package encounter

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	// Name is the name of the check.
	Name string `json:"name"`

	// Healthy indicates whether the check passed.
	Healthy bool `json:"healthy"`

	// Message provides additional context about the check result.
	Message string `json:"message,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// HealthStatus represents the overall health status of the node.
type HealthStatus struct {
	// Healthy indicates whether all checks passed.
	Healthy bool `json:"healthy"`

	// Checks contains the results of individual checks.
	Checks []CheckResult `json:"checks"`

	// Timestamp is when the health check was performed.
	Timestamp time.Time `json:"timestamp"`
}

// IsHealthy returns true if the node is started and its event loop is
// running. This is a quick check suitable for liveness probes.
func (n *Node) IsHealthy() bool {
	n.startMu.Lock()
	started, stopped := n.started, n.stopped
	n.startMu.Unlock()

	if !started || stopped {
		return false
	}
	return n.loopRunning()
}

func (n *Node) loopRunning() bool {
	if n.loopDone == nil {
		return false
	}
	select {
	case <-n.loopDone:
		return false
	default:
		return true
	}
}

// ReadinessChecks performs detailed health checks and returns the results.
// This is suitable for readiness probes and debugging.
//
// Checks performed:
//   - node_started: Whether the node has been started
//   - event_loop: Whether the event loop is running
//   - persistence: Whether the blocklist can be read
//   - session: The current connection and link quality (informational)
func (n *Node) ReadinessChecks(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:   true,
		Checks:    make([]CheckResult, 0, 4),
		Timestamp: n.clock.Now(),
	}

	// Check 1: Node started
	start := time.Now()
	n.startMu.Lock()
	started := n.started && !n.stopped
	n.startMu.Unlock()

	status.Checks = append(status.Checks, CheckResult{
		Name:     "node_started",
		Healthy:  started,
		Message:  boolToMessage(started, "node is running", "node is not started"),
		Duration: time.Since(start),
	})
	if !started {
		status.Healthy = false
	}

	// Check 2: Event loop
	start = time.Now()
	loopOK := started && n.loopRunning()
	status.Checks = append(status.Checks, CheckResult{
		Name:     "event_loop",
		Healthy:  loopOK,
		Message:  boolToMessage(loopOK, "event loop is running", "event loop is not running"),
		Duration: time.Since(start),
	})
	if !loopOK {
		status.Healthy = false
	}

	// Check 3: Persistence reachable
	start = time.Now()
	pctx, cancel := context.WithTimeout(ctx, n.config.PersistenceTimeout)
	_, err := n.persistence.BlockedIdentities(pctx)
	cancel()
	persistMsg := "persistence is reachable"
	if err != nil {
		persistMsg = err.Error()
		status.Healthy = false
	}
	status.Checks = append(status.Checks, CheckResult{
		Name:     "persistence",
		Healthy:  err == nil,
		Message:  persistMsg,
		Duration: time.Since(start),
	})

	// Check 4: Session info (informational, doesn't affect health)
	start = time.Now()
	sessionMsg := "no active connection"
	if loopOK {
		if peer, ok := n.ActivePeer(); ok {
			sessionMsg = "connected to " + peer + ", quality " + n.Quality().String()
		}
	}
	status.Checks = append(status.Checks, CheckResult{
		Name:     "session",
		Healthy:  true,
		Message:  sessionMsg,
		Duration: time.Since(start),
	})

	return status
}

// boolToMessage returns trueMsg if b is true, otherwise falseMsg.
func boolToMessage(b bool, trueMsg, falseMsg string) string {
	if b {
		return trueMsg
	}
	return falseMsg
}

// HealthHandler returns an http.Handler that serves readiness responses.
// The handler responds with:
//   - 200 OK if the node is healthy
//   - 503 Service Unavailable if the node is unhealthy
//
// The response body contains a JSON representation of HealthStatus.
//
// Example usage:
//
//	http.Handle("/readyz", encounter.HealthHandler(node))
func HealthHandler(node *Node) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := node.ReadinessChecks(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(status)
	})
}

// LivenessHandler returns an http.Handler that serves liveness responses:
// 200 OK while the node is alive, 503 Service Unavailable otherwise.
//
// Example usage:
//
//	http.Handle("/healthz", encounter.LivenessHandler(node))
func LivenessHandler(node *Node) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if node.IsHealthy() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"healthy":true}`))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"healthy":false}`))
		}
	})
}
