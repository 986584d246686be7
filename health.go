package redisconn

// HealthStatus reports the health of a proxy's connection path. It
// provides a strongly-typed alternative to map[string]interface{} for
// health checks.
type HealthStatus struct {
	// Healthy is false only when a configured circuit breaker is open.
	Healthy bool `json:"healthy"`

	// Status is a short description of the breaker state ("closed",
	// "half-open", "open"), or "closed" when no breaker is configured.
	Status string `json:"status"`

	// State is the full string representation of the breaker state.
	State string `json:"state"`

	// Requests is the number of calls seen by the breaker in the current
	// interval.
	Requests uint32 `json:"requests"`

	// TotalSuccesses is the breaker's total successful call count.
	TotalSuccesses uint32 `json:"total_successes"`

	// TotalFailures is the breaker's total failed call count.
	TotalFailures uint32 `json:"total_failures"`

	// ConsecutiveFailures is the breaker's consecutive failure count.
	ConsecutiveFailures uint32 `json:"consecutive_failures"`

	// ConsecutiveSuccesses is the breaker's consecutive success count.
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`

	// TotalReconnects is the number of evict-and-recreate cycles the proxy
	// has performed over its lifetime.
	TotalReconnects int64 `json:"total_reconnects"`
}

// GetHealth returns the health status of the proxy's connection path.
func (p *Proxy) GetHealth() HealthStatus {
	state := p.State()
	counts := p.Counts()
	stats := p.GetStats()

	var healthy bool
	var status string

	switch state {
	case StateClosed:
		healthy = true
		status = "closed"
	case StateHalfOpen:
		healthy = true // Degraded but operational
		status = "half-open"
	case StateOpen:
		healthy = false
		status = "open"
	default:
		status = "unknown"
	}

	return HealthStatus{
		Healthy:              healthy,
		Status:               status,
		State:                state.String(),
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		TotalReconnects:      stats.TotalReconnects,
	}
}
