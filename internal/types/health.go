package types

import "time"

// HealthState classifies how well a component is serving requests.
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateDegraded  HealthState = "degraded"
	HealthStateUnhealthy HealthState = "unhealthy"
)

func (s HealthState) String() string {
	return string(s)
}

// HealthStatus is the result of probing a single component: the store
// backend, the cache, or the service itself.
type HealthStatus struct {
	State     HealthState `json:"state"`
	Message   string      `json:"message,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}

func newHealthStatus(state HealthState, message string) HealthStatus {
	return HealthStatus{
		State:     state,
		Message:   message,
		CheckedAt: time.Now(),
	}
}

// Healthy reports a component that is fully operational.
func Healthy(message string) HealthStatus {
	return newHealthStatus(HealthStateHealthy, message)
}

// Degraded reports a component that is serving, but below its normal
// capability (for example the local store standing in for the graph engine).
func Degraded(message string) HealthStatus {
	return newHealthStatus(HealthStateDegraded, message)
}

// Unhealthy reports a component that cannot serve requests.
func Unhealthy(message string) HealthStatus {
	return newHealthStatus(HealthStateUnhealthy, message)
}
