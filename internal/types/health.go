package types

import "time"

// HealthState is the reported state of a backend connection.
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateUnhealthy HealthState = "unhealthy"
)

// HealthStatus is one backend check result.
type HealthStatus struct {
	State     HealthState `json:"state"`
	Message   string      `json:"message,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}

// Healthy reports a reachable backend.
func Healthy(message string) HealthStatus {
	return HealthStatus{
		State:     HealthStateHealthy,
		Message:   message,
		CheckedAt: time.Now(),
	}
}

// Unhealthy reports an unreachable backend.
func Unhealthy(message string) HealthStatus {
	return HealthStatus{
		State:     HealthStateUnhealthy,
		Message:   message,
		CheckedAt: time.Now(),
	}
}

// IsHealthy returns true if the state is healthy.
func (h HealthStatus) IsHealthy() bool {
	return h.State == HealthStateHealthy
}

// IsUnhealthy returns true if the state is unhealthy.
func (h HealthStatus) IsUnhealthy() bool {
	return h.State == HealthStateUnhealthy
}
