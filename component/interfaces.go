package component

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health is a point-in-time health report.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component is a service with an explicit start/stop lifecycle.
type Component interface {
	// Name is unique within a Registry.
	Name() string
	Start(ctx context.Context) error
	// Stop releases the component's resources. ctx bounds the wait.
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Description summarizes a component for startup output.
type Description struct {
	// Name is the display name. If empty, the component's Name() is used.
	Name string
	// Type categorizes the component, e.g. "http-transport".
	Type string
	// Details is a one-liner such as "h2,http/1.1 pool=100/20".
	Details string
}

// Describable is implemented by components that can summarize their
// configuration.
type Describable interface {
	Describe() Description
}
