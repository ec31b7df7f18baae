package provider

import "context"

// Provider is implemented by every backend a caller can dispatch to.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// IsAvailable reports whether the provider still accepts work.
	IsAvailable(ctx context.Context) bool
}
