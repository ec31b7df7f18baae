package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/httpbridge/component"
)

// Component wraps a Transport with lifecycle management.
type Component struct {
	config Config
	opts   []Option

	mu        sync.RWMutex
	transport *Transport
}

// compile-time assertions
var _ component.Component = (*Component)(nil)
var _ component.Describable = (*Component)(nil)

// NewComponent creates a transport component. The transport is built in Start.
func NewComponent(cfg Config, opts ...Option) *Component {
	return &Component{config: cfg, opts: opts}
}

// Name returns the component name.
func (c *Component) Name() string {
	name := c.config.Name
	if name == "" {
		name = defaultName
	}
	return "transport." + name
}

// Start builds the transport and opens its session.
func (c *Component) Start(ctx context.Context) error {
	t, err := New(c.config, c.opts...)
	if err != nil {
		return err
	}
	if err := t.Open(ctx); err != nil {
		_ = t.Shutdown(ctx)
		return err
	}
	c.mu.Lock()
	c.transport = t
	c.mu.Unlock()
	return nil
}

// Stop shuts the transport down, failing any in-flight requests.
func (c *Component) Stop(ctx context.Context) error {
	c.mu.RLock()
	t := c.transport
	c.mu.RUnlock()
	if t == nil {
		return nil
	}
	return t.Shutdown(ctx)
}

// Health reports healthy while the session is live.
func (c *Component) Health(_ context.Context) component.Health {
	c.mu.RLock()
	t := c.transport
	c.mu.RUnlock()

	h := component.Health{Name: c.Name(), Status: component.StatusUnhealthy}
	if t == nil {
		h.Message = "not started"
		return h
	}
	switch state := t.State(); state {
	case StateActive:
		h.Status = component.StatusHealthy
	case StateUnstarted, StateClosed:
		h.Status = component.StatusDegraded
		h.Message = "session " + state.String()
	default:
		h.Message = state.String()
	}
	return h
}

// Describe returns the component description for startup summaries.
func (c *Component) Describe() component.Description {
	cfg := c.config
	cfg.ApplyDefaults()

	protocol := "http/1.1"
	if cfg.HTTP2 {
		protocol = "h2"
		if cfg.http1() {
			protocol = "h2,http/1.1"
		}
	}
	details := fmt.Sprintf("%s pool=%s/%s", protocol,
		describeLimit(*cfg.Limits.MaxConnections), describeLimit(*cfg.Limits.MaxKeepaliveConnections))
	if cfg.Proxy != nil {
		details += " proxy=" + cfg.Proxy.URL
	}
	return component.Description{
		Name:    c.Name(),
		Type:    "http-transport",
		Details: details,
	}
}

// Transport returns the underlying transport. Nil before Start.
func (c *Component) Transport() *Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport
}
