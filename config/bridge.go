package config

import (
	"fmt"

	"github.com/kbukum/httpbridge/observability"
	"github.com/kbukum/httpbridge/transport"
	"github.com/kbukum/httpbridge/version"
)

// DefaultServiceName names a bridge whose config leaves name empty.
const DefaultServiceName = "httpbridge"

// BridgeConfig is the file and environment shape of an httpbridge process.
//
//	name: bridgefetch
//	transport:
//	  http2: true
//	  limits:
//	    max_connections: 50
//	    keepalive_expiry: 30s
//	  proxy:
//	    url: http://proxy.internal:3128
//	tracer:
//	  endpoint: localhost:4318
type BridgeConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Transport transport.Config `yaml:"transport" mapstructure:"transport"`

	// Tracer enables OTLP tracing when set.
	Tracer *observability.TracerConfig `yaml:"tracer" mapstructure:"tracer"`
	// Meter enables OTLP metrics when set.
	Meter *observability.MeterConfig `yaml:"meter" mapstructure:"meter"`
}

// ApplyDefaults fills every section. Telemetry sections that are present
// inherit the service identity and the development defaults.
func (c *BridgeConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = DefaultServiceName
	}
	if c.Version == "" {
		c.Version = version.Version
	}
	c.ServiceConfig.ApplyDefaults()
	c.Transport.ApplyDefaults()

	if c.Tracer != nil {
		d := observability.DefaultTracerConfig(c.Name)
		if c.Tracer.ServiceName == "" {
			c.Tracer.ServiceName = d.ServiceName
		}
		if c.Tracer.ServiceVersion == "" {
			c.Tracer.ServiceVersion = c.Version
		}
		if c.Tracer.Environment == "" {
			c.Tracer.Environment = c.Environment
		}
		if c.Tracer.Endpoint == "" {
			c.Tracer.Endpoint = d.Endpoint
		}
		if c.Tracer.SampleRate == 0 {
			c.Tracer.SampleRate = d.SampleRate
		}
	}
	if c.Meter != nil {
		d := observability.DefaultMeterConfig(c.Name)
		if c.Meter.ServiceName == "" {
			c.Meter.ServiceName = d.ServiceName
		}
		if c.Meter.ServiceVersion == "" {
			c.Meter.ServiceVersion = c.Version
		}
		if c.Meter.Environment == "" {
			c.Meter.Environment = c.Environment
		}
		if c.Meter.Endpoint == "" {
			c.Meter.Endpoint = d.Endpoint
		}
		if c.Meter.Interval == 0 {
			c.Meter.Interval = d.Interval
		}
	}
}

// Validate checks every section.
func (c *BridgeConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("config.transport: %w", err)
	}
	if c.Tracer != nil && (c.Tracer.SampleRate < 0 || c.Tracer.SampleRate > 1) {
		return fmt.Errorf("config.tracer.sample_rate must be within [0, 1] (got: %v)", c.Tracer.SampleRate)
	}
	return nil
}
