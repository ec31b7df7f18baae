package transport

import (
	"fmt"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/kbukum/httpbridge/security"
	"github.com/kbukum/httpbridge/validation"
)

const (
	// NoLimit disables a limit. It maps to the engine's "no limit" value.
	NoLimit = -1

	DefaultMaxConnections          = 100
	DefaultMaxKeepaliveConnections = 20
	DefaultKeepaliveExpiry         = 5 * time.Second

	// DefaultChunkSize is the block size used when streaming response bodies.
	DefaultChunkSize = 64 * 1024

	defaultName = "default"
)

// Limits bounds the connector's connection pool. Nil fields take the
// package defaults; NoLimit removes a bound.
type Limits struct {
	// MaxConnections caps concurrent connections per origin (scheme, host
	// and port). net/http has no transport-wide cap, so a client spread over
	// N origins may hold up to N*MaxConnections connections.
	MaxConnections *int `yaml:"max_connections" mapstructure:"max_connections" validate:"omitempty,gte=-1"`
	// MaxKeepaliveConnections caps idle connections kept for reuse. Zero disables keep-alive.
	MaxKeepaliveConnections *int `yaml:"max_keepalive_connections" mapstructure:"max_keepalive_connections" validate:"omitempty,gte=-1"`
	// KeepaliveExpiry is how long an idle connection stays in the pool.
	KeepaliveExpiry *time.Duration `yaml:"keepalive_expiry" mapstructure:"keepalive_expiry" validate:"omitempty,gte=-1"`
}

// NewLimits returns fully specified limits. Use NoLimit to disable a bound.
func NewLimits(maxConnections, maxKeepalive int, keepaliveExpiry time.Duration) Limits {
	return Limits{
		MaxConnections:          &maxConnections,
		MaxKeepaliveConnections: &maxKeepalive,
		KeepaliveExpiry:         &keepaliveExpiry,
	}
}

// DefaultLimits returns 100 connections, 20 keep-alive connections and a 5s idle expiry.
func DefaultLimits() Limits {
	return NewLimits(DefaultMaxConnections, DefaultMaxKeepaliveConnections, DefaultKeepaliveExpiry)
}

// ApplyDefaults fills nil limits with the package defaults.
func (l *Limits) ApplyDefaults() {
	d := DefaultLimits()
	if l.MaxConnections == nil {
		l.MaxConnections = d.MaxConnections
	}
	if l.MaxKeepaliveConnections == nil {
		l.MaxKeepaliveConnections = d.MaxKeepaliveConnections
	}
	if l.KeepaliveExpiry == nil {
		l.KeepaliveExpiry = d.KeepaliveExpiry
	}
}

// Proxy describes an HTTP or HTTPS forward proxy.
type Proxy struct {
	// URL is the proxy address. Userinfo becomes Proxy-Authorization.
	URL string `yaml:"url" mapstructure:"url" validate:"required"`
	// Headers are sent on every CONNECT request to the proxy.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`
}

// ParseProxy returns a Proxy for rawURL, or nil when rawURL is empty.
func ParseProxy(rawURL string) *Proxy {
	if rawURL == "" {
		return nil
	}
	return &Proxy{URL: rawURL}
}

// parse validates the proxy scheme and returns the parsed URL.
func (p *Proxy) parse() (*url.URL, error) {
	u, err := url.Parse(p.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL %q: %w", p.URL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("only http and https proxies are supported, not %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy URL %q has no host", p.URL)
	}
	return u, nil
}

// SocketOption runs against every new socket before it connects.
type SocketOption func(network, address string, conn syscall.RawConn) error

// Config configures a Transport. It is resolved once in New and never
// mutated afterwards.
type Config struct {
	// Name identifies the transport in logs, metrics and health reports.
	Name string `yaml:"name" mapstructure:"name"`

	// TLS configures verification and client certificates.
	TLS security.TLSConfig `yaml:"tls" mapstructure:"tls"`

	// TrustEnv honours SSL_CERT_FILE, SSL_CERT_DIR and the *_PROXY
	// variables. Nil means true.
	TrustEnv *bool `yaml:"trust_env" mapstructure:"trust_env"`

	// HTTP1 enables HTTP/1.1. Nil means true.
	HTTP1 *bool `yaml:"http1" mapstructure:"http1"`

	// HTTP2 enables HTTP/2. Requires the h2 connector to be linked in.
	HTTP2 bool `yaml:"http2" mapstructure:"http2"`

	// Limits bounds the connection pool.
	Limits Limits `yaml:"limits" mapstructure:"limits"`

	// Proxy routes every request through an HTTP(S) proxy.
	Proxy *Proxy `yaml:"proxy" mapstructure:"proxy"`

	// SocketOptions tune sockets before they connect.
	SocketOptions []SocketOption `yaml:"-" mapstructure:"-"`
}

// ApplyDefaults resolves every unset field to its concrete default.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.TrustEnv == nil {
		c.TrustEnv = boolPtr(true)
	}
	if c.HTTP1 == nil {
		c.HTTP1 = boolPtr(true)
	}
	if c.TLS.Verify == nil {
		c.TLS.Verify = boolPtr(true)
	}
	c.Limits.ApplyDefaults()
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	if c.Limits.MaxConnections != nil && *c.Limits.MaxConnections == 0 {
		return fmt.Errorf("limits.max_connections must be positive or NoLimit")
	}
	if c.Proxy != nil {
		if _, err := c.Proxy.parse(); err != nil {
			return err
		}
	}
	if !c.http1() && !c.HTTP2 {
		return fmt.Errorf("at least one of http1 or http2 must be enabled")
	}
	if !c.http1() && c.Proxy != nil {
		return fmt.Errorf("proxies require http1; prior-knowledge http2 cannot tunnel through a proxy")
	}
	return nil
}

func (c *Config) http1() bool    { return c.HTTP1 == nil || *c.HTTP1 }
func (c *Config) trustEnv() bool { return c.TrustEnv == nil || *c.TrustEnv }

func boolPtr(b bool) *bool { return &b }
