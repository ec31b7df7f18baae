package transport

import (
	"errors"
	"math"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"golang.org/x/net/http/httpproxy"
)

// dialKeepAlive is the TCP keep-alive probe interval for new connections.
const dialKeepAlive = 30 * time.Second

// BuildConnectorParams translates a defaulted Config into engine params.
// It reads TLS material from disk but performs no network I/O.
func BuildConnectorParams(cfg Config) (ConnectorParams, error) {
	tlsConfig, err := cfg.TLS.Build(cfg.trustEnv())
	if err != nil {
		return ConnectorParams{}, err
	}

	p := ConnectorParams{
		TLS:   tlsConfig,
		HTTP1: cfg.http1(),
		HTTP2: cfg.HTTP2,
		Dialer: &net.Dialer{
			KeepAlive: dialKeepAlive,
			Control:   socketControl(cfg.SocketOptions),
		},
	}
	applyLimits(&p, cfg.Limits)

	if err := applyProxy(&p, cfg); err != nil {
		return ConnectorParams{}, err
	}
	return p, nil
}

// applyLimits maps pool limits onto http.Transport semantics. The engine
// has no global connection cap, so MaxConnections bounds each origin.
func applyLimits(p *ConnectorParams, l Limits) {
	l.ApplyDefaults()

	p.MaxConnsPerHost = limitValue(*l.MaxConnections, 0)

	switch keepalive := *l.MaxKeepaliveConnections; keepalive {
	case 0:
		p.DisableKeepAlives = true
	case NoLimit:
		p.MaxIdleConns = 0
		p.MaxIdleConnsPerHost = math.MaxInt
	default:
		p.MaxIdleConns = keepalive
		p.MaxIdleConnsPerHost = keepalive
	}

	switch expiry := *l.KeepaliveExpiry; expiry {
	case NoLimit:
		p.IdleConnTimeout = 0
	case 0:
		p.DisableKeepAlives = true
	default:
		p.IdleConnTimeout = expiry
	}
}

// applyProxy installs the explicit proxy, or the environment's when trusted.
func applyProxy(p *ConnectorParams, cfg Config) error {
	if cfg.Proxy == nil {
		if cfg.trustEnv() {
			proxyFunc := httpproxy.FromEnvironment().ProxyFunc()
			p.Proxy = func(req *http.Request) (*url.URL, error) {
				return proxyFunc(req.URL)
			}
		}
		return nil
	}

	u, err := cfg.Proxy.parse()
	if err != nil {
		return err
	}
	p.ProxyURL = u
	p.Proxy = http.ProxyURL(u)
	if len(cfg.Proxy.Headers) > 0 {
		p.ProxyHeaders = make(http.Header, len(cfg.Proxy.Headers))
		for k, v := range cfg.Proxy.Headers {
			p.ProxyHeaders.Set(k, v)
		}
	}
	return nil
}

// socketControl chains socket options into a single dialer hook.
func socketControl(opts []SocketOption) func(network, address string, c syscall.RawConn) error {
	if len(opts) == 0 {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var errs []error
		for _, opt := range opts {
			if err := opt(network, address, c); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// newConnector picks the connector for the configured HTTP versions. The
// HTTP/2 registry is consulted only when HTTP/2 is enabled.
func newConnector(p ConnectorParams) (Connector, Classifier, error) {
	if !p.HTTP2 {
		c, err := newHTTP1Connector(p)
		return c, nil, err
	}
	ext, ok := lookupHTTP2()
	if !ok {
		return nil, nil, errHTTP2Unavailable
	}
	c, err := ext.NewConnector(p)
	if err != nil {
		return nil, nil, err
	}
	return c, ext.Classify, nil
}
