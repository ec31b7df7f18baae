package transport

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Connector is a pooled round tripper exclusively owned by one Transport.
// Close releases pooled connections; the connector dials again lazily if
// the transport is reopened.
type Connector interface {
	http.RoundTripper
	CloseIdleConnections()
	Close() error
	// Protocol names the protocols the connector speaks, e.g. "http/1.1"
	// or "h2,http/1.1".
	Protocol() string
}

// ConnectorParams is the engine-level configuration derived from Config.
type ConnectorParams struct {
	// TLS is never nil.
	TLS *tls.Config

	// Proxy selects the proxy for a request. Nil means direct.
	Proxy func(*http.Request) (*url.URL, error)
	// ProxyURL is the explicitly configured proxy, if any.
	ProxyURL *url.URL
	// ProxyHeaders are sent with CONNECT requests and with plain-HTTP
	// requests forwarded through ProxyURL.
	ProxyHeaders http.Header

	MaxConnsPerHost     int
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DisableKeepAlives   bool

	Dialer *net.Dialer

	HTTP1 bool
	HTTP2 bool
}

// HTTPTransport builds an *http.Transport from the params. HTTP/2 is
// disabled on it; an HTTP/2 connector enables it explicitly.
func (p ConnectorParams) HTTPTransport() *http.Transport {
	tlsConfig := p.TLS.Clone()
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	dialer := p.Dialer
	if dialer == nil {
		dialer = &net.Dialer{KeepAlive: dialKeepAlive}
	}
	if !p.HTTP2 {
		tlsConfig.NextProtos = []string{"http/1.1"}
	}
	t := &http.Transport{
		Proxy:                 p.Proxy,
		ProxyConnectHeader:    p.ProxyHeaders.Clone(),
		DialContext:           dialer.DialContext,
		TLSClientConfig:       tlsConfig,
		TLSHandshakeTimeout:   0,
		DisableKeepAlives:     p.DisableKeepAlives,
		DisableCompression:    true,
		MaxIdleConns:          p.MaxIdleConns,
		MaxIdleConnsPerHost:   p.MaxIdleConnsPerHost,
		MaxConnsPerHost:       p.MaxConnsPerHost,
		IdleConnTimeout:       p.IdleConnTimeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     false,
	}
	if !p.HTTP2 {
		t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	return t
}

// HTTPConnector wraps an *http.Transport as a Connector.
type HTTPConnector struct {
	rt           *http.Transport
	protocol     string
	proxyURL     *url.URL
	proxyHeaders http.Header
}

// NewHTTPConnector returns a Connector backed by rt. Proxy headers from p
// are attached to plain-HTTP requests that go through the explicit proxy.
func NewHTTPConnector(rt *http.Transport, protocol string, p ConnectorParams) *HTTPConnector {
	return &HTTPConnector{
		rt:           rt,
		protocol:     protocol,
		proxyURL:     p.ProxyURL,
		proxyHeaders: p.ProxyHeaders,
	}
}

// RoundTrip implements http.RoundTripper.
func (c *HTTPConnector) RoundTrip(req *http.Request) (*http.Response, error) {
	if c.proxyURL != nil && len(c.proxyHeaders) > 0 && req.URL.Scheme == "http" {
		req = req.Clone(req.Context())
		for k, vs := range c.proxyHeaders {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	return c.rt.RoundTrip(req)
}

// CloseIdleConnections releases idle pooled connections.
func (c *HTTPConnector) CloseIdleConnections() { c.rt.CloseIdleConnections() }

// Close releases pooled connections.
func (c *HTTPConnector) Close() error {
	c.rt.CloseIdleConnections()
	return nil
}

// Protocol implements Connector.
func (c *HTTPConnector) Protocol() string { return c.protocol }

// Transport returns the underlying *http.Transport.
func (c *HTTPConnector) Transport() *http.Transport { return c.rt }

// newHTTP1Connector builds the default HTTP/1.1 connector.
func newHTTP1Connector(p ConnectorParams) (Connector, error) {
	return NewHTTPConnector(p.HTTPTransport(), "http/1.1", p), nil
}

// --- HTTP/2 extension registry ---

// ConnectorFactory builds a Connector from params.
type ConnectorFactory func(p ConnectorParams) (Connector, error)

// HTTP2Extension is the optional HTTP/2 support. Packages providing it
// call RegisterHTTP2 from init.
type HTTP2Extension struct {
	// NewConnector builds a connector for configs with HTTP2 enabled.
	NewConnector ConnectorFactory
	// Classify maps HTTP/2 specific errors. Optional.
	Classify Classifier
}

// http2ImportHint is the remedy reported when HTTP/2 is requested but not linked in.
const http2ImportHint = `http2 requires the h2 connector: import _ "github.com/kbukum/httpbridge/transport/h2"`

var (
	http2Mu      sync.RWMutex
	http2Ext     *HTTP2Extension
	http2Lookups atomic.Int64
)

// RegisterHTTP2 makes the HTTP/2 extension available. It panics if ext
// has no connector factory or if an extension is already registered.
func RegisterHTTP2(ext HTTP2Extension) {
	if ext.NewConnector == nil {
		panic("transport: RegisterHTTP2 connector factory is nil")
	}
	http2Mu.Lock()
	defer http2Mu.Unlock()
	if http2Ext != nil {
		panic("transport: RegisterHTTP2 called twice")
	}
	http2Ext = &ext
}

// HTTP2Available reports whether the HTTP/2 extension is registered.
func HTTP2Available() bool {
	_, ok := lookupHTTP2()
	return ok
}

func lookupHTTP2() (*HTTP2Extension, bool) {
	http2Lookups.Add(1)
	http2Mu.RLock()
	defer http2Mu.RUnlock()
	return http2Ext, http2Ext != nil
}

// errHTTP2Unavailable is returned when HTTP/2 is configured without the extension.
var errHTTP2Unavailable = errors.New(http2ImportHint)

// limitValue maps NoLimit onto the engine's "unlimited" value.
func limitValue(n, unlimited int) int {
	if n == NoLimit {
		return unlimited
	}
	return n
}

func describeLimit(n int) string {
	if n == NoLimit {
		return "unlimited"
	}
	return strconv.Itoa(n)
}
