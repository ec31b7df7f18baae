// Package h2 adds HTTP/2 support to the transport package. Importing it
// for side effects registers the connector:
//
//	import _ "github.com/kbukum/httpbridge/transport/h2"
//
// With HTTP/1.1 also enabled the connector negotiates the protocol over
// ALPN. With HTTP/2 alone it speaks HTTP/2 with prior knowledge, over TLS
// for https URLs and as cleartext h2c for http URLs.
package h2

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"golang.org/x/net/http2"

	"github.com/kbukum/httpbridge/transport"
)

func init() {
	transport.RegisterHTTP2(transport.HTTP2Extension{
		NewConnector: NewConnector,
		Classify:     Classify,
	})
}

// NewConnector builds an HTTP/2 capable connector from p.
func NewConnector(p transport.ConnectorParams) (transport.Connector, error) {
	if p.HTTP1 {
		return newNegotiatingConnector(p)
	}
	return newPriorKnowledgeConnector(p), nil
}

func newNegotiatingConnector(p transport.ConnectorParams) (transport.Connector, error) {
	t1 := p.HTTPTransport()
	t2, err := http2.ConfigureTransports(t1)
	if err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}
	t2.IdleConnTimeout = p.IdleConnTimeout
	t2.DisableCompression = true
	return transport.NewHTTPConnector(t1, "h2,http/1.1", p), nil
}

var _ transport.Connector = (*priorKnowledgeConnector)(nil)

// priorKnowledgeConnector speaks HTTP/2 without negotiation.
type priorKnowledgeConnector struct {
	secure *http2.Transport
	plain  *http2.Transport
}

func newPriorKnowledgeConnector(p transport.ConnectorParams) *priorKnowledgeConnector {
	dialer := p.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &priorKnowledgeConnector{
		secure: &http2.Transport{
			TLSClientConfig:    p.TLS.Clone(),
			DisableCompression: true,
			IdleConnTimeout:    p.IdleConnTimeout,
			DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
				d := &tls.Dialer{NetDialer: dialer, Config: cfg}
				return d.DialContext(ctx, network, addr)
			},
		},
		plain: &http2.Transport{
			AllowHTTP:          true,
			DisableCompression: true,
			IdleConnTimeout:    p.IdleConnTimeout,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
		},
	}
}

func (c *priorKnowledgeConnector) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "http" {
		return c.plain.RoundTrip(req)
	}
	return c.secure.RoundTrip(req)
}

func (c *priorKnowledgeConnector) CloseIdleConnections() {
	c.secure.CloseIdleConnections()
	c.plain.CloseIdleConnections()
}

func (c *priorKnowledgeConnector) Close() error {
	c.CloseIdleConnections()
	return nil
}

func (c *priorKnowledgeConnector) Protocol() string { return "h2" }

// Classify maps x/net/http2 errors onto transport kinds.
func Classify(err error) (transport.Kind, bool) {
	var (
		goAway    http2.GoAwayError
		streamErr http2.StreamError
		connErr   http2.ConnectionError
	)
	switch {
	case errors.As(err, &goAway):
		return transport.KindRemoteProtocol, true
	case strings.Contains(err.Error(), "server sent GOAWAY"):
		return transport.KindRemoteProtocol, true
	case errors.As(err, &streamErr), errors.As(err, &connErr):
		return transport.KindProtocol, true
	}
	return 0, false
}
