package transport

import (
	"net/http"
)

// Session dispatches requests over a single Connector.
type Session interface {
	Do(req *http.Request) (*http.Response, error)
	Close() error
}

// SessionFactory creates a Session bound to c. A Transport calls it at
// most once per Active period.
type SessionFactory func(c Connector) (Session, error)

// NewHTTPSession is the default SessionFactory. The returned session
// never follows redirects, has no timeout and keeps no cookies.
func NewHTTPSession(c Connector) (Session, error) {
	return &httpSession{
		client: &http.Client{
			Transport:     c,
			CheckRedirect: noRedirect,
		},
	}, nil
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

type httpSession struct {
	client *http.Client
}

func (s *httpSession) Do(req *http.Request) (*http.Response, error) {
	return s.client.Do(req)
}

// Close drops nothing of its own; the connector owns the pool.
func (s *httpSession) Close() error {
	return nil
}
