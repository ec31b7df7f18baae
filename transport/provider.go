package transport

import (
	"context"

	"github.com/kbukum/httpbridge/provider"
)

var (
	_ provider.RequestResponse[*Request, *Response] = (*Transport)(nil)
	_ provider.Initializable                        = (*Transport)(nil)
	_ provider.Closeable                            = (*Transport)(nil)
)

// IsAvailable reports whether the transport still accepts requests.
func (t *Transport) IsAvailable(_ context.Context) bool {
	return t.State() != StateShutdown
}

// Execute is HandleRequest under the provider contract.
func (t *Transport) Execute(ctx context.Context, req *Request) (*Response, error) {
	return t.HandleRequest(ctx, req)
}

// Init opens the session eagerly.
func (t *Transport) Init(ctx context.Context) error {
	return t.Open(ctx)
}
