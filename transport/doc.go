// Package transport sends single HTTP exchanges through net/http on
// behalf of a higher-level client that owns redirects, retries, cookies,
// authentication and timeouts.
//
// A Transport is built once from a Config and owns one Connector for its
// whole life. The Session that dispatches requests is created lazily on
// the first request (or Open) and released by Close; a later request
// reopens it. Shutdown is terminal.
//
//	t, err := transport.New(transport.Config{Limits: transport.DefaultLimits()})
//	if err != nil {
//		return err
//	}
//	defer t.Close(ctx)
//
//	resp, err := t.HandleRequest(ctx, transport.NewRequest("GET", "https://example.com/", nil, nil))
//	if err != nil {
//		return err // *transport.Error; see IsConnect, IsTimeout, ...
//	}
//	body, err := transport.ReadAll(ctx, resp.Body)
//
// HTTP/2 is provided by the transport/h2 package, which registers itself
// when imported:
//
//	import _ "github.com/kbukum/httpbridge/transport/h2"
//
// Engine errors are classified into a Kind. Connect, Read and Write
// errors are network errors; RemoteProtocol errors are protocol errors.
package transport
