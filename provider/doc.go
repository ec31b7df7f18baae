// Package provider defines the small contracts a dispatch backend
// implements, plus middleware that decorates them.
//
// A backend satisfies RequestResponse[I, O] and may opt into
// Initializable and Closeable. Streaming payloads are exposed as
// Iterator[T], a pull-based sequence with explicit Close.
//
// # Middleware
//
// Middleware[I, O] wraps a RequestResponse. Chain composes several,
// outermost first:
//
//	rr := provider.Chain(
//	    provider.WithLogging[*transport.Request, *transport.Response](log),
//	    provider.WithTracing[*transport.Request, *transport.Response]("bridgefetch"),
//	)(tr)
package provider
