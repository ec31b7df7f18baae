package provider

import "context"

// RequestResponse takes one input and returns one output. For an HTTP
// transport the output may still carry a streaming body.
type RequestResponse[I, O any] interface {
	Provider
	Execute(ctx context.Context, input I) (O, error)
}
