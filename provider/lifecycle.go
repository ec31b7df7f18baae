package provider

import "context"

// Initializable is implemented by providers that can acquire their
// resources ahead of the first Execute.
type Initializable interface {
	Init(ctx context.Context) error
}

// Closeable is implemented by providers that hold pooled resources.
type Closeable interface {
	Close(ctx context.Context) error
}
