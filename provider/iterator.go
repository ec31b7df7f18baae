package provider

import "context"

// Iterator is a pull-based sequence of values. Next returns
// (zero, false, nil) once the sequence is exhausted. Close releases the
// underlying resources and may be called at any point.
type Iterator[T any] interface {
	Next(ctx context.Context) (T, bool, error)
	Close() error
}
