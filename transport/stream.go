package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// bodyReader feeds a caller's ByteStream to the engine as an io.Reader.
// Chunks are pulled only when the engine asks for more bytes.
type bodyReader struct {
	ctx context.Context
	src ByteStream

	buf []byte
	err error

	closeOnce sync.Once
	closeErr  error
}

func newBodyReader(ctx context.Context, src ByteStream) *bodyReader {
	return &bodyReader{ctx: ctx, src: src}
}

func (r *bodyReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		chunk, ok, err := r.src.Next(r.ctx)
		switch {
		case err != nil:
			r.err = &bodySourceError{err: err}
		case !ok:
			r.err = io.EOF
		default:
			r.buf = chunk
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// Close closes the caller's stream once. The engine closes the request
// body after writing it, and the bridge closes it on early failures.
func (r *bodyReader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.src.Close()
	})
	return r.closeErr
}

// responseStream adapts an engine response body to a ByteStream. Each
// chunk is copied out of a per-stream read buffer, so callers may keep
// chunks after the next call to Next.
type responseStream struct {
	ctx     context.Context
	body    io.ReadCloser
	release context.CancelFunc
	buf     []byte

	mu   sync.Mutex
	err  error
	done bool

	closeOnce sync.Once
	closeErr  error
}

func newResponseStream(ctx context.Context, body io.ReadCloser, release context.CancelFunc) *responseStream {
	return &responseStream{
		ctx:     ctx,
		body:    body,
		release: release,
		buf:     make([]byte, DefaultChunkSize),
	}
}

// Next returns the next chunk of the payload. A read error that arrives
// together with data is reported on the following call.
func (s *responseStream) Next(ctx context.Context) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return nil, false, nil
	}
	if s.err != nil {
		return nil, false, s.err
	}
	if err := ctx.Err(); err != nil {
		s.err = classifyStream(err)
		return nil, false, s.err
	}

	for {
		n, err := s.body.Read(s.buf)
		if n > 0 {
			chunk := bytes.Clone(s.buf[:n])
			s.settle(err)
			return chunk, true, nil
		}
		if err != nil {
			s.settle(err)
			if s.done {
				return nil, false, nil
			}
			return nil, false, s.err
		}
	}
}

// settle records the terminal state after a read.
func (s *responseStream) settle(err error) {
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		s.done = true
		_ = s.Close()
	default:
		if errors.Is(context.Cause(s.ctx), ErrShutdown) {
			err = fmt.Errorf("%w: %w", ErrShutdown, err)
		}
		s.err = classifyStream(err)
	}
}

// Close releases the engine body and the request context. It is safe to
// call more than once and concurrently with Next.
func (s *responseStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
		if s.release != nil {
			s.release()
		}
	})
	return s.closeErr
}
