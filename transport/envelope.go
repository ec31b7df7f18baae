package transport

import (
	"bytes"
	"context"
	"io"
	"net/textproto"
	"sync"

	"github.com/kbukum/httpbridge/provider"
)

// ByteStream is a pull-based sequence of byte chunks. Next returns
// (nil, false, nil) once the sequence is exhausted. Close may be called
// concurrently with Next and must make a pending Next return.
type ByteStream = provider.Iterator[[]byte]

// Header is a single text header field. Order and duplicates are preserved.
type Header struct {
	Name  string
	Value string
}

// HeaderBytes is a single header field as raw ASCII bytes.
type HeaderBytes struct {
	Name  []byte
	Value []byte
}

// Request is the caller's view of an outbound request.
type Request struct {
	// Method is the HTTP verb. It is sent upper-cased; empty means GET.
	Method string
	// URL is the absolute target URL.
	URL string
	// Headers are forwarded in order, duplicates included.
	Headers []Header
	// Body is streamed to the engine. Nil means no body.
	Body ByteStream
}

// NewRequest builds a Request.
func NewRequest(method, url string, headers []Header, body ByteStream) *Request {
	return &Request{Method: method, URL: url, Headers: headers, Body: body}
}

// Response is the caller's view of the engine's response. Body must be
// closed by the caller.
type Response struct {
	// StatusCode is passed through unchanged, redirects included.
	StatusCode int
	// Headers are ASCII byte pairs.
	Headers []HeaderBytes
	// Body yields the payload lazily in chunks of at most DefaultChunkSize.
	Body ByteStream
	// Protocol is the negotiated protocol, e.g. "HTTP/1.1" or "HTTP/2.0".
	Protocol string
}

// Header returns the first value of the named header, matched case-insensitively.
func (r *Response) Header(name string) (string, bool) {
	key := textproto.CanonicalMIMEHeaderKey(name)
	for _, h := range r.Headers {
		if textproto.CanonicalMIMEHeaderKey(string(h.Name)) == key {
			return string(h.Value), true
		}
	}
	return "", false
}

// TextHeaders decodes the byte pairs back into text headers.
func (r *Response) TextHeaders() []Header {
	out := make([]Header, len(r.Headers))
	for i, h := range r.Headers {
		out[i] = Header{Name: string(h.Name), Value: string(h.Value)}
	}
	return out
}

// Close releases the response body.
func (r *Response) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// ReadAll drains s and closes it.
func ReadAll(ctx context.Context, s ByteStream) ([]byte, error) {
	defer func() { _ = s.Close() }()
	var buf bytes.Buffer
	for {
		chunk, ok, err := s.Next(ctx)
		if err != nil {
			return buf.Bytes(), err
		}
		if !ok {
			return buf.Bytes(), nil
		}
		buf.Write(chunk)
	}
}

// --- request body sources ---

// lengther is implemented by bodies whose size is known up front.
type lengther interface {
	Len() int64
}

// BytesBody returns a single-chunk body with a known length.
func BytesBody(b []byte) ByteStream {
	return ChunksBody(b)
}

// ChunksBody returns a body that yields each chunk in order.
func ChunksBody(chunks ...[]byte) ByteStream {
	return &chunkStream{chunks: chunks}
}

type chunkStream struct {
	mu     sync.Mutex
	chunks [][]byte
	closed bool
}

func (s *chunkStream) Next(_ context.Context) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.closed && len(s.chunks) > 0 {
		c := s.chunks[0]
		s.chunks = s.chunks[1:]
		if len(c) > 0 {
			return c, true, nil
		}
	}
	return nil, false, nil
}

func (s *chunkStream) Len() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.chunks {
		n += int64(len(c))
	}
	return n
}

func (s *chunkStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.chunks = nil
	s.mu.Unlock()
	return nil
}

// ReaderBody returns a body that reads r in DefaultChunkSize blocks. If r
// is an io.Closer it is closed with the stream.
func ReaderBody(r io.Reader) ByteStream {
	return &readerStream{r: r, size: DefaultChunkSize}
}

type readerStream struct {
	r    io.Reader
	size int
	done bool
	once sync.Once
}

func (s *readerStream) Next(_ context.Context) ([]byte, bool, error) {
	for !s.done {
		buf := make([]byte, s.size)
		n, err := s.r.Read(buf)
		if err == io.EOF {
			s.done = true
		} else if err != nil {
			return nil, false, err
		}
		if n > 0 {
			return buf[:n], true, nil
		}
	}
	return nil, false, nil
}

func (s *readerStream) Close() error {
	var err error
	s.once.Do(func() {
		if c, ok := s.r.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
