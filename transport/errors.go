package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"syscall"
)

// Kind classifies transport errors.
type Kind int

const (
	// KindConfiguration indicates an invalid transport configuration. Raised by New only.
	KindConfiguration Kind = iota
	// KindUnsupportedProtocol indicates a request URL scheme the engine cannot serve.
	KindUnsupportedProtocol
	// KindConnect indicates the connection could not be established (DNS, refused, TLS).
	KindConnect
	// KindNetwork indicates a socket-level failure on an established connection.
	KindNetwork
	// KindRead indicates a truncated or corrupted response payload.
	KindRead
	// KindWrite indicates the request body could not be sent.
	KindWrite
	// KindRemoteProtocol indicates the peer closed the connection mid-exchange.
	KindRemoteProtocol
	// KindProtocol indicates malformed HTTP framing.
	KindProtocol
	// KindTimeout indicates a deadline expired inside the engine.
	KindTimeout
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindUnsupportedProtocol:
		return "unsupported_protocol"
	case KindConnect:
		return "connect"
	case KindNetwork:
		return "network"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindRemoteProtocol:
		return "remote_protocol"
	case KindProtocol:
		return "protocol"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// parent returns the broader kind k belongs to.
func (k Kind) parent() Kind {
	switch k {
	case KindConnect, KindRead, KindWrite:
		return KindNetwork
	case KindRemoteProtocol:
		return KindProtocol
	default:
		return k
	}
}

// ErrShutdown is the cause of every failure produced by a shut-down transport.
var ErrShutdown = errors.New("transport has been shut down")

// Error is a classified transport error. Err preserves the engine's
// original error.
type Error struct {
	// Kind classifies the error.
	Kind Kind
	// Op names the step that failed ("new", "dispatch", "read body", ...).
	Op string
	// Message describes the error.
	Message string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("transport: %s: %s: %s", e.Kind, e.Op, e.Message)
	}
	return fmt.Sprintf("transport: %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

func configError(err error) *Error {
	return newError(KindConfiguration, "new", err)
}

// KindOf returns the kind of err if it is a transport error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func isKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && (k == kind || k.parent() == kind)
}

// IsConfiguration checks if an error is a configuration error.
func IsConfiguration(err error) bool { return isKind(err, KindConfiguration) }

// IsUnsupportedProtocol checks if an error is an unsupported-protocol error.
func IsUnsupportedProtocol(err error) bool { return isKind(err, KindUnsupportedProtocol) }

// IsConnect checks if an error is a connect error.
func IsConnect(err error) bool { return isKind(err, KindConnect) }

// IsNetwork checks if an error is a network error. Connect, read and
// write errors are network errors too.
func IsNetwork(err error) bool { return isKind(err, KindNetwork) }

// IsRead checks if an error is a read error.
func IsRead(err error) bool { return isKind(err, KindRead) }

// IsWrite checks if an error is a write error.
func IsWrite(err error) bool { return isKind(err, KindWrite) }

// IsRemoteProtocol checks if an error is a remote-protocol error.
func IsRemoteProtocol(err error) bool { return isKind(err, KindRemoteProtocol) }

// IsProtocol checks if an error is a protocol error. Remote-protocol
// errors are protocol errors too.
func IsProtocol(err error) bool { return isKind(err, KindProtocol) }

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool { return isKind(err, KindTimeout) }

// --- classification ---

// Classifier maps an engine error to a kind. It reports false when it
// does not recognise err.
type Classifier func(err error) (Kind, bool)

type rule struct {
	kind  Kind
	match func(error) bool
}

// Rules are checked most specific first and the first match wins. The
// HTTP/2 extension's classifier runs between the two groups.
var (
	leadingRules = []rule{
		{KindWrite, isBodySourceError},
		{KindNetwork, isShutdown},
		{KindUnsupportedProtocol, isUnsupportedScheme},
		{KindTimeout, isDeadline},
	}
	trailingRules = []rule{
		{KindConnect, isConnectFailure},
		{KindRemoteProtocol, isPeerDisconnect},
		{KindProtocol, isMalformed},
		{KindRead, isTruncated},
		{KindNetwork, isSocketFailure},
	}
)

// classify maps a dispatch error onto exactly one kind. Network is the
// fallback for anything unrecognised.
func classify(op string, err error, extra Classifier) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	for _, r := range leadingRules {
		if r.match(err) {
			return newError(r.kind, op, err)
		}
	}
	if extra != nil {
		if kind, ok := extra(err); ok {
			return newError(kind, op, err)
		}
	}
	for _, r := range trailingRules {
		if r.match(err) {
			return newError(r.kind, op, err)
		}
	}
	return newError(KindNetwork, op, err)
}

// classifyStream maps an error raised while iterating a response body.
// Truncation is a read error; everything else is a network error.
func classifyStream(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if isTruncated(err) && !isShutdown(err) {
		return newError(KindRead, "read body", err)
	}
	return newError(KindNetwork, "read body", err)
}

// bodySourceError marks a failure of the caller's request body stream.
type bodySourceError struct {
	err error
}

func (e *bodySourceError) Error() string { return "request body: " + e.err.Error() }
func (e *bodySourceError) Unwrap() error { return e.err }

func isBodySourceError(err error) bool {
	var b *bodySourceError
	return errors.As(err, &b)
}

func isShutdown(err error) bool {
	return errors.Is(err, ErrShutdown)
}

func isUnsupportedScheme(err error) bool {
	return strings.Contains(err.Error(), "unsupported protocol scheme")
}

func isDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isConnectFailure(err error) bool {
	var (
		dnsErr      *net.DNSError
		opErr       *net.OpError
		recordErr   tls.RecordHeaderError
		verifyErr   *tls.CertificateVerificationError
		alertErr    tls.AlertError
		authorityEr x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &dnsErr):
		return true
	case errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "proxyconnect"):
		return true
	case errors.As(err, &recordErr), errors.As(err, &verifyErr), errors.As(err, &alertErr):
		return true
	case errors.As(err, &authorityEr), errors.As(err, &hostnameErr), errors.As(err, &invalidErr):
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

func isPeerDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

func isMalformed(err error) bool {
	var (
		textErr textproto.ProtocolError
		httpErr *http.ProtocolError
	)
	if errors.As(err, &textErr) || errors.As(err, &httpErr) {
		return true
	}
	return strings.Contains(err.Error(), "malformed HTTP")
}

func isTruncated(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func isSocketFailure(err error) bool {
	var (
		opErr *net.OpError
		errno syscall.Errno
	)
	return errors.As(err, &opErr) || errors.As(err, &errno)
}
