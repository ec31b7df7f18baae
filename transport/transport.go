package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kbukum/httpbridge/logger"
	"github.com/kbukum/httpbridge/observability"
)

// State is the lifecycle state of a Transport.
type State int32

const (
	// StateUnstarted means no session has been created yet.
	StateUnstarted State = iota
	// StateActive means a session is live.
	StateActive
	// StateClosed means the session was released. The next request reopens it.
	StateClosed
	// StateShutdown is terminal.
	StateShutdown
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Option configures a Transport.
type Option func(*Transport)

// WithSessionFactory replaces the default session factory.
func WithSessionFactory(f SessionFactory) Option {
	return func(t *Transport) {
		if f != nil {
			t.newSession = f
		}
	}
}

// WithLogger sets the logger. The transport logs under its own component name.
func WithLogger(l *logger.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

// WithMetrics records request, session and error metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(t *Transport) { t.metrics = m }
}

// WithTracing opens a client span around every dispatch and around session
// creation. Metrics are recorded independently through WithMetrics.
func WithTracing() Option {
	return func(t *Transport) { t.tracing = true }
}

// Transport bridges Request/Response envelopes onto net/http. It owns
// one Connector for its whole life and at most one Session at a time.
type Transport struct {
	cfg        Config
	params     ConnectorParams
	connector  Connector
	classifier Classifier
	newSession SessionFactory

	log     *logger.Logger
	metrics *observability.Metrics
	tracing bool

	mu            sync.Mutex
	state         State
	session       Session
	connectorOpen bool

	shutdownCtx context.Context
	shutdown    context.CancelCauseFunc
}

// New validates cfg and builds the connector. No session is created and
// no connection is opened until the first request or Open.
func New(cfg Config, opts ...Option) (*Transport, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, configError(err)
	}

	params, err := BuildConnectorParams(cfg)
	if err != nil {
		return nil, configError(err)
	}
	connector, classifier, err := newConnector(params)
	if err != nil {
		return nil, configError(err)
	}

	t := &Transport{
		cfg:           cfg,
		params:        params,
		connector:     connector,
		classifier:    classifier,
		newSession:    NewHTTPSession,
		log:           logger.GetGlobalLogger(),
		connectorOpen: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.WithComponent("transport").WithFields(logger.Fields(logger.FieldTransport, cfg.Name))
	t.shutdownCtx, t.shutdown = context.WithCancelCause(context.Background())

	t.log.Debug("transport created", logger.Fields(
		logger.FieldProtocol, connector.Protocol(),
		"max_connections", describeLimit(*cfg.Limits.MaxConnections),
		"keepalive", describeLimit(*cfg.Limits.MaxKeepaliveConnections),
		"proxy", params.ProxyURL != nil,
	))
	return t, nil
}

// Name returns the configured transport name.
func (t *Transport) Name() string { return t.cfg.Name }

// Config returns the resolved configuration.
func (t *Transport) Config() Config { return t.cfg }

// Connector returns the transport's connector.
func (t *Transport) Connector() Connector { return t.connector }

// State returns the current lifecycle state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Open creates the session eagerly. It is a no-op when already active.
func (t *Transport) Open(ctx context.Context) error {
	_, err := t.ensureSession(ctx)
	return err
}

// Close releases the session and then the connector. It is idempotent;
// a later request opens a fresh session on the same connector.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateShutdown {
		return nil
	}
	return t.closeLocked(ctx, StateClosed)
}

// Shutdown closes the transport for good. In-flight requests and body
// streams fail with ErrShutdown, as does every later request.
func (t *Transport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateShutdown {
		return nil
	}
	t.shutdown(ErrShutdown)
	return t.closeLocked(ctx, StateShutdown)
}

func (t *Transport) closeLocked(ctx context.Context, next State) error {
	var errs []error
	if t.session != nil {
		if err := t.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
		t.session = nil
	}
	if t.connectorOpen {
		if err := t.connector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connector: %w", err))
		}
		t.connectorOpen = false
	}
	prev := t.state
	t.state = next

	if prev != next {
		t.log.Debug("transport state changed", logger.Fields("from", prev.String(), logger.FieldState, next.String()))
		if t.metrics != nil {
			event := observability.SessionClose
			if next == StateShutdown {
				event = observability.SessionShutdown
			}
			t.metrics.RecordSession(ctx, t.cfg.Name, event)
		}
	}
	return errors.Join(errs...)
}

// ensureSession returns the live session, creating it exactly once per
// Active period.
func (t *Transport) ensureSession(ctx context.Context) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateActive:
		return t.session, nil
	case StateShutdown:
		return nil, newError(KindNetwork, "open session", ErrShutdown)
	}

	s, err := t.openSession(ctx)
	if err != nil {
		return nil, classify("open session", err, t.classifier)
	}
	t.session = s
	t.connectorOpen = true
	prev := t.state
	t.state = StateActive

	t.log.Debug("session opened", logger.Fields("from", prev.String(), logger.FieldState, t.state.String()))
	if t.metrics != nil {
		t.metrics.RecordSession(ctx, t.cfg.Name, observability.SessionOpen)
	}
	return s, nil
}

// openSession runs the session factory, inside a span when tracing.
func (t *Transport) openSession(ctx context.Context) (Session, error) {
	if !t.tracing {
		return t.newSession(t.connector)
	}
	_, span := observability.StartSpan(ctx, observability.SpanSessionOpen)
	defer span.End()
	span.SetAttributes(attribute.String(observability.AttrTransport, t.cfg.Name))

	s, err := t.newSession(t.connector)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return s, err
}

// requestContext derives the dispatch context. It is cancelled with
// ErrShutdown if the transport shuts down while the exchange is running.
func (t *Transport) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(t.shutdownCtx, func() {
		cancel(context.Cause(t.shutdownCtx))
	})
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

// HandleRequest sends req and returns the response with its body still
// streaming. The caller owns the response and must close its body.
// Redirects are never followed and no timeout is applied beyond ctx.
func (t *Transport) HandleRequest(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, newError(KindProtocol, "dispatch", errors.New("nil request"))
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	requestID := uuid.NewString()

	var (
		ex   *observability.Exchange
		done func(*Response, error)
	)
	if t.tracing || t.metrics != nil {
		ex = observability.NewExchange(t.cfg.Name, method, req.URL, requestID, t.metrics)
		ex.Traced = t.tracing
		spanCtx, span := ex.Start(ctx)
		ctx = spanCtx
		done = func(resp *Response, err error) {
			if err != nil {
				kind, _ := KindOf(err)
				ex.End(ctx, span, 0, "", kind.String(), err)
				return
			}
			ex.End(ctx, span, resp.StatusCode, resp.Protocol, "", nil)
		}
	}

	start := time.Now()
	resp, err := t.roundTrip(ctx, req, method)
	if done != nil {
		done(resp, err)
	}

	fields := logger.MergeWithDuration(logger.Fields(
		logger.FieldRequestID, requestID,
		logger.FieldMethod, method,
		logger.FieldURL, req.URL,
	), time.Since(start))
	if err != nil {
		kind, _ := KindOf(err)
		fields[logger.FieldKind] = kind.String()
		fields[logger.FieldError] = err.Error()
		t.log.Warn("request failed", fields)
		return nil, err
	}
	fields[logger.FieldStatus] = resp.StatusCode
	fields[logger.FieldProtocol] = resp.Protocol
	t.log.Debug("response received", fields)
	return resp, nil
}

func (t *Transport) roundTrip(ctx context.Context, req *Request, method string) (*Response, error) {
	session, err := t.ensureSession(ctx)
	if err != nil {
		closeSource(req.Body)
		return nil, err
	}

	rctx, release := t.requestContext(ctx)
	hreq, err := buildRequest(rctx, req, method)
	if err != nil {
		release()
		closeSource(req.Body)
		return nil, err
	}

	hresp, err := session.Do(hreq)
	if err != nil {
		release()
		if hreq.Body != nil {
			_ = hreq.Body.Close()
		}
		return nil, t.dispatchError(rctx, err)
	}
	return newResponse(rctx, hresp, release), nil
}

// dispatchError classifies err, attributing it to shutdown when the
// transport cancelled the exchange.
func (t *Transport) dispatchError(rctx context.Context, err error) *Error {
	if errors.Is(context.Cause(rctx), ErrShutdown) && !errors.Is(err, ErrShutdown) {
		err = fmt.Errorf("%w: %w", ErrShutdown, err)
	}
	return classify("dispatch", err, t.classifier)
}

func closeSource(s ByteStream) {
	if s != nil {
		_ = s.Close()
	}
}

// buildRequest translates a Request into an *http.Request bound to ctx.
func buildRequest(ctx context.Context, req *Request, method string) (*http.Request, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, newError(KindUnsupportedProtocol, "build request", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, newError(KindUnsupportedProtocol, "build request",
			fmt.Errorf("request URL %q has unsupported scheme %q", req.URL, u.Scheme))
	}

	hreq, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, newError(KindProtocol, "build request", err)
	}

	length := int64(-1)
	hreq.Header = make(http.Header, len(req.Headers)+1)
	for _, h := range req.Headers {
		switch textproto.CanonicalMIMEHeaderKey(h.Name) {
		case "Host":
			hreq.Host = h.Value
		case "Content-Length":
			if n, err := strconv.ParseInt(strings.TrimSpace(h.Value), 10, 64); err == nil && n >= 0 {
				length = n
			}
		case "Transfer-Encoding":
			// The engine frames bodies of unknown length itself.
		default:
			hreq.Header.Add(h.Name, h.Value)
		}
	}
	if _, ok := hreq.Header["User-Agent"]; !ok {
		// An empty value stops the engine from sending its own.
		hreq.Header["User-Agent"] = []string{""}
	}

	if req.Body == nil {
		return hreq, nil
	}
	if l, ok := req.Body.(lengther); ok {
		length = l.Len()
	}
	if length == 0 {
		closeSource(req.Body)
		hreq.ContentLength = 0
		hreq.Body = http.NoBody
		return hreq, nil
	}
	hreq.Body = newBodyReader(ctx, req.Body)
	hreq.ContentLength = length
	return hreq, nil
}

// newResponse wraps an engine response. release is invoked when the body closes.
func newResponse(ctx context.Context, hresp *http.Response, release context.CancelFunc) *Response {
	return &Response{
		StatusCode: hresp.StatusCode,
		Headers:    encodeHeaders(hresp.Header),
		Body:       newResponseStream(ctx, hresp.Body, release),
		Protocol:   hresp.Proto,
	}
}

// encodeHeaders flattens h into byte pairs. Names are sorted so output
// is deterministic; values keep the engine's order.
func encodeHeaders(h http.Header) []HeaderBytes {
	names := make([]string, 0, len(h))
	n := 0
	for name, values := range h {
		names = append(names, name)
		n += len(values)
	}
	sort.Strings(names)

	out := make([]HeaderBytes, 0, n)
	for _, name := range names {
		for _, v := range h[name] {
			out = append(out, HeaderBytes{Name: []byte(name), Value: []byte(v)})
		}
	}
	return out
}
