package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/httpbridge/component"
	"github.com/kbukum/httpbridge/config"
	"github.com/kbukum/httpbridge/logger"
	"github.com/kbukum/httpbridge/observability"
	"github.com/kbukum/httpbridge/provider"
	"github.com/kbukum/httpbridge/transport"
	_ "github.com/kbukum/httpbridge/transport/h2"
)

const (
	serviceName       = "bridgefetch"
	telemetryShutdown = 5 * time.Second
)

type getFlags struct {
	method   string
	headers  []string
	data     string
	http2    bool
	proxy    string
	insecure bool
	include  bool
	fail     bool
}

func newGetCommand(g *globalFlags) *cobra.Command {
	f := &getFlags{}
	cmd := &cobra.Command{
		Use:   "get URL",
		Short: "Dispatch one request and stream the response body to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, g, f, args[0])
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.method, "request", "X", "", "request method (default GET, or POST with --data)")
	fl.StringArrayVarP(&f.headers, "header", "H", nil, "request header 'Name: value' (repeatable, order kept)")
	fl.StringVarP(&f.data, "data", "d", "", "request body; @file reads a file, @- reads stdin")
	fl.BoolVar(&f.http2, "http2", false, "enable HTTP/2 alongside HTTP/1.1")
	fl.StringVar(&f.proxy, "proxy", "", "HTTP or HTTPS proxy URL")
	fl.BoolVarP(&f.insecure, "insecure", "k", false, "skip TLS certificate verification")
	fl.BoolVarP(&f.include, "include", "i", false, "print the status line and headers to stderr")
	fl.BoolVarP(&f.fail, "fail", "f", false, "exit non-zero on HTTP status 400 and above")
	return cmd
}

func runGet(cmd *cobra.Command, g *globalFlags, f *getFlags, target string) (err error) {
	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()

	cfg, err := loadConfig(cmd, g, f)
	if err != nil {
		return err
	}
	log := logger.NewWithWriter(&cfg.Logging, cfg.Name, stderr)
	logger.SetGlobalLogger(log)

	opts, stopTelemetry, err := startTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	registry := component.NewRegistry(log)
	comp := transport.NewComponent(cfg.Transport, append(opts, transport.WithLogger(log))...)
	if err := registry.Register(comp); err != nil {
		return err
	}
	if err := registry.StartAll(ctx); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, registry.StopAll(context.WithoutCancel(ctx)))
	}()

	if g.verbose {
		for _, d := range registry.Describe() {
			fmt.Fprintf(stderr, "* %s (%s) %s\n", d.Name, d.Type, d.Details)
		}
	}

	req, err := buildRequest(cmd, f, target)
	if err != nil {
		return err
	}

	middlewares := []provider.Middleware[*transport.Request, *transport.Response]{
		provider.WithLogging[*transport.Request, *transport.Response](log),
	}
	if cfg.Tracer != nil {
		middlewares = append(middlewares, provider.WithTracing[*transport.Request, *transport.Response](cfg.Name))
	}
	rr := provider.Chain(middlewares...)(comp.Transport())

	resp, err := rr.Execute(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Close()

	if f.include {
		writeHead(stderr, resp)
	}
	if err := copyBody(ctx, cmd.OutOrStdout(), resp.Body); err != nil {
		return err
	}
	if f.fail && resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return nil
}

// loadConfig reads the config file and environment, then applies flags.
// Without a config the CLI logs warnings only.
func loadConfig(cmd *cobra.Command, g *globalFlags, f *getFlags) (*config.BridgeConfig, error) {
	cfg := &config.BridgeConfig{}
	cfg.Name = serviceName
	cfg.Environment = "production"
	cfg.Logging.Level = "warn"

	var opts []config.LoaderOption
	if g.configFile != "" {
		opts = append(opts, config.WithConfigFile(g.configFile))
	}
	if g.envFile != "" {
		opts = append(opts, config.WithEnvFile(g.envFile))
	}
	if err := config.Load(serviceName, cfg, opts...); err != nil {
		return nil, err
	}

	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
		if err := cfg.Logging.Validate(); err != nil {
			return nil, err
		}
	}
	fl := cmd.Flags()
	if fl.Changed("http2") {
		cfg.Transport.HTTP2 = f.http2
	}
	if f.proxy != "" {
		cfg.Transport.Proxy = transport.ParseProxy(f.proxy)
	}
	if f.insecure {
		verify := false
		cfg.Transport.TLS.Verify = &verify
	}
	return cfg, nil
}

// startTelemetry initializes the exporters named in cfg and returns the
// transport options that feed them.
func startTelemetry(ctx context.Context, cfg *config.BridgeConfig) ([]transport.Option, func(), error) {
	var (
		opts      []transport.Option
		shutdowns []func(context.Context) error
	)
	stop := func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryShutdown)
		defer cancel()
		for _, fn := range shutdowns {
			if err := fn(sctx); err != nil {
				logger.Warn("telemetry shutdown failed", logger.Fields(logger.FieldError, err.Error()))
			}
		}
	}

	if cfg.Tracer != nil {
		tp, err := observability.InitTracer(ctx, cfg.Tracer)
		if err != nil {
			return nil, stop, err
		}
		shutdowns = append(shutdowns, tp.Shutdown)
		opts = append(opts, transport.WithTracing())
	}
	if cfg.Meter != nil {
		mp, err := observability.InitMeter(ctx, cfg.Meter)
		if err != nil {
			stop()
			return nil, func() {}, err
		}
		shutdowns = append(shutdowns, mp.Shutdown)
		metrics, err := observability.NewMetrics(mp.Meter(cfg.Name))
		if err != nil {
			stop()
			return nil, func() {}, err
		}
		opts = append(opts, transport.WithMetrics(metrics))
	}
	return opts, stop, nil
}

func buildRequest(cmd *cobra.Command, f *getFlags, target string) (*transport.Request, error) {
	headers := make([]transport.Header, 0, len(f.headers))
	for _, raw := range f.headers {
		name, value, ok := strings.Cut(raw, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: want 'Name: value'", raw)
		}
		headers = append(headers, transport.Header{Name: name, Value: strings.TrimSpace(value)})
	}

	body, err := requestBody(cmd.InOrStdin(), f.data)
	if err != nil {
		return nil, err
	}

	method := f.method
	if method == "" {
		method = http.MethodGet
		if body != nil {
			method = http.MethodPost
		}
	}
	return transport.NewRequest(method, target, headers, body), nil
}

func requestBody(stdin io.Reader, data string) (transport.ByteStream, error) {
	switch {
	case data == "":
		return nil, nil
	case data == "@-":
		return transport.ReaderBody(io.NopCloser(stdin)), nil
	case strings.HasPrefix(data, "@"):
		file, err := os.Open(data[1:])
		if err != nil {
			return nil, fmt.Errorf("open request body: %w", err)
		}
		return transport.ReaderBody(file), nil
	default:
		return transport.BytesBody([]byte(data)), nil
	}
}

func writeHead(w io.Writer, resp *transport.Response) {
	fmt.Fprintf(w, "%s %d %s\n", resp.Protocol, resp.StatusCode, http.StatusText(resp.StatusCode))
	for _, h := range resp.Headers {
		fmt.Fprintf(w, "%s: %s\n", h.Name, h.Value)
	}
	fmt.Fprintln(w)
}

func copyBody(ctx context.Context, w io.Writer, body transport.ByteStream) error {
	for {
		chunk, ok, err := body.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
}
