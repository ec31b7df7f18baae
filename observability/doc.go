// Package observability provides OpenTelemetry tracing and metrics for
// HTTP transports.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, &cfg)
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("httpbridge"))
//
// Per exchange:
//
//	ex := observability.NewExchange("default", "GET", url, requestID, metrics)
//	ctx, span := ex.Start(ctx)
//	ex.End(ctx, span, 200, "HTTP/1.1", "", nil)
package observability
