// Package telemetry provides logging, tracing and metrics for zbxweb.
//
// Logging uses zerolog. Component loggers carry a "component" field and
// compilation loggers carry the compilation ID and node:
//
//	logger := tel.Logger.NewComponentLogger("compiler")
//	compiler := catalog.NewCompiler(renderer, validator, logger.Zerolog())
//
// Tracing uses OpenTelemetry with an OTLP gRPC or stdout exporter. NewTracer
// installs the provider globally, so packages that call otel.Tracer (the
// catalog compiler does) report into the same trace:
//
//	ctx = tel.WithContext(ctx)
//	ctx = telemetry.WithCompilationContext(ctx, id, node)
//	op := telemetry.StartOperation(ctx, "policy.evaluate")
//	result, err := policies.Evaluate(op.Ctx, cfg)
//	op.End(err)
//	telemetry.EndCompilationContext(ctx, family, telemetry.StatusCompiled, n, err)
//
// Metrics live in a private Prometheus registry. zbxweb is a short-lived
// command, so instead of serving them over HTTP Shutdown writes them to
// MetricsConfig.TextfilePath for the node_exporter textfile collector:
//
//	zbxweb_compilations_total{family,status}
//	zbxweb_compile_duration_seconds{family}
//	zbxweb_resources_declared{kind}
//	zbxweb_policy_violations_total{policy,severity}
//	zbxweb_errors_by_code_total{code}
//	zbxweb_last_compilation_timestamp_seconds
package telemetry
