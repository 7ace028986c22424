package telemetry

import (
	"context"
	"errors"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/zabbix-web/pkg/engine"
)

// Telemetry combines logging, tracing and metrics.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	return newTelemetry(cfg, logger, nil)
}

// NewTelemetryWithWriter is NewTelemetry with logs and stdout spans sent to w.
func NewTelemetryWithWriter(cfg *Config, w io.Writer) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newTelemetry(cfg, NewLoggerWithWriter(cfg.Logging, w), w)
}

func newTelemetry(cfg *Config, logger *Logger, w io.Writer) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment, w)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context,
// or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown flushes spans and writes the metrics textfile when configured.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	tracerErr := t.Tracer.Shutdown(ctx)
	metricsErr := t.Metrics.WriteTextfile(t.Config.Metrics.TextfilePath)
	return errors.Join(tracerErr, metricsErr)
}

// InstrumentedContext carries the span, logger and timer of one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	logger := FromContext(ctx).WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithField("trace_id", span.SpanContext().TraceID().String())
	}

	return &InstrumentedContext{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the operation, recording success or failure. Errors are
// counted by their engine error code.
func (ic *InstrumentedContext) End(err error) {
	if err != nil {
		if tel := FromTelemetryContext(ic.Ctx); tel != nil {
			code := engine.CodeOf(err)
			if code == "" {
				code = engine.ErrCodeInternal
			}
			tel.Metrics.RecordError(code)
		}
	}

	if ic.Span == nil {
		return
	}
	if err != nil {
		RecordError(ic.Span, err)
		if code := engine.CodeOf(err); code != "" {
			ic.Span.SetAttributes(AttrErrorCode.String(code))
		}
	} else {
		RecordSuccess(ic.Span)
	}
	ic.Span.End()
}

// compilationSpanKey is the context key for compilation spans.
type compilationSpanKey struct{}

// compilationTimerKey is the context key for compilation timers.
type compilationTimerKey struct{}

// WithCompilationContext starts the root span of a compilation and attaches
// a logger carrying its ID and node.
func WithCompilationContext(ctx context.Context, compilationID, node string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartCompilationSpan(ctx, compilationID, node)

	logger := FromContext(ctx).WithCompilation(compilationID, node)
	spanCtx = logger.WithContext(spanCtx)
	spanCtx = context.WithValue(spanCtx, compilationSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, compilationTimerKey{}, NewTimer())

	return spanCtx
}

// EndCompilationContext ends the compilation span and records its outcome.
func EndCompilationContext(ctx context.Context, family, status string, resources int, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	if span, ok := ctx.Value(compilationSpanKey{}).(trace.Span); ok {
		span.SetAttributes(AttrFamily.String(family), AttrResources.Int(resources))
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	if timer, ok := ctx.Value(compilationTimerKey{}).(*Timer); ok {
		tel.Metrics.RecordCompilation(family, status, timer.Duration())
	}
	if err != nil {
		tel.Metrics.RecordError(engine.CodeOf(err))
	}
}
