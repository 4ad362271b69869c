// Package observability traces Canopy operations with OpenTelemetry.
//
// Spans are exported in the OpenTelemetry JSON form to a local writer,
// normally a file named on the command line. Nothing is sent over the
// network. A Tracer built by Noop records nothing and costs almost nothing,
// so callers start spans unconditionally.
//
//	tracer, err := observability.NewTracer(observability.TracingConfig{
//	    ServiceName: "canopy",
//	    Output:      f,
//	})
//	ctx, span := tracer.Start(ctx, "read")
//	span.SetAttribute("file", path)
//	rec, diags, err := adat.ReadFile(path, opts)
//	span.End(err)
//	...
//	_ = tracer.Shutdown(ctx)
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/SomaLogic/Canopy/pkg/errors"
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	// SamplingRate is the fraction of traces kept: 0 keeps none, 1 keeps
	// all.
	SamplingRate float64
	// Output receives the exported spans. Nil uses stderr.
	Output      io.Writer
	PrettyPrint bool
	// Exporter replaces the writer exporter when set.
	Exporter sdktrace.SpanExporter
}

// DefaultTracingConfig returns a configuration that keeps every trace.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:  "canopy",
		SamplingRate: 1,
	}
}

// Tracer starts spans and owns the provider exporting them.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a tracer exporting to config.Output.
func NewTracer(config TracingConfig) (*Tracer, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultTracingConfig().ServiceName
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create trace resource")
	}

	exporter := config.Exporter
	if exporter == nil {
		out := config.Output
		if out == nil {
			out = os.Stderr
		}
		opts := []stdouttrace.Option{stdouttrace.WithWriter(out)}
		if config.PrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}
		if exporter, err = stdouttrace.New(opts...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create trace exporter")
		}
	}

	// Configure sampling
	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter),
	)
	return &Tracer{provider: tp, tracer: tp.Tracer(config.ServiceName)}, nil
}

// Noop returns a tracer that records nothing.
func Noop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("canopy")}
}

// Start begins a span named after the operation.
func (t *Tracer) Start(ctx context.Context, operation string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := t.tracer.Start(ctx, operation)
	return ctx, &Span{span: span, startTime: time.Now()}
}

// Flush exports every finished span.
func (t *Tracer) Flush(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}

// Shutdown flushes and stops the exporter. The tracer records nothing
// afterwards.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to export traces")
	}
	return nil
}

// Span is one traced operation. Attributes are applied when it ends.
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// SetAttribute adds an attribute to the span
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	case []string:
		attr = attribute.StringSlice(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// End finishes the span, marking it failed when err is not nil, and returns
// how long it ran.
func (s *Span) End(err error) time.Duration {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
	return time.Since(s.startTime)
}
