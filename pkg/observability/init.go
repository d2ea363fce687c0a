package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ajitpratap0/spawnpool/pkg/config"
	"github.com/ajitpratap0/spawnpool/pkg/errors"
	"github.com/ajitpratap0/spawnpool/pkg/logger"
)

// Options tune InitTracing beyond what the configuration file carries.
type Options struct {
	ServiceVersion string
	// Writer receives stdout exporter output; defaults to os.Stdout
	Writer io.Writer
	// Pretty indents exported spans
	Pretty bool
}

// Tracing owns the tracer provider of a run.
type Tracing struct {
	provider trace.TracerProvider
	tracer   trace.Tracer
	sdk      *sdktrace.TracerProvider
}

// InitTracing builds the tracer provider described by cfg and installs it
// as the global provider. The "none" exporter installs a no-op provider.
func InitTracing(cfg config.TracingConfig, opts Options) (*Tracing, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "spawnpool"
	}

	if cfg.Exporter == "" || cfg.Exporter == config.ExporterNone {
		provider := noop.NewTracerProvider()
		otel.SetTracerProvider(provider)
		return &Tracing{provider: provider, tracer: provider.Tracer(serviceName)}, nil
	}
	if cfg.Exporter != config.ExporterStdout {
		return nil, errors.New(errors.ErrorTypeConfig, "unsupported tracing exporter").
			WithDetail("exporter", cfg.Exporter)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create resource")
	}

	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if opts.Pretty {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create stdout exporter")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(time.Second),
			sdktrace.WithMaxExportBatchSize(512),
			sdktrace.WithMaxQueueSize(2048),
		),
	)
	otel.SetTracerProvider(tp)

	return &Tracing{provider: tp, tracer: tp.Tracer(serviceName), sdk: tp}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer returns the tracer spans of the run are started from.
func (t *Tracing) Tracer() trace.Tracer {
	return t.tracer
}

// Shutdown flushes pending spans and syncs the global logger.
func (t *Tracing) Shutdown(ctx context.Context) error {
	var errs []error

	if t.sdk != nil {
		if err := t.sdk.Shutdown(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, errors.ErrorTypeInternal, "failed to shutdown tracer"))
		}
	}

	if err := logger.Sync(); err != nil && !ignorableSyncError(err) {
		errs = append(errs, errors.Wrap(err, errors.ErrorTypeInternal, "failed to sync logger"))
	}

	return errors.Join(errs...)
}

// ignorableSyncError matches the errors zap reports when syncing a
// terminal or redirected stdout/stderr. See uber-go/zap#328.
func ignorableSyncError(err error) bool {
	s := err.Error()
	return strings.Contains(s, "bad file descriptor") ||
		strings.Contains(s, "invalid argument") ||
		strings.Contains(s, "inappropriate ioctl") ||
		strings.Contains(s, "/dev/stdout") ||
		strings.Contains(s, "/dev/stderr")
}
