package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/AdrianZavoianu/RPS-sub000/internal/config"
)

const (
	ServiceVersion = "1.0.0"
	// InstrumentationName names the tracer and meter of the import pipeline.
	InstrumentationName = "github.com/AdrianZavoianu/RPS-sub000"
)

// Telemetry holds the tracer and meter providers. Providers are never nil:
// with telemetry disabled they are no-ops.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// Registry collects the Prometheus view of the meter. Nil when disabled.
	Registry *promclient.Registry

	shutdown []func(context.Context) error
}

// NoopTelemetry returns providers that record nothing.
func NoopTelemetry() *Telemetry {
	return &Telemetry{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	}
}

// InitializeTelemetry sets up tracing and metrics according to cfg. Stdout
// traces are written to w (stderr when nil) so they never mix with command
// output.
func InitializeTelemetry(cfg config.TelemetryConfig, w io.Writer, logger *slog.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = GetLogger()
	}
	if !cfg.Enabled {
		logger.Debug("telemetry disabled, using no-op providers")
		return NoopTelemetry(), nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(ServiceVersion),
		attribute.String("service.instance.id", GenerateTraceID()),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	t := &Telemetry{TracerProvider: tracenoop.NewTracerProvider()}

	if cfg.StdoutTraces {
		if w == nil {
			w = os.Stderr
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(exporter),
			sdktrace.WithResource(res),
		)
		t.TracerProvider = tp
		t.shutdown = append(t.shutdown, tp.Shutdown)
	}

	t.Registry = promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(t.Registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	t.MeterProvider = mp
	t.shutdown = append(t.shutdown, mp.Shutdown)

	logger.Info("telemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.Bool("stdout_traces", cfg.StdoutTraces))

	return t, nil
}

// Tracer returns the pipeline tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.TracerProvider.Tracer(InstrumentationName, trace.WithInstrumentationVersion(ServiceVersion))
}

// Meter returns the pipeline meter.
func (t *Telemetry) Meter() metric.Meter {
	return t.MeterProvider.Meter(InstrumentationName, metric.WithInstrumentationVersion(ServiceVersion))
}

// WriteMetrics dumps the Prometheus registry in text exposition format.
func (t *Telemetry) WriteMetrics(w io.Writer) error {
	if t.Registry == nil {
		return nil
	}
	families, err := t.Registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown flushes and stops every provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdown = nil
	return errors.Join(errs...)
}

// ImportMetrics are the counters and histograms recorded by import runs.
type ImportMetrics struct {
	FilesScanned      metric.Int64Counter
	FilesFailed       metric.Int64Counter
	LoadCasesImported metric.Int64Counter
	LoadCasesSkipped  metric.Int64Counter
	RecordsWritten    metric.Int64Counter
	RowsDropped       metric.Int64Counter
	CacheRowsBuilt    metric.Int64Counter
	ImportDuration    metric.Float64Histogram
	CacheBuildSeconds metric.Float64Histogram
}

// NewImportMetrics creates the import instruments on meter.
func NewImportMetrics(meter metric.Meter) (*ImportMetrics, error) {
	var (
		m   ImportMetrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.FilesScanned, "rps_files_scanned_total", "Workbooks read by the prescanner"},
		{&m.FilesFailed, "rps_files_failed_total", "Workbooks that could not be read"},
		{&m.LoadCasesImported, "rps_load_cases_imported_total", "Sheet-scoped load cases written"},
		{&m.LoadCasesSkipped, "rps_load_cases_skipped_total", "Sheet-scoped load cases excluded"},
		{&m.RecordsWritten, "rps_records_written_total", "Normalized records written"},
		{&m.RowsDropped, "rps_rows_dropped_total", "Rows dropped for malformed values"},
		{&m.CacheRowsBuilt, "rps_cache_rows_built_total", "Wide cache rows built"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}

	m.ImportDuration, err = meter.Float64Histogram(
		"rps_import_duration_seconds",
		metric.WithDescription("Import run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.CacheBuildSeconds, err = meter.Float64Histogram(
		"rps_cache_build_duration_seconds",
		metric.WithDescription("Wide cache build duration per result type"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// RecordError marks the span in ctx as failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
}

// ResultTypeAttrs tags a measurement with its result type.
func ResultTypeAttrs(resultType string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("result_type", resultType))
}
