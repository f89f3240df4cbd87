package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	rpserrors "github.com/AdrianZavoianu/RPS-sub000/internal/errors"
	"github.com/AdrianZavoianu/RPS-sub000/internal/infrastructure"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// ImportTracer provides OpenTelemetry instrumentation for import runs
type ImportTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.ImportMetrics
}

// NewImportTracer creates an import tracer. A nil tracer records nothing;
// nil metrics are skipped.
func NewImportTracer(tracer trace.Tracer, metrics *infrastructure.ImportMetrics) *ImportTracer {
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("")
	}
	return &ImportTracer{tracer: tracer, metrics: metrics}
}

// TraceImport creates a span for the entire import run
func (it *ImportTracer) TraceImport(ctx context.Context, runID string, req domain.ImportRequest) (context.Context, trace.Span) {
	return it.tracer.Start(ctx, "import.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("import.run_id", runID),
			attribute.String("import.result_set", req.ResultSet),
			attribute.String("import.analysis_category", req.AnalysisCategory),
			attribute.Int("import.files", len(req.Files)),
		),
	)
}

// TraceSheet creates a span for one (file, sheet) transform
func (it *ImportTracer) TraceSheet(ctx context.Context, file, sheet string) (context.Context, trace.Span) {
	return it.tracer.Start(ctx, "import.sheet",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("import.file", file),
			attribute.String("import.sheet", sheet),
		),
	)
}

// RecordSheetCompletion records the outcome of one sheet
func (it *ImportTracer) RecordSheetCompletion(ctx context.Context, span trace.Span, resultType string, written, dropped int) {
	span.SetAttributes(
		attribute.Int("import.records_written", written),
		attribute.Int("import.rows_dropped", dropped),
	)
	if it.metrics != nil {
		attrs := infrastructure.ResultTypeAttrs(resultType)
		it.metrics.RecordsWritten.Add(ctx, int64(written), attrs)
		it.metrics.RowsDropped.Add(ctx, int64(dropped), attrs)
	}
	span.SetStatus(codes.Ok, "sheet imported")
}

// RecordSheetError records a failed sheet on its span
func (it *ImportTracer) RecordSheetError(span trace.Span, err error) {
	span.RecordError(err, trace.WithAttributes(
		attribute.String("error.kind", string(rpserrors.KindOf(err))),
	))
	span.SetStatus(codes.Error, err.Error())
}

// RecordImportCompletion records run-level metrics and closes out the span status
func (it *ImportTracer) RecordImportCompletion(ctx context.Context, span trace.Span, stats *domain.ImportStats, err error) {
	status := "success"
	switch {
	case err != nil:
		status = "failed"
	case len(stats.Errors) > 0:
		status = "partial"
	}

	span.SetAttributes(
		attribute.String("import.status", status),
		attribute.Int64("import.result_set_id", stats.ResultSetID),
		attribute.Int("import.files_processed", stats.FilesProcessed),
		attribute.Int("import.load_cases_imported", stats.LoadCasesImported),
		attribute.Int("import.load_cases_skipped", stats.LoadCasesSkipped),
		attribute.Int("import.records_written", stats.RecordsWritten),
		attribute.Int("import.errors", len(stats.Errors)),
		attribute.Float64("import.duration_seconds", stats.Duration.Seconds()),
	)
	span.AddEvent("import.completed", trace.WithAttributes(
		attribute.Int("import.cache_rows_built", stats.CacheRowsBuilt),
		attribute.Int("import.warnings", len(stats.Warnings)),
	))

	if it.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("status", status))
		it.metrics.LoadCasesImported.Add(ctx, int64(stats.LoadCasesImported))
		it.metrics.LoadCasesSkipped.Add(ctx, int64(stats.LoadCasesSkipped))
		it.metrics.ImportDuration.Record(ctx, stats.Duration.Seconds(), attrs)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, fmt.Sprintf("imported %d load cases in %v",
		stats.LoadCasesImported, stats.Duration.Round(time.Millisecond)))
}
