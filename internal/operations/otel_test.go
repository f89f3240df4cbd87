package operations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	rpserrors "github.com/AdrianZavoianu/RPS-sub000/internal/errors"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

func newRecordingTracer(t *testing.T) (*ImportTracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewImportTracer(tp.Tracer("test"), nil), exporter
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestImportTracer_RunSpan(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)
	ctx := context.Background()

	req := domain.ImportRequest{ResultSet: "DES", AnalysisCategory: "NLTHA", Files: make([]domain.FileRef, 3)}
	ctx, span := tracer.TraceImport(ctx, "run-1", req)
	stats := &domain.ImportStats{RunID: "run-1", ResultSetID: 4, LoadCasesImported: 2, Duration: time.Second}
	tracer.RecordImportCompletion(ctx, span, stats, nil)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "import.run", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)

	v, ok := attrValue(spans[0].Attributes, "import.status")
	require.True(t, ok)
	assert.Equal(t, "success", v.AsString())
	v, ok = attrValue(spans[0].Attributes, "import.files")
	require.True(t, ok)
	assert.EqualValues(t, 3, v.AsInt64())
}

func TestImportTracer_PartialAndFailed(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)
	ctx := context.Background()

	_, partial := tracer.TraceImport(ctx, "run-1", domain.ImportRequest{})
	tracer.RecordImportCompletion(ctx, partial, &domain.ImportStats{
		Errors: []domain.ImportIssue{{Kind: string(rpserrors.KindUnreadableFile)}},
	}, nil)
	partial.End()

	_, failed := tracer.TraceImport(ctx, "run-2", domain.ImportRequest{})
	tracer.RecordImportCompletion(ctx, failed, &domain.ImportStats{}, rpserrors.StoreUnreachable(errors.New("disk gone")))
	failed.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	v, _ := attrValue(spans[0].Attributes, "import.status")
	assert.Equal(t, "partial", v.AsString())
	v, _ = attrValue(spans[1].Attributes, "import.status")
	assert.Equal(t, "failed", v.AsString())
	assert.Equal(t, codes.Error, spans[1].Status.Code)
}

func TestImportTracer_SheetError(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)

	_, span := tracer.TraceSheet(context.Background(), "a.xlsx", "Pier Forces")
	tracer.RecordSheetError(span, rpserrors.MissingSheet("a.xlsx", "Pier Forces"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "import.sheet", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	require.Len(t, spans[0].Events, 1)
	v, ok := attrValue(spans[0].Events[0].Attributes, "error.kind")
	require.True(t, ok)
	assert.Equal(t, string(rpserrors.KindMissingSheet), v.AsString())
}
