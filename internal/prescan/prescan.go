// Package prescan reads the header rows of many workbooks in parallel to
// learn which sheets and load cases each one carries, without loading row
// data and without touching the store.
package prescan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	"github.com/AdrianZavoianu/RPS-sub000/internal/dataprocessing"
	"github.com/AdrianZavoianu/RPS-sub000/internal/infrastructure"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// DefaultWorkers bounds the pool when the caller passes zero.
const DefaultWorkers = 6

// ProgressFunc is called after each file finishes, from the worker that
// scanned it. Calls are serialised.
type ProgressFunc func(done, total int, file domain.FileRef)

// Prescanner scans workbook headers.
type Prescanner struct {
	extractors *dataprocessing.ExtractorSet
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *infrastructure.ImportMetrics
	onFile     ProgressFunc
}

// Option configures a Prescanner.
type Option func(*Prescanner)

// WithTracer sets the tracer used for scan spans.
func WithTracer(t trace.Tracer) Option {
	return func(p *Prescanner) { p.tracer = t }
}

// WithMetrics records scanned and failed file counts.
func WithMetrics(m *infrastructure.ImportMetrics) Option {
	return func(p *Prescanner) { p.metrics = m }
}

// WithProgress registers a per-file progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Prescanner) { p.onFile = fn }
}

// New creates a Prescanner over the given extractors.
func New(extractors *dataprocessing.ExtractorSet, logger *slog.Logger, opts ...Option) *Prescanner {
	p := &Prescanner{
		extractors: extractors,
		logger:     infrastructure.LoggerOrDefault(logger, "prescan"),
		tracer:     tracenoop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type outcome struct {
	summary *domain.FileSummary
	err     *domain.FileError
}

// Scan reads every file with at most workers files open at once. A file
// that fails to open is reported in Errors and does not affect the others.
// Files and Errors follow the input order regardless of completion order.
// When ctx is cancelled, files not yet started are left out and the partial
// result is returned together with the context error.
func (p *Prescanner) Scan(ctx context.Context, files []domain.FileRef, workers int) (*domain.PrescanResult, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	ctx, span := p.tracer.Start(ctx, "prescan.Scan", trace.WithAttributes(
		attribute.Int("files", len(files)),
		attribute.Int("workers", workers),
	))
	defer span.End()

	start := time.Now()
	outcomes := make([]outcome, len(files))

	var (
		mu   sync.Mutex
		done int
	)

	var g errgroup.Group
	g.SetLimit(workers)
	for i, ref := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcomes[i] = p.scanFile(ctx, ref)

			mu.Lock()
			done++
			if p.onFile != nil {
				p.onFile(done, len(files), ref)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result := &domain.PrescanResult{Files: []domain.FileSummary{}}
	for _, o := range outcomes {
		switch {
		case o.summary != nil:
			result.Files = append(result.Files, *o.summary)
		case o.err != nil:
			result.Errors = append(result.Errors, *o.err)
		}
	}

	if p.metrics != nil {
		p.metrics.FilesScanned.Add(ctx, int64(len(result.Files)))
		p.metrics.FilesFailed.Add(ctx, int64(len(result.Errors)))
	}

	p.logger.InfoContext(ctx, "prescan complete",
		slog.Int("files", len(files)),
		slog.Int("scanned", len(result.Files)),
		slog.Int("failed", len(result.Errors)),
		slog.Duration("duration", time.Since(start)))

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return result, err
	}
	return result, nil
}

func (p *Prescanner) scanFile(ctx context.Context, ref domain.FileRef) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = outcome{err: &domain.FileError{File: ref, Message: fmt.Sprintf("panic while scanning: %v", r)}}
		}
	}()

	wb, err := dataprocessing.OpenWorkbook(ref)
	if err != nil {
		p.logger.WarnContext(ctx, "unreadable workbook",
			slog.String("file", ref.Path),
			slog.String("error", err.Error()))
		return outcome{err: &domain.FileError{File: ref, Message: err.Error()}}
	}
	defer wb.Close()

	summary := &domain.FileSummary{File: wb.Ref, Sheets: make(map[string][]string)}
	for _, ex := range p.extractors.All() {
		loadCases, err := ex.ScanHeader(wb)
		if errors.Is(err, dataprocessing.ErrSheetNotFound) {
			continue
		}
		if err != nil {
			return outcome{err: &domain.FileError{File: wb.Ref, Message: err.Error()}}
		}
		summary.Sheets[ex.Category().Spec().Sheet] = loadCases
	}

	joints, ok, err := dataprocessing.ReadFoundationJoints(wb)
	if err != nil {
		return outcome{err: &domain.FileError{File: wb.Ref, Message: err.Error()}}
	}
	if ok {
		summary.FoundationJoints = joints
	}

	p.logger.DebugContext(ctx, "scanned workbook",
		slog.String("file", ref.Name),
		slog.Int("sheets", len(summary.Sheets)),
		slog.Bool("foundation_joints", ok))

	return outcome{summary: summary}
}

// Categories returns the categories with a sheet in the prescan result.
func Categories(result *domain.PrescanResult) []catalog.Category {
	var out []catalog.Category
	for _, sheet := range result.SheetNames() {
		if spec, ok := catalog.BySheet(sheet); ok {
			out = append(out, spec.Category)
		}
	}
	return out
}
