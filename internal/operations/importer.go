package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/AdrianZavoianu/RPS-sub000/internal/cachebuild"
	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	"github.com/AdrianZavoianu/RPS-sub000/internal/dataprocessing"
	rpserrors "github.com/AdrianZavoianu/RPS-sub000/internal/errors"
	"github.com/AdrianZavoianu/RPS-sub000/internal/infrastructure"
	"github.com/AdrianZavoianu/RPS-sub000/internal/store"
	"github.com/AdrianZavoianu/RPS-sub000/internal/transform"
	"github.com/AdrianZavoianu/RPS-sub000/internal/validation"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// ErrImportInProgress is returned when an import is started while another
// one is still running on the same Importer.
var ErrImportInProgress = errors.New("import already in progress")

// Invalidator drops cached read-side datasets of a result set.
type Invalidator interface {
	Invalidate(resultSetID int64)
}

// Outcome is the final result of a background import.
type Outcome struct {
	Stats *domain.ImportStats
	Err   error
}

// Importer runs selective imports into one store. Imports run one at a time
// on a background goroutine with their own store session; every write of a
// run is sequential.
type Importer struct {
	handle      *store.Handle
	transformer *transform.Transformer
	builder     *cachebuild.Builder
	invalidator Invalidator
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *infrastructure.ImportMetrics
	running     atomic.Bool
}

// Option configures an Importer.
type Option func(*Importer)

// WithTracer sets the tracer used for import spans.
func WithTracer(t trace.Tracer) Option {
	return func(imp *Importer) { imp.tracer = t }
}

// WithMetrics records import counters.
func WithMetrics(m *infrastructure.ImportMetrics) Option {
	return func(imp *Importer) { imp.metrics = m }
}

// WithInvalidator registers the read-side cache to clear after each import.
func WithInvalidator(inv Invalidator) Option {
	return func(imp *Importer) { imp.invalidator = inv }
}

// NewImporter creates an Importer writing through handle.
func NewImporter(handle *store.Handle, extractors *dataprocessing.ExtractorSet, logger *slog.Logger, opts ...Option) *Importer {
	imp := &Importer{
		handle: handle,
		logger: infrastructure.LoggerOrDefault(logger, "importer"),
	}
	for _, opt := range opts {
		opt(imp)
	}
	imp.transformer = transform.New(extractors, logger)
	buildOpts := []cachebuild.Option{cachebuild.WithMetrics(imp.metrics)}
	if imp.tracer != nil {
		buildOpts = append(buildOpts, cachebuild.WithTracer(imp.tracer))
	}
	imp.builder = cachebuild.New(logger, buildOpts...)
	return imp
}

// Running reports whether an import is in flight.
func (imp *Importer) Running() bool {
	return imp.running.Load()
}

// Start validates req and launches the import on a background goroutine.
// The returned channel receives exactly one Outcome. Once started, an
// import runs to completion even if ctx is cancelled. progress may be nil.
func (imp *Importer) Start(ctx context.Context, req domain.ImportRequest, progress ProgressFunc) (<-chan Outcome, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if !imp.running.CompareAndSwap(false, true) {
		return nil, ErrImportInProgress
	}

	runID := uuid.New().String()
	ctx = infrastructure.WithRunID(context.WithoutCancel(infrastructure.EnsureTraceID(ctx)), runID)

	done := make(chan Outcome, 1)
	go func() {
		defer imp.running.Store(false)
		stats, err := imp.run(ctx, runID, req, progress)
		done <- Outcome{Stats: stats, Err: err}
	}()
	return done, nil
}

// Run starts an import and waits for it to finish.
func (imp *Importer) Run(ctx context.Context, req domain.ImportRequest, progress ProgressFunc) (*domain.ImportStats, error) {
	done, err := imp.Start(ctx, req, progress)
	if err != nil {
		return nil, err
	}
	out := <-done
	return out.Stats, out.Err
}

type sheetKey struct {
	sheet    string
	loadCase string
}

// importRun holds the state of one run. It is only touched by the import
// goroutine.
type importRun struct {
	req      domain.ImportRequest
	session  *store.Session
	resolver *transform.EntityResolver
	tracker  *ProgressTracker
	progress ProgressFunc
	tracer   *ImportTracer

	resultSetID int64
	imported    map[sheetKey]struct{}
	touched     map[catalog.Category]struct{}
	errs        rpserrors.List
	warnings    rpserrors.List
	stats       *domain.ImportStats
}

func (imp *Importer) run(ctx context.Context, runID string, req domain.ImportRequest, progress ProgressFunc) (stats *domain.ImportStats, err error) {
	start := time.Now()
	tracer := NewImportTracer(imp.tracer, imp.metrics)
	ctx, span := tracer.TraceImport(ctx, runID, req)
	defer span.End()

	r := &importRun{
		req:      req,
		resolver: transform.NewEntityResolver(),
		tracker:  NewProgressTracker(runID, len(req.Files)),
		progress: progress,
		tracer:   tracer,
		imported: make(map[sheetKey]struct{}),
		touched:  make(map[catalog.Category]struct{}),
		stats:    &domain.ImportStats{RunID: runID},
	}
	defer func() {
		r.finish(start)
		tracer.RecordImportCompletion(ctx, span, r.stats, err)
		stats = r.stats
	}()

	imp.logger.InfoContext(ctx, "import started",
		slog.String("result_set", req.ResultSet),
		slog.String("analysis_category", req.AnalysisCategory),
		slog.Int("files", len(req.Files)))
	r.emit(domain.PhaseStarted, "", "")

	r.session, err = imp.handle.Session(ctx)
	if err != nil {
		return nil, rpserrors.StoreUnreachable(err)
	}
	defer func() { _ = r.session.Close() }()

	existing, err := r.session.FindResultSet(ctx, req.ResultSet, req.AnalysisCategory)
	switch {
	case err == nil:
		r.resultSetID = existing.ID
	case !errors.Is(err, store.ErrNotFound):
		return nil, rpserrors.StoreUnreachable(err)
	}

	for _, ref := range req.Files {
		if err := imp.importFile(ctx, r, ref); err != nil {
			return nil, err
		}
	}

	// Every sheet was committed in its own transaction; the flush barrier
	// guarantees the cache build sees all of them.
	if err := r.session.Flush(ctx); err != nil {
		return nil, rpserrors.StoreUnreachable(err)
	}
	r.emit(domain.PhaseFlush, "", "")

	if err := imp.buildCaches(ctx, r); err != nil {
		return nil, err
	}

	if r.resultSetID != 0 && imp.invalidator != nil {
		imp.invalidator.Invalidate(r.resultSetID)
	}

	r.tracker.Update(r.tracker.Total, "import complete")
	r.emit(domain.PhaseCompleted, "", "")
	imp.logger.InfoContext(ctx, "import finished",
		slog.Int64("result_set_id", r.resultSetID),
		slog.Int("files_processed", r.stats.FilesProcessed),
		slog.Int("load_cases_imported", len(r.imported)),
		slog.Int("records_written", r.stats.RecordsWritten),
		slog.Int("errors", len(r.errs.Errors)),
		slog.Int("warnings", len(r.warnings.Errors)))
	return nil, nil
}

// importFile imports every allowed sheet of one file. It only returns an
// error when the store is unreachable; everything else is recorded.
func (imp *Importer) importFile(ctx context.Context, r *importRun, ref domain.FileRef) error {
	defer r.tracker.Increment(ref.Name)

	sheets := orderSheets(r.req.AllowList.SheetsFor(ref.Path))
	if len(sheets) == 0 {
		r.emit(domain.PhaseFile, ref.Name, "")
		return nil
	}

	wb, err := dataprocessing.OpenWorkbook(ref)
	if err != nil {
		r.errs.Add(rpserrors.UnreadableFile(ref.Path, err))
		imp.logger.WarnContext(ctx, "skipping unreadable file", slog.String("file", ref.Path), slog.String("error", err.Error()))
		r.emit(domain.PhaseFile, ref.Name, "")
		return nil
	}
	defer func() { _ = wb.Close() }()

	if ref.Checksum != "" && wb.Ref.Checksum != ref.Checksum {
		r.errs.Add(rpserrors.New(rpserrors.KindStaleFile, ref.Path, "",
			"file changed since it was scanned", nil))
		imp.logger.WarnContext(ctx, "skipping file changed since prescan", slog.String("file", ref.Path))
		r.emit(domain.PhaseFile, ref.Name, "")
		return nil
	}

	r.stats.FilesProcessed++
	r.emit(domain.PhaseFile, ref.Name, "")

	for _, spec := range sheets {
		if err := imp.importSheet(ctx, r, wb, spec); err != nil {
			return err
		}
		r.emit(domain.PhaseSheet, ref.Name, spec.Sheet)
	}
	return nil
}

// errNothingWritten rolls back a sheet transaction that would only have
// created an empty result set.
var errNothingWritten = errors.New("sheet has no records to write")

func (imp *Importer) importSheet(ctx context.Context, r *importRun, wb *dataprocessing.Workbook, spec catalog.Spec) error {
	ctx, span := r.tracer.TraceSheet(ctx, wb.Ref.Name, spec.Sheet)
	defer span.End()

	allowed := r.req.AllowList.Allowed(wb.Ref.Path, spec.Sheet)
	resultSetID := r.resultSetID

	var res *transform.Result
	err := r.session.WithTx(ctx, func(tx *store.Tx) error {
		created := false
		if resultSetID == 0 {
			rs, err := tx.EnsureResultSet(ctx, r.req.ResultSet, r.req.AnalysisCategory)
			if err != nil {
				return err
			}
			resultSetID, created = rs.ID, true
		}
		var err error
		res, err = imp.transformer.Import(ctx, wb, spec.Category, allowed, tx, r.resolver, transform.Options{
			ResultSetID:      resultSetID,
			FoundationJoints: r.req.FoundationJoints,
		})
		if err == nil && created && len(res.LoadCases) == 0 {
			return errNothingWritten
		}
		return err
	})
	if errors.Is(err, errNothingWritten) {
		// The result set is created with the first sheet that has records.
		r.resolver.Reset()
		for _, w := range res.Dropped {
			r.warnings.Add(w)
		}
		return nil
	}
	if err != nil {
		// Entities created inside the rolled back transaction are gone.
		r.resolver.Reset()
		ierr := classify(wb.Ref.Path, spec.Sheet, err)
		r.tracer.RecordSheetError(span, ierr)
		if ierr.Fatal() {
			return ierr
		}
		r.errs.Add(ierr)
		imp.logger.WarnContext(ctx, "sheet skipped",
			slog.String("file", wb.Ref.Name),
			slog.String("sheet", spec.Sheet),
			slog.String("kind", string(ierr.Kind)),
			slog.String("error", ierr.Error()))
		return nil
	}

	r.resultSetID = resultSetID
	for _, w := range res.Dropped {
		r.warnings.Add(w)
	}
	if len(res.LoadCases) == 0 {
		return nil
	}
	for _, lc := range res.LoadCases {
		r.imported[sheetKey{sheet: spec.Sheet, loadCase: lc}] = struct{}{}
	}
	r.touched[spec.Category] = struct{}{}
	r.stats.RecordsWritten += res.Written
	r.tracer.RecordSheetCompletion(ctx, span, spec.Name, res.Written, len(res.Dropped))
	return nil
}

// buildCaches rebuilds the wide cache of every category written in this run.
func (imp *Importer) buildCaches(ctx context.Context, r *importRun) error {
	if r.resultSetID == 0 {
		return nil
	}
	categories := make([]catalog.Category, 0, len(r.touched))
	for c := range r.touched {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	for _, c := range categories {
		rows, err := imp.builder.Build(ctx, r.session, r.resultSetID, c)
		if err != nil {
			ierr := classify("", c.Spec().Sheet, err)
			if ierr.Fatal() {
				return ierr
			}
			r.errs.Add(ierr)
			continue
		}
		r.stats.CacheRowsBuilt += len(rows)
		r.emit(domain.PhaseCacheBuild, "", c.Spec().Sheet)
	}
	return nil
}

// classify maps a sheet failure onto the import error taxonomy.
func classify(file, sheet string, err error) *rpserrors.ImportError {
	var ierr *rpserrors.ImportError
	switch {
	case errors.As(err, &ierr):
		if ierr.File == "" {
			ierr.File = file
		}
		return ierr
	case errors.Is(err, store.ErrUnavailable):
		e := rpserrors.StoreUnreachable(err)
		e.File, e.Sheet = file, sheet
		return e
	case errors.Is(err, dataprocessing.ErrSheetNotFound):
		return rpserrors.MissingSheet(file, sheet)
	default:
		return rpserrors.New(rpserrors.KindTransform, file, sheet, "sheet import failed", err)
	}
}

// orderSheets maps sheet names to catalog specs, canonical story sheet
// first and the rest in catalog order.
func orderSheets(sheets []string) []catalog.Spec {
	out := make([]catalog.Spec, 0, len(sheets))
	for _, name := range sheets {
		if spec, ok := catalog.BySheet(name); ok {
			out = append(out, spec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Category == catalog.CanonicalStorySheet) != (out[j].Category == catalog.CanonicalStorySheet) {
			return out[i].Category == catalog.CanonicalStorySheet
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func (r *importRun) emit(phase domain.ImportPhase, file, sheet string) {
	if r.progress == nil {
		return
	}
	r.progress(r.tracker.Snapshot(phase, file, sheet))
}

// finish fills the summary counters. A sheet-scoped load case counts as
// skipped when the allow-list excluded it or when it was allowed but
// nothing was written for it.
func (r *importRun) finish(start time.Time) {
	r.stats.ResultSetID = r.resultSetID
	r.stats.LoadCasesImported = len(r.imported)

	requested := make(map[string]struct{}, len(r.req.Files))
	for _, f := range r.req.Files {
		requested[f.Path] = struct{}{}
	}
	missed := make(map[sheetKey]struct{})
	for sheet, files := range r.req.AllowList.Sheets {
		for file, lcs := range files {
			if _, ok := requested[file]; !ok {
				continue
			}
			for _, lc := range lcs {
				k := sheetKey{sheet: sheet, loadCase: lc}
				if _, ok := r.imported[k]; !ok {
					missed[k] = struct{}{}
				}
			}
		}
	}
	r.stats.LoadCasesSkipped = r.req.AllowList.SkippedCount() + len(missed)

	for _, k := range r.req.AllowList.Unresolved {
		r.warnings.Add(rpserrors.New(rpserrors.KindUnresolvedConflict, "", k.Sheet,
			fmt.Sprintf("load case %s has no resolution and was skipped", k.LoadCase), nil))
	}
	r.stats.Errors = r.errs.Issues()
	r.stats.Warnings = r.warnings.Issues()
	r.stats.Duration = time.Since(start)
}
