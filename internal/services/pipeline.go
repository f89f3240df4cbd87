package services

import (
	"context"
	"log/slog"

	"github.com/AdrianZavoianu/RPS-sub000/internal/config"
	"github.com/AdrianZavoianu/RPS-sub000/internal/conflicts"
	"github.com/AdrianZavoianu/RPS-sub000/internal/dataprocessing"
	"github.com/AdrianZavoianu/RPS-sub000/internal/infrastructure"
	"github.com/AdrianZavoianu/RPS-sub000/internal/operations"
	"github.com/AdrianZavoianu/RPS-sub000/internal/prescan"
	"github.com/AdrianZavoianu/RPS-sub000/internal/store"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// Pipeline is the facade over one project store: discovery of load cases,
// conflict resolution, selective import and the read side.
type Pipeline struct {
	cfg         config.ImportConfig
	logger      *slog.Logger
	prescanner  *prescan.Prescanner
	importer    *operations.Importer
	results     *ResultService
	comparisons *ComparisonBuilder
	sets        *ComparisonSets
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*pipelineOptions)

type pipelineOptions struct {
	telemetry  *infrastructure.Telemetry
	extractors *dataprocessing.ExtractorSet
	onPrescan  prescan.ProgressFunc
}

// WithTelemetry records spans and import metrics through t.
func WithTelemetry(t *infrastructure.Telemetry) PipelineOption {
	return func(o *pipelineOptions) { o.telemetry = t }
}

// WithExtractors replaces the default column extractors.
func WithExtractors(set *dataprocessing.ExtractorSet) PipelineOption {
	return func(o *pipelineOptions) { o.extractors = set }
}

// WithPrescanProgress reports each scanned file.
func WithPrescanProgress(fn prescan.ProgressFunc) PipelineOption {
	return func(o *pipelineOptions) { o.onPrescan = fn }
}

// NewPipeline wires every component against handle. The caller keeps
// ownership of handle and releases it after the pipeline is done.
func NewPipeline(handle *store.Handle, cfg config.ImportConfig, logger *slog.Logger, opts ...PipelineOption) (*Pipeline, error) {
	logger = infrastructure.LoggerOrDefault(logger, "pipeline")
	o := pipelineOptions{telemetry: infrastructure.NoopTelemetry()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.extractors == nil {
		o.extractors = dataprocessing.DefaultExtractors(logger, cfg.WarningEvery)
	}

	metrics, err := infrastructure.NewImportMetrics(o.telemetry.Meter())
	if err != nil {
		return nil, err
	}
	tracer := o.telemetry.Tracer()

	prescanOpts := []prescan.Option{prescan.WithTracer(tracer), prescan.WithMetrics(metrics)}
	if o.onPrescan != nil {
		prescanOpts = append(prescanOpts, prescan.WithProgress(o.onPrescan))
	}

	results := NewResultService(handle, logger)
	p := &Pipeline{
		cfg:         cfg,
		logger:      logger,
		prescanner:  prescan.New(o.extractors, logger, prescanOpts...),
		results:     results,
		comparisons: NewComparisonBuilder(results, logger),
		sets:        NewComparisonSets(handle, logger),
	}
	p.importer = operations.NewImporter(handle, o.extractors, logger,
		operations.WithTracer(tracer),
		operations.WithMetrics(metrics),
		operations.WithInvalidator(results))
	return p, nil
}

// Prescan reads the header rows of files in parallel. Unreadable files are
// reported in the result, never returned as an error.
func (p *Pipeline) Prescan(ctx context.Context, files []domain.FileRef) (*domain.PrescanResult, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	workers := p.cfg.PrescanWorkers
	if workers < 1 {
		workers = config.Default().Import.PrescanWorkers
	}
	return p.prescanner.Scan(ctx, files, workers)
}

// DetectConflicts finds load cases offered by several files on one sheet.
func (p *Pipeline) DetectConflicts(result *domain.PrescanResult) *domain.Conflicts {
	return conflicts.Detect(result)
}

// Resolve turns user choices into the allow-list.
func (p *Pipeline) Resolve(c *domain.Conflicts, choices domain.Resolution) (*domain.AllowList, error) {
	return conflicts.Resolve(c, choices)
}

// StartImport launches an import in the background.
func (p *Pipeline) StartImport(ctx context.Context, req domain.ImportRequest, progress operations.ProgressFunc) (<-chan operations.Outcome, error) {
	return p.importer.Start(ctx, req, progress)
}

// ImportSelected runs an import and waits for its summary.
func (p *Pipeline) ImportSelected(ctx context.Context, req domain.ImportRequest, progress operations.ProgressFunc) (*domain.ImportStats, error) {
	return p.importer.Run(ctx, req, progress)
}

// GetDataset returns one materialised dataset.
func (p *Pipeline) GetDataset(ctx context.Context, resultSetID int64, resultType, direction string) (*domain.Dataset, error) {
	return p.results.GetDataset(ctx, resultSetID, resultType, direction)
}

// GetComparisonDataset materialises a stored comparison set.
func (p *Pipeline) GetComparisonDataset(ctx context.Context, comparisonSetID int64) (*domain.ComparisonDataset, error) {
	return p.comparisons.Build(ctx, comparisonSetID)
}

// Invalidate clears every cached dataset of a result set.
func (p *Pipeline) Invalidate(resultSetID int64) {
	p.results.Invalidate(resultSetID)
}

// ListResultSets returns every result set of the project.
func (p *Pipeline) ListResultSets(ctx context.Context) ([]domain.ResultSet, error) {
	return p.results.ListResultSets(ctx)
}

// ListLoadCases returns the load cases of a result set.
func (p *Pipeline) ListLoadCases(ctx context.Context, resultSetID int64, resultType string) ([]domain.LoadCase, error) {
	return p.results.ListLoadCases(ctx, resultSetID, resultType)
}

// ListResultTypes returns the result types of a result set.
func (p *Pipeline) ListResultTypes(ctx context.Context, resultSetID int64) ([]string, error) {
	return p.results.ListResultTypes(ctx, resultSetID)
}

// ComparisonSets returns the comparison set repository.
func (p *Pipeline) ComparisonSets() *ComparisonSets {
	return p.sets
}

// Results returns the read service.
func (p *Pipeline) Results() *ResultService {
	return p.results
}
