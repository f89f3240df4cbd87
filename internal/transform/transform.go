// Package transform turns the allowed rows of one result sheet into
// normalized records and writes them to the store, replacing whatever an
// earlier import stored for the same load cases.
//
// Rows are filtered to the allowed load cases by the extractor before any
// aggregation happens here, so an envelope is never computed over load
// cases that are not imported.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	"github.com/AdrianZavoianu/RPS-sub000/internal/dataprocessing"
	rpserrors "github.com/AdrianZavoianu/RPS-sub000/internal/errors"
	"github.com/AdrianZavoianu/RPS-sub000/internal/infrastructure"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// ErrNoExtractor is returned for a category without a registered extractor.
var ErrNoExtractor = errors.New("no extractor registered for category")

// Store is the write side used by Import. *store.Tx implements it.
type Store interface {
	EntityStore
	ApplyCanonicalStoryOrder(ctx context.Context, names []string) error
	ReplaceRecords(ctx context.Context, resultSetID int64, resultType string, loadCaseIDs []int64, records []domain.NormalizedRecord) (int, error)
}

// Options carries the per-run parameters shared by every sheet.
type Options struct {
	ResultSetID int64
	// FoundationJoints restricts joint categories to these joints. It is
	// computed once per batch; nil imports every joint.
	FoundationJoints []string
}

// Result describes one transformed sheet.
type Result struct {
	Category  catalog.Category
	Sheet     string
	LoadCases []string
	Records   []domain.NormalizedRecord
	// StoryOrder lists story names in order of first appearance.
	StoryOrder []string
	Written    int
	Dropped    []*rpserrors.ImportError
	// FilteredJoints counts rows removed by the foundation joint filter.
	FilteredJoints int
}

// Transformer converts extracted sheets into normalized records.
type Transformer struct {
	extractors *dataprocessing.ExtractorSet
	logger     *slog.Logger
}

// New creates a Transformer over the given extractors.
func New(extractors *dataprocessing.ExtractorSet, logger *slog.Logger) *Transformer {
	return &Transformer{
		extractors: extractors,
		logger:     infrastructure.LoggerOrDefault(logger, "transform"),
	}
}

// Transform extracts the allowed load cases of category from wb and returns
// the normalized records without writing them. A missing sheet is reported
// as dataprocessing.ErrSheetNotFound.
func (t *Transformer) Transform(ctx context.Context, wb *dataprocessing.Workbook, category catalog.Category,
	allowed map[string]struct{}, st EntityStore, resolver *EntityResolver, opts Options) (*Result, error) {
	ex, ok := t.extractors.Get(category)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoExtractor, category)
	}
	spec := category.Spec()

	extraction, err := ex.Extract(ctx, wb, allowed)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Category:  category,
		Sheet:     spec.Sheet,
		LoadCases: extraction.LoadCases,
		Dropped:   extraction.Dropped,
	}

	var acc *accumulator
	switch spec.Family {
	case catalog.FamilyElement:
		acc, err = t.transformElements(ctx, extraction, spec, st, resolver)
	case catalog.FamilyJoint:
		acc, err = t.transformJoints(ctx, extraction, spec, st, resolver, opts, res)
	default:
		acc, err = t.transformStories(ctx, extraction, spec, st, resolver)
	}
	if err != nil {
		return nil, err
	}

	lcIDs, err := t.loadCaseIDs(ctx, extraction.LoadCases, st, resolver)
	if err != nil {
		return nil, err
	}
	res.Records = acc.records(spec, opts.ResultSetID, wb.Ref.Path, extraction.LoadCases, lcIDs)
	res.StoryOrder = acc.storyOrder()

	t.logger.DebugContext(ctx, "sheet transformed",
		slog.String("file", wb.Ref.Name),
		slog.String("sheet", spec.Sheet),
		slog.Int("load_cases", len(res.LoadCases)),
		slog.Int("rows", len(extraction.Rows)),
		slog.Int("records", len(res.Records)),
		slog.Int("dropped", len(res.Dropped)))
	return res, nil
}

// Import transforms one sheet and writes its records. Records of the
// sheet's allowed load cases are deleted before the new ones are inserted.
// The canonical story sheet also sets the project-global story order.
func (t *Transformer) Import(ctx context.Context, wb *dataprocessing.Workbook, category catalog.Category,
	allowed map[string]struct{}, st Store, resolver *EntityResolver, opts Options) (*Result, error) {
	res, err := t.Transform(ctx, wb, category, allowed, st, resolver, opts)
	if err != nil {
		return nil, err
	}
	if len(res.LoadCases) == 0 {
		return res, nil
	}

	if category == catalog.CanonicalStorySheet && len(res.StoryOrder) > 0 {
		if err := st.ApplyCanonicalStoryOrder(ctx, res.StoryOrder); err != nil {
			return nil, fmt.Errorf("apply story order: %w", err)
		}
	}

	lcIDs, err := t.loadCaseIDs(ctx, res.LoadCases, st, resolver)
	if err != nil {
		return nil, err
	}
	n, err := st.ReplaceRecords(ctx, opts.ResultSetID, category.Spec().Name, lcIDs, res.Records)
	if err != nil {
		return nil, fmt.Errorf("write %s records: %w", res.Sheet, err)
	}
	res.Written = n
	return res, nil
}

// transformStories handles categories whose axis is the story. A story's
// sheet_order is its first-appearance ordinal in this sheet.
func (t *Transformer) transformStories(ctx context.Context, ext *dataprocessing.Extraction, spec catalog.Spec,
	st EntityStore, resolver *EntityResolver) (*accumulator, error) {
	acc := newAccumulator(spec)
	for _, row := range ext.Rows {
		acc.add(axis{story: row.Story}, row.Values)
	}
	err := acc.resolve(func(a axis) (int64, int64, error) {
		id, err := resolver.Story(ctx, st, a.story)
		return id, 0, err
	})
	return acc, err
}

// transformElements handles categories whose axis is an (element, story)
// pair.
func (t *Transformer) transformElements(ctx context.Context, ext *dataprocessing.Extraction, spec catalog.Spec,
	st EntityStore, resolver *EntityResolver) (*accumulator, error) {
	acc := newAccumulator(spec)
	for _, row := range ext.Rows {
		acc.add(axis{element: row.Element, story: row.Story}, row.Values)
	}
	err := acc.resolve(func(a axis) (int64, int64, error) {
		storyID, err := resolver.Story(ctx, st, a.story)
		if err != nil {
			return 0, 0, err
		}
		elementID, err := resolver.Element(ctx, st, spec.ElementType, a.element)
		return storyID, elementID, err
	})
	return acc, err
}

// transformJoints handles foundation joint categories, keeping only joints
// in the batch-wide foundation list when one is set.
func (t *Transformer) transformJoints(ctx context.Context, ext *dataprocessing.Extraction, spec catalog.Spec,
	st EntityStore, resolver *EntityResolver, opts Options, res *Result) (*accumulator, error) {
	var keep map[string]struct{}
	if opts.FoundationJoints != nil {
		keep = make(map[string]struct{}, len(opts.FoundationJoints))
		for _, j := range opts.FoundationJoints {
			keep[j] = struct{}{}
		}
	}

	acc := newAccumulator(spec)
	for _, row := range ext.Rows {
		if keep != nil {
			if _, ok := keep[row.Element]; !ok {
				res.FilteredJoints++
				continue
			}
		}
		acc.add(axis{element: row.Element}, row.Values)
	}
	err := acc.resolve(func(a axis) (int64, int64, error) {
		id, err := resolver.Element(ctx, st, spec.ElementType, a.element)
		return 0, id, err
	})
	return acc, err
}

func (t *Transformer) loadCaseIDs(ctx context.Context, names []string, st EntityStore, resolver *EntityResolver) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		id, err := resolver.LoadCase(ctx, st, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
