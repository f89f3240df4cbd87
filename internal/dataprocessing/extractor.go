package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/time/rate"

	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	rpserrors "github.com/AdrianZavoianu/RPS-sub000/internal/errors"
)

// Column is a value column recovered from a header cell.
type Column struct {
	Index     int
	LoadCase  string
	Direction string
}

// ParseColumn splits a "<prefix>_<load case>_<direction>" header. The load
// case may itself contain underscores; the longest matching direction wins.
func ParseColumn(spec catalog.Spec, header string) (Column, bool) {
	h := strings.TrimSpace(header)
	prefix := spec.Prefix + "_"
	if !strings.HasPrefix(h, prefix) {
		return Column{}, false
	}
	rest := h[len(prefix):]

	dirs := append([]string(nil), spec.Directions...)
	sort.SliceStable(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		suffix := "_" + dir
		if !strings.HasSuffix(rest, suffix) {
			continue
		}
		lc := strings.TrimSpace(rest[:len(rest)-len(suffix)])
		if lc == "" {
			return Column{}, false
		}
		return Column{LoadCase: lc, Direction: dir}, true
	}
	return Column{}, false
}

// Value is one measured value of a row.
type Value struct {
	LoadCase  string
	Direction string
	Value     float64
}

// Row is one data row of a result sheet. Element is empty for story
// categories; Story is empty for joint categories, whose axis is Element.
type Row struct {
	Number  int
	Story   string
	Element string
	Values  []Value
}

// Extraction is the filtered content of one sheet.
type Extraction struct {
	Category catalog.Category
	Sheet    string
	// LoadCases lists the allowed load cases found in the header, in column order.
	LoadCases []string
	Rows      []Row
	// Dropped holds one malformed-row warning per dropped row.
	Dropped []*rpserrors.ImportError
}

// SheetExtractor reads the sheet of one result category.
type SheetExtractor interface {
	Category() catalog.Category
	// ScanHeader reads only the header row and returns the load case names
	// in column order with duplicates removed.
	ScanHeader(wb *Workbook) ([]string, error)
	// Extract reads the rows, keeping only values of allowed load cases.
	// An empty allowed set yields no rows.
	Extract(ctx context.Context, wb *Workbook, allowed map[string]struct{}) (*Extraction, error)
}

// ColumnExtractor implements SheetExtractor for sheets following the
// prefix/load case/direction column convention.
type ColumnExtractor struct {
	spec      catalog.Spec
	logger    *slog.Logger
	sometimes *rate.Sometimes
}

// NewColumnExtractor creates the convention-based extractor for a category.
// Malformed-row warnings are logged at most once per warnEvery; all of them
// are still returned in the Extraction.
func NewColumnExtractor(spec catalog.Spec, logger *slog.Logger, warnEvery time.Duration) *ColumnExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ColumnExtractor{
		spec:      spec,
		logger:    logger.With(slog.String("component", "extractor"), slog.String("category", spec.Name)),
		sometimes: &rate.Sometimes{First: 3, Interval: warnEvery},
	}
}

// Category returns the extractor's category.
func (e *ColumnExtractor) Category() catalog.Category {
	return e.spec.Category
}

// ScanHeader returns the load cases named by the header row.
func (e *ColumnExtractor) ScanHeader(wb *Workbook) ([]string, error) {
	rows, err := wb.rows(e.spec.Sheet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return []string{}, rows.Error()
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", e.spec.Sheet, err)
	}

	seen := make(map[string]struct{})
	loadCases := []string{}
	for _, h := range header {
		col, ok := ParseColumn(e.spec, h)
		if !ok {
			continue
		}
		if _, dup := seen[col.LoadCase]; dup {
			continue
		}
		seen[col.LoadCase] = struct{}{}
		loadCases = append(loadCases, col.LoadCase)
	}
	return loadCases, nil
}

// Extract reads the allowed columns of the sheet.
func (e *ColumnExtractor) Extract(ctx context.Context, wb *Workbook, allowed map[string]struct{}) (*Extraction, error) {
	rows, err := wb.rows(e.spec.Sheet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := &Extraction{Category: e.spec.Category, Sheet: e.spec.Sheet}
	if !rows.Next() {
		return out, rows.Error()
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", e.spec.Sheet, err)
	}

	storyIdx, elementIdx, err := e.axisIndexes(header)
	if err != nil {
		return nil, err
	}

	var cols []Column
	seen := make(map[string]struct{})
	for i, h := range header {
		col, ok := ParseColumn(e.spec, h)
		if !ok {
			continue
		}
		if _, ok := allowed[col.LoadCase]; !ok {
			continue
		}
		col.Index = i
		cols = append(cols, col)
		if _, dup := seen[col.LoadCase]; !dup {
			seen[col.LoadCase] = struct{}{}
			out.LoadCases = append(out.LoadCases, col.LoadCase)
		}
	}
	if len(cols) == 0 {
		return out, nil
	}

	rowNum := 1
	for rows.Next() {
		rowNum++
		if rowNum%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d of %s: %w", rowNum, e.spec.Sheet, err)
		}

		row := Row{Number: rowNum}
		switch e.spec.Family {
		case catalog.FamilyElement:
			row.Element = cell(cells, elementIdx)
			row.Story = cell(cells, storyIdx)
			if row.Element == "" || row.Story == "" {
				continue
			}
		case catalog.FamilyJoint:
			row.Element = cell(cells, elementIdx)
			if row.Element == "" {
				continue
			}
		default:
			row.Story = cell(cells, storyIdx)
			if row.Story == "" {
				continue
			}
		}

		values, bad := parseValues(cells, cols)
		if bad != nil {
			warn := rpserrors.MalformedRow(wb.Ref.Path, e.spec.Sheet, rowNum, bad.err)
			warn.LoadCase = bad.loadCase
			out.Dropped = append(out.Dropped, warn)
			e.sometimes.Do(func() {
				e.logger.WarnContext(ctx, "dropping malformed row",
					slog.String("file", wb.Ref.Name),
					slog.Int("row", rowNum),
					slog.String("load_case", bad.loadCase),
					slog.String("error", bad.err.Error()))
			})
			continue
		}
		if len(values) == 0 {
			continue
		}
		row.Values = values
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("failed to stream %s: %w", e.spec.Sheet, err)
	}

	if len(out.Dropped) > 0 {
		e.logger.WarnContext(ctx, "rows dropped",
			slog.String("file", wb.Ref.Name),
			slog.Int("count", len(out.Dropped)))
	}
	return out, nil
}

// axisIndexes locates the axis columns. For the joint family the joint
// column is returned as the element index.
func (e *ColumnExtractor) axisIndexes(header []string) (storyIdx, elementIdx int, err error) {
	storyIdx, elementIdx = -1, -1
	for _, name := range e.spec.AxisColumns() {
		idx := indexOf(header, name)
		if idx < 0 {
			return -1, -1, fmt.Errorf("%w: %s in %s", ErrMissingAxisColumn, name, e.spec.Sheet)
		}
		switch name {
		case "Story":
			storyIdx = idx
		default:
			elementIdx = idx
		}
	}
	return storyIdx, elementIdx, nil
}

type cellError struct {
	loadCase string
	err      error
}

// parseValues converts the allowed cells of a row. Empty cells are absent
// values; any unparseable cell rejects the whole row.
func parseValues(cells []string, cols []Column) ([]Value, *cellError) {
	values := make([]Value, 0, len(cols))
	for _, col := range cols {
		raw := cell(cells, col.Index)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
			err = strconv.ErrRange
		}
		if err != nil {
			return nil, &cellError{loadCase: col.LoadCase, err: fmt.Errorf("invalid number %q in column %d", raw, col.Index+1)}
		}
		values = append(values, Value{LoadCase: col.LoadCase, Direction: col.Direction, Value: v})
	}
	return values, nil
}

// ExtractorSet registers one extractor per category.
type ExtractorSet struct {
	byCategory map[catalog.Category]SheetExtractor
}

// NewExtractorSet creates an empty set.
func NewExtractorSet() *ExtractorSet {
	return &ExtractorSet{byCategory: make(map[catalog.Category]SheetExtractor)}
}

// DefaultExtractors returns a ColumnExtractor for every catalog category.
func DefaultExtractors(logger *slog.Logger, warnEvery time.Duration) *ExtractorSet {
	set := NewExtractorSet()
	for _, spec := range catalog.All() {
		set.Register(NewColumnExtractor(spec, logger, warnEvery))
	}
	return set
}

// Register adds or replaces the extractor of its category.
func (s *ExtractorSet) Register(e SheetExtractor) {
	s.byCategory[e.Category()] = e
}

// Get returns the extractor for a category.
func (s *ExtractorSet) Get(c catalog.Category) (SheetExtractor, bool) {
	e, ok := s.byCategory[c]
	return e, ok
}

// All returns the registered extractors ordered by category.
func (s *ExtractorSet) All() []SheetExtractor {
	out := make([]SheetExtractor, 0, len(s.byCategory))
	for _, e := range s.byCategory {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category() < out[j].Category() })
	return out
}
