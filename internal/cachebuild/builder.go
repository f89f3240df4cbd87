// Package cachebuild pivots normalized records into the wide cache: one row
// per (result set, result type, direction, axis entity) holding a load case
// to value map.
//
// The cache is derived data. A build always replaces the whole cache of a
// (result set, result type) pair and is only allowed once every normalized
// write of the batch is committed.
package cachebuild

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	rpserrors "github.com/AdrianZavoianu/RPS-sub000/internal/errors"
	"github.com/AdrianZavoianu/RPS-sub000/internal/infrastructure"
	"github.com/AdrianZavoianu/RPS-sub000/internal/store"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// ErrUncommittedWrites is returned when a build is attempted while the
// session still holds uncommitted writes.
var ErrUncommittedWrites = errors.New("uncommitted writes pending")

// Builder builds wide cache rows.
type Builder struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *infrastructure.ImportMetrics
}

// Option configures a Builder.
type Option func(*Builder)

// WithTracer sets the tracer used for build spans.
func WithTracer(t trace.Tracer) Option {
	return func(b *Builder) { b.tracer = t }
}

// WithMetrics records built rows and build durations.
func WithMetrics(m *infrastructure.ImportMetrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// New creates a Builder.
func New(logger *slog.Logger, opts ...Option) *Builder {
	b := &Builder{
		logger: infrastructure.LoggerOrDefault(logger, "cachebuild"),
		tracer: tracenoop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build rebuilds the cache of (resultSetID, category) from the normalized
// records visible to s and returns the rows written. It fails with a
// cache_inconsistency error wrapping ErrUncommittedWrites when s has pending
// writes. Two builds over the same records store identical rows.
func (b *Builder) Build(ctx context.Context, s *store.Session, resultSetID int64, category catalog.Category) ([]domain.WideCacheRecord, error) {
	spec := category.Spec()
	ctx, span := b.tracer.Start(ctx, "cachebuild.Build", trace.WithAttributes(
		attribute.Int64("result_set_id", resultSetID),
		attribute.String("result_type", spec.Name),
	))
	defer span.End()

	if s.Pending() {
		err := rpserrors.New(rpserrors.KindCacheInconsistency, "", spec.Sheet,
			"cache build attempted before commit", ErrUncommittedWrites)
		span.RecordError(err)
		return nil, err
	}

	start := time.Now()
	records, err := s.Records(ctx, resultSetID, spec.Name)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	rows := Pivot(spec, records)
	if err := s.WithTx(ctx, func(tx *store.Tx) error {
		return tx.ReplaceCache(ctx, resultSetID, spec.Name, rows)
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	elapsed := time.Since(start)
	if b.metrics != nil {
		attrs := infrastructure.ResultTypeAttrs(spec.Name)
		b.metrics.CacheRowsBuilt.Add(ctx, int64(len(rows)), attrs)
		b.metrics.CacheBuildSeconds.Record(ctx, elapsed.Seconds(), attrs)
	}
	b.logger.InfoContext(ctx, "cache built",
		slog.Int64("result_set_id", resultSetID),
		slog.String("result_type", spec.Name),
		slog.Int("records", len(records)),
		slog.Int("rows", len(rows)),
		slog.Duration("duration", elapsed))
	return rows, nil
}

type cacheKey struct {
	direction string
	storyID   int64
	elementID int64
}

// Pivot groups records by direction and axis entity. Row order is
// direction (catalog order), then sheet_order, then entity ids, so equal
// input gives equal output regardless of record order. The sheet_order of
// a wide row comes from sheetOrders, never from mixing files.
func Pivot(spec catalog.Spec, records []store.RecordRow) []domain.WideCacheRecord {
	orders := sheetOrders(records)
	byKey := make(map[cacheKey]*domain.WideCacheRecord)
	for _, r := range records {
		k := cacheKey{direction: r.Direction, storyID: r.StoryID, elementID: r.ElementID}
		row, ok := byKey[k]
		if !ok {
			row = &domain.WideCacheRecord{
				ResultSetID: r.ResultSetID,
				ResultType:  r.ResultType,
				Direction:   r.Direction,
				StoryID:     r.StoryID,
				ElementID:   r.ElementID,
				SheetOrder:  orders[entity{storyID: r.StoryID, elementID: r.ElementID}],
				Values:      make(map[string]float64),
			}
			byKey[k] = row
		}
		row.Values[r.LoadCase] = r.Value
	}

	dirRank := make(map[string]int, len(spec.Directions))
	for i, d := range spec.Directions {
		dirRank[d] = i
	}

	out := make([]domain.WideCacheRecord, 0, len(byKey))
	for _, row := range byKey {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Direction != b.Direction {
			ra, okA := dirRank[a.Direction]
			rb, okB := dirRank[b.Direction]
			if okA && okB {
				return ra < rb
			}
			return a.Direction < b.Direction
		}
		if a.SheetOrder != b.SheetOrder {
			return a.SheetOrder < b.SheetOrder
		}
		if a.StoryID != b.StoryID {
			return a.StoryID < b.StoryID
		}
		return a.ElementID < b.ElementID
	})
	return out
}

type entity struct {
	storyID   int64
	elementID int64
}

// sheetOrders assigns one dense display position per axis entity of a
// result type. Source files are ranked by how many entities they list
// (most first), ties by path. The top file's order is taken as is;
// entities it lacks follow in the order of the next file that lists them.
func sheetOrders(records []store.RecordRow) map[entity]int {
	perFile := make(map[string]map[entity]int)
	for _, r := range records {
		m := perFile[r.SourceFile]
		if m == nil {
			m = make(map[entity]int)
			perFile[r.SourceFile] = m
		}
		e := entity{storyID: r.StoryID, elementID: r.ElementID}
		if cur, ok := m[e]; !ok || r.SheetOrder < cur {
			m[e] = r.SheetOrder
		}
	}

	files := make([]string, 0, len(perFile))
	for f := range perFile {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		ni, nj := len(perFile[files[i]]), len(perFile[files[j]])
		if ni != nj {
			return ni > nj
		}
		return files[i] < files[j]
	})

	orders := make(map[entity]int)
	for _, f := range files {
		m := perFile[f]
		ents := make([]entity, 0, len(m))
		for e := range m {
			if _, ranked := orders[e]; !ranked {
				ents = append(ents, e)
			}
		}
		sort.Slice(ents, func(i, j int) bool {
			a, b := ents[i], ents[j]
			if m[a] != m[b] {
				return m[a] < m[b]
			}
			if a.storyID != b.storyID {
				return a.storyID < b.storyID
			}
			return a.elementID < b.elementID
		})
		for _, e := range ents {
			orders[e] = len(orders)
		}
	}
	return orders
}
