package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	"github.com/AdrianZavoianu/RPS-sub000/internal/store"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

type datasetKey struct {
	resultSetID int64
	resultType  string
	direction   string
}

// provider materialises datasets of one result family and caches them.
type provider struct {
	family catalog.Family
	logger *slog.Logger

	mu    sync.Mutex
	cache map[datasetKey]*domain.Dataset
	// generation is bumped by invalidate; a load started under an older
	// generation is returned but not cached.
	generation map[int64]uint64
}

func newProvider(family catalog.Family, logger *slog.Logger) *provider {
	return &provider{
		family: family,
		logger: logger.With(slog.String("provider", string(family))),
		cache:  make(map[datasetKey]*domain.Dataset),

		generation: make(map[int64]uint64),
	}
}

// dataset returns the cached dataset or loads it with load. Loads of
// different keys may run concurrently; a key loaded twice keeps the first.
func (p *provider) dataset(ctx context.Context, key datasetKey, load func(context.Context) (*domain.Dataset, error)) (*domain.Dataset, error) {
	p.mu.Lock()
	if ds, ok := p.cache[key]; ok {
		p.mu.Unlock()
		return ds, nil
	}
	gen := p.generation[key.resultSetID]
	p.mu.Unlock()

	ds, err := load(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generation[key.resultSetID] != gen {
		return ds, nil
	}
	if cached, ok := p.cache[key]; ok {
		return cached, nil
	}
	p.cache[key] = ds
	return ds, nil
}

// invalidate drops every cached dataset of a result set and returns how
// many were dropped.
func (p *provider) invalidate(resultSetID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation[resultSetID]++
	n := 0
	for k := range p.cache {
		if k.resultSetID == resultSetID {
			delete(p.cache, k)
			n++
		}
	}
	return n
}

func (p *provider) cached(resultSetID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k := range p.cache {
		if k.resultSetID == resultSetID {
			n++
		}
	}
	return n
}

// loadDataset reads the wide cache of one result type and direction and
// turns it into display rows.
func loadDataset(ctx context.Context, s *store.Session, spec catalog.Spec, resultSetID int64, direction string) (*domain.Dataset, error) {
	if _, err := s.ResultSet(ctx, resultSetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrResultSetNotFound, resultSetID)
		}
		return nil, err
	}

	rows, err := s.CacheRows(ctx, resultSetID, spec.Name, direction)
	if err != nil {
		return nil, err
	}
	loadCases, err := s.LoadCases(ctx, resultSetID, spec.Name)
	if err != nil {
		return nil, err
	}

	ds := &domain.Dataset{
		ResultSetID: resultSetID,
		ResultType:  spec.Name,
		Direction:   direction,
		Unit:        spec.Unit,
		LoadCases:   make([]string, 0, len(loadCases)),
		Rows:        make([]domain.DatasetRow, 0, len(rows)),
	}
	for _, lc := range loadCases {
		ds.LoadCases = append(ds.LoadCases, lc.Name)
	}

	sortCacheRows(spec, rows)
	for _, r := range rows {
		ds.Rows = append(ds.Rows, datasetRow(spec, r, ds.LoadCases))
	}
	return ds, nil
}

func sortCacheRows(spec catalog.Spec, rows []store.CacheRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if spec.Ordering == catalog.OrderByGlobalStory {
			if a.StoryOrder != b.StoryOrder {
				return a.StoryOrder < b.StoryOrder
			}
			return a.Element < b.Element
		}
		if a.SheetOrder != b.SheetOrder {
			return a.SheetOrder < b.SheetOrder
		}
		if a.StoryID != b.StoryID {
			return a.StoryID < b.StoryID
		}
		return a.ElementID < b.ElementID
	})
}

func datasetRow(spec catalog.Spec, r store.CacheRow, loadCases []string) domain.DatasetRow {
	row := domain.DatasetRow{
		Story:      r.Story,
		Element:    r.Element,
		Label:      rowLabel(spec, r.Story, r.Element),
		SheetOrder: r.SheetOrder,
		Values:     r.Values,
	}

	n := 0
	sum := 0.0
	for _, lc := range loadCases {
		v, ok := r.Values[lc]
		if !ok {
			continue
		}
		if n == 0 || v > row.Maximum {
			row.Maximum = v
		}
		if n == 0 || v < row.Minimum {
			row.Minimum = v
		}
		sum += v
		n++
	}
	if n > 0 {
		row.Average = sum / float64(n)
	}
	return row
}

// rowLabel names an axis entity uniquely within its result type.
func rowLabel(spec catalog.Spec, story, element string) string {
	switch {
	case spec.Family == catalog.FamilyStory:
		return story
	case story == "":
		return element
	default:
		return element + " @ " + story
	}
}
