package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	"github.com/AdrianZavoianu/RPS-sub000/internal/infrastructure"
	"github.com/AdrianZavoianu/RPS-sub000/internal/store"
	"github.com/AdrianZavoianu/RPS-sub000/internal/validation"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// ComparisonBuilder materialises comparison sets on top of a ResultService,
// so invalidating a result set also refreshes every comparison using it.
type ComparisonBuilder struct {
	results *ResultService
	logger  *slog.Logger
}

// NewComparisonBuilder creates a builder reading datasets through results.
func NewComparisonBuilder(results *ResultService, logger *slog.Logger) *ComparisonBuilder {
	return &ComparisonBuilder{
		results: results,
		logger:  infrastructure.LoggerOrDefault(logger, "comparison"),
	}
}

// Build computes the comparison dataset of a stored comparison set: for each
// of its result types and every direction, one row per axis entity holding
// the load-case average of each result set and the ratio of the last result
// set to the first. A value absent from a result set and a ratio with a
// missing operand or zero divisor are domain.Missing.
func (b *ComparisonBuilder) Build(ctx context.Context, comparisonSetID int64) (*domain.ComparisonDataset, error) {
	var (
		cs   domain.ComparisonSet
		sets []domain.ResultSet
	)
	err := b.results.withSession(ctx, func(s *store.Session) error {
		var err error
		cs, err = s.ComparisonSet(ctx, comparisonSetID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrComparisonSetNotFound, comparisonSetID)
		}
		if err != nil {
			return err
		}
		sets, err = resultSets(ctx, s, cs.ResultSetIDs)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &domain.ComparisonDataset{
		ComparisonSetID: cs.ID,
		Name:            cs.Name,
		ResultSets:      sets,
	}
	for _, resultType := range cs.ResultTypes {
		spec, ok := catalog.Lookup(resultType)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownResultType, resultType)
		}
		for _, dir := range spec.Directions {
			datasets := make([]*domain.Dataset, 0, len(sets))
			for _, rs := range sets {
				ds, err := b.results.GetDataset(ctx, rs.ID, spec.Name, dir)
				if err != nil {
					return nil, err
				}
				datasets = append(datasets, ds)
			}
			out.Tables = append(out.Tables, Compare(spec, dir, datasets))
		}
	}

	b.logger.DebugContext(ctx, "comparison built",
		slog.Int64("comparison_set_id", cs.ID),
		slog.Int("result_sets", len(sets)),
		slog.Int("tables", len(out.Tables)))
	return out, nil
}

// Compare lines up datasets of the same result type and direction by row
// label. Rows follow the first dataset's order; labels only present in later
// datasets are appended in the order they are first seen.
func Compare(spec catalog.Spec, direction string, datasets []*domain.Dataset) domain.ComparisonTable {
	table := domain.ComparisonTable{
		ResultType: spec.Name,
		Direction:  direction,
		Unit:       spec.Unit,
		Rows:       []domain.ComparisonRow{},
	}

	index := make(map[string]int)
	for i, ds := range datasets {
		for _, r := range ds.Rows {
			pos, ok := index[r.Label]
			if !ok {
				pos = len(table.Rows)
				index[r.Label] = pos
				values := make([]domain.Measure, len(datasets))
				table.Rows = append(table.Rows, domain.ComparisonRow{Label: r.Label, Values: values})
			}
			if len(r.Values) > 0 {
				table.Rows[pos].Values[i] = domain.Present(r.Average)
			}
		}
	}

	for i := range table.Rows {
		table.Rows[i].Ratio = ratio(table.Rows[i].Values)
	}
	return table
}

func ratio(values []domain.Measure) domain.Measure {
	if len(values) < 2 {
		return domain.Missing
	}
	first, last := values[0], values[len(values)-1]
	if !first.Valid || !last.Valid || first.Value == 0 {
		return domain.Missing
	}
	return domain.Present(last.Value / first.Value)
}

func resultSets(ctx context.Context, s *store.Session, ids []int64) ([]domain.ResultSet, error) {
	out := make([]domain.ResultSet, 0, len(ids))
	for _, id := range ids {
		rs, err := s.ResultSet(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrResultSetNotFound, id)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, nil
}

// ComparisonSets stores comparison set descriptors.
type ComparisonSets struct {
	handle *store.Handle
	logger *slog.Logger
}

// NewComparisonSets creates the comparison set repository of a store.
func NewComparisonSets(handle *store.Handle, logger *slog.Logger) *ComparisonSets {
	return &ComparisonSets{handle: handle, logger: infrastructure.LoggerOrDefault(logger, "comparison_sets")}
}

// Save validates and stores cs. A zero ID inserts; otherwise the existing
// set is updated. Every referenced result set must exist.
func (c *ComparisonSets) Save(ctx context.Context, cs domain.ComparisonSet) (domain.ComparisonSet, error) {
	if err := validation.Struct(cs); err != nil {
		return domain.ComparisonSet{}, fmt.Errorf("%w: %w", ErrInvalidComparisonSet, err)
	}

	var saved domain.ComparisonSet
	err := c.withSession(ctx, func(s *store.Session) error {
		if _, err := resultSets(ctx, s, cs.ResultSetIDs); err != nil {
			return err
		}
		return s.WithTx(ctx, func(tx *store.Tx) error {
			var err error
			saved, err = tx.SaveComparisonSet(ctx, cs)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %d", ErrComparisonSetNotFound, cs.ID)
			}
			return err
		})
	})
	if err != nil {
		return domain.ComparisonSet{}, err
	}
	c.logger.InfoContext(ctx, "comparison set saved",
		slog.Int64("id", saved.ID),
		slog.String("name", saved.Name))
	return saved, nil
}

// Get returns one comparison set.
func (c *ComparisonSets) Get(ctx context.Context, id int64) (domain.ComparisonSet, error) {
	var cs domain.ComparisonSet
	err := c.withSession(ctx, func(s *store.Session) error {
		var err error
		cs, err = s.ComparisonSet(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrComparisonSetNotFound, id)
		}
		return err
	})
	return cs, err
}

// List returns every comparison set.
func (c *ComparisonSets) List(ctx context.Context) ([]domain.ComparisonSet, error) {
	var out []domain.ComparisonSet
	err := c.withSession(ctx, func(s *store.Session) error {
		var err error
		out, err = s.ComparisonSets(ctx)
		return err
	})
	return out, err
}

// Delete removes a comparison set.
func (c *ComparisonSets) Delete(ctx context.Context, id int64) error {
	return c.withSession(ctx, func(s *store.Session) error {
		return s.WithTx(ctx, func(tx *store.Tx) error {
			err := tx.DeleteComparisonSet(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %d", ErrComparisonSetNotFound, id)
			}
			return err
		})
	})
}

func (c *ComparisonSets) withSession(ctx context.Context, fn func(*store.Session) error) error {
	s, err := c.handle.Session(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(s)
}
