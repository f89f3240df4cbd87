package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	"github.com/AdrianZavoianu/RPS-sub000/internal/infrastructure"
	"github.com/AdrianZavoianu/RPS-sub000/internal/store"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// ResultService serves materialised datasets from the wide cache. It holds
// one provider per result family; each provider caches its own datasets.
// Two services never share cached state.
type ResultService struct {
	handle    *store.Handle
	logger    *slog.Logger
	providers map[catalog.Family]*provider
}

// NewResultService creates a service with cold caches reading from handle.
func NewResultService(handle *store.Handle, logger *slog.Logger) *ResultService {
	logger = infrastructure.LoggerOrDefault(logger, "results")
	rs := &ResultService{
		handle:    handle,
		logger:    logger,
		providers: make(map[catalog.Family]*provider, 3),
	}
	for _, f := range []catalog.Family{catalog.FamilyStory, catalog.FamilyElement, catalog.FamilyJoint} {
		rs.providers[f] = newProvider(f, logger)
	}
	return rs
}

// GetDataset returns the dataset of one result type and direction. The
// returned dataset is shared with the cache and must not be modified.
func (rs *ResultService) GetDataset(ctx context.Context, resultSetID int64, resultType, direction string) (*domain.Dataset, error) {
	spec, ok := catalog.Lookup(resultType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResultType, resultType)
	}
	if !spec.HasDirection(direction) {
		return nil, fmt.Errorf("%w: %s has no direction %q", ErrUnknownDirection, resultType, direction)
	}

	p := rs.providers[spec.Family]
	key := datasetKey{resultSetID: resultSetID, resultType: spec.Name, direction: direction}
	return p.dataset(ctx, key, func(ctx context.Context) (*domain.Dataset, error) {
		start := time.Now()
		var ds *domain.Dataset
		err := rs.withSession(ctx, func(s *store.Session) error {
			var err error
			ds, err = loadDataset(ctx, s, spec, resultSetID, direction)
			return err
		})
		if err != nil {
			return nil, err
		}
		p.logger.DebugContext(ctx, "dataset loaded",
			slog.Int64("result_set_id", resultSetID),
			slog.String("result_type", spec.Name),
			slog.String("direction", direction),
			slog.Int("rows", len(ds.Rows)),
			slog.Duration("elapsed", time.Since(start)))
		return ds, nil
	})
}

// Invalidate drops every cached dataset of a result set in every provider.
func (rs *ResultService) Invalidate(resultSetID int64) {
	dropped := 0
	for _, p := range rs.providers {
		dropped += p.invalidate(resultSetID)
	}
	rs.logger.Debug("result set invalidated",
		slog.Int64("result_set_id", resultSetID),
		slog.Int("datasets_dropped", dropped))
}

// Cached returns how many datasets of a result set are currently cached.
func (rs *ResultService) Cached(resultSetID int64) int {
	n := 0
	for _, p := range rs.providers {
		n += p.cached(resultSetID)
	}
	return n
}

// ListResultSets returns every result set of the project.
func (rs *ResultService) ListResultSets(ctx context.Context) ([]domain.ResultSet, error) {
	var out []domain.ResultSet
	err := rs.withSession(ctx, func(s *store.Session) error {
		var err error
		out, err = s.ResultSets(ctx)
		return err
	})
	return out, err
}

// ListLoadCases returns the load cases with records in a result set,
// optionally narrowed to one result type.
func (rs *ResultService) ListLoadCases(ctx context.Context, resultSetID int64, resultType string) ([]domain.LoadCase, error) {
	if resultType != "" {
		if _, ok := catalog.Lookup(resultType); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownResultType, resultType)
		}
	}
	var out []domain.LoadCase
	err := rs.withSession(ctx, func(s *store.Session) error {
		var err error
		out, err = s.LoadCases(ctx, resultSetID, resultType)
		return err
	})
	return out, err
}

// ListResultTypes returns the result types with records in a result set.
func (rs *ResultService) ListResultTypes(ctx context.Context, resultSetID int64) ([]string, error) {
	var out []string
	err := rs.withSession(ctx, func(s *store.Session) error {
		var err error
		out, err = s.ResultTypes(ctx, resultSetID)
		return err
	})
	return out, err
}

// withSession runs fn on a read session owned by this call.
func (rs *ResultService) withSession(ctx context.Context, fn func(*store.Session) error) error {
	s, err := rs.handle.Session(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(s)
}
