package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// SaveComparisonSet inserts cs, or updates it when cs.ID is set.
func (t *Tx) SaveComparisonSet(ctx context.Context, cs domain.ComparisonSet) (domain.ComparisonSet, error) {
	ids, err := json.Marshal(cs.ResultSetIDs)
	if err != nil {
		return domain.ComparisonSet{}, fmt.Errorf("encode result set ids: %w", err)
	}
	types, err := json.Marshal(cs.ResultTypes)
	if err != nil {
		return domain.ComparisonSet{}, fmt.Errorf("encode result types: %w", err)
	}

	if cs.ID != 0 {
		res, err := t.exec(ctx,
			`UPDATE comparison_sets SET name = ?, result_set_ids = ?, result_types = ? WHERE id = ?`,
			cs.Name, string(ids), string(types), cs.ID)
		if err != nil {
			return domain.ComparisonSet{}, fmt.Errorf("update comparison set %d: %w", cs.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ComparisonSet{}, fmt.Errorf("comparison set %d: %w", cs.ID, ErrNotFound)
		}
		return getComparisonSet(ctx, t.tx, cs.ID)
	}

	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = time.Now()
	}
	res, err := t.exec(ctx,
		`INSERT INTO comparison_sets (name, result_set_ids, result_types, created_at) VALUES (?, ?, ?, ?)`,
		cs.Name, string(ids), string(types), formatTime(cs.CreatedAt))
	if err != nil {
		return domain.ComparisonSet{}, fmt.Errorf("insert comparison set %q: %w", cs.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.ComparisonSet{}, err
	}
	return getComparisonSet(ctx, t.tx, id)
}

// DeleteComparisonSet removes the comparison set with the given id.
func (t *Tx) DeleteComparisonSet(ctx context.Context, id int64) error {
	res, err := t.exec(ctx, `DELETE FROM comparison_sets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete comparison set %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("comparison set %d: %w", id, ErrNotFound)
	}
	return nil
}

// ComparisonSet returns the comparison set with the given id.
func (s *Session) ComparisonSet(ctx context.Context, id int64) (domain.ComparisonSet, error) {
	return getComparisonSet(ctx, s.reader(), id)
}

// ComparisonSets lists every comparison set by id.
func (s *Session) ComparisonSets(ctx context.Context) ([]domain.ComparisonSet, error) {
	rows, err := s.reader().QueryContext(ctx,
		`SELECT id, name, result_set_ids, result_types, created_at FROM comparison_sets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list comparison sets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ComparisonSet
	for rows.Next() {
		cs, err := scanComparisonSet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func getComparisonSet(ctx context.Context, q querier, id int64) (domain.ComparisonSet, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, result_set_ids, result_types, created_at FROM comparison_sets WHERE id = ?`, id)
	cs, err := scanComparisonSet(row)
	if errors.Is(err, ErrNotFound) {
		return domain.ComparisonSet{}, fmt.Errorf("comparison set %d: %w", id, err)
	}
	return cs, err
}

func scanComparisonSet(row scanner) (domain.ComparisonSet, error) {
	var (
		cs             domain.ComparisonSet
		ids, types, at string
	)
	if err := row.Scan(&cs.ID, &cs.Name, &ids, &types, &at); err != nil {
		if isNoRows(err) {
			return domain.ComparisonSet{}, ErrNotFound
		}
		return domain.ComparisonSet{}, err
	}
	if err := json.Unmarshal([]byte(ids), &cs.ResultSetIDs); err != nil {
		return domain.ComparisonSet{}, fmt.Errorf("decode result set ids: %w", err)
	}
	if err := json.Unmarshal([]byte(types), &cs.ResultTypes); err != nil {
		return domain.ComparisonSet{}, fmt.Errorf("decode result types: %w", err)
	}
	cs.CreatedAt = parseTime(at)
	return cs, nil
}
