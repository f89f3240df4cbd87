package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// CacheRow is a wide cache record joined with its axis entity names.
type CacheRow struct {
	domain.WideCacheRecord
	Story       string
	StoryOrder  int
	Element     string
	ElementType string
}

// ReplaceCache swaps the whole cache of (result set, result type) for rows.
func (t *Tx) ReplaceCache(ctx context.Context, resultSetID int64, resultType string, rows []domain.WideCacheRecord) error {
	if _, err := t.exec(ctx,
		`DELETE FROM result_cache WHERE result_set_id = ? AND result_type = ?`, resultSetID, resultType); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	stmt, err := t.prepare(ctx, `
		INSERT INTO result_cache (result_set_id, result_type, direction, story_id, element_id, sheet_order, load_case_values)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare cache insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		// encoding/json writes map keys sorted, so equal maps give equal text.
		values, err := json.Marshal(r.Values)
		if err != nil {
			return fmt.Errorf("encode cache values: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, resultSetID, resultType, r.Direction,
			r.StoryID, r.ElementID, r.SheetOrder, string(values)); err != nil {
			return fmt.Errorf("insert cache row: %w", err)
		}
		t.writes++
	}
	return nil
}

// CacheRows returns the wide cache of (result set, result type, direction).
// An empty direction returns every direction. Rows come back in primary key
// order; display ordering is up to the caller.
func (s *Session) CacheRows(ctx context.Context, resultSetID int64, resultType, direction string) ([]CacheRow, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT c.result_set_id, c.result_type, c.direction, c.story_id, c.element_id, c.sheet_order, c.load_case_values,
		       COALESCE(s.name, ''), COALESCE(s.global_order, 0), COALESCE(e.unique_name, ''), COALESCE(e.element_type, '')
		FROM result_cache c
		LEFT JOIN stories s ON s.id = c.story_id
		LEFT JOIN elements e ON e.id = c.element_id
		WHERE c.result_set_id = ? AND c.result_type = ? AND (? = '' OR c.direction = ?)
		ORDER BY c.direction, c.story_id, c.element_id`, resultSetID, resultType, direction, direction)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CacheRow
	for rows.Next() {
		r, err := scanCacheRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanCacheRow(rows *sql.Rows) (CacheRow, error) {
	var (
		r      CacheRow
		values string
	)
	if err := rows.Scan(&r.ResultSetID, &r.ResultType, &r.Direction, &r.StoryID, &r.ElementID, &r.SheetOrder,
		&values, &r.Story, &r.StoryOrder, &r.Element, &r.ElementType); err != nil {
		return CacheRow{}, err
	}
	if err := json.Unmarshal([]byte(values), &r.Values); err != nil {
		return CacheRow{}, fmt.Errorf("decode cache values: %w", err)
	}
	return r, nil
}

// CacheText returns the raw stored cache of (result set, result type) as
// one string, in primary key order. Two builds over the same records give
// the same text.
func (s *Session) CacheText(ctx context.Context, resultSetID int64, resultType string) (string, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT direction, story_id, element_id, sheet_order, load_case_values
		FROM result_cache WHERE result_set_id = ? AND result_type = ?
		ORDER BY direction, story_id, element_id`, resultSetID, resultType)
	if err != nil {
		return "", fmt.Errorf("query cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []byte
	for rows.Next() {
		var (
			dir              string
			story, el, order int64
			values           string
		)
		if err := rows.Scan(&dir, &story, &el, &order, &values); err != nil {
			return "", err
		}
		out = fmt.Appendf(out, "%s|%d|%d|%d|%s\n", dir, story, el, order, values)
	}
	return string(out), rows.Err()
}
