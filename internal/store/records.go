package store

import (
	"context"
	"fmt"

	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// RecordRow is a normalized record joined with its load case name.
type RecordRow struct {
	domain.NormalizedRecord
	LoadCase string
}

// ReplaceRecords deletes every record of (result set, result type) for the
// given load cases and inserts records in their place. Re-importing a load
// case therefore never appends to what an earlier import wrote.
func (t *Tx) ReplaceRecords(ctx context.Context, resultSetID int64, resultType string, loadCaseIDs []int64, records []domain.NormalizedRecord) (int, error) {
	for _, lcID := range loadCaseIDs {
		if _, err := t.exec(ctx,
			`DELETE FROM results WHERE result_set_id = ? AND result_type = ? AND load_case_id = ?`,
			resultSetID, resultType, lcID); err != nil {
			return 0, fmt.Errorf("delete records of load case %d: %w", lcID, err)
		}
	}
	if len(records) == 0 {
		return 0, nil
	}

	stmt, err := t.prepare(ctx, `
		INSERT INTO results (result_set_id, result_type, direction, load_case_id, story_id, element_id, value, sheet_order, source_file)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range records {
		if r.ResultSetID != resultSetID || r.ResultType != resultType {
			return i, fmt.Errorf("record %d belongs to %d/%s, not %d/%s",
				i, r.ResultSetID, r.ResultType, resultSetID, resultType)
		}
		if _, err := stmt.ExecContext(ctx, r.ResultSetID, r.ResultType, r.Direction, r.LoadCaseID,
			r.StoryID, r.ElementID, r.Value, r.SheetOrder, r.SourceFile); err != nil {
			return i, fmt.Errorf("insert record %d: %w", i, err)
		}
		t.writes++
	}
	return len(records), nil
}

// Records returns every normalized record of (result set, result type),
// ordered by direction, axis entity and load case id.
func (s *Session) Records(ctx context.Context, resultSetID int64, resultType string) ([]RecordRow, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT r.result_set_id, r.result_type, r.direction, r.load_case_id, r.story_id, r.element_id,
		       r.value, r.sheet_order, r.source_file, lc.name
		FROM results r JOIN load_cases lc ON lc.id = r.load_case_id
		WHERE r.result_set_id = ? AND r.result_type = ?
		ORDER BY r.direction, r.story_id, r.element_id, r.load_case_id`, resultSetID, resultType)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RecordRow
	for rows.Next() {
		var r RecordRow
		if err := rows.Scan(&r.ResultSetID, &r.ResultType, &r.Direction, &r.LoadCaseID, &r.StoryID,
			&r.ElementID, &r.Value, &r.SheetOrder, &r.SourceFile, &r.LoadCase); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResultTypes lists the result types with records in the result set.
func (s *Session) ResultTypes(ctx context.Context, resultSetID int64) ([]string, error) {
	rows, err := s.reader().QueryContext(ctx,
		`SELECT DISTINCT result_type FROM results WHERE result_set_id = ? ORDER BY result_type`, resultSetID)
	if err != nil {
		return nil, fmt.Errorf("list result types: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var rt string
		if err := rows.Scan(&rt); err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}
