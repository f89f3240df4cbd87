package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// EnsureResultSet returns the result set (name, category), creating it if
// needed. Two categories never share a result set.
func (t *Tx) EnsureResultSet(ctx context.Context, name, category string) (domain.ResultSet, error) {
	if _, err := t.exec(ctx,
		`INSERT OR IGNORE INTO result_sets (name, analysis_category, created_at) VALUES (?, ?, ?)`,
		name, category, formatTime(time.Now())); err != nil {
		return domain.ResultSet{}, fmt.Errorf("insert result set %q: %w", name, err)
	}
	return findResultSet(ctx, t.tx, name, category)
}

// FindResultSet looks up a result set by name and category.
func (s *Session) FindResultSet(ctx context.Context, name, category string) (domain.ResultSet, error) {
	return findResultSet(ctx, s.reader(), name, category)
}

// ResultSet returns the result set with the given id.
func (s *Session) ResultSet(ctx context.Context, id int64) (domain.ResultSet, error) {
	row := s.reader().QueryRowContext(ctx,
		`SELECT id, name, analysis_category, created_at FROM result_sets WHERE id = ?`, id)
	rs, err := scanResultSet(row)
	if err != nil {
		return domain.ResultSet{}, fmt.Errorf("result set %d: %w", id, err)
	}
	return rs, nil
}

// ResultSets lists every result set in creation order.
func (s *Session) ResultSets(ctx context.Context) ([]domain.ResultSet, error) {
	rows, err := s.reader().QueryContext(ctx,
		`SELECT id, name, analysis_category, created_at FROM result_sets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list result sets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ResultSet
	for rows.Next() {
		rs, err := scanResultSet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

func findResultSet(ctx context.Context, q querier, name, category string) (domain.ResultSet, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, analysis_category, created_at FROM result_sets WHERE name = ? AND analysis_category = ?`,
		name, category)
	rs, err := scanResultSet(row)
	if err != nil {
		return domain.ResultSet{}, fmt.Errorf("result set %q/%q: %w", name, category, err)
	}
	return rs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResultSet(row scanner) (domain.ResultSet, error) {
	var (
		rs      domain.ResultSet
		created string
	)
	if err := row.Scan(&rs.ID, &rs.Name, &rs.AnalysisCategory, &created); err != nil {
		if isNoRows(err) {
			return domain.ResultSet{}, ErrNotFound
		}
		return domain.ResultSet{}, err
	}
	rs.CreatedAt = parseTime(created)
	return rs, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// EnsureLoadCase returns the id of the load case with exactly this name.
func (t *Tx) EnsureLoadCase(ctx context.Context, name string) (int64, error) {
	if _, err := t.exec(ctx, `INSERT OR IGNORE INTO load_cases (name) VALUES (?)`, name); err != nil {
		return 0, fmt.Errorf("insert load case %q: %w", name, err)
	}
	var id int64
	if err := t.tx.QueryRowContext(ctx, `SELECT id FROM load_cases WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("load case %q: %w", name, err)
	}
	return id, nil
}

// LoadCases lists the load cases that have records in the result set,
// ordered by id. An empty resultType matches every result type.
func (s *Session) LoadCases(ctx context.Context, resultSetID int64, resultType string) ([]domain.LoadCase, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT DISTINCT lc.id, lc.name
		FROM results r JOIN load_cases lc ON lc.id = r.load_case_id
		WHERE r.result_set_id = ? AND (? = '' OR r.result_type = ?)
		ORDER BY lc.id`, resultSetID, resultType, resultType)
	if err != nil {
		return nil, fmt.Errorf("list load cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.LoadCase
	for rows.Next() {
		var lc domain.LoadCase
		if err := rows.Scan(&lc.ID, &lc.Name); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

// EnsureStory returns the id of the named story. New stories are appended
// after every known story in the global order.
func (t *Tx) EnsureStory(ctx context.Context, name string) (int64, error) {
	if _, err := t.exec(ctx, `
		INSERT OR IGNORE INTO stories (name, global_order)
		VALUES (?, (SELECT COALESCE(MAX(global_order), -1) + 1 FROM stories))`, name); err != nil {
		return 0, fmt.Errorf("insert story %q: %w", name, err)
	}
	var id int64
	if err := t.tx.QueryRowContext(ctx, `SELECT id FROM stories WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("story %q: %w", name, err)
	}
	return id, nil
}

// ApplyCanonicalStoryOrder makes names the head of the global story order,
// in the given sequence. Stories not in names keep their relative order
// after them.
func (t *Tx) ApplyCanonicalStoryOrder(ctx context.Context, names []string) error {
	for _, name := range names {
		if _, err := t.EnsureStory(ctx, name); err != nil {
			return err
		}
	}
	current, err := listStories(ctx, t.tx)
	if err != nil {
		return err
	}

	order := make(map[string]int, len(current))
	next := 0
	for _, name := range names {
		if _, seen := order[name]; seen {
			continue
		}
		order[name] = next
		next++
	}
	for _, s := range current {
		if _, ok := order[s.Name]; !ok {
			order[s.Name] = next
			next++
		}
	}

	for _, s := range current {
		if order[s.Name] == s.GlobalOrder {
			continue
		}
		if _, err := t.exec(ctx, `UPDATE stories SET global_order = ? WHERE id = ?`, order[s.Name], s.ID); err != nil {
			return fmt.Errorf("reorder story %q: %w", s.Name, err)
		}
	}
	return nil
}

// Stories lists every story in global order.
func (s *Session) Stories(ctx context.Context) ([]domain.Story, error) {
	return listStories(ctx, s.reader())
}

func listStories(ctx context.Context, q querier) ([]domain.Story, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, global_order FROM stories ORDER BY global_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Story
	for rows.Next() {
		var s domain.Story
		if err := rows.Scan(&s.ID, &s.Name, &s.GlobalOrder); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// EnsureElement returns the id of the element (elementType, name).
func (t *Tx) EnsureElement(ctx context.Context, elementType, name string) (int64, error) {
	if _, err := t.exec(ctx,
		`INSERT OR IGNORE INTO elements (element_type, unique_name) VALUES (?, ?)`, elementType, name); err != nil {
		return 0, fmt.Errorf("insert element %s %q: %w", elementType, name, err)
	}
	var id int64
	if err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM elements WHERE element_type = ? AND unique_name = ?`, elementType, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("element %s %q: %w", elementType, name, err)
	}
	return id, nil
}
