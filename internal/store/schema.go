package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// schemaVersion is written to PRAGMA user_version once the schema exists.
const schemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS project (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS result_sets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		analysis_category TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (name, analysis_category)
	)`,
	`CREATE TABLE IF NOT EXISTS load_cases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS stories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		global_order INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS elements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		element_type TEXT NOT NULL,
		unique_name TEXT NOT NULL,
		UNIQUE (element_type, unique_name)
	)`,
	`CREATE TABLE IF NOT EXISTS results (
		result_set_id INTEGER NOT NULL REFERENCES result_sets(id) ON DELETE CASCADE,
		result_type TEXT NOT NULL,
		direction TEXT NOT NULL,
		load_case_id INTEGER NOT NULL REFERENCES load_cases(id),
		story_id INTEGER NOT NULL DEFAULT 0,
		element_id INTEGER NOT NULL DEFAULT 0,
		value REAL NOT NULL,
		sheet_order INTEGER NOT NULL,
		source_file TEXT NOT NULL,
		PRIMARY KEY (result_set_id, result_type, direction, load_case_id, story_id, element_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_results_load_case
		ON results (result_set_id, result_type, load_case_id)`,
	`CREATE TABLE IF NOT EXISTS result_cache (
		result_set_id INTEGER NOT NULL REFERENCES result_sets(id) ON DELETE CASCADE,
		result_type TEXT NOT NULL,
		direction TEXT NOT NULL,
		story_id INTEGER NOT NULL DEFAULT 0,
		element_id INTEGER NOT NULL DEFAULT 0,
		sheet_order INTEGER NOT NULL,
		load_case_values TEXT NOT NULL,
		PRIMARY KEY (result_set_id, result_type, direction, story_id, element_id)
	)`,
	`CREATE TABLE IF NOT EXISTS comparison_sets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		result_set_ids TEXT NOT NULL,
		result_types TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
}

// applySchema creates every table and the project row in one transaction,
// so a store file is either fully initialised or untouched.
func applySchema(ctx context.Context, db *sql.DB, projectName string) (retErr error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO project (id, name, created_at) VALUES (1, ?, ?)`,
		projectName, formatTime(time.Now())); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
