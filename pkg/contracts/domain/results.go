package domain

import (
	"time"
)

// Project is the top-level container. Each project owns exactly one store file.
type Project struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name" validate:"required"`
	StorePath string    `json:"store_path" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ResultSet is a named collection of results from one analysis run (e.g. "DES").
// The analysis category segregates otherwise identical result types, so
// ("DES", "NLTHA") and ("DES", "Pushover") are distinct result sets.
type ResultSet struct {
	ID               int64     `json:"id" db:"id"`
	Name             string    `json:"name" db:"name" validate:"required"`
	AnalysisCategory string    `json:"analysis_category" db:"analysis_category" validate:"required"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// LoadCase is a named analysis scenario, unique by exact name within a project.
type LoadCase struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name" validate:"required"`
}

// Story is a building level. GlobalOrder comes from the canonical sheet;
// per-record ordering lives on NormalizedRecord.SheetOrder.
type Story struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name" validate:"required"`
	GlobalOrder int    `json:"global_order" db:"global_order"`
}

// Element is a structural member identified by (element type, unique name).
// Foundation joints are elements of type "Joint".
type Element struct {
	ID         int64  `json:"id" db:"id"`
	Type       string `json:"type" db:"element_type" validate:"required"`
	UniqueName string `json:"unique_name" db:"unique_name" validate:"required"`
}

// Element types used by the built-in result categories.
const (
	ElementTypeWall   = "Wall"
	ElementTypeColumn = "Column"
	ElementTypeQuad   = "Quad"
	ElementTypeJoint  = "Joint"
)

// NormalizedRecord is one measured value for an axis entity, load case and
// direction within a result set. Records are immutable once written; a
// re-import replaces every record of the same (result set, result type, load case).
type NormalizedRecord struct {
	ResultSetID int64   `json:"result_set_id" db:"result_set_id"`
	ResultType  string  `json:"result_type" db:"result_type"`
	Direction   string  `json:"direction" db:"direction"`
	LoadCaseID  int64   `json:"load_case_id" db:"load_case_id"`
	StoryID     int64   `json:"story_id,omitempty" db:"story_id"`
	ElementID   int64   `json:"element_id,omitempty" db:"element_id"`
	Value       float64 `json:"value" db:"value"`
	SheetOrder  int     `json:"sheet_order" db:"sheet_order"`
	SourceFile  string  `json:"source_file" db:"source_file"`
}

// WideCacheRecord is the pivoted form of normalized records: one row per
// (result set, result type, direction, axis entity) with a load case -> value map.
type WideCacheRecord struct {
	ResultSetID int64              `json:"result_set_id"`
	ResultType  string             `json:"result_type"`
	Direction   string             `json:"direction"`
	StoryID     int64              `json:"story_id,omitempty"`
	ElementID   int64              `json:"element_id,omitempty"`
	SheetOrder  int                `json:"sheet_order"`
	Values      map[string]float64 `json:"values"`
}
