package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Dataset is a materialised table for one (result set, result type, direction).
// LoadCases gives the column order; rows are already in display order.
type Dataset struct {
	ResultSetID int64        `json:"result_set_id"`
	ResultType  string       `json:"result_type"`
	Direction   string       `json:"direction"`
	Unit        string       `json:"unit"`
	LoadCases   []string     `json:"load_cases"`
	Rows        []DatasetRow `json:"rows"`
}

// DatasetRow is one axis entity of a dataset.
type DatasetRow struct {
	Story      string             `json:"story,omitempty"`
	Element    string             `json:"element,omitempty"`
	Label      string             `json:"label"`
	SheetOrder int                `json:"sheet_order"`
	Values     map[string]float64 `json:"values"`
	Average    float64            `json:"average"`
	Maximum    float64            `json:"maximum"`
	Minimum    float64            `json:"minimum"`
}

// ComparisonSet is a persisted query descriptor over two or more result sets.
type ComparisonSet struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name" validate:"required,max=128"`
	ResultSetIDs []int64   `json:"result_set_ids" validate:"required,min=2,unique,dive,gt=0"`
	ResultTypes  []string  `json:"result_types" validate:"required,min=1,unique,dive,result_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// Measure is a value that may be missing. A missing measure is distinct from
// a measured zero and serialises as JSON null.
type Measure struct {
	Value float64
	Valid bool
}

// Present wraps a measured value.
func Present(v float64) Measure {
	return Measure{Value: v, Valid: true}
}

// Missing is the sentinel for absent or undefined values.
var Missing = Measure{}

// MarshalJSON implements json.Marshaler.
func (m Measure) MarshalJSON() ([]byte, error) {
	if !m.Valid || math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Measure) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Missing
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Present(v)
	return nil
}

// ComparisonRow holds one axis entity across the compared result sets.
// Values is parallel to ComparisonDataset.ResultSets.
type ComparisonRow struct {
	Label  string    `json:"label"`
	Values []Measure `json:"values"`
	Ratio  Measure   `json:"ratio"`
}

// ComparisonTable is the comparison for one result type and direction.
type ComparisonTable struct {
	ResultType string          `json:"result_type"`
	Direction  string          `json:"direction"`
	Unit       string          `json:"unit"`
	Rows       []ComparisonRow `json:"rows"`
}

// ComparisonDataset is the materialised form of a ComparisonSet.
type ComparisonDataset struct {
	ComparisonSetID int64             `json:"comparison_set_id"`
	Name            string            `json:"name"`
	ResultSets      []ResultSet       `json:"result_sets"`
	Tables          []ComparisonTable `json:"tables"`
}
