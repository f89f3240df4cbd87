package exporter

import (
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// DatasetTable flattens a dataset: one column per load case in dataset
// order, followed by the per-row summary columns. A load case without a
// value for a row is an empty cell.
func DatasetTable(ds *domain.Dataset, precision int) ([]string, [][]string) {
	headers := make([]string, 0, len(ds.LoadCases)+4)
	headers = append(headers, "Label")
	headers = append(headers, ds.LoadCases...)
	headers = append(headers, "Average", "Maximum", "Minimum")

	records := make([][]string, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		record := make([]string, 0, len(headers))
		record = append(record, row.Label)
		for _, lc := range ds.LoadCases {
			v, ok := row.Values[lc]
			if !ok {
				record = append(record, "")
				continue
			}
			record = append(record, formatFloat(v, precision))
		}
		record = append(record,
			formatFloat(row.Average, precision),
			formatFloat(row.Maximum, precision),
			formatFloat(row.Minimum, precision))
		records = append(records, record)
	}
	return headers, records
}

// ComparisonTable flattens every table of a comparison dataset into one
// sheet keyed by result type and direction. Result sets are columns in
// comparison order.
func ComparisonTable(cd *domain.ComparisonDataset, precision int) ([]string, [][]string) {
	headers := make([]string, 0, len(cd.ResultSets)+4)
	headers = append(headers, "ResultType", "Direction", "Label")
	for _, rs := range cd.ResultSets {
		headers = append(headers, rs.Name)
	}
	headers = append(headers, "Ratio")

	var records [][]string
	for _, table := range cd.Tables {
		for _, row := range table.Rows {
			record := make([]string, 0, len(headers))
			record = append(record, table.ResultType, table.Direction, row.Label)
			for _, m := range row.Values {
				record = append(record, formatMeasure(m, precision))
			}
			record = append(record, formatMeasure(row.Ratio, precision))
			records = append(records, record)
		}
	}
	return headers, records
}
