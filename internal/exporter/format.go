package exporter

import (
	"strconv"

	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// DefaultPrecision is the number of decimals written for values.
const DefaultPrecision = 4

// formatFloat formats a value with a fixed number of decimals
func formatFloat(f float64, precision int) string {
	return strconv.FormatFloat(f, 'f', precision, 64)
}

// formatMeasure formats a measure; missing measures become empty cells
func formatMeasure(m domain.Measure, precision int) string {
	if !m.Valid {
		return ""
	}
	return formatFloat(m.Value, precision)
}
