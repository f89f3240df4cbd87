// Package exporter writes datasets and comparison datasets as CSV.
//
// CSVWriter handles files, optional UTF-8 BOM for Excel and appends.
// DatasetTable and ComparisonTable flatten the domain types into a header
// and records; missing comparison values are written as empty cells.
//
// Example usage:
//
//	headers, records := exporter.DatasetTable(ds, exporter.DefaultPrecision)
//	err := exporter.NewCSVWriter(logger).WriteCSV("drifts.csv", exporter.WriteOptions{
//		Headers:   headers,
//		Records:   records,
//		BOMPrefix: true,
//	})
package exporter
