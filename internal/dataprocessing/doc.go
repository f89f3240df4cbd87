// Package dataprocessing reads structural analysis result workbooks.
//
// # Architecture
//
// The package is organized into three parts:
//
// 1. Workbook: opens a file once, fingerprints its bytes and exposes the sheets
// 2. Extractors: one SheetExtractor per result category, pluggable through ExtractorSet
// 3. Reference sheets: the foundation joint list used to filter joint categories
//
// # Column convention
//
// Result sheets carry one or more axis columns (Story, Element and Story, or
// Joint) followed by value columns named "<prefix>_<load case>_<direction>",
// for example "Drift_DES_X1_X". Columns that do not follow the convention are
// ignored.
//
// # Usage
//
//	wb, err := dataprocessing.OpenWorkbook(ref)
//	if err != nil {
//	    return err
//	}
//	defer wb.Close()
//
//	extractors := dataprocessing.DefaultExtractors(logger)
//	ex, _ := extractors.Get(catalog.StoryDrifts)
//	loadCases, err := ex.ScanHeader(wb)
package dataprocessing
