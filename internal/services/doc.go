// Package services is the read side of a project store and the facade that
// ties the import pipeline together.
//
// # Datasets
//
// ResultService keeps one provider per result family (story, element,
// joint). Each provider caches datasets keyed by result set, result type and
// direction. Invalidate clears a result set from every provider; the
// importer calls it after each run. Every query opens its own store session.
//
// # Comparisons
//
// ComparisonBuilder reads datasets through a ResultService and lines up
// result sets row by row. Values missing from a result set, and ratios that
// cannot be computed, are domain.Missing rather than zero.
//
// # Pipeline
//
// Pipeline exposes the whole flow to callers such as the CLI:
//
//	result, _ := p.Prescan(ctx, files)
//	allow, _ := p.Resolve(p.DetectConflicts(result), choices)
//	stats, _ := p.ImportSelected(ctx, req, progress)
//	ds, _ := p.GetDataset(ctx, stats.ResultSetID, "StoryDrifts", "X")
package services
