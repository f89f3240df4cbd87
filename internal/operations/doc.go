// Package operations runs selective imports in the background.
//
// An Importer takes an ImportRequest built from a prescan and a resolved
// allow-list and walks its files one sheet at a time:
//
//   - each (file, sheet) is transformed and written in its own transaction,
//     so a failing sheet never leaves partial records behind
//   - unreadable files, missing sheets and malformed rows are recorded in
//     the ImportStats and the batch continues
//   - only an unreachable store aborts the run
//
// Once every sheet is committed the session is flushed and the wide cache of
// each touched category is rebuilt. Registered read caches are invalidated
// last. Progress is reported through a ProgressFunc called on the import
// goroutine; ImportTracer adds spans and metrics when telemetry is enabled.
package operations
