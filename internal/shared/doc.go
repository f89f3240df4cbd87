// Package shared holds helpers used across packages that belong to no single
// layer. Its testutil subpackage provides log capture and workbook fixtures
// for tests.
package shared
