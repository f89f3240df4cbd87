package domain

import (
	"time"
)

// ImportRequest describes one selective import into a result set.
type ImportRequest struct {
	ResultSet        string    `json:"result_set" validate:"required,max=128"`
	AnalysisCategory string    `json:"analysis_category" validate:"required,max=64"`
	Files            []FileRef `json:"files" validate:"required,min=1,dive"`
	AllowList        AllowList `json:"allow_list"`
	// FoundationJoints is the shared joint filter computed once from the
	// prescan. Nil means joint categories are imported unfiltered.
	FoundationJoints []string `json:"foundation_joints,omitempty"`
}

// ImportPhase names a step of the background import.
type ImportPhase string

const (
	PhaseStarted    ImportPhase = "started"
	PhaseFile       ImportPhase = "file"
	PhaseSheet      ImportPhase = "sheet"
	PhaseFlush      ImportPhase = "flush"
	PhaseCacheBuild ImportPhase = "cache_build"
	PhaseCompleted  ImportPhase = "completed"
)

// ImportProgress is reported after each import phase.
type ImportProgress struct {
	RunID   string      `json:"run_id"`
	Phase   ImportPhase `json:"phase"`
	File    string      `json:"file,omitempty"`
	Sheet   string      `json:"sheet,omitempty"`
	Current int         `json:"current"`
	Total   int         `json:"total"`
	Percent float64     `json:"percent"`
	ETA     string      `json:"eta,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ImportIssue is an error or warning collected during an import.
type ImportIssue struct {
	Kind     string `json:"kind"`
	File     string `json:"file,omitempty"`
	Sheet    string `json:"sheet,omitempty"`
	LoadCase string `json:"load_case,omitempty"`
	Row      int    `json:"row,omitempty"`
	Message  string `json:"message"`
}

// ImportStats summarises a finished import. An import is never
// all-or-nothing: phase-local failures end up in Errors and Warnings.
type ImportStats struct {
	RunID             string        `json:"run_id"`
	ResultSetID       int64         `json:"result_set_id"`
	FilesProcessed    int           `json:"files_processed"`
	LoadCasesImported int           `json:"load_cases_imported"`
	LoadCasesSkipped  int           `json:"load_cases_skipped"`
	RecordsWritten    int           `json:"records_written"`
	CacheRowsBuilt    int           `json:"cache_rows_built"`
	Errors            []ImportIssue `json:"errors,omitempty"`
	Warnings          []ImportIssue `json:"warnings,omitempty"`
	Duration          time.Duration `json:"duration"`
}
