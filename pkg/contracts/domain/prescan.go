package domain

import (
	"sort"
	"time"
)

// FileRef identifies a workbook on disk. Checksum is filled by the prescan
// and lets the importer detect files that changed after discovery.
type FileRef struct {
	Path     string    `json:"path" validate:"required,workbook"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Checksum string    `json:"checksum,omitempty"`
}

// FileSummary is what the prescan learned about one workbook without loading
// its row data.
type FileSummary struct {
	File FileRef `json:"file"`
	// Sheets maps sheet name to the load case names found in its header row,
	// in column order with duplicates removed.
	Sheets map[string][]string `json:"sheets"`
	// FoundationJoints is the joint list of the reference sheet, nil when the
	// workbook has none.
	FoundationJoints []string `json:"foundation_joints,omitempty"`
}

// FileError records a workbook the prescan could not read.
type FileError struct {
	File    FileRef `json:"file"`
	Message string  `json:"message"`
}

// PrescanResult aggregates the per-file summaries of a prescan run. Files
// and Errors keep the input order.
type PrescanResult struct {
	Files  []FileSummary `json:"files"`
	Errors []FileError   `json:"errors,omitempty"`
}

// SheetNames returns every sheet seen in any file, sorted.
func (r *PrescanResult) SheetNames() []string {
	seen := make(map[string]struct{})
	for _, f := range r.Files {
		for sheet := range f.Sheets {
			seen[sheet] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SharedFoundationJoints returns the joints present in the reference sheet of
// every file that has one, in the order of the first such file. It returns nil
// when no file carries a reference sheet. The list is meant to be computed
// once per batch and handed to every file's transform.
func (r *PrescanResult) SharedFoundationJoints() []string {
	var base []string
	counts := make(map[string]int)
	withRef := 0
	for _, f := range r.Files {
		if f.FoundationJoints == nil {
			continue
		}
		withRef++
		if base == nil {
			base = f.FoundationJoints
		}
		seen := make(map[string]struct{}, len(f.FoundationJoints))
		for _, j := range f.FoundationJoints {
			if _, dup := seen[j]; dup {
				continue
			}
			seen[j] = struct{}{}
			counts[j]++
		}
	}
	if withRef == 0 {
		return nil
	}
	shared := make([]string, 0, len(base))
	for _, j := range base {
		if counts[j] == withRef {
			shared = append(shared, j)
			counts[j] = 0
		}
	}
	return shared
}

// ConflictKey names one sheet-scoped load case.
type ConflictKey struct {
	Sheet    string `json:"sheet"`
	LoadCase string `json:"load_case"`
}

// Conflicts is the sheet-scoped result of conflict detection.
type Conflicts struct {
	// Sheets maps sheet -> load case -> files, only for load cases found in
	// two or more files of the same sheet.
	Sheets map[string]map[string][]string `json:"sheets"`
	// Available maps sheet -> load case -> files for everything discovered,
	// conflicting or not.
	Available map[string]map[string][]string `json:"available"`
}

// Count returns the number of conflicting (sheet, load case) pairs.
func (c *Conflicts) Count() int {
	n := 0
	for _, lcs := range c.Sheets {
		n += len(lcs)
	}
	return n
}

// Keys returns every conflicting pair sorted by sheet then load case.
func (c *Conflicts) Keys() []ConflictKey {
	var keys []ConflictKey
	for sheet, lcs := range c.Sheets {
		for lc := range lcs {
			keys = append(keys, ConflictKey{Sheet: sheet, LoadCase: lc})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Sheet != keys[j].Sheet {
			return keys[i].Sheet < keys[j].Sheet
		}
		return keys[i].LoadCase < keys[j].LoadCase
	})
	return keys
}

// SkipChoice is the resolution value meaning "import this load case from no file".
const SkipChoice = "<skip>"

// Resolution maps sheet -> load case -> chosen file path or SkipChoice.
type Resolution map[string]map[string]string

// Choose records a choice for one sheet-scoped load case.
func (r Resolution) Choose(sheet, loadCase, file string) {
	if r[sheet] == nil {
		r[sheet] = make(map[string]string)
	}
	r[sheet][loadCase] = file
}

// AllowList says which load cases to import from which file, per sheet.
type AllowList struct {
	// Sheets maps sheet -> file path -> allowed load cases (sorted).
	Sheets map[string]map[string][]string `json:"sheets"`
	// Unresolved lists conflicts that had no resolution entry; they are skipped.
	Unresolved []ConflictKey `json:"unresolved,omitempty"`
	// Skipped lists conflicts explicitly resolved to SkipChoice.
	Skipped []ConflictKey `json:"skipped,omitempty"`
}

// Allowed returns the load case set to import for one file and sheet.
func (a *AllowList) Allowed(file, sheet string) map[string]struct{} {
	lcs := a.Sheets[sheet][file]
	if len(lcs) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(lcs))
	for _, lc := range lcs {
		set[lc] = struct{}{}
	}
	return set
}

// SheetsFor returns the sheets with at least one allowed load case for a file.
func (a *AllowList) SheetsFor(file string) []string {
	var sheets []string
	for sheet, files := range a.Sheets {
		if len(files[file]) > 0 {
			sheets = append(sheets, sheet)
		}
	}
	sort.Strings(sheets)
	return sheets
}

// Complete reports whether every detected conflict received a resolution.
func (a *AllowList) Complete() bool {
	return len(a.Unresolved) == 0
}

// SkippedCount returns how many sheet-scoped load cases are excluded.
func (a *AllowList) SkippedCount() int {
	return len(a.Unresolved) + len(a.Skipped)
}
