// Package conflicts finds load cases offered by more than one file for the
// same sheet and turns user choices into a per-sheet allow-list.
//
// Conflicts are sheet-scoped: the same load case name in two files is only
// a conflict when both files carry it on the same sheet.
package conflicts

import (
	"errors"
	"fmt"
	"sort"

	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// ErrInvalidChoice is returned when a resolution names a file that does not
// offer the conflicting load case.
var ErrInvalidChoice = errors.New("invalid conflict resolution")

// Detect builds the sheet-scoped availability map and the conflicts within
// it. File lists keep the prescan's file order. Detect has no side effects.
func Detect(result *domain.PrescanResult) *domain.Conflicts {
	out := &domain.Conflicts{
		Sheets:    make(map[string]map[string][]string),
		Available: make(map[string]map[string][]string),
	}
	if result == nil {
		return out
	}

	for _, f := range result.Files {
		for sheet, loadCases := range f.Sheets {
			if out.Available[sheet] == nil {
				out.Available[sheet] = make(map[string][]string)
			}
			for _, lc := range loadCases {
				out.Available[sheet][lc] = appendUnique(out.Available[sheet][lc], f.File.Path)
			}
		}
	}

	for sheet, loadCases := range out.Available {
		for lc, files := range loadCases {
			if len(files) < 2 {
				continue
			}
			if out.Sheets[sheet] == nil {
				out.Sheets[sheet] = make(map[string][]string)
			}
			out.Sheets[sheet][lc] = files
		}
	}
	return out
}

// Resolve produces the allow-list. Non-conflicting load cases are allowed
// from their only file. A conflict without a resolution entry is skipped
// and listed in Unresolved; one resolved to domain.SkipChoice is listed in
// Skipped. Choices for pairs that are not in conflict are ignored.
func Resolve(c *domain.Conflicts, resolution domain.Resolution) (*domain.AllowList, error) {
	allow := &domain.AllowList{Sheets: make(map[string]map[string][]string)}
	if c == nil {
		return allow, nil
	}

	for _, sheet := range sortedKeys(c.Available) {
		loadCases := c.Available[sheet]
		for _, lc := range sortedKeys(loadCases) {
			files := loadCases[lc]
			if len(files) == 1 {
				allowLoadCase(allow, sheet, files[0], lc)
				continue
			}

			key := domain.ConflictKey{Sheet: sheet, LoadCase: lc}
			choice, ok := resolution[sheet][lc]
			switch {
			case !ok:
				allow.Unresolved = append(allow.Unresolved, key)
			case choice == domain.SkipChoice:
				allow.Skipped = append(allow.Skipped, key)
			case !contains(files, choice):
				return nil, fmt.Errorf("%w: sheet %q load case %q: %q is not one of %v",
					ErrInvalidChoice, sheet, lc, choice, files)
			default:
				allowLoadCase(allow, sheet, choice, lc)
			}
		}
	}
	return allow, nil
}

// allowLoadCase appends lc; callers visit load cases in sorted order so
// each file's list stays sorted.
func allowLoadCase(allow *domain.AllowList, sheet, file, lc string) {
	if allow.Sheets[sheet] == nil {
		allow.Sheets[sheet] = make(map[string][]string)
	}
	allow.Sheets[sheet][file] = append(allow.Sheets[sheet][file], lc)
}

func appendUnique(list []string, v string) []string {
	if contains(list, v) {
		return list
	}
	return append(list, v)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
