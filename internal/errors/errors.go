package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// Kind classifies an import error.
type Kind string

const (
	// KindUnreadableFile: the workbook could not be opened; the batch continues.
	KindUnreadableFile Kind = "unreadable_file"
	// KindMissingSheet: a category's sheet is absent; only that category is skipped.
	KindMissingSheet Kind = "missing_sheet"
	// KindUnresolvedConflict: a conflict had no resolution and was skipped.
	KindUnresolvedConflict Kind = "unresolved_conflict"
	// KindMalformedRow: a row had an unparseable value and was dropped.
	KindMalformedRow Kind = "malformed_row"
	// KindCacheInconsistency: a cache build was attempted before commit.
	KindCacheInconsistency Kind = "cache_inconsistency"
	// KindStoreUnreachable: the relational store failed; fatal for the import.
	KindStoreUnreachable Kind = "store_unreachable"
	// KindStaleFile: the workbook changed after the prescan.
	KindStaleFile Kind = "stale_file"
	// KindTransform: a category failed to transform or write.
	KindTransform Kind = "transform"
)

// ImportError is a phase-local error collected while importing.
type ImportError struct {
	Kind     Kind
	File     string
	Sheet    string
	LoadCase string
	Row      int
	Message  string
	Cause    error
}

// Error implements the error interface
func (e *ImportError) Error() string {
	if e == nil {
		return "unknown import error"
	}
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Sheet != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Kind, e.Sheet, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ImportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Fatal reports whether the error must abort the whole import.
func (e *ImportError) Fatal() bool {
	return e != nil && e.Kind == KindStoreUnreachable
}

// Issue converts the error to its reportable form.
func (e *ImportError) Issue() domain.ImportIssue {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return domain.ImportIssue{
		Kind:     string(e.Kind),
		File:     e.File,
		Sheet:    e.Sheet,
		LoadCase: e.LoadCase,
		Row:      e.Row,
		Message:  msg,
	}
}

// New creates an import error of the given kind.
func New(kind Kind, file, sheet, message string, cause error) *ImportError {
	return &ImportError{
		Kind:    kind,
		File:    file,
		Sheet:   sheet,
		Message: message,
		Cause:   cause,
	}
}

// UnreadableFile creates an unreadable-file error
func UnreadableFile(file string, cause error) *ImportError {
	return New(KindUnreadableFile, file, "", "failed to read workbook", cause)
}

// MissingSheet creates a missing-sheet error
func MissingSheet(file, sheet string) *ImportError {
	return New(KindMissingSheet, file, sheet, "sheet not found in workbook", nil)
}

// MalformedRow creates a malformed-row warning
func MalformedRow(file, sheet string, row int, cause error) *ImportError {
	e := New(KindMalformedRow, file, sheet, fmt.Sprintf("row %d dropped", row), cause)
	e.Row = row
	return e
}

// StoreUnreachable creates the fatal store error
func StoreUnreachable(cause error) *ImportError {
	return New(KindStoreUnreachable, "", "", "relational store unreachable", cause)
}

// KindOf returns the kind of err, or KindTransform for foreign errors.
func KindOf(err error) Kind {
	var ie *ImportError
	if stderrors.As(err, &ie) {
		return ie.Kind
	}
	return KindTransform
}

// IsFatal reports whether err carries a fatal import error.
func IsFatal(err error) bool {
	var ie *ImportError
	return stderrors.As(err, &ie) && ie.Fatal()
}

// List collects import errors in the order they occurred.
type List struct {
	Errors []*ImportError
}

// Add appends a non-nil error
func (l *List) Add(err *ImportError) {
	if err != nil {
		l.Errors = append(l.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (l *List) HasErrors() bool {
	return len(l.Errors) > 0
}

// ByKind returns the errors of one kind
func (l *List) ByKind(kind Kind) []*ImportError {
	var out []*ImportError
	for _, e := range l.Errors {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Issues converts every error to its reportable form.
func (l *List) Issues() []domain.ImportIssue {
	if len(l.Errors) == 0 {
		return nil
	}
	out := make([]domain.ImportIssue, 0, len(l.Errors))
	for _, e := range l.Errors {
		out = append(out, e.Issue())
	}
	return out
}

// Error implements the error interface
func (l *List) Error() string {
	switch len(l.Errors) {
	case 0:
		return "no errors"
	case 1:
		return l.Errors[0].Error()
	default:
		return fmt.Sprintf("multiple errors: %d errors occurred", len(l.Errors))
	}
}
