package dataprocessing

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

var (
	// ErrSheetNotFound is returned when a category's sheet is absent.
	ErrSheetNotFound = errors.New("sheet not found")
	// ErrMissingAxisColumn is returned when a sheet lacks an axis column.
	ErrMissingAxisColumn = errors.New("axis column not found")
)

// Workbook is an opened result file. It is not safe for concurrent use.
type Workbook struct {
	Ref    domain.FileRef
	file   *excelize.File
	sheets map[string]string
}

// OpenWorkbook reads the whole file once, fingerprints it and opens it.
// The returned Ref carries the checksum of the bytes actually parsed.
func OpenWorkbook(ref domain.FileRef) (*Workbook, error) {
	data, err := os.ReadFile(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	ref.Checksum = Checksum(data)
	ref.Size = int64(len(data))

	wb := &Workbook{
		Ref:    ref,
		file:   f,
		sheets: make(map[string]string),
	}
	for _, name := range f.GetSheetList() {
		wb.sheets[normalizeSheetName(name)] = name
	}
	return wb, nil
}

// Checksum returns the hex BLAKE2b-256 digest of data.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileChecksum hashes the file at path.
func FileChecksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Checksum(data), nil
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// SheetNames returns the sheets in workbook order.
func (w *Workbook) SheetNames() []string {
	return w.file.GetSheetList()
}

// sheet resolves a logical sheet name to the workbook's own spelling.
// Matching ignores surrounding whitespace and case.
func (w *Workbook) sheet(name string) (string, bool) {
	actual, ok := w.sheets[normalizeSheetName(name)]
	return actual, ok
}

// HasSheet reports whether the workbook contains the named sheet.
func (w *Workbook) HasSheet(name string) bool {
	_, ok := w.sheet(name)
	return ok
}

// rows opens a streaming row iterator on the named sheet.
func (w *Workbook) rows(name string) (*excelize.Rows, error) {
	actual, ok := w.sheet(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, name)
	}
	rows, err := w.file.Rows(actual)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of %s: %w", name, err)
	}
	return rows, nil
}

// ReadFoundationJoints returns the joints listed in the reference sheet, in
// sheet order with duplicates removed. ok is false when the workbook has no
// reference sheet.
func ReadFoundationJoints(w *Workbook) (joints []string, ok bool, err error) {
	if !w.HasSheet(catalog.FoundationSheet) {
		return nil, false, nil
	}
	rows, err := w.rows(catalog.FoundationSheet)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return []string{}, true, nil
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read header: %w", err)
	}
	col := indexOf(header, "Joint")
	if col < 0 {
		return nil, false, fmt.Errorf("%w: %s in %s", ErrMissingAxisColumn, "Joint", catalog.FoundationSheet)
	}

	seen := make(map[string]struct{})
	joints = []string{}
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, false, fmt.Errorf("failed to read row: %w", err)
		}
		name := cell(cols, col)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		joints = append(joints, name)
	}
	return joints, true, rows.Error()
}

func normalizeSheetName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func cell(cols []string, idx int) string {
	if idx < 0 || idx >= len(cols) {
		return ""
	}
	return strings.TrimSpace(cols[idx])
}
