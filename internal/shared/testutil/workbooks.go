package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// Sheet is the literal content of one worksheet.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]interface{}
}

// ValueFunc returns the cell value for an axis label, load case and direction.
type ValueFunc func(axis, loadCase, direction string) interface{}

// Constant returns v for every cell.
func Constant(v float64) ValueFunc {
	return func(string, string, string) interface{} { return v }
}

// ValueColumns builds the convention headers for the load cases of spec.
func ValueColumns(spec catalog.Spec, loadCases []string) []string {
	var cols []string
	for _, lc := range loadCases {
		for _, dir := range spec.Directions {
			cols = append(cols, fmt.Sprintf("%s_%s_%s", spec.Prefix, lc, dir))
		}
	}
	return cols
}

// StorySheet builds a story-family sheet with one row per story.
func StorySheet(c catalog.Category, stories, loadCases []string, value ValueFunc) Sheet {
	spec := c.Spec()
	s := Sheet{Name: spec.Sheet, Header: append([]string{"Story"}, ValueColumns(spec, loadCases)...)}
	for _, story := range stories {
		row := []interface{}{story}
		for _, lc := range loadCases {
			for _, dir := range spec.Directions {
				row = append(row, value(story, lc, dir))
			}
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

// ElementRow names one element/story pair of an element-family sheet.
type ElementRow struct {
	Element string
	Story   string
}

// ElementSheet builds an element-family sheet. value receives "element/story"
// as the axis label.
func ElementSheet(c catalog.Category, rows []ElementRow, loadCases []string, value ValueFunc) Sheet {
	spec := c.Spec()
	s := Sheet{Name: spec.Sheet, Header: append([]string{"Element", "Story"}, ValueColumns(spec, loadCases)...)}
	for _, r := range rows {
		row := []interface{}{r.Element, r.Story}
		for _, lc := range loadCases {
			for _, dir := range spec.Directions {
				row = append(row, value(r.Element+"/"+r.Story, lc, dir))
			}
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

// JointSheet builds a joint-family sheet with one row per joint.
func JointSheet(c catalog.Category, joints, loadCases []string, value ValueFunc) Sheet {
	spec := c.Spec()
	s := Sheet{Name: spec.Sheet, Header: append([]string{"Joint"}, ValueColumns(spec, loadCases)...)}
	for _, joint := range joints {
		row := []interface{}{joint}
		for _, lc := range loadCases {
			for _, dir := range spec.Directions {
				row = append(row, value(joint, lc, dir))
			}
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

// FoundationSheet builds the foundation joint reference sheet.
func FoundationSheet(joints ...string) Sheet {
	s := Sheet{Name: catalog.FoundationSheet, Header: []string{"Joint"}}
	for _, j := range joints {
		s.Rows = append(s.Rows, []interface{}{j})
	}
	return s
}

// WriteWorkbook saves the sheets as dir/name and returns its FileRef.
func WriteWorkbook(t testing.TB, dir, name string, sheets ...Sheet) domain.FileRef {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet.Name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			t.Fatalf("new sheet %s: %v", sheet.Name, err)
		}
		header := make([]interface{}, len(sheet.Header))
		for j, h := range sheet.Header {
			header[j] = h
		}
		if err := f.SetSheetRow(sheet.Name, "A1", &header); err != nil {
			t.Fatalf("write header: %v", err)
		}
		for r, row := range sheet.Rows {
			cellRef, _ := excelize.CoordinatesToCellName(1, r+2)
			if err := f.SetSheetRow(sheet.Name, cellRef, &row); err != nil {
				t.Fatalf("write row %d: %v", r+2, err)
			}
		}
	}

	path := filepath.Join(dir, name)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return FileRef(t, path)
}

// WriteCorruptFile writes bytes that are not a workbook.
func WriteCorruptFile(t testing.TB, dir, name string) domain.FileRef {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("not a zip archive"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	return FileRef(t, path)
}

// FileRef stats path into a FileRef.
func FileRef(t testing.TB, path string) domain.FileRef {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return domain.FileRef{
		Path:    path,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}
