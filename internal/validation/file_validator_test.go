package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileValidator_ValidateInput(t *testing.T) {
	dir := t.TempDir()
	workbook := filepath.Join(dir, "run.xlsx")
	require.NoError(t, os.WriteFile(workbook, []byte("PK"), 0o644))
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0o644))

	tests := []struct {
		name          string
		path          string
		wantErr       bool
		errorContains string
	}{
		{name: "directory", path: dir},
		{name: "workbook", path: workbook},
		{name: "missing", path: filepath.Join(dir, "gone.xlsx"), wantErr: true, errorContains: "does not exist"},
		{name: "other extension", path: notes, wantErr: true, errorContains: "not an .xlsx workbook"},
	}

	v := NewFileValidator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateInput(tt.path)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestFileValidator_ValidateWorkbook_LockFile(t *testing.T) {
	dir := t.TempDir()
	lock := filepath.Join(dir, "~$run.xlsx")
	require.NoError(t, os.WriteFile(lock, []byte("x"), 0o644))

	err := NewFileValidator(nil).ValidateWorkbook(lock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an .xlsx workbook")
}

func TestFileValidator_ValidateWorkbook_Directory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "folder.xlsx")
	require.NoError(t, os.Mkdir(dir, 0o755))

	err := NewFileValidator(nil).ValidateWorkbook(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestFileValidator_ValidateOutputDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports", "2026")
	require.NoError(t, NewFileValidator(nil).ValidateOutputDirectory(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file must be removed")
}
