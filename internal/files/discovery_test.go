package files

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFiles creates files in dir with increasing modification times.
func writeFiles(t *testing.T, dir string, names []string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	base := time.Now().Add(-time.Hour)
	for i, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("test content"), 0o644))
		modTime := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, modTime, modTime))
	}
}

func TestNewDiscovery(t *testing.T) {
	discovery := NewDiscovery("/test/base")
	assert.NotNil(t, discovery)
	assert.Equal(t, "/test/base", discovery.basePath)
}

func TestFindWorkbooks(t *testing.T) {
	tests := []struct {
		name          string
		files         []string
		expectedNames []string
	}{
		{
			name:          "only workbooks",
			files:         []string{"run1.xlsx", "run2.XLSX"},
			expectedNames: []string{"run1.xlsx", "run2.XLSX"},
		},
		{
			name:          "skips lock files and other types",
			files:         []string{"run1.xlsx", "~$run1.xlsx", "notes.csv", "legacy.xls"},
			expectedNames: []string{"run1.xlsx"},
		},
		{
			name:          "oldest first",
			files:         []string{"zeta.xlsx", "alpha.xlsx"},
			expectedNames: []string{"zeta.xlsx", "alpha.xlsx"},
		},
		{
			name:  "empty directory",
			files: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			writeFiles(t, filepath.Join(tmpDir, "results"), tt.files)

			refs, err := NewDiscovery(tmpDir).FindWorkbooks("results")
			require.NoError(t, err)

			var names []string
			for _, ref := range refs {
				names = append(names, ref.Name)
				assert.Equal(t, filepath.Join(tmpDir, "results", ref.Name), ref.Path)
				assert.Greater(t, ref.Size, int64(0))
				assert.False(t, ref.ModTime.IsZero())
				assert.Empty(t, ref.Checksum)
			}
			assert.Equal(t, tt.expectedNames, names)
		})
	}
}

func TestFindWorkbooks_MissingDir(t *testing.T) {
	_, err := NewDiscovery(t.TempDir()).FindWorkbooks("nope")
	assert.Error(t, err)
}

func TestFindByPattern(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, []string{"DES_1.xlsx", "DES_2.xlsx", "MCE_1.xlsx", "DES_notes.txt"})

	refs, err := NewDiscovery(tmpDir).FindByPattern(".", "DES_*")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "DES_1.xlsx", refs[0].Name)
	assert.Equal(t, "DES_2.xlsx", refs[1].Name)

	_, err = NewDiscovery(tmpDir).FindByPattern(".", "[")
	assert.Error(t, err)
}

func TestStat(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, []string{"run.xlsx"})
	discovery := NewDiscovery(tmpDir)

	ref, err := discovery.Stat("run.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "run.xlsx", ref.Name)
	assert.Equal(t, int64(len("test content")), ref.Size)

	_, err = discovery.Stat("missing.xlsx")
	assert.Error(t, err)

	_, err = discovery.Stat(".")
	assert.Error(t, err)
}

func TestCollect(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, filepath.Join(tmpDir, "batch"), []string{"a.xlsx", "b.xlsx"})
	writeFiles(t, tmpDir, []string{"single.xlsx"})

	discovery := NewDiscovery(tmpDir)
	refs, err := discovery.Collect([]string{"single.xlsx", "batch", filepath.Join("batch", "a.xlsx")})
	require.NoError(t, err)

	var names []string
	for _, ref := range refs {
		names = append(names, ref.Name)
	}
	assert.Equal(t, []string{"single.xlsx", "a.xlsx", "b.xlsx"}, names)
	for _, ref := range refs {
		assert.True(t, filepath.IsAbs(ref.Path), ref.Path)
	}

	_, err = discovery.Collect([]string{"ghost.xlsx"})
	assert.Error(t, err)
}

func TestIsWorkbook(t *testing.T) {
	assert.True(t, IsWorkbook("/x/run.xlsx"))
	assert.True(t, IsWorkbook("RUN.XLSX"))
	assert.False(t, IsWorkbook("~$run.xlsx"))
	assert.False(t, IsWorkbook("run.xls"))
	assert.False(t, IsWorkbook("run"))
}

func TestCollect_RelativeAndDottedPathsMatch(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, filepath.Join(tmpDir, "runs"), []string{"a.xlsx"})
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	refs, err := NewDiscovery("").Collect([]string{"runs", "./runs/a.xlsx"})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, CanonicalPath("./runs/a.xlsx"), refs[0].Path)
	assert.True(t, filepath.IsAbs(refs[0].Path))
}
